package main

import (
	"fmt"
	"strconv"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/synth"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [pitch velocity]",
	Short: "List archived notes or describe one",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("need no arguments or <pitch> <velocity>")
		}
		return nil
	},
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := archive.Load(cfg.ArchivePath)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		fmt.Printf("archive: %s\n", cfg.ArchivePath)
		fmt.Printf("build:   %s (%s)\n", a.BuildID, a.Created.Format("2006-01-02 15:04:05"))
		fmt.Printf("notes:   %d\n", a.Len())
		for _, k := range a.Keys() {
			fmt.Printf("  %s\n", k)
		}
		return nil
	}

	key, err := parseKey(args[0], args[1])
	if err != nil {
		return err
	}
	n, ok := a.Lookup(key)
	if !ok {
		return fmt.Errorf("note %s not in %s", key, cfg.ArchivePath)
	}
	fmt.Printf("note %s: f0=%.2f Hz window=%d frames=%d duration=%.3fs\n",
		key, synth.FrequencyForPitch(n.Pitch), n.WindowSize, len(n.Times), n.Duration())
	for _, h := range n.HarmonicIndices() {
		peak, at := 0.0, 0.0
		for i, v := range n.Harmonics[h] {
			if v > peak {
				peak, at = v, n.Times[i]
			}
		}
		fmt.Printf("  h%-2d peak=%.5f at %.3fs\n", h, peak, at)
	}
	return nil
}

func parseKey(pitchRaw, velocityRaw string) (archive.NoteKey, error) {
	pitch, err := strconv.Atoi(pitchRaw)
	if err != nil || pitch < 0 || pitch > 127 {
		return archive.NoteKey{}, fmt.Errorf("invalid pitch %q (expected 0..127)", pitchRaw)
	}
	velocity, err := strconv.Atoi(velocityRaw)
	if err != nil || velocity < 0 || velocity > 127 {
		return archive.NoteKey{}, fmt.Errorf("invalid velocity %q (expected 0..127)", velocityRaw)
	}
	return archive.NoteKey{Pitch: pitch, Velocity: velocity}, nil
}
