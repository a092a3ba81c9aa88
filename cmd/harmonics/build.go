package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/internal/audioio"
	"github.com/spf13/cobra"
)

var buildFlags struct {
	ingest       string
	firstPitch   int
	sliceSeconds float64
	velocity     int
	maxHarmonics int
}

var buildCmd = &cobra.Command{
	Use:   "build <dir|file>...",
	Short: "Build an archive from note recordings",
	Long: `Analyzes every .wav, .flac and .mp3 recording found in the given
directories or files and writes the harmonic envelopes to the archive.

In per-file mode each recording holds one note named "<pitch>_<velocity>".
In sliced mode each recording holds consecutive semitones of equal length.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVar(&buildFlags.ingest, "ingest", "", "Ingest mode override (per-file|sliced)")
	f.IntVar(&buildFlags.firstPitch, "first-pitch", 0, "First pitch of a sliced recording")
	f.Float64Var(&buildFlags.sliceSeconds, "slice-seconds", 0, "Slice duration of a sliced recording")
	f.IntVar(&buildFlags.velocity, "velocity", 0, "Velocity of a sliced recording (0 = parse from file name)")
	f.IntVar(&buildFlags.maxHarmonics, "max-harmonics", 0, "Harmonics per note override")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if buildFlags.ingest != "" {
		cfg.Ingest.Mode = buildFlags.ingest
	}
	if f.Changed("first-pitch") {
		cfg.Ingest.FirstPitch = buildFlags.firstPitch
	}
	if f.Changed("slice-seconds") {
		cfg.Ingest.SliceSeconds = buildFlags.sliceSeconds
	}
	if f.Changed("velocity") {
		cfg.Ingest.Velocity = buildFlags.velocity
	}
	if f.Changed("max-harmonics") {
		cfg.MaxHarmonics = buildFlags.maxHarmonics
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	paths, err := collectRecordings(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no recordings found in %v", args)
	}
	fmt.Printf("Analyzing %d recordings (ingest=%s, harmonics=%d, workers=%d, sample rate=%d)...\n",
		len(paths), cfg.Ingest.Mode, cfg.MaxHarmonics, cfg.Workers, cfg.SampleRate)

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	reader := archive.AudioReaderFunc(func(path string) ([]float64, int, error) {
		return audioio.ReadMonoAt(path, cfg.SampleRate)
	})
	a, err := archive.NewBuilder(cfg.BuildOptions()).BuildFromFiles(ctx, paths, cfg.Ingester(), reader)
	if err != nil {
		return err
	}
	if err := a.Save(cfg.ArchivePath); err != nil {
		return fmt.Errorf("save %s: %w", cfg.ArchivePath, err)
	}
	fmt.Printf("Wrote %s: %d notes, build %s (%.1fs)\n", cfg.ArchivePath, a.Len(), a.BuildID, time.Since(start).Seconds())
	return nil
}

// collectRecordings expands directories into their supported audio files.
// Explicit files are taken as given. Directory listings are sorted so later
// names win key collisions deterministically.
func collectRecordings(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && audioio.Supported(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}
