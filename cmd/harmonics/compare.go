package main

import (
	"fmt"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/envfit"
	"github.com/spf13/cobra"
)

var compareFlags struct {
	candidate string
	fitPath   string
	verbose   bool
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Score a candidate archive or envelope fit against the archive",
	Long: `Compares every archived note with the same note in --candidate (another
archive) or --fit (an envelope fit rendered on the archived times) and prints
per-note scores (0 = identical) and similarity.`,
	Args: cobra.NoArgs,
	RunE: runCompare,
}

func init() {
	f := compareCmd.Flags()
	f.StringVar(&compareFlags.candidate, "candidate", "", "Candidate archive")
	f.StringVar(&compareFlags.fitPath, "fit", "", "Candidate envelope fit JSON")
	f.BoolVarP(&compareFlags.verbose, "verbose", "v", false, "Print per-harmonic metrics")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if (compareFlags.candidate == "") == (compareFlags.fitPath == "") {
		return fmt.Errorf("need exactly one of --candidate or --fit")
	}
	ref, err := archive.Load(cfg.ArchivePath)
	if err != nil {
		return err
	}

	var candidate func(*archive.NoteHarmonics) (*archive.NoteHarmonics, bool)
	if compareFlags.candidate != "" {
		c, err := archive.Load(compareFlags.candidate)
		if err != nil {
			return err
		}
		candidate = func(n *archive.NoteHarmonics) (*archive.NoteHarmonics, bool) {
			return c.Lookup(n.Key())
		}
	} else {
		m, err := envfit.LoadJSON(compareFlags.fitPath)
		if err != nil {
			return err
		}
		candidate = func(n *archive.NoteHarmonics) (*archive.NoteHarmonics, bool) {
			f, ok := m.Nearest(n.Pitch, n.Velocity)
			if !ok {
				return nil, false
			}
			return f.Note(n.Times, n.HarmonicIndices(), n.WindowSize), true
		}
	}

	var compared int
	var score, sim float64
	for _, k := range ref.Keys() {
		n, _ := ref.Lookup(k)
		c, ok := candidate(n)
		if !ok {
			fmt.Printf("  %-7s missing\n", k)
			continue
		}
		r := archive.CompareNotes(n, c)
		compared++
		score += r.Score
		sim += r.Similarity
		fmt.Printf("  %-7s score=%.4f sim=%.2f%%\n", k, r.Score, r.Similarity*100)
		if compareFlags.verbose {
			for _, h := range n.HarmonicIndices() {
				m, ok := r.Harmonics[h]
				if !ok {
					continue
				}
				fmt.Printf("    h%-2d rmse=%.2fdB peak=%.2fdB decay=%.2f/%.2fdB/s lag=%d\n",
					h, m.RMSEDB, m.PeakDiffDB, m.RefDecayDBPerS, m.CandDecayDBPerS, m.LagFrames)
			}
		}
	}
	if compared == 0 {
		return fmt.Errorf("no notes in common")
	}
	fmt.Printf("Compared %d notes: mean_score=%.4f mean_similarity=%.2f%%\n",
		compared, score/float64(compared), sim/float64(compared)*100)
	return nil
}
