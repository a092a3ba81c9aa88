package main

import (
	"fmt"
	"time"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/envfit"
	"github.com/spf13/cobra"
)

var fitFlags struct {
	output       string
	seed         int64
	iterations   int
	population   int
	rounds       int
	variant      string
	maxHarmonics int
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit parametric decay envelopes to every archived note",
	Args:  cobra.NoArgs,
	RunE:  runFit,
}

func init() {
	d := envfit.DefaultOptions()
	f := fitCmd.Flags()
	f.StringVarP(&fitFlags.output, "output", "o", "out/fit.json", "Output fit JSON")
	f.Int64Var(&fitFlags.seed, "seed", d.Seed, "Random seed")
	f.IntVar(&fitFlags.iterations, "iterations", d.Iterations, "Mayfly iterations per round")
	f.IntVar(&fitFlags.population, "population", d.Population, "Mayfly population")
	f.IntVar(&fitFlags.rounds, "rounds", d.Rounds, "Restarts per note")
	f.StringVar(&fitFlags.variant, "variant", d.Variant, "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	f.IntVar(&fitFlags.maxHarmonics, "max-harmonics", 0, "Fit only harmonics 1..N (0 = all)")
	rootCmd.AddCommand(fitCmd)
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := archive.Load(cfg.ArchivePath)
	if err != nil {
		return err
	}

	opts := envfit.Options{
		Seed:         fitFlags.seed,
		Iterations:   fitFlags.iterations,
		Population:   fitFlags.population,
		Rounds:       fitFlags.rounds,
		Workers:      cfg.Workers,
		Variant:      fitFlags.variant,
		MaxHarmonics: fitFlags.maxHarmonics,
	}
	fmt.Printf("Fitting %d notes (variant=%s, pop=%d, iters=%d, rounds=%d, workers=%d)...\n",
		a.Len(), opts.Variant, opts.Population, opts.Iterations, opts.Rounds, opts.Workers)

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	m, err := envfit.Fit(ctx, a, opts)
	if err != nil {
		return err
	}
	for _, f := range m.Notes {
		fmt.Printf("  %-7s mse=%.4f sim=%.2f%% evals=%d a=%.3f b=%.3f c=%.3f d=%.3f\n",
			f.Key(), f.MSE, f.Similarity*100, f.Evals, f.Params.A, f.Params.B, f.Params.C, f.Params.D)
	}
	if err := m.SaveJSON(fitFlags.output); err != nil {
		return err
	}
	mse, sim := m.Summary()
	fmt.Printf("Done notes=%d elapsed=%.1fs mean_mse=%.4f mean_similarity=%.2f%% -> %s\n",
		len(m.Notes), time.Since(start).Seconds(), mse, sim*100, fitFlags.output)
	return nil
}
