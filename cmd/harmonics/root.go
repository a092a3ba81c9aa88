package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/config"
	"github.com/cwbudde/algo-harmonics/dsp"
	"github.com/cwbudde/algo-harmonics/envfit"
	"github.com/cwbudde/algo-harmonics/internal/audioio"
	"github.com/cwbudde/algo-harmonics/internal/cliutil"
	"github.com/cwbudde/algo-harmonics/model"
	"github.com/cwbudde/algo-harmonics/synth"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	archivePath string
	workersRaw  string
)

var rootCmd = &cobra.Command{
	Use:           "harmonics",
	Short:         "Harmonic envelope analysis and additive resynthesis",
	Long:          `Builds archives of per-harmonic amplitude envelopes from note recordings, resynthesizes notes and songs from them, and exports compact predictor models.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "JSON config file (optional)")
	rootCmd.PersistentFlags().StringVar(&archivePath, "archive", "", "Archive path override (.json or .gob)")
	rootCmd.PersistentFlags().StringVar(&workersRaw, "workers", "auto", "Parallel workers (integer >= 1 or 'auto')")
}

// loadConfig resolves the config file and the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewDefault()
	if configPath != "" {
		c, err := config.LoadJSON(configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	}
	if archivePath != "" {
		cfg.ArchivePath = archivePath
	}
	if cmd.Flags().Changed("workers") || cfg.Workers == 0 {
		w, err := cliutil.ParseWorkers(workersRaw)
		if err != nil {
			return nil, err
		}
		cfg.Workers = w
	}
	return cfg, cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// loadPredictor reads either a trained network or an envelope fit. A
// network can be evaluated through its 8-bit weights and in single
// precision, previewing what an embedded target plays.
func loadPredictor(mlpPath, fitPath string, dequantize, single bool) (synth.Predictor, int, error) {
	if fitPath != "" {
		if single {
			return nil, 0, fmt.Errorf("--float32 applies to --model only")
		}
		m, err := envfit.LoadJSON(fitPath)
		if err != nil {
			return nil, 0, err
		}
		return m, m.MaxHarmonics, nil
	}
	m, err := model.LoadJSON(mlpPath)
	if err != nil {
		return nil, 0, err
	}
	if dequantize {
		layers, err := m.Quantize()
		if err != nil {
			return nil, 0, err
		}
		rebuild := model.FromQuantized
		if single {
			rebuild = model.FromQuantized32
		}
		if m, err = rebuild(layers); err != nil {
			return nil, 0, err
		}
	}
	if single {
		return model.Float32{MLP: m}, archive.MaxHarmonics, nil
	}
	return m, archive.MaxHarmonics, nil
}

// applyIR convolves y with the impulse response stored at path, resampled
// to sampleRate. The result is renormalized when normalize is set.
func applyIR(y []float64, path string, wet float64, sampleRate int, normalize bool) ([]float64, error) {
	if path == "" {
		return y, nil
	}
	ir, _, err := audioio.ReadMonoAt(path, sampleRate)
	if err != nil {
		return nil, err
	}
	out, err := dsp.Convolve(y, ir, wet)
	if err != nil {
		return nil, err
	}
	if normalize {
		dsp.Normalize(out)
	}
	return out, nil
}
