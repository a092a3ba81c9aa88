package main

import (
	"fmt"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/dsp"
	"github.com/cwbudde/algo-harmonics/internal/audioio"
	"github.com/cwbudde/algo-harmonics/synth"
	"github.com/spf13/cobra"
)

var renderFlags struct {
	output     string
	duration   float64
	smooth     bool
	modelPath  string
	fitPath    string
	dequantize bool
	single     bool
	irPath     string
	irWet      float64
}

var renderCmd = &cobra.Command{
	Use:   "render <pitch> <velocity>",
	Short: "Resynthesize one note to WAV",
	Long: `Renders a note from the archive, or from a predictor model when
--model or --fit is given. Archive notes use the closest stored velocity.`,
	Args: cobra.ExactArgs(2),
	RunE: runRender,
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderFlags.output, "output", "o", "output.wav", "Output WAV file path")
	f.Float64Var(&renderFlags.duration, "duration", 0, "Duration in seconds (0 = archived length; required with a model)")
	f.BoolVar(&renderFlags.smooth, "smooth", false, "Cubic envelope interpolation")
	f.StringVar(&renderFlags.modelPath, "model", "", "Trained network JSON")
	f.StringVar(&renderFlags.fitPath, "fit", "", "Envelope fit JSON")
	f.BoolVar(&renderFlags.dequantize, "quantized", false, "Play the model through its 8-bit weights")
	f.BoolVar(&renderFlags.single, "float32", false, "Evaluate the model in single precision")
	f.StringVar(&renderFlags.irPath, "ir", "", "Impulse response WAV to convolve the output with (optional)")
	f.Float64Var(&renderFlags.irWet, "ir-wet", 1, "Impulse response mix (0 = dry, 1 = fully convolved)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	key, err := parseKey(args[0], args[1])
	if err != nil {
		return err
	}

	var src synth.AmplitudeSource
	if renderFlags.modelPath != "" || renderFlags.fitPath != "" {
		p, maxH, err := loadPredictor(renderFlags.modelPath, renderFlags.fitPath, renderFlags.dequantize, renderFlags.single)
		if err != nil {
			return err
		}
		if renderFlags.duration <= 0 {
			return fmt.Errorf("--duration must be > 0 when rendering from a model")
		}
		if src, err = synth.NewPredictedEnvelope(p, key.Pitch, key.Velocity, renderFlags.duration, maxH); err != nil {
			return err
		}
	} else {
		a, err := archive.Load(cfg.ArchivePath)
		if err != nil {
			return err
		}
		n, ok := a.Nearest(key.Pitch, key.Velocity)
		if !ok {
			return fmt.Errorf("pitch %d not in %s", key.Pitch, cfg.ArchivePath)
		}
		if n.Velocity != key.Velocity {
			fmt.Printf("Using velocity %d (closest to %d)\n", n.Velocity, key.Velocity)
		}
		newSource := synth.NewStoredEnvelope
		if renderFlags.smooth {
			newSource = synth.NewSmoothStoredEnvelope
		}
		stored, err := newSource(n)
		if err != nil {
			return err
		}
		stored.Truncate(renderFlags.duration)
		src = stored
	}

	fmt.Printf("Rendering note %d, velocity %d at %d Hz...\n", key.Pitch, key.Velocity, cfg.SampleRate)
	y, err := synth.Render(src, float64(cfg.SampleRate), cfg.RenderOptions())
	if err != nil {
		return err
	}
	if y, err = applyIR(y, renderFlags.irPath, renderFlags.irWet, cfg.SampleRate, cfg.Normalize); err != nil {
		return err
	}
	if err := audioio.WriteMonoWAV(renderFlags.output, dsp.ToFloat32(y), cfg.SampleRate); err != nil {
		return err
	}
	fmt.Printf("Successfully wrote %s (%d frames, peak %.3f)\n", renderFlags.output, len(y), dsp.Peak(y))
	return nil
}
