package main

import (
	"fmt"
	"time"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/dsp"
	"github.com/cwbudde/algo-harmonics/internal/audioio"
	"github.com/cwbudde/algo-harmonics/song"
	"github.com/spf13/cobra"
)

var songFlags struct {
	output      string
	quantize    float64
	maxDuration float64
	smooth      bool
	modelPath   string
	fitPath     string
	dequantize  bool
	single      bool
	irPath      string
	irWet       float64
}

var songCmd = &cobra.Command{
	Use:   "song <file.mid>",
	Short: "Render a MIDI file with archived or predicted notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runSong,
}

func init() {
	f := songCmd.Flags()
	f.StringVarP(&songFlags.output, "output", "o", "song.wav", "Output WAV file path")
	f.Float64Var(&songFlags.quantize, "quantize", 0, "Snap note times to this grid in seconds (0 = off)")
	f.Float64Var(&songFlags.maxDuration, "max-duration", 0, "Ignore events after this many seconds (0 = off)")
	f.BoolVar(&songFlags.smooth, "smooth", false, "Cubic envelope interpolation for archived notes")
	f.StringVar(&songFlags.modelPath, "model", "", "Trained network JSON")
	f.StringVar(&songFlags.fitPath, "fit", "", "Envelope fit JSON")
	f.BoolVar(&songFlags.dequantize, "quantized", false, "Play the model through its 8-bit weights")
	f.BoolVar(&songFlags.single, "float32", false, "Evaluate the model in single precision")
	f.StringVar(&songFlags.irPath, "ir", "", "Impulse response WAV to convolve the output with (optional)")
	f.Float64Var(&songFlags.irWet, "ir-wet", 1, "Impulse response mix (0 = dry, 1 = fully convolved)")
	rootCmd.AddCommand(songCmd)
}

func runSong(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := song.ReadMIDIFile(args[0], song.MIDIOptions{
		Quantize:    songFlags.quantize,
		MaxDuration: songFlags.maxDuration,
	})
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}

	var voice song.Voice
	if songFlags.modelPath != "" || songFlags.fitPath != "" {
		p, maxH, err := loadPredictor(songFlags.modelPath, songFlags.fitPath, songFlags.dequantize, songFlags.single)
		if err != nil {
			return err
		}
		voice = song.PredictorVoice{Predictor: p, MaxHarmonics: maxH, SkipAboveNyquist: cfg.SkipAboveNyquist}
	} else {
		a, err := archive.Load(cfg.ArchivePath)
		if err != nil {
			return err
		}
		voice = song.ArchiveVoice{Archive: a, Smooth: songFlags.smooth, SkipAboveNyquist: cfg.SkipAboveNyquist}
	}

	fmt.Printf("Rendering %d notes (%.2fs) at %d Hz...\n", len(s.Notes), s.Duration(), cfg.SampleRate)
	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	y, stats, err := song.Render(ctx, s, voice, float64(cfg.SampleRate), song.RenderOptions{
		Normalize: cfg.Normalize,
		Workers:   cfg.Workers,
	})
	if err != nil {
		return err
	}
	if y, err = applyIR(y, songFlags.irPath, songFlags.irWet, cfg.SampleRate, cfg.Normalize); err != nil {
		return err
	}
	if err := audioio.WriteMonoWAV(songFlags.output, dsp.ToFloat32(y), cfg.SampleRate); err != nil {
		return err
	}
	fmt.Printf("Successfully wrote %s (%d frames, rendered=%d skipped=%d, %.1fs)\n",
		songFlags.output, len(y), stats.Rendered, stats.Skipped, time.Since(start).Seconds())
	return nil
}
