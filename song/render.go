package song

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/dsp"
	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/cwbudde/algo-harmonics/synth"
	"golang.org/x/sync/errgroup"
)

// Voice renders a single note. A voice that has nothing to play for a
// note returns an error wrapping fault.ErrNotFound.
type Voice interface {
	RenderNote(n Note, sampleRate float64) ([]float64, error)
}

// ArchiveVoice plays notes from archived envelopes, using the stored
// velocity closest to the requested one.
type ArchiveVoice struct {
	Archive *archive.Archive
	// Smooth selects cubic envelope interpolation.
	Smooth bool
	// SkipAboveNyquist drops aliasing harmonics.
	SkipAboveNyquist bool
}

// RenderNote implements Voice. The note is cut at its duration; a recording
// shorter than the note ends early.
func (v ArchiveVoice) RenderNote(n Note, sampleRate float64) ([]float64, error) {
	rec, ok := v.Archive.Nearest(n.Pitch, n.Velocity)
	if !ok {
		return nil, fmt.Errorf("%w: no recording for pitch %d", fault.ErrNotFound, n.Pitch)
	}
	newSource := synth.NewStoredEnvelope
	if v.Smooth {
		newSource = synth.NewSmoothStoredEnvelope
	}
	src, err := newSource(rec)
	if err != nil {
		return nil, err
	}
	src.Truncate(n.Duration)
	return synth.Render(src, sampleRate, synth.Options{SkipAboveNyquist: v.SkipAboveNyquist})
}

// PredictorVoice plays notes from a predictor.
type PredictorVoice struct {
	Predictor        synth.Predictor
	MaxHarmonics     int
	SkipAboveNyquist bool
}

// RenderNote implements Voice.
func (v PredictorVoice) RenderNote(n Note, sampleRate float64) ([]float64, error) {
	src, err := synth.NewPredictedEnvelope(v.Predictor, n.Pitch, n.Velocity, n.Duration, v.MaxHarmonics)
	if err != nil {
		return nil, err
	}
	return synth.Render(src, sampleRate, synth.Options{SkipAboveNyquist: v.SkipAboveNyquist})
}

// RenderOptions controls song rendering.
type RenderOptions struct {
	Normalize bool
	Workers   int
}

// RenderStats reports what was rendered.
type RenderStats struct {
	Rendered int
	// Skipped counts notes the voice had no data for.
	Skipped int
}

// Render plays every note of s with v and mixes the results at their
// start offsets. Notes are rendered in parallel and mixed in order.
func Render(ctx context.Context, s *Song, v Voice, sampleRate float64, opts RenderOptions) ([]float64, RenderStats, error) {
	var stats RenderStats
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, stats, fmt.Errorf("%w: sample rate must be > 0: %v", fault.ErrConfig, sampleRate)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	parts := make([][]float64, len(s.Notes))
	missing := make([]bool, len(s.Notes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, n := range s.Notes {
		i, n := i, n
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			x, err := v.RenderNote(n, sampleRate)
			if errors.Is(err, fault.ErrNotFound) {
				missing[i] = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("note %d (pitch %d): %w", i, n.Pitch, err)
			}
			parts[i] = x
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	out := make([]float64, int(math.Ceil(s.Duration()*sampleRate)))
	for i, n := range s.Notes {
		if missing[i] {
			stats.Skipped++
			continue
		}
		offset := int(math.Round(n.Start * sampleRate))
		out = dsp.Mix(out, parts[i], offset, 1)
		stats.Rendered++
	}
	if opts.Normalize {
		dsp.Normalize(out)
	}
	return out, stats, nil
}
