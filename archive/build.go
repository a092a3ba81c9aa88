package archive

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/cwbudde/algo-harmonics/analysis"
	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options controls how notes are analyzed.
type Options struct {
	MaxHarmonics  int
	MaxWindowTime float64
	MaxPeriods    int
	Hop           int
	Window        string
	Workers       int
}

// DefaultOptions returns the analysis settings used by the CLI.
func DefaultOptions() Options {
	return Options{
		MaxHarmonics:  MaxHarmonics,
		MaxWindowTime: analysis.DefaultMaxWindowTime,
		Window:        analysis.DefaultWindow,
	}
}

// NoteSource is one labeled note recording.
type NoteSource struct {
	Pitch      int
	Velocity   int
	Samples    []float64
	SampleRate float64
	// Name identifies the source in error messages.
	Name string
}

// Builder turns note recordings into archive records.
type Builder struct {
	Options Options
}

// NewBuilder returns a builder with the given options.
func NewBuilder(opts Options) *Builder {
	return &Builder{Options: opts}
}

// Analyze extracts the envelopes of harmonics 1..MaxHarmonics from src. The
// window size is chosen once per note and shared by every harmonic.
func (b *Builder) Analyze(src NoteSource) (*NoteHarmonics, error) {
	maxH := b.Options.MaxHarmonics
	if maxH == 0 {
		maxH = MaxHarmonics
	}
	if maxH < 1 {
		return nil, fmt.Errorf("%w: max harmonics must be >= 1: %d", fault.ErrConfig, maxH)
	}

	f0 := analysis.PitchFrequency(src.Pitch)
	n, err := analysis.WindowSize(src.SampleRate, f0, analysis.WindowOptions{
		MaxWindowTime: b.Options.MaxWindowTime,
		MaxPeriods:    b.Options.MaxPeriods,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.label(), err)
	}

	hs := make([]int, maxH)
	for i := range hs {
		hs[i] = i + 1
	}
	times, amps, err := analysis.Envelopes(src.Samples, src.SampleRate, n, f0, hs, analysis.STFTOptions{
		Hop:    b.Options.Hop,
		Window: b.Options.Window,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.label(), err)
	}

	note := &NoteHarmonics{
		Pitch:      src.Pitch,
		Velocity:   src.Velocity,
		Times:      times,
		WindowSize: n,
		Harmonics:  make(map[int]Envelope, maxH),
	}
	for h, env := range amps {
		note.Harmonics[h] = env
	}
	return note, nil
}

// Build analyzes every source in parallel and returns the resulting
// archive. Notes are inserted in input order, so when two sources share a
// key the later one wins. The first failure cancels the batch.
func (b *Builder) Build(ctx context.Context, sources []NoteSource) (*Archive, error) {
	workers := b.Options.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(sources) {
		workers = len(sources)
	}

	results := make([]*NoteHarmonics, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := w; i < len(sources); i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				note, err := b.Analyze(sources[i])
				if err != nil {
					return err
				}
				results[i] = note
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := New()
	a.BuildID = uuid.NewString()
	a.Created = time.Now().UTC()
	for i, note := range results {
		if err := note.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", sources[i].label(), err)
		}
		a.put(note)
	}
	return a, nil
}

func (s NoteSource) label() string {
	if s.Name != "" {
		return s.Name
	}
	return NoteKey{Pitch: s.Pitch, Velocity: s.Velocity}.String()
}
