package synth

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/dsp"
	"github.com/cwbudde/algo-harmonics/fault"
)

// Predicted amplitudes are clamped to this range after exponentiation.
const (
	PredictMinAmplitude = 1e-8
	PredictMaxAmplitude = 1e4
)

// AmplitudeSource supplies per-harmonic amplitude envelopes for one note.
type AmplitudeSource interface {
	Pitch() int
	// Span is the time range covered by the note in seconds.
	Span() (start, end float64)
	// Harmonics lists the harmonic numbers to render.
	Harmonics() []int
	// Amplitudes writes the amplitude of harmonic h at each time in t,
	// which is ascending, into dst.
	Amplitudes(h int, t []float64, dst []float64)
}

// StoredEnvelope plays back envelopes from an archived note.
type StoredEnvelope struct {
	note       *archive.NoteHarmonics
	start, end float64
	hs         []int
	order      int
	curves     map[int]*dsp.Breakpoints
}

// NewStoredEnvelope wraps a copy of note. The note needs at least two
// analysis times to define a duration.
func NewStoredEnvelope(note *archive.NoteHarmonics) (*StoredEnvelope, error) {
	return newStoredEnvelope(note, 1)
}

// NewSmoothStoredEnvelope is NewStoredEnvelope with cubic interpolation
// between analysis frames.
func NewSmoothStoredEnvelope(note *archive.NoteHarmonics) (*StoredEnvelope, error) {
	return newStoredEnvelope(note, 3)
}

func newStoredEnvelope(note *archive.NoteHarmonics, order int) (*StoredEnvelope, error) {
	if note == nil {
		return nil, fmt.Errorf("%w: nil note", fault.ErrInputShape)
	}
	if len(note.Times) < 2 {
		return nil, fmt.Errorf("%w: note %s has %d time points, need at least 2",
			fault.ErrInputShape, note.Key(), len(note.Times))
	}
	n := note.Clone()
	s := &StoredEnvelope{
		note:   n,
		start:  n.Times[0],
		end:    n.Times[len(n.Times)-1],
		hs:     n.HarmonicIndices(),
		order:  order,
		curves: make(map[int]*dsp.Breakpoints, len(n.Harmonics)),
	}
	for h, env := range n.Harmonics {
		s.curves[h] = dsp.NewBreakpoints(n.Times, env, order)
	}
	return s, nil
}

func (s *StoredEnvelope) Pitch() int { return s.note.Pitch }

func (s *StoredEnvelope) Span() (float64, float64) { return s.start, s.end }

func (s *StoredEnvelope) Harmonics() []int { return s.hs }

func (s *StoredEnvelope) Amplitudes(h int, t []float64, dst []float64) {
	c, ok := s.curves[h]
	if !ok {
		for i := range t {
			dst[i] = 0
		}
		return
	}
	c.Render(t, dst)
	if s.order == 3 {
		// Cubic segments can undershoot between frames.
		for i := range t {
			dst[i] = math.Max(dst[i], 0)
		}
	}
}

// Truncate shortens the playback span to at most d seconds.
func (s *StoredEnvelope) Truncate(d float64) {
	if d > 0 && s.end-s.start > d {
		s.end = s.start + d
	}
}
