// Package archive stores per-note harmonic amplitude envelopes keyed by
// pitch and velocity, and builds them from recordings.
package archive

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cwbudde/algo-harmonics/fault"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Analysis defaults.
const (
	MaxHarmonics = 32
	PitchLowest  = 21
	PitchHighest = 114
)

// NoteKey identifies a note instance.
type NoteKey struct {
	Pitch    int `json:"pitch"`
	Velocity int `json:"velocity"`
}

func (k NoteKey) String() string {
	return fmt.Sprintf("%d_%d", k.Pitch, k.Velocity)
}

func (k NoteKey) less(o NoteKey) bool {
	if k.Pitch != o.Pitch {
		return k.Pitch < o.Pitch
	}
	return k.Velocity < o.Velocity
}

// Envelope is the amplitude of one harmonic at each analysis time.
type Envelope []float64

// NoteHarmonics holds the envelopes extracted from one note.
type NoteHarmonics struct {
	Pitch      int
	Velocity   int
	Times      []float64
	WindowSize int
	Harmonics  map[int]Envelope
}

// Key returns the archive key of the note.
func (n *NoteHarmonics) Key() NoteKey {
	return NoteKey{Pitch: n.Pitch, Velocity: n.Velocity}
}

// HarmonicIndices returns the stored harmonic numbers in ascending order.
func (n *NoteHarmonics) HarmonicIndices() []int {
	hs := maps.Keys(n.Harmonics)
	slices.Sort(hs)
	return hs
}

// Duration returns the span covered by the analysis times.
func (n *NoteHarmonics) Duration() float64 {
	if len(n.Times) == 0 {
		return 0
	}
	return n.Times[len(n.Times)-1] - n.Times[0]
}

// Validate checks the structural invariants of a note record.
func (n *NoteHarmonics) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil note", fault.ErrDataIntegrity)
	}
	if n.WindowSize <= 0 {
		return fmt.Errorf("%w: note %s: window_size must be > 0, got %d", fault.ErrDataIntegrity, n.Key(), n.WindowSize)
	}
	for i, t := range n.Times {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("%w: note %s: time %d is not finite", fault.ErrDataIntegrity, n.Key(), i)
		}
		if i > 0 && t < n.Times[i-1] {
			return fmt.Errorf("%w: note %s: times decrease at index %d", fault.ErrDataIntegrity, n.Key(), i)
		}
	}
	for h, env := range n.Harmonics {
		if h < 1 {
			return fmt.Errorf("%w: note %s: harmonic index %d < 1", fault.ErrDataIntegrity, n.Key(), h)
		}
		if len(env) != len(n.Times) {
			return fmt.Errorf("%w: note %s: harmonic %d has %d amplitudes for %d times",
				fault.ErrDataIntegrity, n.Key(), h, len(env), len(n.Times))
		}
		for i, a := range env {
			if !(a >= 0) || math.IsInf(a, 0) {
				return fmt.Errorf("%w: note %s: harmonic %d amplitude %d is %v",
					fault.ErrDataIntegrity, n.Key(), h, i, a)
			}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (n *NoteHarmonics) Clone() *NoteHarmonics {
	if n == nil {
		return nil
	}
	c := &NoteHarmonics{
		Pitch:      n.Pitch,
		Velocity:   n.Velocity,
		Times:      slices.Clone(n.Times),
		WindowSize: n.WindowSize,
		Harmonics:  make(map[int]Envelope, len(n.Harmonics)),
	}
	for h, env := range n.Harmonics {
		c.Harmonics[h] = slices.Clone(env)
	}
	return c
}

// Archive maps note keys to their harmonic envelopes. The archive owns its
// records: Put stores a copy and Lookup returns one.
type Archive struct {
	// BuildID and Created identify the build that produced the archive.
	BuildID string
	Created time.Time

	notes map[NoteKey]*NoteHarmonics
}

// New returns an empty archive.
func New() *Archive {
	return &Archive{notes: make(map[NoteKey]*NoteHarmonics)}
}

// Put validates and stores a copy of note, replacing any note with the same key.
func (a *Archive) Put(note *NoteHarmonics) error {
	if err := note.Validate(); err != nil {
		return err
	}
	a.put(note.Clone())
	return nil
}

func (a *Archive) put(note *NoteHarmonics) {
	if a.notes == nil {
		a.notes = make(map[NoteKey]*NoteHarmonics)
	}
	a.notes[note.Key()] = note
}

// Lookup returns a copy of the note stored under key.
func (a *Archive) Lookup(key NoteKey) (*NoteHarmonics, bool) {
	n, ok := a.notes[key]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Has reports whether key is present.
func (a *Archive) Has(key NoteKey) bool {
	_, ok := a.notes[key]
	return ok
}

// Len returns the number of stored notes.
func (a *Archive) Len() int {
	return len(a.notes)
}

// Keys returns all keys ordered by pitch, then velocity.
func (a *Archive) Keys() []NoteKey {
	keys := maps.Keys(a.notes)
	sortKeys(keys)
	return keys
}

// Available returns the requested keys that are present, in request order.
// Missing keys are skipped.
func (a *Archive) Available(keys []NoteKey) []NoteKey {
	out := make([]NoteKey, 0, len(keys))
	for _, k := range keys {
		if a.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Nearest returns the stored note with the given pitch whose velocity is
// closest to velocity. Ties pick the louder note.
func (a *Archive) Nearest(pitch, velocity int) (*NoteHarmonics, bool) {
	best := NoteKey{}
	bestDist := math.MaxInt
	for k := range a.notes {
		if k.Pitch != pitch {
			continue
		}
		d := k.Velocity - velocity
		if d < 0 {
			d = -d
		}
		if d < bestDist || (d == bestDist && k.Velocity > best.Velocity) {
			best = k
			bestDist = d
		}
	}
	if bestDist == math.MaxInt {
		return nil, false
	}
	return a.Lookup(best)
}

// Merge copies every note of other into a, overwriting on key collisions.
func (a *Archive) Merge(other *Archive) {
	for _, k := range other.Keys() {
		a.put(other.notes[k].Clone())
	}
}

func sortKeys(keys []NoteKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
}
