// Package song turns MIDI note lists into audio using per-note voices.
package song

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/cwbudde/algo-harmonics/fault"
	"gitlab.com/gomidi/midi/v2/smf"
)

// DefaultDanglingDuration is the length given to notes that are never
// released: one beat at 120 BPM.
const DefaultDanglingDuration = 0.5

// Note is one timed note in seconds.
type Note struct {
	Pitch    int     `json:"pitch"`
	Velocity int     `json:"velocity"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the release time.
func (n Note) End() float64 { return n.Start + n.Duration }

// Song is a list of notes ordered by start time.
type Song struct {
	Notes []Note `json:"notes"`
}

// Duration returns the time at which the last note is released.
func (s *Song) Duration() float64 {
	var d float64
	for _, n := range s.Notes {
		d = math.Max(d, n.End())
	}
	return d
}

// MIDIOptions controls MIDI conversion.
type MIDIOptions struct {
	// Quantize snaps note starts and ends to a grid in seconds. Zero disables it.
	Quantize float64
	// MaxDuration drops events after this many seconds. Zero disables it.
	MaxDuration float64
	// DanglingDuration is used for notes without a release. Zero selects
	// DefaultDanglingDuration.
	DanglingDuration float64
}

type noteKey struct {
	channel uint8
	key     uint8
}

type pending struct {
	start    float64
	velocity int
}

// FromMIDI reads a standard MIDI file and pairs note on and off events per
// channel and key. A note on with velocity 0 releases the note.
func FromMIDI(r io.Reader, opts MIDIOptions) (s *Song, err error) {
	// smf can panic on malformed input.
	defer func() {
		if rec := recover(); rec != nil {
			s = nil
			err = fmt.Errorf("%w: parse midi: %v", fault.ErrDataIntegrity, rec)
		}
	}()

	mf, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("%w: parse midi: %v", fault.ErrDataIntegrity, err)
	}

	dangling := opts.DanglingDuration
	if dangling <= 0 {
		dangling = DefaultDanglingDuration
	}
	snap := func(t float64) float64 {
		if opts.Quantize <= 0 {
			return t
		}
		return math.Round(t/opts.Quantize) * opts.Quantize
	}

	out := &Song{}
	for _, track := range mf.Tracks {
		active := map[noteKey]pending{}
		release := func(k noteKey, at float64) {
			p, ok := active[k]
			if !ok {
				return
			}
			delete(active, k)
			dur := snap(at) - p.start
			if dur <= 0 {
				dur = math.Max(opts.Quantize, 1e-3)
			}
			out.Notes = append(out.Notes, Note{Pitch: int(k.key), Velocity: p.velocity, Start: p.start, Duration: dur})
		}
		var absTicks int64
		for _, ev := range track {
			absTicks += int64(ev.Delta)
			at := float64(mf.TimeAt(absTicks)) / 1e6
			if opts.MaxDuration > 0 && at > opts.MaxDuration {
				break
			}

			var ch, key, vel uint8
			switch {
			case ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0:
				// A retrigger ends the sounding note first.
				k := noteKey{ch, key}
				release(k, at)
				active[k] = pending{start: snap(at), velocity: int(vel)}
			case ev.Message.GetNoteOn(&ch, &key, &vel), ev.Message.GetNoteOff(&ch, &key, &vel):
				release(noteKey{ch, key}, at)
			}
		}
		keys := make([]noteKey, 0, len(active))
		for k := range active {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].channel != keys[j].channel {
				return keys[i].channel < keys[j].channel
			}
			return keys[i].key < keys[j].key
		})
		for _, k := range keys {
			p := active[k]
			out.Notes = append(out.Notes, Note{Pitch: int(k.key), Velocity: p.velocity, Start: p.start, Duration: dangling})
		}
	}

	sort.SliceStable(out.Notes, func(i, j int) bool { return out.Notes[i].Start < out.Notes[j].Start })
	return out, nil
}

// ReadMIDIFile reads a MIDI file from disk.
func ReadMIDIFile(path string, opts MIDIOptions) (*Song, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := FromMIDI(bytes.NewReader(b), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks note ranges.
func (s *Song) Validate() error {
	var errs []error
	for i, n := range s.Notes {
		if n.Pitch < 0 || n.Pitch > 127 || n.Velocity < 1 || n.Velocity > 127 {
			errs = append(errs, fmt.Errorf("note %d: pitch %d velocity %d out of range", i, n.Pitch, n.Velocity))
		}
		if n.Start < 0 || !(n.Duration > 0) {
			errs = append(errs, fmt.Errorf("note %d: start %g duration %g", i, n.Start, n.Duration))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", fault.ErrConfig, errors.Join(errs...))
	}
	return nil
}
