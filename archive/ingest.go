package archive

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/cwbudde/algo-harmonics/fault"
)

// AudioReader loads a recording as mono samples.
type AudioReader interface {
	ReadMono(path string) (samples []float64, sampleRate int, err error)
}

// AudioReaderFunc adapts a function to AudioReader.
type AudioReaderFunc func(path string) ([]float64, int, error)

// ReadMono calls f(path).
func (f AudioReaderFunc) ReadMono(path string) ([]float64, int, error) { return f(path) }

// Ingester turns one recording into labeled note sources.
type Ingester interface {
	Split(name string, samples []float64, sampleRate float64) ([]NoteSource, error)
}

// PerFile treats each recording as a single note whose pitch and velocity
// are encoded in the file name as "<pitch>_<velocity>", e.g. "60_100.wav"
// or "note60_v100.wav".
type PerFile struct{}

// Split implements Ingester.
func (PerFile) Split(name string, samples []float64, sampleRate float64) ([]NoteSource, error) {
	key, err := ParseNoteName(name)
	if err != nil {
		return nil, err
	}
	return []NoteSource{{
		Pitch:      key.Pitch,
		Velocity:   key.Velocity,
		Samples:    samples,
		SampleRate: sampleRate,
		Name:       name,
	}}, nil
}

// Sliced cuts a recording of consecutive semitones into segments of equal
// duration. Segment i holds pitch FirstPitch+i; segments above PitchHighest
// and a trailing partial segment are dropped.
type Sliced struct {
	FirstPitch   int
	SliceSeconds float64
	// Velocity applies to every segment. Zero reads it from the file name.
	Velocity int
}

// Split implements Ingester.
func (s Sliced) Split(name string, samples []float64, sampleRate float64) ([]NoteSource, error) {
	if s.SliceSeconds <= 0 || math.IsInf(s.SliceSeconds, 0) || math.IsNaN(s.SliceSeconds) {
		return nil, fmt.Errorf("%w: slice duration must be > 0: %v", fault.ErrConfig, s.SliceSeconds)
	}
	if s.FirstPitch < 0 || s.FirstPitch > 127 {
		return nil, fmt.Errorf("%w: first pitch out of range: %d", fault.ErrConfig, s.FirstPitch)
	}
	velocity := s.Velocity
	if velocity == 0 {
		v, err := parseTrailingNumber(name)
		if err != nil {
			return nil, err
		}
		velocity = v
	}

	size := int(math.Round(s.SliceSeconds * sampleRate))
	if size < 1 {
		return nil, fmt.Errorf("%w: slice of %gs holds no samples", fault.ErrConfig, s.SliceSeconds)
	}
	var out []NoteSource
	for i := 0; (i+1)*size <= len(samples); i++ {
		pitch := s.FirstPitch + i
		if pitch > PitchHighest {
			break
		}
		out = append(out, NoteSource{
			Pitch:      pitch,
			Velocity:   velocity,
			Samples:    samples[i*size : (i+1)*size],
			SampleRate: sampleRate,
			Name:       fmt.Sprintf("%s[%d]", name, pitch),
		})
	}
	return out, nil
}

// ParseNoteName extracts "<pitch>_<velocity>" from a file name. Letters
// are ignored, so "A4_60_100" does not parse but "note60_v100" does.
func ParseNoteName(name string) (NoteKey, error) {
	stem := stemOf(name)
	digits := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return -1
		}
		return r
	}, stem)
	parts := strings.Split(digits, "_")
	if len(parts) != 2 {
		return NoteKey{}, fmt.Errorf("%w: %q: want <pitch>_<velocity>", fault.ErrConfig, name)
	}
	pitch, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return NoteKey{}, fmt.Errorf("%w: %q: bad pitch: %v", fault.ErrConfig, name, err)
	}
	velocity, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return NoteKey{}, fmt.Errorf("%w: %q: bad velocity: %v", fault.ErrConfig, name, err)
	}
	return NoteKey{Pitch: pitch, Velocity: velocity}, nil
}

func parseTrailingNumber(name string) (int, error) {
	stem := stemOf(name)
	end := len(stem)
	for end > 0 && !unicode.IsDigit(rune(stem[end-1])) {
		end--
	}
	start := end
	for start > 0 && unicode.IsDigit(rune(stem[start-1])) {
		start--
	}
	if start == end {
		return 0, fmt.Errorf("%w: %q: no velocity in file name", fault.ErrConfig, name)
	}
	return strconv.Atoi(stem[start:end])
}

func stemOf(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// BuildFromFiles reads each path, splits it with ing and builds an archive
// from the resulting notes. Paths are processed in order, so later files
// win key collisions.
func (b *Builder) BuildFromFiles(ctx context.Context, paths []string, ing Ingester, r AudioReader) (*Archive, error) {
	var sources []NoteSource
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples, sr, err := r.ReadMono(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		notes, err := ing.Split(p, samples, float64(sr))
		if err != nil {
			return nil, err
		}
		sources = append(sources, notes...)
	}
	return b.Build(ctx, sources)
}
