package archive

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-harmonics/analysis"
	"github.com/cwbudde/algo-harmonics/fault"
)

func harmonicTone(pitch int, sr float64, seconds float64, amps []float64) []float64 {
	f0 := analysis.PitchFrequency(pitch)
	out := make([]float64, int(sr*seconds))
	for i := range out {
		t := float64(i) / sr
		for k, a := range amps {
			out[i] += a * math.Sin(2*math.Pi*float64(k+1)*f0*t)
		}
	}
	return out
}

func TestAnalyzeA4(t *testing.T) {
	b := NewBuilder(Options{MaxHarmonics: 4})
	src := NoteSource{
		Pitch:      69,
		Velocity:   100,
		Samples:    harmonicTone(69, 48000, 0.5, []float64{1, 0, 0.25}),
		SampleRate: 48000,
	}
	n, err := b.Analyze(src)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if n.WindowSize != 1200 {
		t.Fatalf("WindowSize = %d, want 1200", n.WindowSize)
	}
	if len(n.Harmonics) != 4 {
		t.Fatalf("got %d harmonics, want 4", len(n.Harmonics))
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := []float64{1, 0, 0.25, 0}
	for h := 1; h <= 4; h++ {
		env := n.Harmonics[h]
		if len(env) != len(n.Times) {
			t.Fatalf("h%d: %d amplitudes for %d times", h, len(env), len(n.Times))
		}
		for i, a := range env {
			if math.Abs(a-want[h-1]) > 0.01 {
				t.Fatalf("h%d frame %d = %f, want %f", h, i, a, want[h-1])
			}
		}
	}
}

func TestBuildDeterministicLastWriteWins(t *testing.T) {
	var sources []NoteSource
	for i, p := range []int{60, 62, 64, 60} {
		amp := 0.5
		if i == 3 {
			amp = 0.25
		}
		sources = append(sources, NoteSource{
			Pitch:      p,
			Velocity:   90,
			Samples:    harmonicTone(p, 16000, 0.3, []float64{amp}),
			SampleRate: 16000,
		})
	}

	b := NewBuilder(Options{MaxHarmonics: 3, Workers: 3})
	a, err := b.Build(context.Background(), sources)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.Len() != 3 {
		t.Fatalf("Len = %d, want 3", a.Len())
	}
	if a.BuildID == "" {
		t.Fatalf("missing build id")
	}
	n, _ := a.Lookup(NoteKey{60, 90})
	peak := 0.0
	for _, v := range n.Harmonics[1] {
		peak = math.Max(peak, v)
	}
	if math.Abs(peak-0.25) > 0.05 {
		t.Fatalf("collision kept peak %f, want the later source (~0.25)", peak)
	}

	again, err := NewBuilder(Options{MaxHarmonics: 3, Workers: 1}).Build(context.Background(), sources)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, k := range a.Keys() {
		x, _ := a.Lookup(k)
		y, _ := again.Lookup(k)
		for h, env := range x.Harmonics {
			for i := range env {
				if env[i] != y.Harmonics[h][i] {
					t.Fatalf("%s h%d frame %d differs across worker counts", k, h, i)
				}
			}
		}
	}
}

func TestBuildFailsOnBadSource(t *testing.T) {
	sources := []NoteSource{
		{Pitch: 60, Velocity: 90, Samples: make([]float64, 4000), SampleRate: 16000},
		{Pitch: 60, Velocity: 91, Samples: make([]float64, 4000), SampleRate: 0},
	}
	_, err := NewBuilder(DefaultOptions()).Build(context.Background(), sources)
	if !errors.Is(err, fault.ErrConfig) {
		t.Fatalf("Build error = %v, want ErrConfig", err)
	}
}

func TestBuildHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sources := []NoteSource{{Pitch: 60, Velocity: 90, Samples: make([]float64, 4000), SampleRate: 16000}}
	if _, err := NewBuilder(DefaultOptions()).Build(ctx, sources); !errors.Is(err, context.Canceled) {
		t.Fatalf("Build error = %v, want context.Canceled", err)
	}
}

func TestBuildFromFiles(t *testing.T) {
	reader := AudioReaderFunc(func(path string) ([]float64, int, error) {
		return harmonicTone(57, 16000, 0.25, []float64{0.5}), 16000, nil
	})
	paths := []string{"samples/57_40.wav", "samples/57_100.wav"}
	a, err := NewBuilder(Options{MaxHarmonics: 2}).BuildFromFiles(context.Background(), paths, PerFile{}, reader)
	if err != nil {
		t.Fatalf("BuildFromFiles: %v", err)
	}
	if got := a.Keys(); len(got) != 2 || got[0] != (NoteKey{57, 40}) || got[1] != (NoteKey{57, 100}) {
		t.Fatalf("Keys = %v", got)
	}
}
