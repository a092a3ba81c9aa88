package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/internal/audioio"
	"github.com/cwbudde/algo-harmonics/model"
)

func writeTone(t *testing.T, path string, freq float64, sr int, seconds float64) {
	t.Helper()
	n := int(seconds * float64(sr))
	x := make([]float32, n)
	for i := range x {
		tt := float64(i) / float64(sr)
		x[i] = float32(0.5*math.Sin(2*math.Pi*freq*tt) + 0.2*math.Sin(2*math.Pi*2*freq*tt))
	}
	if err := audioio.WriteMonoWAV(path, x, sr); err != nil {
		t.Fatalf("write tone: %v", err)
	}
}

func TestParseKey(t *testing.T) {
	k, err := parseKey("69", "100")
	if err != nil || k != (archive.NoteKey{Pitch: 69, Velocity: 100}) {
		t.Fatalf("parseKey = %v, %v", k, err)
	}
	for _, bad := range [][2]string{{"x", "1"}, {"128", "1"}, {"60", "-1"}} {
		if _, err := parseKey(bad[0], bad[1]); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestCollectRecordings(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_72_64.wav", "a_60_64.flac", "notes.txt", "sub/c_48_90.mp3"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := collectRecordings([]string{dir})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a_60_64.flac"),
		filepath.Join(dir, "b_72_64.wav"),
		filepath.Join(dir, "sub", "c_48_90.mp3"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if _, err := collectRecordings([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestBuildAndRenderCommands(t *testing.T) {
	dir := t.TempDir()
	writeTone(t, filepath.Join(dir, "rec", "69_100.wav"), 440, 48000, 0.5)
	archivePath := filepath.Join(dir, "out", "harmonics.json")

	rootCmd.SetArgs([]string{"build", "--archive", archivePath, "--workers", "1", "--max-harmonics", "4", filepath.Join(dir, "rec")})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("build: %v", err)
	}
	a, err := archive.Load(archivePath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	n, ok := a.Lookup(archive.NoteKey{Pitch: 69, Velocity: 100})
	if !ok {
		t.Fatalf("note 69_100 missing, keys %v", a.Keys())
	}
	if len(n.Harmonics) != 4 || n.WindowSize != 1200 {
		t.Fatalf("unexpected note: %d harmonics, window %d", len(n.Harmonics), n.WindowSize)
	}

	out := filepath.Join(dir, "note.wav")
	rootCmd.SetArgs([]string{"render", "--archive", archivePath, "-o", out, "69", "100"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("render: %v", err)
	}
	y, sr, err := audioio.ReadMono(out)
	if err != nil {
		t.Fatalf("read render: %v", err)
	}
	if sr != 48000 || len(y) == 0 {
		t.Fatalf("render output sr=%d len=%d", sr, len(y))
	}
}

func TestLoadPredictorFloat32(t *testing.T) {
	m := &model.MLP{Layers: []model.Layer{
		{Weights: [][]float64{{0.5, -0.25, 0.1, -1}, {0.3, 0.2, -0.4, 0.05}}, Biases: []float64{0.1, -0.2}},
		{Weights: [][]float64{{1.2, -0.7}}, Biases: []float64{-1.5}},
	}}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := m.SaveJSON(path); err != nil {
		t.Fatalf("save model: %v", err)
	}

	ref, maxH, err := loadPredictor(path, "", false, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if maxH != archive.MaxHarmonics {
		t.Fatalf("max harmonics = %d", maxH)
	}
	p, _, err := loadPredictor(path, "", true, true)
	if err != nil {
		t.Fatalf("load float32: %v", err)
	}
	if _, ok := p.(model.Float32); !ok {
		t.Fatalf("predictor is %T, want model.Float32", p)
	}
	want := ref.Predict(0.5, 0.5, 0.2, 0.1)
	if got := p.Predict(0.5, 0.5, 0.2, 0.1); math.Abs(got-want) > 0.05 {
		t.Fatalf("float32 quantized prediction %v, reference %v", got, want)
	}

	if _, _, err := loadPredictor("", filepath.Join(t.TempDir(), "fit.json"), false, true); err == nil {
		t.Fatalf("expected --float32 with --fit to fail")
	}
}
