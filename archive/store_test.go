package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-harmonics/fault"
)

func sampleArchive(t *testing.T) *Archive {
	t.Helper()
	a := New()
	for _, k := range []NoteKey{{60, 100}, {62, 40}} {
		n := testNote(k.Pitch, k.Velocity)
		n.Harmonics[1][1] = 0.1 + 0.2 // not exactly representable
		if err := a.Put(n); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	return a
}

func assertSameArchive(t *testing.T, want, got *Archive) {
	t.Helper()
	if got.Len() != want.Len() {
		t.Fatalf("Len = %d, want %d", got.Len(), want.Len())
	}
	for _, k := range want.Keys() {
		w, _ := want.Lookup(k)
		g, ok := got.Lookup(k)
		if !ok {
			t.Fatalf("missing %s", k)
		}
		if g.WindowSize != w.WindowSize || len(g.Times) != len(w.Times) {
			t.Fatalf("%s: header mismatch", k)
		}
		for i := range w.Times {
			if g.Times[i] != w.Times[i] {
				t.Fatalf("%s: times[%d] = %v, want %v", k, i, g.Times[i], w.Times[i])
			}
		}
		for h, env := range w.Harmonics {
			for i := range env {
				if g.Harmonics[h][i] != env[i] {
					t.Fatalf("%s h%d[%d] = %v, want %v", k, h, i, g.Harmonics[h][i], env[i])
				}
			}
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	a := sampleArchive(t)
	for _, name := range []string{"archive.json", "archive.gob"} {
		path := filepath.Join(t.TempDir(), "nested", name)
		if err := a.Save(path); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		assertSameArchive(t, a, got)
		if got.BuildID == "" {
			t.Fatalf("%s: build id not stored", name)
		}
	}
}

func TestJSONDocumentShape(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleArchive(t).Encode(&buf, FormatJSON); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := buf.String()
	for _, want := range []string{`"format":"harmonic-archive/1"`, `"window_size":1200`, `"harmonics":{"1":{"amplitudes":`} {
		if !strings.Contains(s, want) {
			t.Fatalf("encoded archive missing %s: %s", want, s)
		}
	}
}

func TestDecodeCorruptInput(t *testing.T) {
	cases := map[string]string{
		"truncated":   `{"format":"harmonic-archive/1","notes":[{"pitch":60`,
		"wrong tag":   `{"format":"something-else","notes":[]}`,
		"bad lengths": `{"format":"harmonic-archive/1","notes":[{"pitch":60,"velocity":1,"times":[0,1],"window_size":10,"harmonics":{"1":{"amplitudes":[1]}}}]}`,
		"bad key":     `{"format":"harmonic-archive/1","notes":[{"pitch":60,"velocity":1,"times":[0],"window_size":10,"harmonics":{"one":{"amplitudes":[1]}}}]}`,
	}
	for name, doc := range cases {
		if _, err := Decode(strings.NewReader(doc), FormatJSON); !errors.Is(err, fault.ErrDataIntegrity) {
			t.Fatalf("%s: error = %v, want ErrDataIntegrity", name, err)
		}
	}
	if _, err := Decode(strings.NewReader("not gob"), FormatGob); !errors.Is(err, fault.ErrDataIntegrity) {
		t.Fatalf("gob: error = %v, want ErrDataIntegrity", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load error = %v, want not-exist", err)
	}
}

func TestMaterialize(t *testing.T) {
	a := sampleArchive(t)
	same, err := Materialize(a)
	if err != nil || same != a {
		t.Fatalf("Materialize(*Archive) should return its input: %v", err)
	}
	twice, err := Materialize(same)
	if err != nil || twice != a {
		t.Fatalf("Materialize is not idempotent: %v", err)
	}

	doc := a.Document()
	for name, v := range map[string]any{
		"document": doc,
		"records":  doc.Notes,
		"map":      map[NoteKey]*NoteHarmonics{{60, 100}: testNote(60, 100), {62, 40}: testNote(62, 40)},
		"notes":    []*NoteHarmonics{testNote(60, 100), testNote(62, 40)},
	} {
		got, err := Materialize(v)
		if err != nil {
			t.Fatalf("Materialize(%s): %v", name, err)
		}
		if got.Len() != 2 {
			t.Fatalf("Materialize(%s): Len = %d", name, got.Len())
		}
	}

	if _, err := Materialize(42); !errors.Is(err, fault.ErrInputShape) {
		t.Fatalf("Materialize(int) error = %v, want ErrInputShape", err)
	}
	bad := map[NoteKey]*NoteHarmonics{{1, 1}: testNote(60, 100)}
	if _, err := Materialize(bad); !errors.Is(err, fault.ErrDataIntegrity) {
		t.Fatalf("mismatched key error = %v, want ErrDataIntegrity", err)
	}
}
