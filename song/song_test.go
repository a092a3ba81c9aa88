package song

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/cwbudde/algo-harmonics/synth"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// testMIDI holds, at 120 BPM and 960 ticks per quarter:
// A4 from 0 to 0.5s, C4 from 0.25s to 0.75s released by a zero-velocity
// note on, and E4 from 1s that is never released.
func testMIDI(t *testing.T) []byte {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(960)
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(120))
	tr.Add(0, midi.NoteOn(0, 69, 100))
	tr.Add(480, midi.NoteOn(0, 60, 80))
	tr.Add(480, midi.NoteOff(0, 69))
	tr.Add(480, midi.NoteOn(0, 60, 0))
	tr.Add(480, midi.NoteOn(1, 64, 90))
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		t.Fatalf("add track: %v", err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("write midi: %v", err)
	}
	return buf.Bytes()
}

func TestFromMIDIPairsNotes(t *testing.T) {
	s, err := FromMIDI(bytes.NewReader(testMIDI(t)), MIDIOptions{})
	if err != nil {
		t.Fatalf("FromMIDI: %v", err)
	}
	want := []Note{
		{Pitch: 69, Velocity: 100, Start: 0, Duration: 0.5},
		{Pitch: 60, Velocity: 80, Start: 0.25, Duration: 0.5},
		{Pitch: 64, Velocity: 90, Start: 1, Duration: DefaultDanglingDuration},
	}
	if len(s.Notes) != len(want) {
		t.Fatalf("got %d notes, want %d: %+v", len(s.Notes), len(want), s.Notes)
	}
	for i, w := range want {
		g := s.Notes[i]
		if g.Pitch != w.Pitch || g.Velocity != w.Velocity ||
			math.Abs(g.Start-w.Start) > 1e-6 || math.Abs(g.Duration-w.Duration) > 1e-6 {
			t.Fatalf("note %d = %+v, want %+v", i, g, w)
		}
	}
	if d := s.Duration(); math.Abs(d-1.5) > 1e-6 {
		t.Fatalf("Duration = %v, want 1.5", d)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFromMIDIRetriggerEndsSoundingNote(t *testing.T) {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(960)
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(120))
	tr.Add(0, midi.NoteOn(0, 69, 100))
	tr.Add(480, midi.NoteOn(0, 69, 50))
	tr.Add(960, midi.NoteOff(0, 69))
	tr.Close(0)
	if err := sm.Add(tr); err != nil {
		t.Fatalf("add track: %v", err)
	}
	var buf bytes.Buffer
	if _, err := sm.WriteTo(&buf); err != nil {
		t.Fatalf("write midi: %v", err)
	}

	s, err := FromMIDI(&buf, MIDIOptions{})
	if err != nil {
		t.Fatalf("FromMIDI: %v", err)
	}
	want := []Note{
		{Pitch: 69, Velocity: 100, Start: 0, Duration: 0.25},
		{Pitch: 69, Velocity: 50, Start: 0.25, Duration: 0.5},
	}
	if len(s.Notes) != len(want) {
		t.Fatalf("got %d notes, want %d: %+v", len(s.Notes), len(want), s.Notes)
	}
	for i, w := range want {
		g := s.Notes[i]
		if g.Velocity != w.Velocity || math.Abs(g.Start-w.Start) > 1e-6 || math.Abs(g.Duration-w.Duration) > 1e-6 {
			t.Fatalf("note %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestFromMIDIMaxDuration(t *testing.T) {
	s, err := FromMIDI(bytes.NewReader(testMIDI(t)), MIDIOptions{MaxDuration: 0.6})
	if err != nil {
		t.Fatalf("FromMIDI: %v", err)
	}
	// C4 is released after the cut and becomes a dangling note.
	if len(s.Notes) != 2 || s.Notes[1].Pitch != 60 || s.Notes[1].Duration != DefaultDanglingDuration {
		t.Fatalf("notes = %+v", s.Notes)
	}
}

func TestFromMIDIQuantize(t *testing.T) {
	s, err := FromMIDI(bytes.NewReader(testMIDI(t)), MIDIOptions{Quantize: 0.4})
	if err != nil {
		t.Fatalf("FromMIDI: %v", err)
	}
	for _, n := range s.Notes {
		if r := math.Mod(n.Start, 0.4); r > 1e-9 && 0.4-r > 1e-9 {
			t.Fatalf("start %v not on grid", n.Start)
		}
	}
}

func TestFromMIDIRejectsGarbage(t *testing.T) {
	_, err := FromMIDI(strings.NewReader("definitely not midi"), MIDIOptions{})
	if !errors.Is(err, fault.ErrDataIntegrity) {
		t.Fatalf("error = %v, want ErrDataIntegrity", err)
	}
}

func TestRenderMixesAtOffsets(t *testing.T) {
	s := &Song{Notes: []Note{
		{Pitch: 69, Velocity: 100, Start: 0, Duration: 0.125},
		{Pitch: 69, Velocity: 100, Start: 0.25, Duration: 0.125},
	}}
	fundamentalOnly := func(_, _, hn, _ float64) float64 {
		if hn == 0 {
			return 0
		}
		return -50
	}
	voice := PredictorVoice{Predictor: synth.PredictorFunc(fundamentalOnly), MaxHarmonics: 2}
	out, stats, err := Render(context.Background(), s, voice, 8000, RenderOptions{Workers: 2})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if stats.Rendered != 2 || stats.Skipped != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(out) != 3000 {
		t.Fatalf("len = %d, want 3000", len(out))
	}
	for i := 1000; i < 2000; i++ {
		if out[i] != 0 {
			t.Fatalf("gap sample %d = %v, want silence", i, out[i])
		}
	}
	for i := 0; i < 1000; i++ {
		if math.Abs(out[i]-out[i+2000]) > 1e-9 {
			t.Fatalf("repeated note differs at %d: %v vs %v", i, out[i], out[i+2000])
		}
	}
}

func TestRenderSkipsMissingPitches(t *testing.T) {
	a := archive.New()
	if err := a.Put(&archive.NoteHarmonics{
		Pitch: 60, Velocity: 64, WindowSize: 100,
		Times:     []float64{0, 0.5},
		Harmonics: map[int]archive.Envelope{1: {0.5, 0.5}},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s := &Song{Notes: []Note{
		{Pitch: 60, Velocity: 100, Start: 0, Duration: 0.25},
		{Pitch: 61, Velocity: 100, Start: 0, Duration: 0.25},
	}}
	out, stats, err := Render(context.Background(), s, ArchiveVoice{Archive: a}, 4000, RenderOptions{Normalize: true})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if stats.Rendered != 1 || stats.Skipped != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(out) != 1000 {
		t.Fatalf("len = %d, want 1000", len(out))
	}
}

func TestValidateRejectsBadNotes(t *testing.T) {
	s := &Song{Notes: []Note{{Pitch: 200, Velocity: 10, Duration: 1}, {Pitch: 60, Velocity: 10, Duration: 0}}}
	if err := s.Validate(); !errors.Is(err, fault.ErrConfig) {
		t.Fatalf("Validate = %v, want ErrConfig", err)
	}
}
