package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNote(pitch, velocity int) *archive.NoteHarmonics {
	times := []float64{0, 0.05, 0.1, 0.15, 0.2}
	return &archive.NoteHarmonics{
		Pitch:      pitch,
		Velocity:   velocity,
		Times:      times,
		WindowSize: 1200,
		Harmonics: map[int]archive.Envelope{
			1: {0.5, 0.4, 0.3, 0.2, 0.1},
			2: {0.2, 0.15, 0.1, 0.05, 0.0},
		},
	}
}

func newTestServer(t *testing.T, notes ...*archive.NoteHarmonics) (*Server, string) {
	t.Helper()
	a := archive.New()
	for _, n := range notes {
		require.NoError(t, a.Put(n))
	}
	path := filepath.Join(t.TempDir(), "harmonics.json")
	require.NoError(t, a.Save(path))

	s, err := New(path, Options{
		SampleRate:  8000,
		ReloadDelay: 10 * time.Millisecond,
		Logger:      log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	return s, path
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestListNotes(t *testing.T) {
	s, _ := newTestServer(t, testNote(69, 100), testNote(60, 80))
	rec := get(t, s.Handler(), "/notes")
	require.Equal(t, http.StatusOK, rec.Code)

	var body KeysResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.BuildID)
	assert.Equal(t, []archive.NoteKey{{Pitch: 60, Velocity: 80}, {Pitch: 69, Velocity: 100}}, body.Notes)
}

func TestGetNote(t *testing.T) {
	s, _ := newTestServer(t, testNote(69, 100))
	rec := get(t, s.Handler(), "/notes/69/100")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var r archive.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, 69, r.Pitch)
	assert.Equal(t, 1200, r.WindowSize)
	assert.Equal(t, []float64{0.5, 0.4, 0.3, 0.2, 0.1}, r.Harmonics[1].Amplitudes)
}

func TestGetNoteMissing(t *testing.T) {
	s, _ := newTestServer(t, testNote(69, 100))
	rec := get(t, s.Handler(), "/notes/69/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")

	rec = get(t, s.Handler(), "/notes/abc/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWAV(t *testing.T) {
	s, _ := newTestServer(t, testNote(69, 100))
	rec := get(t, s.Handler(), "/notes/69/100/wav")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/wav", rec.Header().Get("Content-Type"))

	data := rec.Body.Bytes()
	require.Greater(t, len(data), 44)
	assert.Equal(t, "RIFF", string(data[:4]))
	// 0.2 s at 8 kHz in 16-bit mono.
	assert.Equal(t, 44+2*1600, len(data))

	short := get(t, s.Handler(), "/notes/69/100/wav?duration=0.1")
	require.Equal(t, http.StatusOK, short.Code)
	assert.Equal(t, 44+2*800, len(short.Body.Bytes()))

	bad := get(t, s.Handler(), "/notes/69/100/wav?duration=-1")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t, testNote(69, 100))
	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestReloadIsDebounced(t *testing.T) {
	s, path := newTestServer(t, testNote(69, 100))

	next := archive.New()
	require.NoError(t, next.Put(testNote(69, 100)))
	require.NoError(t, next.Put(testNote(72, 64)))
	require.NoError(t, next.Save(path))

	h := s.Handler()
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reload", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	assert.Eventually(t, func() bool { return s.Archive().Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, s.Loads())
	assert.Equal(t, http.StatusOK, get(t, h, "/notes/72/64").Code)
}

func TestReloadKeepsArchiveOnError(t *testing.T) {
	a := archive.New()
	require.NoError(t, a.Put(testNote(60, 64)))
	s := NewWithArchive(a, filepath.Join(t.TempDir(), "missing.json"), Options{Logger: log.New(io.Discard, "", 0)})

	assert.Error(t, s.Reload())
	assert.Equal(t, 1, s.Archive().Len())
	assert.Equal(t, 1, s.Loads())
}

func TestNewMissingArchive(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.json"), Options{})
	assert.Error(t, err)
}
