// Package server exposes an archive over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/dsp"
	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/cwbudde/algo-harmonics/internal/audioio"
	"github.com/cwbudde/algo-harmonics/synth"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// DefaultReloadDelay coalesces bursts of reload requests.
const DefaultReloadDelay = 500 * time.Millisecond

// Options configures a Server.
type Options struct {
	SampleRate     int
	Render         synth.Options
	Smooth         bool
	ReloadDelay    time.Duration
	AllowedOrigins []string
	Logger         *log.Logger
}

// Server serves notes from an archive file. The archive is swapped in
// place on reload.
type Server struct {
	path   string
	opts   Options
	logger *log.Logger
	reload func(func())

	mu      sync.RWMutex
	archive *archive.Archive
	loads   int
}

// New loads the archive at path.
func New(path string, opts Options) (*Server, error) {
	a, err := archive.Load(path)
	if err != nil {
		return nil, err
	}
	return NewWithArchive(a, path, opts), nil
}

// NewWithArchive serves a, reloading from path on request.
func NewWithArchive(a *archive.Archive, path string, opts Options) *Server {
	if opts.SampleRate <= 0 {
		opts.SampleRate = synth.DefaultSampleRate
	}
	if opts.ReloadDelay <= 0 {
		opts.ReloadDelay = DefaultReloadDelay
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "harmonics: ", log.LstdFlags)
	}
	return &Server{
		path:    path,
		opts:    opts,
		logger:  logger,
		reload:  debounce.New(opts.ReloadDelay),
		archive: a,
		loads:   1,
	}
}

// Archive returns the archive currently being served.
func (s *Server) Archive() *archive.Archive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.archive
}

// Loads counts successful archive loads including the initial one.
func (s *Server) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}

// Reload reads the archive file again. On failure the current archive is
// kept.
func (s *Server) Reload() error {
	a, err := archive.Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.archive = a
	s.loads++
	s.mu.Unlock()
	s.logger.Printf("reloaded %s: %d notes", s.path, a.Len())
	return nil
}

// Handler returns the routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/notes", s.handleKeys).Methods(http.MethodGet)
	router.HandleFunc("/notes/{pitch:[0-9]+}/{velocity:[0-9]+}", s.handleNote).Methods(http.MethodGet)
	router.HandleFunc("/notes/{pitch:[0-9]+}/{velocity:[0-9]+}/wav", s.handleWAV).Methods(http.MethodGet)
	router.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(router)
}

// ListenAndServe serves until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Printf("serving %s on %s", s.path, addr)
	return http.ListenAndServe(addr, s.Handler())
}

// KeysResponse is the body of GET /notes.
type KeysResponse struct {
	BuildID string            `json:"build_id"`
	Notes   []archive.NoteKey `json:"notes"`
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	a := s.Archive()
	writeJSON(w, http.StatusOK, KeysResponse{BuildID: a.BuildID, Notes: a.Keys()})
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, archive.NewRecord(n))
}

func (s *Server) handleWAV(w http.ResponseWriter, r *http.Request) {
	n, err := s.lookup(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	newSource := synth.NewStoredEnvelope
	if s.opts.Smooth {
		newSource = synth.NewSmoothStoredEnvelope
	}
	src, err := newSource(n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if raw := r.URL.Query().Get("duration"); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || !(d > 0) {
			s.writeError(w, fmt.Errorf("%w: invalid duration %q", fault.ErrConfig, raw))
			return
		}
		src.Truncate(d)
	}
	y, err := synth.Render(src, float64(s.opts.SampleRate), s.opts.Render)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var buf audioio.Buffer
	if err := audioio.EncodeMonoWAV(&buf, dsp.ToFloat32(y), s.opts.SampleRate); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf.Bytes())))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.reload(func() {
		if err := s.Reload(); err != nil {
			s.logger.Printf("reload %s failed: %v", s.path, err)
		}
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (s *Server) lookup(r *http.Request) (*archive.NoteHarmonics, error) {
	vars := mux.Vars(r)
	pitch, err := strconv.Atoi(vars["pitch"])
	if err != nil {
		return nil, fmt.Errorf("%w: pitch %q", fault.ErrConfig, vars["pitch"])
	}
	velocity, err := strconv.Atoi(vars["velocity"])
	if err != nil {
		return nil, fmt.Errorf("%w: velocity %q", fault.ErrConfig, vars["velocity"])
	}
	key := archive.NoteKey{Pitch: pitch, Velocity: velocity}
	n, ok := s.Archive().Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: note %s", fault.ErrNotFound, key)
	}
	return n, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fault.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fault.ErrConfig), errors.Is(err, fault.ErrInputShape):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Printf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
