package envfit

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/cwbudde/algo-harmonics/synth"
)

// Model is a set of per-note fits queried as a predictor.
type Model struct {
	MaxHarmonics int       `json:"max_harmonics"`
	Notes        []NoteFit `json:"notes"`
}

// Nearest returns the fit closest in pitch, then in velocity. Equal
// velocity distances prefer the louder note.
func (m *Model) Nearest(pitch, velocity int) (NoteFit, bool) {
	if m == nil || len(m.Notes) == 0 {
		return NoteFit{}, false
	}
	best := 0
	for i := 1; i < len(m.Notes); i++ {
		if closer(m.Notes[i], m.Notes[best], pitch, velocity) {
			best = i
		}
	}
	return m.Notes[best], true
}

func closer(a, b NoteFit, pitch, velocity int) bool {
	dpa, dpb := absInt(a.Pitch-pitch), absInt(b.Pitch-pitch)
	if dpa != dpb {
		return dpa < dpb
	}
	dva, dvb := absInt(a.Velocity-velocity), absInt(b.Velocity-velocity)
	if dva != dvb {
		return dva < dvb
	}
	return a.Velocity > b.Velocity
}

// Predict implements synth.Predictor. Inputs are denormalized back to MIDI
// pitch, velocity and harmonic number; t is seconds since onset, the same
// clock as archived analysis times.
func (m *Model) Predict(pitchNorm, velocityNorm, harmonicNorm, t float64) float64 {
	pitch := int(math.Round(pitchNorm * 127))
	velocity := int(math.Round(velocityNorm * 127))
	return m.Bind(pitch, velocity).Predict(pitchNorm, velocityNorm, harmonicNorm, t)
}

// Bind implements synth.NoteBinder, resolving the nearest fit once.
func (m *Model) Bind(pitch, velocity int) synth.Predictor {
	f, ok := m.Nearest(pitch, velocity)
	return boundFit{fit: f, ok: ok, maxHarmonics: m.MaxHarmonics}
}

type boundFit struct {
	fit          NoteFit
	ok           bool
	maxHarmonics int
}

func (b boundFit) Predict(_, _, harmonicNorm, t float64) float64 {
	if !b.ok {
		return math.Inf(-1)
	}
	h := 1
	if b.maxHarmonics > 1 {
		h = int(math.Round(harmonicNorm*float64(b.maxHarmonics-1))) + 1
	}
	return b.fit.Params.LogAmplitude(h, t)
}

// Summary returns the mean MSE and similarity over the fitted notes.
func (m *Model) Summary() (mse, similarity float64) {
	if len(m.Notes) == 0 {
		return 0, 0
	}
	for _, f := range m.Notes {
		mse += f.MSE
		similarity += f.Similarity
	}
	n := float64(len(m.Notes))
	return mse / n, similarity / n
}

// SaveJSON writes the model to path, creating parent directories.
func (m *Model) SaveJSON(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadJSON reads a model written by SaveJSON.
func LoadJSON(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", fault.ErrDataIntegrity, path, err)
	}
	if len(m.Notes) == 0 {
		return nil, fmt.Errorf("%w: %s: model has no notes", fault.ErrDataIntegrity, path)
	}
	if m.MaxHarmonics < 1 {
		return nil, fmt.Errorf("%w: %s: max_harmonics must be >= 1", fault.ErrDataIntegrity, path)
	}
	return &m, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
