// Package config loads the JSON settings shared by the harmonics commands.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-harmonics/analysis"
	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/cwbudde/algo-harmonics/synth"
)

// DefaultArchivePath is where the archive is read and written when no path
// is configured.
const DefaultArchivePath = "data/harmonics.json"

// Ingest modes.
const (
	IngestPerFile = "per-file"
	IngestSliced  = "sliced"
)

// Config holds resolved settings.
type Config struct {
	SampleRate       int
	MaxHarmonics     int
	MaxWindowTime    float64
	MaxPeriods       int
	HopSize          int
	Window           string
	Workers          int
	ArchivePath      string
	Normalize        bool
	SkipAboveNyquist bool
	Ingest           Ingest
}

// Ingest selects how recordings are cut into notes.
type Ingest struct {
	Mode         string
	FirstPitch   int
	SliceSeconds float64
	Velocity     int
}

// File is the JSON schema. Absent fields keep their defaults.
type File struct {
	SampleRate       *int        `json:"sample_rate"`
	MaxHarmonics     *int        `json:"max_harmonics"`
	MaxWindowTime    *float64    `json:"max_window_time"`
	MaxPeriods       *int        `json:"max_periods"`
	HopSize          *int        `json:"hop_size"`
	Window           string      `json:"window"`
	Workers          *int        `json:"workers"`
	ArchivePath      string      `json:"archive_path"`
	Normalize        *bool       `json:"normalize"`
	SkipAboveNyquist *bool       `json:"skip_above_nyquist"`
	Ingest           *IngestFile `json:"ingest"`
}

// IngestFile is the partial ingest section of a config file.
type IngestFile struct {
	Mode         string   `json:"mode"`
	FirstPitch   *int     `json:"first_pitch"`
	SliceSeconds *float64 `json:"slice_seconds"`
	Velocity     *int     `json:"velocity"`
}

// NewDefault returns the built-in settings.
func NewDefault() *Config {
	return &Config{
		SampleRate:    int(synth.DefaultSampleRate),
		MaxHarmonics:  archive.MaxHarmonics,
		MaxWindowTime: analysis.DefaultMaxWindowTime,
		Window:        analysis.DefaultWindow,
		ArchivePath:   DefaultArchivePath,
		Normalize:     true,
		Ingest: Ingest{
			Mode:         IngestPerFile,
			FirstPitch:   archive.PitchLowest,
			SliceSeconds: 4,
		},
	}
}

// LoadJSON loads a config file and applies it on top of the defaults.
// A relative archive_path is resolved against the directory of path.
func LoadJSON(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", fault.ErrConfig, path, err)
	}

	c := NewDefault()
	if err := ApplyFile(c, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if f.ArchivePath != "" && !filepath.IsAbs(c.ArchivePath) {
		base := filepath.Dir(path)
		c.ArchivePath = filepath.Clean(filepath.Join(base, c.ArchivePath))
	}
	return c, nil
}

// ApplyFile applies a parsed config file onto dst and validates the result.
func ApplyFile(dst *Config, f *File) error {
	if dst == nil {
		return fmt.Errorf("%w: nil destination config", fault.ErrConfig)
	}
	if f == nil {
		return dst.Validate()
	}

	if f.SampleRate != nil {
		dst.SampleRate = *f.SampleRate
	}
	if f.MaxHarmonics != nil {
		dst.MaxHarmonics = *f.MaxHarmonics
	}
	if f.MaxWindowTime != nil {
		dst.MaxWindowTime = *f.MaxWindowTime
	}
	if f.MaxPeriods != nil {
		dst.MaxPeriods = *f.MaxPeriods
	}
	if f.HopSize != nil {
		dst.HopSize = *f.HopSize
	}
	if f.Window != "" {
		dst.Window = strings.ToLower(strings.TrimSpace(f.Window))
	}
	if f.Workers != nil {
		dst.Workers = *f.Workers
	}
	if f.ArchivePath != "" {
		dst.ArchivePath = strings.TrimSpace(f.ArchivePath)
	}
	if f.Normalize != nil {
		dst.Normalize = *f.Normalize
	}
	if f.SkipAboveNyquist != nil {
		dst.SkipAboveNyquist = *f.SkipAboveNyquist
	}
	if in := f.Ingest; in != nil {
		if in.Mode != "" {
			dst.Ingest.Mode = strings.ToLower(strings.TrimSpace(in.Mode))
		}
		if in.FirstPitch != nil {
			dst.Ingest.FirstPitch = *in.FirstPitch
		}
		if in.SliceSeconds != nil {
			dst.Ingest.SliceSeconds = *in.SliceSeconds
		}
		if in.Velocity != nil {
			dst.Ingest.Velocity = *in.Velocity
		}
	}
	return dst.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be > 0", fault.ErrConfig)
	}
	if c.MaxHarmonics < 1 || c.MaxHarmonics > archive.MaxHarmonics {
		return fmt.Errorf("%w: max_harmonics must be in 1..%d", fault.ErrConfig, archive.MaxHarmonics)
	}
	if !(c.MaxWindowTime > 0) || math.IsInf(c.MaxWindowTime, 0) {
		return fmt.Errorf("%w: max_window_time must be > 0", fault.ErrConfig)
	}
	if c.MaxPeriods < 0 {
		return fmt.Errorf("%w: max_periods must be >= 0", fault.ErrConfig)
	}
	if c.HopSize < 0 {
		return fmt.Errorf("%w: hop_size must be >= 0", fault.ErrConfig)
	}
	if _, err := analysis.ParseWindow(c.Window); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0", fault.ErrConfig)
	}
	switch c.Ingest.Mode {
	case IngestPerFile:
	case IngestSliced:
		if c.Ingest.FirstPitch < 0 || c.Ingest.FirstPitch > 127 {
			return fmt.Errorf("%w: ingest.first_pitch must be in 0..127", fault.ErrConfig)
		}
		if !(c.Ingest.SliceSeconds > 0) || math.IsInf(c.Ingest.SliceSeconds, 0) {
			return fmt.Errorf("%w: ingest.slice_seconds must be > 0", fault.ErrConfig)
		}
		if c.Ingest.Velocity < 0 || c.Ingest.Velocity > 127 {
			return fmt.Errorf("%w: ingest.velocity must be in 0..127", fault.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown ingest mode %q (valid: %s, %s)", fault.ErrConfig, c.Ingest.Mode, IngestPerFile, IngestSliced)
	}
	return nil
}

// BuildOptions returns the archive analysis settings.
func (c *Config) BuildOptions() archive.Options {
	return archive.Options{
		MaxHarmonics:  c.MaxHarmonics,
		MaxWindowTime: c.MaxWindowTime,
		MaxPeriods:    c.MaxPeriods,
		Hop:           c.HopSize,
		Window:        c.Window,
		Workers:       c.Workers,
	}
}

// Ingester returns the configured recording splitter.
func (c *Config) Ingester() archive.Ingester {
	if c.Ingest.Mode == IngestSliced {
		return archive.Sliced{
			FirstPitch:   c.Ingest.FirstPitch,
			SliceSeconds: c.Ingest.SliceSeconds,
			Velocity:     c.Ingest.Velocity,
		}
	}
	return archive.PerFile{}
}

// RenderOptions returns the resynthesis settings.
func (c *Config) RenderOptions() synth.Options {
	return synth.Options{Normalize: c.Normalize, SkipAboveNyquist: c.SkipAboveNyquist}
}
