// Package envfit fits a compact parametric decay model to archived harmonic
// envelopes.
//
// Each note is described by five numbers and the log amplitude of harmonic h
// at time t is
//
//	log A_h(t) = a - b*ln(h) - (c + d*(h-1))*(t - t0)
//
// where t0 is the first analysis time of the note. a, b, c and d are searched
// with the mayfly metaheuristic over normalized knobs.
package envfit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/cwbudde/algo-harmonics/archive"
	"github.com/cwbudde/algo-harmonics/fault"
	"github.com/cwbudde/mayfly"
	"golang.org/x/sync/errgroup"
)

// Eps floors amplitudes before taking their logarithm.
const Eps = 1e-8

// Options controls the search.
type Options struct {
	Seed       int64
	Iterations int
	Population int
	Rounds     int
	Workers    int
	// Variant selects the mayfly flavour: ma, desma, olce, eobbma, gsasma, mpma, aoblmoa.
	Variant string
	// MaxHarmonics limits the fitted harmonics. Zero fits every stored one.
	MaxHarmonics int
}

// DefaultOptions returns the settings used by the fit command.
func DefaultOptions() Options {
	return Options{
		Seed:       1,
		Iterations: 60,
		Population: 16,
		Rounds:     2,
		Variant:    "ma",
	}
}

func (o Options) validate() error {
	if o.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be >= 1: %d", fault.ErrConfig, o.Iterations)
	}
	if o.Population < 2 {
		return fmt.Errorf("%w: population must be >= 2: %d", fault.ErrConfig, o.Population)
	}
	if o.Rounds < 1 {
		return fmt.Errorf("%w: rounds must be >= 1: %d", fault.ErrConfig, o.Rounds)
	}
	if o.MaxHarmonics < 0 {
		return fmt.Errorf("%w: max harmonics must be >= 0: %d", fault.ErrConfig, o.MaxHarmonics)
	}
	if _, err := newMayflyConfig(o.variant(), o.Population, 1, 1); err != nil {
		return err
	}
	return nil
}

func (o Options) variant() string {
	v := strings.ToLower(strings.TrimSpace(o.Variant))
	if v == "" {
		return "ma"
	}
	return v
}

// Params are the fitted coefficients of one note.
type Params struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	T0 float64 `json:"t0"`
}

// LogAmplitude evaluates the model for harmonic h at time t.
func (p Params) LogAmplitude(h int, t float64) float64 {
	hf := float64(h)
	return p.A - p.B*math.Log(hf) - (p.C+p.D*(hf-1))*(t-p.T0)
}

// NoteFit is the outcome of fitting one archived note.
type NoteFit struct {
	Pitch    int    `json:"pitch"`
	Velocity int    `json:"velocity"`
	Params   Params `json:"params"`
	// MSE is the mean squared log-amplitude error over the fitted data.
	MSE        float64 `json:"mse"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Evals      int     `json:"evals"`
}

// Key returns the archive key of the fitted note.
func (f NoteFit) Key() archive.NoteKey {
	return archive.NoteKey{Pitch: f.Pitch, Velocity: f.Velocity}
}

// Note renders the fit back into envelopes on the given times.
func (f NoteFit) Note(times []float64, harmonics []int, windowSize int) *archive.NoteHarmonics {
	n := &archive.NoteHarmonics{
		Pitch:      f.Pitch,
		Velocity:   f.Velocity,
		Times:      append([]float64(nil), times...),
		WindowSize: windowSize,
		Harmonics:  make(map[int]archive.Envelope, len(harmonics)),
	}
	for _, h := range harmonics {
		env := make(archive.Envelope, len(times))
		for i, t := range times {
			env[i] = math.Exp(f.Params.LogAmplitude(h, t))
		}
		n.Harmonics[h] = env
	}
	return n
}

type knobDef struct {
	Name string
	Min  float64
	Max  float64
}

// knobDefs bounds the search. The level knob is centred on the loudest
// observed log amplitude.
func knobDefs(peakLog float64) []knobDef {
	return []knobDef{
		{Name: "a", Min: peakLog - 6, Max: peakLog + 3},
		{Name: "b", Min: -1, Max: 5},
		{Name: "c", Min: -2, Max: 40},
		{Name: "d", Min: -2, Max: 8},
	}
}

func fromNormalized(pos []float64, defs []knobDef, t0 float64) Params {
	vals := make([]float64, len(defs))
	for i := range defs {
		x := 0.0
		if i < len(pos) {
			x = math.Min(math.Max(pos[i], 0), 1)
		}
		vals[i] = defs[i].Min + x*(defs[i].Max-defs[i].Min)
	}
	return Params{A: vals[0], B: vals[1], C: vals[2], D: vals[3], T0: t0}
}

type point struct {
	h   int
	t   float64
	log float64
}

func collect(n *archive.NoteHarmonics, maxH int) ([]point, []int, float64) {
	var pts []point
	var hs []int
	peak := math.Inf(-1)
	for _, h := range n.HarmonicIndices() {
		if maxH > 0 && h > maxH {
			break
		}
		hs = append(hs, h)
		for i, a := range n.Harmonics[h] {
			l := math.Log(math.Max(a, Eps))
			pts = append(pts, point{h: h, t: n.Times[i], log: l})
			peak = math.Max(peak, l)
		}
	}
	return pts, hs, peak
}

func meanSquaredError(p Params, pts []point) float64 {
	var sum float64
	for _, q := range pts {
		d := p.LogAmplitude(q.h, q.t) - q.log
		sum += d * d
	}
	return sum / float64(len(pts))
}

// FitNote fits one note. Each round restarts mayfly from a fresh seed and the
// best candidate across rounds is kept.
func FitNote(n *archive.NoteHarmonics, opts Options) (NoteFit, error) {
	if err := opts.validate(); err != nil {
		return NoteFit{}, err
	}
	if err := n.Validate(); err != nil {
		return NoteFit{}, err
	}
	pts, hs, peak := collect(n, opts.MaxHarmonics)
	if len(pts) == 0 {
		return NoteFit{}, fmt.Errorf("%w: note %s has no envelope data", fault.ErrInputShape, n.Key())
	}
	t0 := n.Times[0]
	defs := knobDefs(peak)

	mid := make([]float64, len(defs))
	for i := range mid {
		mid[i] = 0.5
	}
	best := fromNormalized(mid, defs, t0)
	bestMSE := meanSquaredError(best, pts)
	evals := 1

	for round := 1; round <= opts.Rounds; round++ {
		cfg, err := newMayflyConfig(opts.variant(), opts.Population, len(defs), opts.Iterations)
		if err != nil {
			return NoteFit{}, err
		}
		cfg.Rand = rand.New(rand.NewSource(opts.Seed + int64(round)*7919))
		cfg.ObjectiveFunc = func(pos []float64) float64 {
			cand := fromNormalized(pos, defs, t0)
			e := meanSquaredError(cand, pts)
			evals++
			if math.IsNaN(e) {
				return bestMSE + 1
			}
			if e < bestMSE {
				best = cand
				bestMSE = e
			}
			return e
		}
		if _, err := runMayfly(cfg); err != nil {
			return NoteFit{}, fmt.Errorf("note %s round %d: %w", n.Key(), round, err)
		}
	}

	fit := NoteFit{
		Pitch:    n.Pitch,
		Velocity: n.Velocity,
		Params:   best,
		MSE:      bestMSE,
		Evals:    evals,
	}
	cmp := archive.CompareNotes(n, fit.Note(n.Times, hs, n.WindowSize))
	fit.Score = cmp.Score
	fit.Similarity = cmp.Similarity
	return fit, nil
}

// Fit fits every note of a. Notes are spread over Workers goroutines; each
// note is seeded from its position in key order so results do not depend
// on scheduling.
func Fit(ctx context.Context, a *archive.Archive, opts Options) (*Model, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	keys := a.Keys()
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: archive is empty", fault.ErrNotFound)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(keys) {
		workers = len(keys)
	}

	maxH := 0
	fits := make([]NoteFit, len(keys))
	for _, k := range keys {
		n, _ := a.Lookup(k)
		for _, h := range n.HarmonicIndices() {
			if opts.MaxHarmonics > 0 && h > opts.MaxHarmonics {
				break
			}
			maxH = max(maxH, h)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := w; i < len(keys); i += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				n, _ := a.Lookup(keys[i])
				o := opts
				o.Seed = opts.Seed + int64(i)*104729
				f, err := FitNote(n, o)
				if err != nil {
					return err
				}
				fits[i] = f
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Model{MaxHarmonics: maxH, Notes: fits}, nil
}

func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	var cfg *mayfly.Config
	switch variant {
	case "ma":
		cfg = mayfly.NewDefaultConfig()
	case "desma":
		cfg = mayfly.NewDESMAConfig()
	case "olce":
		cfg = mayfly.NewOLCEConfig()
	case "eobbma":
		cfg = mayfly.NewEOBBMAConfig()
	case "gsasma":
		cfg = mayfly.NewGSASMAConfig()
	case "mpma":
		cfg = mayfly.NewMPMAConfig()
	case "aoblmoa":
		cfg = mayfly.NewAOBLMOAConfig()
	default:
		return nil, fmt.Errorf("%w: unsupported mayfly variant %q", fault.ErrConfig, variant)
	}
	cfg.ProblemSize = dims
	cfg.LowerBound = 0.0
	cfg.UpperBound = 1.0
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	cfg.NC = 2 * pop
	cfg.NM = max(1, int(math.Round(0.05*float64(pop))))
	return cfg, nil
}

func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}
