package analysis

import (
	"math"
)

// EnvelopeMetrics compares a candidate amplitude envelope against a reference.
type EnvelopeMetrics struct {
	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagFrames       int `json:"lag_frames"`

	RMSEDB          float64 `json:"rmse_db"`
	PeakDiffDB      float64 `json:"peak_diff_db"`
	RefDecayDBPerS  float64 `json:"ref_decay_db_per_s"`
	CandDecayDBPerS float64 `json:"cand_decay_db_per_s"`
	DecayDiffDBPerS float64 `json:"decay_diff_db_per_s"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// CompareEnvelopes returns distance metrics between two envelopes sampled
// every hopSec seconds and a combined score in [0,1] (0 = identical).
func CompareEnvelopes(reference, candidate []float64, hopSec float64) EnvelopeMetrics {
	m := EnvelopeMetrics{
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
	}
	if hopSec <= 0 || len(reference) == 0 || len(candidate) == 0 {
		m.Score = 1.0
		m.Similarity = 0.0
		return m
	}

	refDB := toDB(reference)
	candDB := toDB(candidate)

	maxLag := len(reference) / 4
	if maxLag > len(candidate)/4 {
		maxLag = len(candidate) / 4
	}
	lag := estimateLag(refDB, candDB, maxLag)
	m.LagFrames = lag

	refA, candA := alignByLag(refDB, candDB, lag)
	n := min(len(refA), len(candA))
	if n == 0 {
		m.Score = 1.0
		m.Similarity = 0.0
		return m
	}
	refA = refA[:n]
	candA = candA[:n]
	m.AlignedFrames = n

	m.RMSEDB = rmse(refA, candA)
	m.PeakDiffDB = math.Abs(maxOf(refA) - maxOf(candA))

	m.RefDecayDBPerS = decaySlopeDBPerS(refA, hopSec)
	m.CandDecayDBPerS = decaySlopeDBPerS(candA, hopSec)
	if isFinite(m.RefDecayDBPerS) && isFinite(m.CandDecayDBPerS) {
		m.DecayDiffDBPerS = math.Abs(m.RefDecayDBPerS - m.CandDecayDBPerS)
	}

	envNorm := clamp01(m.RMSEDB / 30.0)
	peakNorm := clamp01(m.PeakDiffDB / 20.0)
	decNorm := clamp01(m.DecayDiffDBPerS / 40.0)
	m.Score = clamp01(0.60*envNorm + 0.15*peakNorm + 0.25*decNorm)
	m.Similarity = clamp01(math.Exp(-4.0 * m.Score))

	return m
}

// estimateLag finds the frame shift that minimizes the mean squared dB
// difference over the overlap. Positive lag means the reference starts later.
func estimateLag(ref, cand []float64, maxLag int) int {
	if len(ref) == 0 || len(cand) == 0 {
		return 0
	}
	bestLag := 0
	best := math.Inf(1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		a, b := alignByLag(ref, cand, lag)
		n := min(len(a), len(b))
		if n == 0 {
			continue
		}
		d := rmse(a[:n], b[:n])
		// Prefer the smallest shift among equally good ones.
		if d < best-1e-12 || (math.Abs(d-best) <= 1e-12 && abs(lag) < abs(bestLag)) {
			best = d
			bestLag = lag
		}
	}
	return bestLag
}

func alignByLag(ref, cand []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		if lag >= len(ref) {
			return nil, nil
		}
		return ref[lag:], cand
	}
	o := -lag
	if o >= len(cand) {
		return nil, nil
	}
	return ref, cand[o:]
}

func rmse(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

func toDB(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = linToDB(v)
	}
	return out
}

func linToDB(x float64) float64 {
	if !(x >= 1e-12) {
		x = 1e-12
	}
	return 20.0 * math.Log10(x)
}

// decaySlopeDBPerS fits a line to the dB envelope from its peak down to
// 60 dB below it.
func decaySlopeDBPerS(envDB []float64, hopSec float64) float64 {
	if len(envDB) < 8 || hopSec <= 0 {
		return math.NaN()
	}
	peak := -math.MaxFloat64
	peakIdx := 0
	for i, v := range envDB {
		if v > peak {
			peak = v
			peakIdx = i
		}
	}
	start := peakIdx + 1
	if start >= len(envDB)-4 {
		return math.NaN()
	}

	threshold := peak - 60.0
	end := len(envDB)
	for i := start; i < len(envDB); i++ {
		if envDB[i] < threshold {
			end = i
			break
		}
	}
	if end-start < 6 {
		return math.NaN()
	}

	var sx, sy, sxx, sxy float64
	n := float64(end - start)
	for i := start; i < end; i++ {
		x := float64(i-start) * hopSec
		y := envDB[i]
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if math.Abs(den) < 1e-12 {
		return math.NaN()
	}
	return (n*sxy - sx*sy) / den
}

func maxOf(x []float64) float64 {
	m := math.Inf(-1)
	for _, v := range x {
		if v > m {
			m = v
		}
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
