package analysis

import (
	"math"
	"math/rand"
	"testing"
)

func TestCompareEnvelopesIdenticalHasLowDistance(t *testing.T) {
	x := decayEnvelope(200, 0.01, 0.5, 1)
	m := CompareEnvelopes(x, x, 0.01)
	if m.Score > 0.01 {
		t.Fatalf("expected near-zero score for identical envelopes, got %f", m.Score)
	}
	if m.Similarity < 0.95 {
		t.Fatalf("expected high similarity for identical envelopes, got %f", m.Similarity)
	}
	if m.LagFrames != 0 {
		t.Fatalf("LagFrames = %d, want 0", m.LagFrames)
	}
}

func TestCompareEnvelopesDifferentDecayHasHigherDistance(t *testing.T) {
	a := decayEnvelope(200, 0.01, 1.5, 1)
	b := decayEnvelope(200, 0.01, 0.2, 0.3)
	m := CompareEnvelopes(a, b, 0.01)
	if m.Score < 0.25 {
		t.Fatalf("expected higher score for different envelopes, got %f", m.Score)
	}
	if m.DecayDiffDBPerS <= 0 {
		t.Fatalf("expected a decay difference, got %f", m.DecayDiffDBPerS)
	}
}

func TestCompareEnvelopesDegenerateInput(t *testing.T) {
	m := CompareEnvelopes(nil, []float64{1}, 0.01)
	if m.Score != 1 || m.Similarity != 0 {
		t.Fatalf("empty reference: score %f similarity %f", m.Score, m.Similarity)
	}
	m = CompareEnvelopes([]float64{1}, []float64{1}, 0)
	if m.Score != 1 {
		t.Fatalf("zero hop: score %f", m.Score)
	}
}

func TestDecaySlopeOfExponential(t *testing.T) {
	const tau = 0.5
	env := toDB(decayEnvelope(100, 0.01, tau, 1))
	got := decaySlopeDBPerS(env, 0.01)
	want := -20 / (tau * math.Ln10)
	if math.Abs(got-want) > 0.01 {
		t.Fatalf("decay slope = %f dB/s, want %f", got, want)
	}
}

func TestEstimateLagFindsPositiveShift(t *testing.T) {
	const shift = 7
	cand := toDB(decayEnvelope(120, 0.01, 0.4, 1))
	ref := make([]float64, shift, shift+len(cand))
	for i := range ref {
		ref[i] = linToDB(1e-6)
	}
	ref = append(ref, cand...)

	if got := estimateLag(ref, cand, 20); got != shift {
		t.Fatalf("estimateLag() = %d, want %d", got, shift)
	}
}

func TestEstimateLagFindsNegativeShift(t *testing.T) {
	const shift = -5
	ref := randomEnvelope(150, 11)
	cand := append(randomEnvelope(-shift, 12), ref...)

	if got := estimateLag(ref, cand, 20); got != shift {
		t.Fatalf("estimateLag() = %d, want %d", got, shift)
	}
}

func decayEnvelope(frames int, hopSec, tau, peak float64) []float64 {
	out := make([]float64, frames)
	for i := range out {
		out[i] = peak * math.Exp(-float64(i)*hopSec/tau)
	}
	return out
}

func randomEnvelope(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*40 - 40
	}
	return out
}

func randomSignal(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64()*2 - 1
	}
	return out
}
