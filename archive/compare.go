package archive

import (
	"github.com/cwbudde/algo-harmonics/analysis"
)

// NoteComparison aggregates envelope distances over the harmonics two notes share.
type NoteComparison struct {
	Harmonics  map[int]analysis.EnvelopeMetrics `json:"harmonics"`
	Score      float64                          `json:"score"`
	Similarity float64                          `json:"similarity"`
}

// CompareNotes compares cand against ref harmonic by harmonic. The candidate
// is resampled onto the reference times and the per-harmonic scores are
// averaged, weighting each harmonic by its peak reference amplitude.
func CompareNotes(ref, cand *NoteHarmonics) NoteComparison {
	out := NoteComparison{Harmonics: map[int]analysis.EnvelopeMetrics{}, Score: 1}
	if ref == nil || cand == nil || len(ref.Times) < 2 {
		return out
	}
	hop := (ref.Times[len(ref.Times)-1] - ref.Times[0]) / float64(len(ref.Times)-1)

	var wsum, score, sim float64
	for _, h := range ref.HarmonicIndices() {
		cEnv, ok := cand.Harmonics[h]
		if !ok {
			continue
		}
		rEnv := ref.Harmonics[h]
		m := analysis.CompareEnvelopes(rEnv, Resample(cand.Times, cEnv, ref.Times), hop)
		out.Harmonics[h] = m

		w := 0.0
		for _, v := range rEnv {
			w = max(w, v)
		}
		wsum += w
		score += w * m.Score
		sim += w * m.Similarity
	}
	if wsum > 0 {
		out.Score = score / wsum
		out.Similarity = sim / wsum
	}
	return out
}
