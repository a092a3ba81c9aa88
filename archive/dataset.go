package archive

import (
	"math"
	"sort"
)

// Sample addresses one harmonic envelope in an archive.
type Sample struct {
	Pitch    int
	Velocity int
	Harmonic int
}

// Key returns the note key of the sample.
func (s Sample) Key() NoteKey { return NoteKey{Pitch: s.Pitch, Velocity: s.Velocity} }

// Index lists the (pitch, velocity, harmonic) triples present in the
// archive. Nil keys select every note; nil harmonics select every stored
// harmonic. Requested entries that are missing are skipped.
func (a *Archive) Index(keys []NoteKey, harmonics []int) []Sample {
	if keys == nil {
		keys = a.Keys()
	}
	var out []Sample
	for _, k := range keys {
		n, ok := a.notes[k]
		if !ok {
			continue
		}
		sel := harmonics
		if sel == nil {
			sel = n.HarmonicIndices()
		}
		for _, h := range sel {
			if _, ok := n.Harmonics[h]; ok {
				out = append(out, Sample{Pitch: k.Pitch, Velocity: k.Velocity, Harmonic: h})
			}
		}
	}
	return out
}

// envelope returns the stored times and amplitudes of s without copying.
func (a *Archive) envelope(s Sample) ([]float64, []float64, bool) {
	n, ok := a.notes[s.Key()]
	if !ok {
		return nil, nil, false
	}
	env, ok := n.Harmonics[s.Harmonic]
	return n.Times, env, ok
}

// LogStats returns the mean and standard deviation of log(max(a, eps)) over
// every amplitude addressed by index. An empty index yields (0, 1).
func (a *Archive) LogStats(index []Sample, eps float64) (mean, std float64) {
	var sum, sumSq float64
	var count int
	for _, s := range index {
		_, env, ok := a.envelope(s)
		if !ok {
			continue
		}
		for _, v := range env {
			l := math.Log(math.Max(v, eps))
			sum += l
			sumSq += l * l
			count++
		}
	}
	if count == 0 {
		return 0, 1
	}
	mean = sum / float64(count)
	variance := sumSq/float64(count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance) + 1e-12
}

// Resample linearly interpolates amps defined at times onto grid. Points
// outside the source range take the first or last amplitude.
func Resample(times, amps, grid []float64) []float64 {
	out := make([]float64, len(grid))
	if len(times) == 0 || len(amps) == 0 {
		return out
	}
	n := min(len(times), len(amps))
	times, amps = times[:n], amps[:n]
	for i, t := range grid {
		out[i] = interpAt(times, amps, t)
	}
	return out
}

func interpAt(times, amps []float64, t float64) float64 {
	n := len(times)
	if t <= times[0] {
		return amps[0]
	}
	if t >= times[n-1] {
		return amps[n-1]
	}
	j := sort.SearchFloat64s(times, t)
	if times[j] == t {
		return amps[j]
	}
	t0, t1 := times[j-1], times[j]
	if t1 == t0 {
		return amps[j]
	}
	f := (t - t0) / (t1 - t0)
	return amps[j-1] + f*(amps[j]-amps[j-1])
}

// Interpolate evaluates the envelope of harmonic h at time t.
func (n *NoteHarmonics) Interpolate(h int, t float64) float64 {
	env, ok := n.Harmonics[h]
	if !ok || len(env) == 0 || len(n.Times) == 0 {
		return 0
	}
	return interpAt(n.Times, env, t)
}
