package dsp

import (
	"sort"

	"github.com/cwbudde/algo-dsp/dsp/interp"
)

// Breakpoints evaluates an envelope known at ascending times. Outside the
// known range the first or last value is held.
type Breakpoints struct {
	times  []float64
	values []float64
	order  int
	li     *interp.LagrangeInterpolator
}

// NewBreakpoints wraps times and values without copying them. Order 1
// interpolates linearly; order 3 uses 4-point Hermite interpolation.
func NewBreakpoints(times, values []float64, order int) *Breakpoints {
	if order != 3 {
		order = 1
	}
	n := min(len(times), len(values))
	return &Breakpoints{
		times:  times[:n],
		values: values[:n],
		order:  order,
		li:     interp.NewLagrangeInterpolator(order),
	}
}

// At evaluates the envelope at t.
func (b *Breakpoints) At(t float64) float64 {
	n := len(b.times)
	if n == 0 {
		return 0
	}
	if t <= b.times[0] {
		return b.values[0]
	}
	if t >= b.times[n-1] {
		return b.values[n-1]
	}
	j := sort.SearchFloat64s(b.times, t)
	return b.segment(j-1, t)
}

// Render evaluates the envelope at every time in ts, which must be
// ascending, writing into dst.
func (b *Breakpoints) Render(ts, dst []float64) {
	n := len(b.times)
	if n == 0 {
		for i := range dst[:len(ts)] {
			dst[i] = 0
		}
		return
	}
	j := 0
	for i, t := range ts {
		switch {
		case t <= b.times[0]:
			dst[i] = b.values[0]
		case t >= b.times[n-1]:
			dst[i] = b.values[n-1]
		default:
			for j+1 < n && b.times[j+1] <= t {
				j++
			}
			dst[i] = b.segment(j, t)
		}
	}
}

// segment interpolates between breakpoints j and j+1.
func (b *Breakpoints) segment(j int, t float64) float64 {
	t0, t1 := b.times[j], b.times[j+1]
	if t1 == t0 {
		return b.values[j+1]
	}
	frac := (t - t0) / (t1 - t0)
	if b.order == 3 {
		n := len(b.values)
		pts := []float64{
			b.values[max(j-1, 0)],
			b.values[j],
			b.values[j+1],
			b.values[min(j+2, n-1)],
		}
		return b.li.Interpolate(pts, frac)
	}
	return b.li.Interpolate(b.values[j:j+2], frac)
}
