package analysis

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-harmonics/fault"
)

// DefaultMaxWindowTime is the longest analysis window considered, in seconds.
const DefaultMaxWindowTime = 0.1

// WindowOptions bounds the search performed by WindowSize.
type WindowOptions struct {
	// MaxWindowTime caps the window duration in seconds. Zero selects DefaultMaxWindowTime.
	MaxWindowTime float64
	// MaxPeriods caps the number of fundamental periods tried. Zero derives
	// the cap from MaxWindowTime.
	MaxPeriods int
}

// WindowSize returns the window length in samples that holds an integer
// number of fundamental periods as closely as possible.
//
// Candidates m*fs/f0 are rounded to whole samples for m = 1, 2, ...; lengths
// below 3 samples are skipped and the scan stops once a candidate exceeds
// the sample cap. The candidate with the smallest rounding error wins; on
// ties the smaller m is kept.
func WindowSize(fs, f0 float64, opts WindowOptions) (int, error) {
	if !(fs > 0) || math.IsInf(fs, 0) {
		return 0, fmt.Errorf("%w: sample rate must be > 0: %v", fault.ErrConfig, fs)
	}
	if !(f0 > 0) || math.IsInf(f0, 0) {
		return 0, fmt.Errorf("%w: fundamental must be > 0: %v", fault.ErrConfig, f0)
	}
	maxTime := opts.MaxWindowTime
	if maxTime == 0 {
		maxTime = DefaultMaxWindowTime
	}
	if maxTime < 0 || math.IsNaN(maxTime) || math.IsInf(maxTime, 0) {
		return 0, fmt.Errorf("%w: max window time must be > 0: %v", fault.ErrConfig, maxTime)
	}

	maxSamples := int(math.RoundToEven(maxTime * fs))
	if maxSamples < 1 {
		return 0, fmt.Errorf("%w: max window time %gs holds no samples at %g Hz", fault.ErrConfig, maxTime, fs)
	}

	mMax := opts.MaxPeriods
	if mMax <= 0 {
		period := math.Max(1, fs/f0)
		mMax = int(math.Max(1, math.Ceil(float64(maxSamples)/period)))
	}

	best := 0
	bestErr := math.Inf(1)
	for m := 1; m <= mMax; m++ {
		target := float64(m) * fs / f0
		n := int(math.RoundToEven(target))
		if n < 3 {
			continue
		}
		if n > maxSamples {
			break
		}
		if e := math.Abs(float64(n) - target); e < bestErr {
			bestErr = e
			best = n
		}
	}
	if best == 0 {
		return 0, fmt.Errorf("%w: no window of 3..%d samples fits f0=%g Hz at %g Hz", fault.ErrNotFound, maxSamples, f0, fs)
	}
	return best, nil
}
