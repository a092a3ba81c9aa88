package analysis

import "math"

// Tuning reference.
const (
	A4Pitch     = 69
	A4Frequency = 440.0
)

// PitchFrequency converts a MIDI pitch into its equal-tempered frequency in Hz.
func PitchFrequency(pitch int) float64 {
	return A4Frequency * math.Pow(2, float64(pitch-A4Pitch)/12)
}
