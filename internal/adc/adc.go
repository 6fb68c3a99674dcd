// Package adc reads the analog input channel as a raw converter count.
package adc

import "math"

// Reader reads one analog channel.
type Reader interface {
	// Read returns the raw count in [0, full scale].
	Read() (int, error)

	// Close releases the converter.
	Close() error
}

// Quantize maps volts onto a converter with the given reference and full
// scale count, clamped to the valid range. It lets a high-resolution
// converter stand in for the 10-bit one the thresholds were tuned on.
func Quantize(volts, reference float64, fullScale int) int {
	if volts <= 0 || reference <= 0 {
		return 0
	}
	raw := int(math.Round(volts / reference * float64(fullScale)))
	if raw > fullScale {
		return fullScale
	}
	return raw
}
