// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import "github.com/sweeney/threshold-signaler/internal/logic"

// Output drives a single GPIO line.
type Output interface {
	// Set drives the line to the given logical level.
	Set(level logic.Level) error

	// Close releases the line.
	Close() error
}

// Input reads a single GPIO line.
type Input interface {
	// Read returns true when the line is HIGH.
	Read() (bool, error)

	// Close releases the line.
	Close() error
}

// Line defaults (BCM numbering on gpiochip0).
const (
	DefaultChip     = "gpiochip0"
	DefaultPinOut   = 12 // signal to the peer board
	DefaultPinInput = 25 // signal from the peer board
)
