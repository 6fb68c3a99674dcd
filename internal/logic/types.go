// Package logic contains the pure signaling rules for both signaler variants.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Level is the logical level of a GPIO line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Variant selects which polling loop the signaler runs.
type Variant string

const (
	// VariantAnalog raises the output while the scaled voltage exceeds the threshold.
	VariantAnalog Variant = "analog"
	// VariantDigital holds the output high and drops it when the input reads high.
	VariantDigital Variant = "digital"
)

// Valid reports whether v names a known variant.
func (v Variant) Valid() bool {
	return v == VariantAnalog || v == VariantDigital
}

// StepKind identifies what a Step does.
type StepKind int

const (
	StepWrite StepKind = iota // drive the output pin
	StepSleep                 // block for Duration
	StepEmit                  // write Line to the serial console
)

// Step is one action of a cycle. Cycles are ordered lists of steps so the
// runtime can execute them against real hardware and tests can inspect them.
type Step struct {
	Kind     StepKind
	Level    Level
	Duration time.Duration
	Line     string
}

// Write returns a step that drives the output to level.
func Write(level Level) Step { return Step{Kind: StepWrite, Level: level} }

// Sleep returns a step that blocks for d.
func Sleep(d time.Duration) Step { return Step{Kind: StepSleep, Duration: d} }

// Emit returns a step that writes line to the console.
func Emit(line string) Step { return Step{Kind: StepEmit, Line: line} }

// EventType represents an output transition.
type EventType string

const (
	EventOutputHigh EventType = "OUTPUT_HIGH"
	EventOutputLow  EventType = "OUTPUT_LOW"
)

// Event represents an output level change to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Variant   Variant
	Cycle     int64
	Level     Level
	// Raw and Voltage hold the reading that drove the cycle. For the digital
	// variant Raw is the input level (0 or 1) and Voltage is zero.
	Raw     int
	Voltage float64
}

// EventCounts tracks cycle and transition counts since startup.
type EventCounts struct {
	Cycles   int64
	Triggers int64
	High     int64
	Low      int64
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
