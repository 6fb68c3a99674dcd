package logic

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Defaults for the analog loop.
const (
	DefaultThreshold      = 3.0  // volts, strictly exceeded to trigger
	DefaultReference      = 5.0  // volts at full scale
	DefaultFullScale      = 1023 // 10-bit converter
	DefaultLoopDelay      = 1000 * time.Millisecond
	DefaultSignalDuration = 5000 * time.Millisecond
	DefaultResetDelay     = 4000 * time.Millisecond
)

// Defaults for the digital loop.
const (
	DefaultOutputPin   = 12
	DefaultOnDuration  = 1000 * time.Millisecond
	DefaultOffDuration = 5000 * time.Millisecond
	DefaultCheckDelay  = 1000 * time.Millisecond
)

// AnalogConfig holds the constants of the voltage-triggered loop.
type AnalogConfig struct {
	Threshold      float64
	Reference      float64
	FullScale      int
	LoopDelay      time.Duration
	SignalDuration time.Duration
	ResetDelay     time.Duration
}

// DefaultAnalogConfig returns the analog loop constants.
func DefaultAnalogConfig() AnalogConfig {
	return AnalogConfig{
		Threshold:      DefaultThreshold,
		Reference:      DefaultReference,
		FullScale:      DefaultFullScale,
		LoopDelay:      DefaultLoopDelay,
		SignalDuration: DefaultSignalDuration,
		ResetDelay:     DefaultResetDelay,
	}
}

// Validate checks the config for values the loop cannot run with.
func (c AnalogConfig) Validate() error {
	var errs []error
	if c.FullScale <= 0 {
		errs = append(errs, fmt.Errorf("full scale must be positive, got %d", c.FullScale))
	}
	if c.Reference <= 0 {
		errs = append(errs, fmt.Errorf("reference must be positive, got %v", c.Reference))
	}
	if c.LoopDelay < 0 || c.SignalDuration < 0 || c.ResetDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	return errors.Join(errs...)
}

// Voltage scales a raw converter count to volts.
func (c AnalogConfig) Voltage(raw int) float64 {
	return float64(raw) * (c.Reference / float64(c.FullScale))
}

// Triggered reports whether v exceeds the threshold.
func (c AnalogConfig) Triggered(v float64) bool {
	return v > c.Threshold
}

// Cycle returns the steps of one analog cycle for the given raw reading:
// emit, wait, optionally pulse the output, drop it, wait again.
func (c AnalogConfig) Cycle(raw int) []Step {
	v := c.Voltage(raw)
	steps := []Step{
		Emit(FormatVoltage(v)),
		Sleep(c.LoopDelay),
	}
	if c.Triggered(v) {
		steps = append(steps, Write(High), Sleep(c.SignalDuration))
	}
	return append(steps, Write(Low), Sleep(c.ResetDelay))
}

// Idle returns the untriggered path of a cycle without the console line.
// It keeps the cycle period when the channel could not be read.
func (c AnalogConfig) Idle() []Step {
	return []Step{Sleep(c.LoopDelay), Write(Low), Sleep(c.ResetDelay)}
}

// FormatVoltage renders v the way the serial console expects it: two decimals.
func FormatVoltage(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// DigitalConfig holds the constants of the input-triggered loop.
type DigitalConfig struct {
	OutputPin   int
	OnDuration  time.Duration
	OffDuration time.Duration
	CheckDelay  time.Duration
}

// DefaultDigitalConfig returns the digital loop constants.
func DefaultDigitalConfig() DigitalConfig {
	return DigitalConfig{
		OutputPin:   DefaultOutputPin,
		OnDuration:  DefaultOnDuration,
		OffDuration: DefaultOffDuration,
		CheckDelay:  DefaultCheckDelay,
	}
}

// Validate checks the config for values the loop cannot run with.
func (c DigitalConfig) Validate() error {
	if c.OnDuration < 0 || c.OffDuration < 0 || c.CheckDelay < 0 {
		return errors.New("delays must not be negative")
	}
	return nil
}

// Prelude returns the steps that run before the input is sampled.
func (c DigitalConfig) Prelude() []Step {
	return []Step{Write(High), Sleep(c.OnDuration)}
}

// Decide returns the remaining steps of a digital cycle given the input level.
func (c DigitalConfig) Decide(inputHigh bool) []Step {
	var steps []Step
	if inputHigh {
		steps = append(steps,
			Write(Low),
			Emit(c.OffMessage()),
			Sleep(c.OffDuration),
		)
	}
	return append(steps, Sleep(c.CheckDelay))
}

// OffMessage is the console line written when the input turns the output off.
func (c DigitalConfig) OffMessage() string {
	return strconv.Itoa(c.OutputPin) + " OFF"
}

// Period returns the total sleep time of steps.
func Period(steps []Step) time.Duration {
	var d time.Duration
	for _, s := range steps {
		if s.Kind == StepSleep {
			d += s.Duration
		}
	}
	return d
}
