//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/threshold-signaler/internal/logic"
)

// RealOutput drives a GPIO line on actual hardware using the Linux GPIO character device.
type RealOutput struct {
	line *gpiocdev.Line
	pin  int
}

// NewRealOutput requests pin on chip as an output, initially LOW.
func NewRealOutput(chip string, pin int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d on %s: %w", pin, chip, err)
	}
	return &RealOutput{line: line, pin: pin}, nil
}

// Set drives the line HIGH (1) or LOW (0).
func (o *RealOutput) Set(level logic.Level) error {
	if err := o.line.SetValue(int(level)); err != nil {
		return fmt.Errorf("set pin %d %s: %w", o.pin, level, err)
	}
	return nil
}

// Close drives the line LOW and hands it back as an input with pull-down,
// matching Pi boot defaults so the peer never sees a floating signal.
func (o *RealOutput) Close() error {
	if o.line == nil {
		return nil
	}
	var errs []error
	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive pin %d low: %w", o.pin, err))
	}
	if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", o.pin, err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", o.pin, err))
	}
	o.line = nil
	return errors.Join(errs...)
}

// RealInput reads a GPIO line on actual hardware.
type RealInput struct {
	line *gpiocdev.Line
	pin  int
}

// NewRealInput requests pin on chip as an input with pull-down, so an
// unconnected peer reads LOW.
func NewRealInput(chip string, pin int) (*RealInput, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d on %s: %w", pin, chip, err)
	}
	return &RealInput{line: line, pin: pin}, nil
}

// Read returns true when the line is HIGH.
func (i *RealInput) Read() (bool, error) {
	v, err := i.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", i.pin, err)
	}
	return v == 1, nil
}

// Close releases the line.
func (i *RealInput) Close() error {
	if i.line == nil {
		return nil
	}
	err := i.line.Close()
	i.line = nil
	if err != nil {
		return fmt.Errorf("close pin %d: %w", i.pin, err)
	}
	return nil
}
