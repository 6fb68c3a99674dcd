package gpio

import (
	"errors"
	"time"

	"github.com/sweeney/threshold-signaler/internal/logic"
)

// FakeOutput is a test double that records every write.
type FakeOutput struct {
	// Writes contains every level passed to Set, in order.
	Writes []logic.Level

	// Times holds the Clock reading at each write when Clock is set.
	Times []time.Time

	// Clock, if set, timestamps each write.
	Clock func() time.Time

	// SetError, if set, will be returned by Set. The write is still recorded.
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeOutput creates a FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the level.
func (f *FakeOutput) Set(level logic.Level) error {
	f.Writes = append(f.Writes, level)
	if f.Clock != nil {
		f.Times = append(f.Times, f.Clock())
	}
	return f.SetError
}

// Level returns the last written level, LOW if nothing was written.
func (f *FakeOutput) Level() logic.Level {
	if len(f.Writes) == 0 {
		return logic.Low
	}
	return f.Writes[len(f.Writes)-1]
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// FakeInput is a test double that returns scripted line levels.
type FakeInput struct {
	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Reads counts calls to Read.
	Reads int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given samples.
func NewFakeInput(samples ...bool) *FakeInput {
	return &FakeInput{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInput) Read() (bool, error) {
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}
