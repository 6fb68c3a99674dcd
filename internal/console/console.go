// Package console is the plain-text line channel the signaler reports on:
// a serial port when one is configured, any io.Writer otherwise.
package console

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the peer board's serial monitor.
const DefaultBaudRate = 9600

// LineEnding terminates every line, as a microcontroller println does.
const LineEnding = "\r\n"

// Console writes whole lines.
type Console interface {
	WriteLine(line string) error
	Close() error
}

// Writer is a Console over an io.Writer.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewWriter wraps w. Close is a no-op unless w is also an io.Closer owned by the console.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteLine writes line followed by LineEnding.
func (c *Writer) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, line+LineEnding); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	return nil
}

// Close closes the underlying port if the console owns it.
func (c *Writer) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Open opens a serial port at baud (DefaultBaudRate when zero), 8N1.
func Open(port string, baud int) (*Writer, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return &Writer{w: p, closer: p}, nil
}

// Ports returns the names of the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
