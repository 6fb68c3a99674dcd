// Package status provides a thread-safe status tracker for the signaler daemon.
// The signaling loop writes it; HTTP handlers and MQTT system events read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/threshold-signaler/internal/logic"
)

// NetworkInfo contains network state as reported by the host helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Variant     logic.Variant
	OutputPin   int
	InputPin    int // digital variant
	ADCChannel  int // analog variant
	Threshold   float64
	TimingsMs   []TimingMs
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	SerialPort  string
	WSBroker    string // websocket broker URL for the live page (empty = disabled)
}

// TimingMs is one named loop delay, kept in loop order.
type TimingMs struct {
	Name string
	Ms   int64
}

// Reading is the most recent input sample.
type Reading struct {
	Valid   bool
	Raw     int     // converter count, or 0/1 for a digital line
	Voltage float64 // analog only
	Time    time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Output        logic.Level
	OutputKnown   bool
	Reading       Reading
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTBuffered  int // messages waiting for the broker
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// OutputString returns HIGH, LOW, or UNKNOWN before the first write.
func (s Snapshot) OutputString() string {
	if !s.OutputKnown {
		return "UNKNOWN"
	}
	return s.Output.String()
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update sets the output level, last reading, and counts.
// Called from the signaling loop after every cycle.
func (t *Tracker) Update(output logic.Level, known bool, reading Reading, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Output = output
	t.snap.OutputKnown = known
	t.snap.Reading = reading
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetOutput records an output write without waiting for the cycle to end.
func (t *Tracker) SetOutput(output logic.Level) {
	t.mu.Lock()
	t.snap.Output = output
	t.snap.OutputKnown = true
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTBuffered sets the number of messages waiting for the broker.
func (t *Tracker) SetMQTTBuffered(n int) {
	t.mu.Lock()
	t.snap.MQTTBuffered = n
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
