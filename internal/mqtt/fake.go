package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/threshold-signaler/internal/logic"
)

// FakePublisher records what the signaling loop publishes. It is synchronous
// and not safe for concurrent use.
type FakePublisher struct {
	// Events holds transitions in publish order.
	Events []logic.Event

	// Payloads holds the formatted transition payloads, parallel to Events.
	Payloads [][]byte

	// SystemEvents and SystemPayloads hold lifecycle events the same way.
	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	// PublishError and PublishSystemError make the matching call fail
	// without recording anything.
	PublishError       error
	PublishSystemError error

	// Connected and Pending are reported by IsConnected and Buffered.
	Connected bool
	Pending   int

	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the transition event.
func (f *FakePublisher) Publish(event logic.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Events = append(f.Events, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// EventsInCycle returns the transitions published during cycle n.
func (f *FakePublisher) EventsInCycle(n int64) []logic.Event {
	var out []logic.Event
	for _, e := range f.Events {
		if e.Cycle == n {
			out = append(out, e)
		}
	}
	return out
}

// Levels returns the output level of each published transition.
func (f *FakePublisher) Levels() []logic.Level {
	out := make([]logic.Level, len(f.Events))
	for i, e := range f.Events {
		out[i] = e.Level
	}
	return out
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected returns Connected.
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Buffered returns Pending.
func (f *FakePublisher) Buffered() int {
	return f.Pending
}

// Message is one publish seen by a FakeClient.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakeClient stands in for the paho client behind a RealPublisher. It is
// safe for concurrent use: the publisher's sender goroutine calls it while
// tests flip its state.
type FakeClient struct {
	mu           sync.Mutex
	open         bool
	delay        time.Duration
	err          error
	published    []Message
	disconnected bool
}

// NewFakeClient returns a disconnected client.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// SetOpen sets what IsConnectionOpen reports.
func (c *FakeClient) SetOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

// SetDelay makes every publish take d to be acknowledged.
func (c *FakeClient) SetDelay(d time.Duration) {
	c.mu.Lock()
	c.delay = d
	c.mu.Unlock()
}

// SetPublishError makes publishes fail with err; nil restores success.
func (c *FakeClient) SetPublishError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Published returns a copy of the acknowledged messages in order.
func (c *FakeClient) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.published...)
}

// Disconnected reports whether Disconnect was called.
func (c *FakeClient) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// Connect returns a completed token; use SetOpen to simulate the link.
func (c *FakeClient) Connect() paho.Token {
	return &fakeToken{}
}

// IsConnectionOpen reports the state set by SetOpen.
func (c *FakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Publish records the message unless a publish error is set.
func (c *FakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return &fakeToken{delay: c.delay, err: c.err}
	}
	b, _ := payload.([]byte)
	c.published = append(c.published, Message{Topic: topic, QoS: qos, Retained: retained, Payload: b})
	return &fakeToken{delay: c.delay}
}

// Disconnect records the call and closes the link.
func (c *FakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.open = false
	c.mu.Unlock()
}

// fakeToken completes after delay.
type fakeToken struct {
	delay time.Duration
	err   error
}

func (t *fakeToken) Wait() bool {
	time.Sleep(t.delay)
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	if t.delay > d {
		time.Sleep(d)
		return false
	}
	time.Sleep(t.delay)
	return true
}

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	time.AfterFunc(t.delay, func() { close(ch) })
	return ch
}

func (t *fakeToken) Error() error {
	return t.err
}
