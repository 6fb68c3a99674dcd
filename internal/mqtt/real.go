package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/threshold-signaler/internal/logic"
)

// DefaultBufferSize is the number of messages held while the broker is unreachable.
const DefaultBufferSize = 256

const (
	publishTimeout       = 5 * time.Second
	closeTimeout         = 5 * time.Second
	defaultRetryInterval = 5 * time.Second
)

var (
	// ErrClosed is returned when publishing after Close.
	ErrClosed = errors.New("mqtt: publisher closed")
	// ErrQueueFull is returned when the hand-off queue to the sender is full.
	ErrQueueFull = errors.New("mqtt: publish queue full")
)

// Client is the part of paho.Client a RealPublisher drives.
type Client interface {
	Connect() paho.Token
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker.
//
// Publish and PublishSystem only hand the message to a sender goroutine and
// never wait on the network. The sender owns the ring buffer: every message
// goes through it in order, so messages published while disconnected are
// replayed before anything newer.
type RealPublisher struct {
	client Client

	queue    chan bufferedMsg
	connects chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	retry    time.Duration

	closeOnce sync.Once

	mu  sync.Mutex // guards buf for Buffered; only the sender mutates it
	buf *ringBuffer

	// sender goroutine only
	connectedOnce bool
}

// NewRealPublisher starts connecting to broker in the background and returns
// immediately; the broker being down at startup is not an error.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := newRealPublisher(DefaultBufferSize, defaultRetryInterval)

	will, _ := FormatSystemPayload(WillEvent(time.Now()))
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.HandleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt: connection lost")
		})

	p.start(paho.NewClient(opts))
	return p
}

// NewPublisher runs a publisher on an already configured client. The
// client's on-connect hook must call HandleConnect.
func NewPublisher(client Client, bufferSize int) *RealPublisher {
	p := newRealPublisher(bufferSize, defaultRetryInterval)
	p.start(client)
	return p
}

func newRealPublisher(bufferSize int, retry time.Duration) *RealPublisher {
	return &RealPublisher{
		queue:    make(chan bufferedMsg, bufferSize),
		connects: make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		retry:    retry,
		buf:      newRingBuffer(bufferSize),
	}
}

func (p *RealPublisher) start(client Client) {
	p.client = client
	go p.run()
	client.Connect()
}

// WillEvent is the retained message the broker publishes if the process
// disappears without a clean shutdown.
func WillEvent(now time.Time) SystemEvent {
	return SystemEvent{
		Timestamp: now,
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
		Retained:  true,
	}
}

// HandleConnect tells the sender a connection was established. It never blocks.
func (p *RealPublisher) HandleConnect() {
	select {
	case p.connects <- struct{}{}:
	default:
	}
}

// Publish queues an output transition event for the broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.enqueue(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem queues a system lifecycle event for the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.enqueue(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) enqueue(msg bufferedMsg) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *RealPublisher) run() {
	defer close(p.stopped)

	retry := time.NewTicker(p.retry)
	defer retry.Stop()

	for {
		select {
		case msg := <-p.queue:
			p.buffer(msg)
			p.flush(time.Time{})
		case <-p.connects:
			p.connected()
		case <-retry.C:
			p.flush(time.Time{})
		case <-p.done:
			p.drainQueue()
			p.flush(time.Now().Add(closeTimeout))
			if n := p.Buffered(); n > 0 {
				log.Warn().Int("count", n).Msg("mqtt: closing with unsent messages")
			}
			return
		}
	}
}

// connected replays the backlog, then announces a reconnect. The first
// connection after startup is not a reconnect.
func (p *RealPublisher) connected() {
	p.drainQueue()
	if n := p.Buffered(); n > 0 {
		log.Info().Int("count", n).Msg("mqtt: connected, replaying buffered messages")
	} else {
		log.Info().Msg("mqtt: connected")
	}
	p.flush(time.Time{})

	if !p.connectedOnce {
		p.connectedOnce = true
		return
	}
	reconnected, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	p.buffer(bufferedMsg{topic: TopicSystem, payload: reconnected, qos: 1})
	p.flush(time.Time{})
}

func (p *RealPublisher) drainQueue() {
	for {
		select {
		case msg := <-p.queue:
			p.buffer(msg)
		default:
			return
		}
	}
}

func (p *RealPublisher) buffer(msg bufferedMsg) {
	p.mu.Lock()
	p.buf.push(msg)
	p.mu.Unlock()
}

// flush sends buffered messages oldest first until the buffer is empty, a
// send fails, the connection is down, or deadline (if set) passes.
func (p *RealPublisher) flush(deadline time.Time) {
	for p.client.IsConnectionOpen() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return
		}
		p.mu.Lock()
		msg, ok := p.buf.front()
		p.mu.Unlock()
		if !ok {
			return
		}
		if err := p.send(msg); err != nil {
			log.Warn().Err(err).Int("buffered", p.Buffered()).Msg("mqtt: send failed, keeping buffered")
			return
		}
		p.mu.Lock()
		p.buf.pop()
		p.mu.Unlock()
	}
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// Buffered returns the number of messages waiting to be sent, queued ones included.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len() + len(p.queue)
}

// IsConnected reports whether the client currently holds a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close gives queued messages a bounded chance to go out, then disconnects.
func (p *RealPublisher) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		<-p.stopped
		p.client.Disconnect(1000) // 1 second timeout
	})
	return nil
}
