package mqtt

import "github.com/rs/zerolog/log"

// bufferedMsg is a serialized MQTT message waiting for the sender.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of unsent messages. When full, the
// oldest message is dropped. Not safe for concurrent use.
type ringBuffer struct {
	buf   []bufferedMsg
	head  int // oldest message
	count int
	// dropping is set on the first overflow and cleared once the buffer
	// empties, so a long outage logs one warning.
	dropping bool
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.count == len(r.buf) {
		if !r.dropping {
			log.Warn().Int("capacity", len(r.buf)).Msg("mqtt: buffer full, dropping oldest")
			r.dropping = true
		}
		r.pop()
	}
	r.buf[(r.head+r.count)%len(r.buf)] = msg
	r.count++
}

// front returns the oldest message without removing it.
func (r *ringBuffer) front() (bufferedMsg, bool) {
	if r.count == 0 {
		return bufferedMsg{}, false
	}
	return r.buf[r.head], true
}

// pop removes the oldest message.
func (r *ringBuffer) pop() {
	if r.count == 0 {
		return
	}
	r.buf[r.head] = bufferedMsg{}
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	if r.count == 0 {
		r.dropping = false
	}
}

func (r *ringBuffer) len() int {
	return r.count
}
