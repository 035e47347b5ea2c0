package mqtt

import "github.com/sweeney/pulse-meter/internal/logging"

// DefaultBufferSize is the number of messages held while disconnected.
const DefaultBufferSize = 256

// queuedMsg is a serialized publish waiting for the broker to come back.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog keeps the newest messages published while disconnected, up to a
// fixed capacity. The caller synchronizes.
type backlog struct {
	msgs    []queuedMsg
	oldest  int
	size    int
	dropped int // since the last take
	logger  logging.Logger
}

func newBacklog(capacity int, logger logging.Logger) *backlog {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &backlog{msgs: make([]queuedMsg, capacity), logger: logger}
}

func (b *backlog) capacity() int {
	return len(b.msgs)
}

// add queues msg, evicting the oldest entry when full.
func (b *backlog) add(msg queuedMsg) {
	n := b.capacity()
	if b.size < n {
		b.msgs[(b.oldest+b.size)%n] = msg
		b.size++
		return
	}
	if b.dropped == 0 {
		b.logger.Warnf("mqtt: backlog full (%d messages), dropping oldest", n)
	}
	b.dropped++
	b.msgs[b.oldest] = msg
	b.oldest = (b.oldest + 1) % n
}

// take empties the backlog. It returns the queued messages oldest first and
// how many were evicted since the previous take.
func (b *backlog) take() ([]queuedMsg, int) {
	dropped := b.dropped
	b.dropped = 0
	if b.size == 0 {
		return nil, dropped
	}
	n := b.capacity()
	out := make([]queuedMsg, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.msgs[(b.oldest+i)%n])
		b.msgs[(b.oldest+i)%n] = queuedMsg{}
	}
	b.oldest, b.size = 0, 0
	return out, dropped
}

func (b *backlog) len() int {
	return b.size
}
