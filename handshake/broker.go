package handshake

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Envelope is a raw cross-window message together with the origin that sent
// it. The broker filters before any decoding side effects reach listeners.
type Envelope struct {
	Origin string
	Data   []byte
}

// Broker fans handshake messages out to the flows currently awaiting one.
// It applies the two filters the opener window must apply: the sender origin
// has to match the application origin, and the payload has to carry the
// reserved message prefix. Everything else is dropped silently.
type Broker struct {
	origin string

	mu          sync.Mutex
	subscribers map[int]chan Message
	nextID      int
}

func NewBroker(origin string) (*Broker, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return nil, fmt.Errorf("handshake: broker origin is required")
	}
	return &Broker{
		origin:      origin,
		subscribers: map[int]chan Message{},
	}, nil
}

func (b *Broker) Origin() string {
	if b == nil {
		return ""
	}
	return b.origin
}

// Subscribe registers a listener. The returned cancel func removes only this
// listener; other in-flight flows keep theirs.
func (b *Broker) Subscribe() (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	// one terminal message per flow; headroom for stray duplicates
	ch := make(chan Message, 4)
	b.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers, id)
		})
	}
	return ch, cancel
}

// Deliver routes one envelope to every live listener. Wrong-origin and
// non-handshake payloads are ignored; a malformed prefixed payload is the
// only delivery error.
func (b *Broker) Deliver(envelope Envelope) error {
	if b == nil {
		return fmt.Errorf("handshake: broker is not configured")
	}
	if envelope.Origin != b.origin {
		return nil
	}

	msg, err := Decode(envelope.Data)
	if err != nil {
		if errors.Is(err, ErrNotHandshakeMessage) {
			return nil
		}
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// ListenerCount reports live subscriptions. Flows must leave this at zero
// after any terminal outcome.
func (b *Broker) ListenerCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
