package engine

import (
	"sync"

	"github.com/linkflow-ai/linkflow-ai/internal/platform/logger"
)

// Listener receives an event's payload. It never returns a value: the
// lifecycle events the Bus carries (node_status_change, nodes_output,
// message, execution_*, over) are fire-and-forget broadcast, not RPC — the
// RPC-shaped calls the original event bus also carried (askMessage,
// getNodeInfo, createNode, cleanupNode, updateMessage) are direct
// method calls on Host instead, per the split called for once a bus serves
// more than one listener.
type Listener func(payload interface{})

// Bus is a synchronous, ordered, multi-listener publish/subscribe channel.
// Subscribing appends to the listener list for an event name; emitting
// invokes every current subscriber in registration order on the caller's
// own goroutine. A listener that panics is recovered and logged — it never
// aborts delivery to the remaining listeners.
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]Listener
	log       logger.Logger
}

// NewBus builds an empty bus. log may be nil, in which case listener panics
// are silently recovered.
func NewBus(log logger.Logger) *Bus {
	return &Bus{listeners: make(map[string][]Listener), log: log}
}

// On appends fn to the subscriber list for event. Order of registration is
// the order of delivery.
func (b *Bus) On(event string, fn Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[event] = append(b.listeners[event], fn)
}

// Emit invokes every subscriber registered for event, in registration
// order, passing payload to each. It returns the number of listeners
// invoked so callers can tell "nobody is listening" from "listeners ran".
func (b *Bus) Emit(event string, payload interface{}) int {
	b.mu.Lock()
	fns := make([]Listener, len(b.listeners[event]))
	copy(fns, b.listeners[event])
	b.mu.Unlock()

	for _, fn := range fns {
		b.invoke(event, fn, payload)
	}
	return len(fns)
}

func (b *Bus) invoke(event string, fn Listener, payload interface{}) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Error("bus listener panicked", "event", event, "recover", r)
		}
	}()
	fn(payload)
}
