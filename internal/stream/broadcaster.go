// ABOUTME: Frame fan-out from the replay engine to N stream subscribers
// ABOUTME: Slow subscribers lose frames rather than stalling the replay pacing
package stream

import (
	"sync"
)

// Broadcaster fans replay frame payloads out to subscribers.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives frame payloads from the broadcaster.
type Listener struct {
	C    chan []byte
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[*Listener]struct{})}
}

// Subscribe registers a listener with a small frame buffer.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []byte, 16),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish hands one payload to every listener, dropping it for any
// listener whose buffer is full.
func (b *Broadcaster) Publish(payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- payload:
		default:
			// listener too slow, keep the replay moving
		}
	}
}

// CloseAll unsubscribes every listener, ending their streams.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for l := range b.listeners {
		delete(b.listeners, l)
		close(l.done)
	}
}
