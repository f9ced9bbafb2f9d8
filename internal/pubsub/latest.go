// Package pubsub provides latest-value publication: a single protected slot
// holding the most recent value, plus capacity-1 notification channels for
// subscribers. There is no history and no back-pressure — a subscriber that
// polls slower than the writer observes skipped intermediate values.
package pubsub

import "sync"

// Latest is a single-slot publisher. The zero value is not usable; create
// one with NewLatest. Set replaces the slot atomically; Get returns the
// current value and whether anything has been published yet.
type Latest[T any] struct {
	mu    sync.RWMutex
	value T
	set   bool
	subs  map[chan T]bool
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{subs: make(map[chan T]bool)}
}

// Set replaces the current value and notifies subscribers. Notification is
// non-blocking: if a subscriber's channel already holds an undelivered value,
// the stale value is replaced with the new one rather than queued behind it.
func (l *Latest[T]) Set(v T) {
	l.mu.Lock()
	l.value = v
	l.set = true
	for ch := range l.subs {
		select {
		case ch <- v:
		default:
			// Drain the stale value, then deliver the fresh one. The
			// second send cannot block because only Set writes to subscriber
			// channels and we hold the lock.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
	l.mu.Unlock()
}

// Get returns the most recently published value. ok is false if nothing has
// been published since construction.
func (l *Latest[T]) Get() (v T, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.set
}

// Subscribe registers a capacity-1 notification channel. If a value has
// already been published, it is delivered immediately so subscribers never
// start blind. Call the returned cancel func to unsubscribe.
func (l *Latest[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)
	l.mu.Lock()
	l.subs[ch] = true
	if l.set {
		ch <- l.value
	}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		delete(l.subs, ch)
		l.mu.Unlock()
	}
	return ch, cancel
}
