package xwait

import "sync"

// Listener adapts a push-based event source into a pull-based "wait for the
// next matching event" operation. Incoming events are buffered FIFO, never
// reordered and never dropped by the listener itself; at most one WaitFor
// may be outstanding at any instant.
type Listener[T any] struct {
	token *Token

	mu        sync.Mutex
	buf       []T
	err       error
	completed bool
	waiting   bool
	wake      *Deferred[struct{}]
}

var _ Observer[int] = (*Listener[int])(nil)

// NewListener returns a Listener bound to token. Cancelling the token fails
// any suspended WaitFor with a cancellation error.
func NewListener[T any](token *Token) *Listener[T] {
	return &Listener[T]{token: token}
}

// OnNext appends event to the buffer tail and wakes a pending waiter.
// Filtering happens in the waiter, not here.
func (l *Listener[T]) OnNext(event T) {
	l.mu.Lock()
	l.buf = append(l.buf, event)
	wake := l.wake
	l.mu.Unlock()

	if wake != nil {
		wake.Resolve(struct{}{})
	}
}

// OnError records the first terminal error permanently and wakes a pending
// waiter. Terminal signals after the first are no-ops.
func (l *Listener[T]) OnError(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	if l.err == nil && !l.completed {
		l.err = err
	}
	wake := l.wake
	l.mu.Unlock()

	if wake != nil {
		wake.Resolve(struct{}{})
	}
}

// OnComplete marks the stream completed permanently and wakes a pending
// waiter. Terminal signals after the first are no-ops.
func (l *Listener[T]) OnComplete() {
	l.mu.Lock()
	if l.err == nil {
		l.completed = true
	}
	wake := l.wake
	l.mu.Unlock()

	if wake != nil {
		wake.Resolve(struct{}{})
	}
}

// Clear discards all buffered, unconsumed events. Error and completed state
// are unaffected.
func (l *Listener[T]) Clear() {
	l.mu.Lock()
	l.buf = nil
	l.mu.Unlock()
}

// Wait returns the next available event, matching none in particular.
func (l *Listener[T]) Wait() (T, error) {
	return l.WaitFor(nil)
}

// WaitFor returns the next event satisfying match (any event when match is
// nil). Buffered events ahead of the returned match are consumed and never
// replayed; events after it stay buffered for later calls. Once the buffer
// is exhausted it fails with the recorded terminal error, then ErrCompleted,
// and otherwise suspends until the source delivers more events, terminates,
// or the bound token is cancelled. A WaitFor issued while another is still
// outstanding fails immediately with ErrWaitPending.
func (l *Listener[T]) WaitFor(match func(T) bool) (T, error) {
	var zero T

	l.mu.Lock()
	if l.waiting {
		l.mu.Unlock()
		return zero, ErrWaitPending
	}
	l.waiting = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.waiting = false
		l.wake = nil
		l.mu.Unlock()
	}()

	for {
		l.mu.Lock()
		// Drain before error before completed: a late buffered match beats
		// a concurrently recorded terminal signal.
		for len(l.buf) > 0 {
			event := l.buf[0]
			l.buf = l.buf[1:]
			if match == nil || match(event) {
				l.mu.Unlock()
				return event, nil
			}
		}
		if l.err != nil {
			err := l.err
			l.mu.Unlock()
			return zero, err
		}
		if l.completed {
			l.mu.Unlock()
			return zero, ErrCompleted
		}
		wake := NewDeferred[struct{}]()
		l.wake = wake
		l.mu.Unlock()

		unregister := RejectOnCancel(l.token, wake, "waiting for event")
		_, err := wake.Await()
		unregister()
		if err != nil {
			return zero, err
		}
	}
}
