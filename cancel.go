package xwait

import (
	"sync"
	"time"
)

// Token is the read-only handle observing a one-way cancellation signal.
// Tokens are obtained from a Source and may be shared freely by any number
// of consumers; only the owning Source can trigger the transition.
type Token struct {
	mu        sync.Mutex
	cancelled bool
	nextID    uint64
	callbacks map[uint64]func()

	done chan struct{}
}

// Cancelled reports whether the token has been cancelled. Monotonic: once
// true it never reverts.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Err returns nil while the token is active and ErrCancelled once it is
// cancelled, for fail-fast checks at operation boundaries.
func (t *Token) Err() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// Done returns a channel that is closed on cancellation, for select-based
// consumers.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// OnCancel registers fn for invocation when the token transitions to
// cancelled. If the token is already cancelled, fn runs synchronously before
// OnCancel returns. The returned function unregisters fn; calling it after
// fn has fired is a safe no-op. Every registration fires exactly once, in
// unspecified order, on the single transition.
func (t *Token) OnCancel(fn func()) (unregister func()) {
	if fn == nil {
		return func() {}
	}

	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.callbacks[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.callbacks, id)
		t.mu.Unlock()
	}
}

// cancel flips the flag, closes Done and fires every registered callback
// exactly once. Reachable only through the owning Source.
func (t *Token) cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	close(t.done)
	cbs := make([]func(), 0, len(t.callbacks))
	for _, fn := range t.callbacks {
		cbs = append(cbs, fn)
	}
	t.callbacks = make(map[uint64]func())
	t.mu.Unlock()

	// Callbacks run outside the lock so they may re-enter the token.
	for _, fn := range cbs {
		fn()
	}
}

// RejectOnCancel registers a cancellation callback that rejects d with a
// cancellation error carrying reason, unless d is already settled. It
// returns the same unregistration contract as Token.OnCancel.
func RejectOnCancel[T any](t *Token, d *Deferred[T], reason string) (unregister func()) {
	return t.OnCancel(func() {
		d.Reject(Cancelled(reason))
	})
}

// Source owns the sole authority to cancel its Token. Constructing tokens
// any other way is not possible, which keeps spoofed cancellation out.
type Source struct {
	once  sync.Once
	token *Token
}

// NewSource returns a Source with a fresh, active Token.
func NewSource() *Source {
	return &Source{
		token: &Token{
			callbacks: make(map[uint64]func()),
			done:      make(chan struct{}),
		},
	}
}

// Token returns the shared read-only handle.
func (s *Source) Token() *Token {
	return s.token
}

// Cancel transitions the token to cancelled. Idempotent: only the first
// call has effect.
func (s *Source) Cancel() {
	s.once.Do(s.token.cancel)
}

// CancelAfter arms a timer that cancels the source once d elapses. The
// returned stop function disarms the timer.
func (s *Source) CancelAfter(d time.Duration) (stop func()) {
	timer := time.AfterFunc(d, s.Cancel)
	return func() { timer.Stop() }
}
