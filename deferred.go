package xwait

import (
	"sync"
	"sync/atomic"

	"github.com/reugn/async"
)

// Deferred is a single-shot, externally completable future: created pending,
// settled exactly once via Resolve or Reject, observed any number of times
// via Await.
type Deferred[T any] struct {
	once    sync.Once
	settled atomic.Bool
	promise async.Promise[T]
}

// NewDeferred returns a pending Deferred.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{promise: async.NewPromise[T]()}
}

// Resolve settles the outcome with value. Only the first call across
// Resolve/Reject takes effect; Resolve reports whether this call won.
func (d *Deferred[T]) Resolve(value T) bool {
	won := false
	d.once.Do(func() {
		d.settled.Store(true)
		d.promise.Success(value)
		won = true
	})
	return won
}

// Reject settles the outcome with err. Only the first call across
// Resolve/Reject takes effect; Reject reports whether this call won.
func (d *Deferred[T]) Reject(err error) bool {
	won := false
	d.once.Do(func() {
		d.settled.Store(true)
		d.promise.Failure(err)
		won = true
	})
	return won
}

// Await blocks until the Deferred settles and returns the outcome. Safe for
// any number of concurrent and late observers; all see the same outcome.
func (d *Deferred[T]) Await() (T, error) {
	return d.promise.Future().Get()
}

// Settled reports whether the outcome has been set.
func (d *Deferred[T]) Settled() bool {
	return d.settled.Load()
}
