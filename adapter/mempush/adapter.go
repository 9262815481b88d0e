package mempush

import (
	"sync"

	"github.com/trickstertwo/xwait"
)

// Source is an in-memory push source fanning events out to subscribed
// observers. Not a production transport; excellent for local development
// and tests of pull-side consumers.
type Source[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	observers map[uint64]xwait.Observer[T]
	err       error
	completed bool
}

// NewSource returns an empty source with no subscribers.
func NewSource[T any]() *Source[T] {
	return &Source[T]{
		observers: make(map[uint64]xwait.Observer[T]),
	}
}

// Subscribe attaches obs for delivery of all subsequent events. If the
// source already reached a terminal state, the terminal signal is replayed
// synchronously and obs is not retained. The returned function detaches obs
// and is safe to call repeatedly.
func (s *Source[T]) Subscribe(obs xwait.Observer[T]) xwait.Unsubscribe {
	if obs == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		obs.OnError(err)
		return func() {}
	}
	if s.completed {
		s.mu.Unlock()
		obs.OnComplete()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.observers[id] = obs
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Publish delivers events, in order, to every subscribed observer. Events
// published after a terminal state are dropped.
func (s *Source[T]) Publish(events ...T) {
	for _, e := range events {
		s.mu.Lock()
		if s.err != nil || s.completed {
			s.mu.Unlock()
			return
		}
		obs := s.snapshotLocked()
		s.mu.Unlock()

		for _, o := range obs {
			o.OnNext(e)
		}
	}
}

// Fail delivers a terminal error to every subscriber and detaches them.
// Only the first terminal signal has effect.
func (s *Source[T]) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err != nil || s.completed {
		s.mu.Unlock()
		return
	}
	s.err = err
	obs := s.snapshotLocked()
	s.observers = make(map[uint64]xwait.Observer[T])
	s.mu.Unlock()

	for _, o := range obs {
		o.OnError(err)
	}
}

// Complete delivers a terminal completion to every subscriber and detaches
// them. Only the first terminal signal has effect.
func (s *Source[T]) Complete() {
	s.mu.Lock()
	if s.err != nil || s.completed {
		s.mu.Unlock()
		return
	}
	s.completed = true
	obs := s.snapshotLocked()
	s.observers = make(map[uint64]xwait.Observer[T])
	s.mu.Unlock()

	for _, o := range obs {
		o.OnComplete()
	}
}

func (s *Source[T]) snapshotLocked() []xwait.Observer[T] {
	obs := make([]xwait.Observer[T], 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	return obs
}
