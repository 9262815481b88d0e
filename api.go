package xwait

// Observer receives a push source's delivery callbacks. A well-behaved
// source delivers events via OnNext in arrival order, then at most one
// terminal OnError or OnComplete, then stays silent.
type Observer[T any] interface {
	OnNext(event T)
	OnError(err error)
	OnComplete()
}

// Unsubscribe detaches an observer from its push source. Implementations
// must tolerate repeated calls.
type Unsubscribe func()
