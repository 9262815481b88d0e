package xwait

import (
	"github.com/trickstertwo/xlog"
)

// ObserverFuncs is an Adapter that lets plain functions satisfy Observer.
// Nil callbacks are skipped.
type ObserverFuncs[T any] struct {
	Next     func(event T)
	Error    func(err error)
	Complete func()
}

func (o ObserverFuncs[T]) OnNext(event T) {
	if o.Next != nil {
		o.Next(event)
	}
}

func (o ObserverFuncs[T]) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o ObserverFuncs[T]) OnComplete() {
	if o.Complete != nil {
		o.Complete()
	}
}

// LoggedObserver is an Adapter that logs every delivery via xlog before
// forwarding it. The primitives themselves never log; wrap the observer when
// the surrounding application wants delivery visibility.
type LoggedObserver[T any] struct {
	Inner  Observer[T]
	Logger *xlog.Logger
	Name   string
}

func (o LoggedObserver[T]) OnNext(event T) {
	if o.Logger != nil {
		o.Logger.Debug().Str("listener", o.Name).Msg("event delivered")
	}
	if o.Inner != nil {
		o.Inner.OnNext(event)
	}
}

func (o LoggedObserver[T]) OnError(err error) {
	if o.Logger != nil {
		o.Logger.Warn().Str("listener", o.Name).Err(err).Msg("source error")
	}
	if o.Inner != nil {
		o.Inner.OnError(err)
	}
}

func (o LoggedObserver[T]) OnComplete() {
	if o.Logger != nil {
		o.Logger.Info().Str("listener", o.Name).Msg("source completed")
	}
	if o.Inner != nil {
		o.Inner.OnComplete()
	}
}
