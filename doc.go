// Package xwait provides cancellation-aware waiting primitives for consuming
// push-delivered event streams on demand.
//
// Three pieces compose:
//   - Deferred: a single-shot, externally completable future.
//   - Source/Token: a one-shot broadcast cancellation signal with
//     synchronous-if-already-cancelled callback semantics.
//   - Listener: a buffering adapter turning next/error/complete push
//     callbacks into sequential, predicate-filtered WaitFor calls.
//
// A caller builds a Source, hands its Token to a Listener, registers the
// Listener as the observer of a push source (see the adapter packages), and
// pulls qualifying events with WaitFor. Cancellation flows from the Source
// into any suspended wait and every registered cancellation callback.
package xwait
