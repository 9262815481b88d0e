package xwait

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_CancelIdempotent(t *testing.T) {
	src := NewSource()
	var fired atomic.Int32
	src.Token().OnCancel(func() { fired.Add(1) })

	src.Cancel()
	src.Cancel()
	src.Cancel()

	assert.Equal(t, int32(1), fired.Load())
	assert.True(t, src.Token().Cancelled())
}

func TestToken_CancelledMonotonic(t *testing.T) {
	src := NewSource()
	tok := src.Token()

	assert.False(t, tok.Cancelled())
	assert.NoError(t, tok.Err())

	src.Cancel()

	assert.True(t, tok.Cancelled())
	assert.ErrorIs(t, tok.Err(), ErrCancelled)
	assert.True(t, tok.Cancelled(), "cancelled never reverts")
}

func TestToken_DoneClosedOnCancel(t *testing.T) {
	src := NewSource()

	select {
	case <-src.Token().Done():
		t.Fatal("done closed before cancellation")
	default:
	}

	src.Cancel()

	select {
	case <-src.Token().Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed after cancellation")
	}
}

func TestToken_AllCallbacksFireExactlyOnce(t *testing.T) {
	src := NewSource()
	var a, b, c atomic.Int32
	src.Token().OnCancel(func() { a.Add(1) })
	src.Token().OnCancel(func() { b.Add(1) })
	src.Token().OnCancel(func() { c.Add(1) })

	src.Cancel()
	src.Cancel()

	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), b.Load())
	assert.Equal(t, int32(1), c.Load())
}

func TestToken_OnCancelAfterCancelRunsSynchronously(t *testing.T) {
	src := NewSource()
	src.Cancel()

	fired := false
	unregister := src.Token().OnCancel(func() { fired = true })

	assert.True(t, fired, "callback registered after cancel must run before OnCancel returns")
	unregister() // no-op
}

func TestToken_UnregisterPreventsInvocation(t *testing.T) {
	src := NewSource()
	var fired atomic.Int32

	unregister := src.Token().OnCancel(func() { fired.Add(1) })
	unregister()
	unregister() // safe to repeat

	src.Cancel()
	assert.Equal(t, int32(0), fired.Load())
}

func TestToken_UnregisterAfterFireIsNoop(t *testing.T) {
	src := NewSource()
	var fired atomic.Int32

	unregister := src.Token().OnCancel(func() { fired.Add(1) })
	src.Cancel()
	unregister()

	assert.Equal(t, int32(1), fired.Load())
}

func TestRejectOnCancel(t *testing.T) {
	src := NewSource()
	d := NewDeferred[int]()

	RejectOnCancel(src.Token(), d, "test shutdown")
	src.Cancel()

	_, err := d.Await()
	require.ErrorIs(t, err, ErrCancelled)
	assert.Contains(t, err.Error(), "test shutdown")
}

func TestRejectOnCancel_SettledDeferredUnaffected(t *testing.T) {
	src := NewSource()
	d := NewDeferred[int]()

	RejectOnCancel(src.Token(), d, "")
	d.Resolve(9)
	src.Cancel()

	v, err := d.Await()
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestRejectOnCancel_AlreadyCancelled(t *testing.T) {
	src := NewSource()
	src.Cancel()

	d := NewDeferred[int]()
	RejectOnCancel(src.Token(), d, "")

	require.True(t, d.Settled(), "rejection must happen synchronously on registration")
	_, err := d.Await()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestRejectOnCancel_Unregister(t *testing.T) {
	src := NewSource()
	d := NewDeferred[int]()

	unregister := RejectOnCancel(src.Token(), d, "")
	unregister()
	src.Cancel()

	assert.False(t, d.Settled())
}

func TestSource_CancelAfter(t *testing.T) {
	src := NewSource()
	stop := src.CancelAfter(20 * time.Millisecond)
	defer stop()

	select {
	case <-src.Token().Done():
	case <-time.After(time.Second):
		t.Fatal("timer did not cancel the source")
	}
}

func TestSource_CancelAfterStopped(t *testing.T) {
	src := NewSource()
	stop := src.CancelAfter(30 * time.Millisecond)
	stop()

	time.Sleep(80 * time.Millisecond)
	assert.False(t, src.Token().Cancelled())
}

func TestCancelled_ErrorShape(t *testing.T) {
	assert.ErrorIs(t, Cancelled("reason"), ErrCancelled)
	assert.Equal(t, ErrCancelled, Cancelled(""))
	assert.True(t, errors.Is(Cancelled("x"), ErrCancelled))
}
