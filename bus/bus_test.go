package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBagInvokesInSubscriptionOrder(t *testing.T) {
	b := NewBag[func(int)]()
	var order []int
	b.Subscribe(func(n int) { order = append(order, n*10+1) })
	b.Subscribe(func(n int) { order = append(order, n*10+2) })

	for _, cb := range b.Snapshot() {
		cb(7)
	}

	require.Equal(t, []int{71, 72}, order)
}

func TestHandleReleaseDetaches(t *testing.T) {
	b := NewBag[func()]()
	calls := 0
	h := b.Subscribe(func() { calls++ })
	b.Subscribe(func() { calls++ })

	h.Release()
	for _, cb := range b.Snapshot() {
		cb()
	}

	require.Equal(t, 1, calls)
	require.Equal(t, 1, b.Len())
}

func TestHandleReleaseIsIdempotent(t *testing.T) {
	b := NewBag[func()]()
	h := b.Subscribe(func() {})
	h.Release()
	require.NotPanics(t, func() {
		h.Release()
		h.Release()
	})
}

func TestSnapshotIsolatesMutationDuringIteration(t *testing.T) {
	b := NewBag[func()]()
	var fired []string
	var second *Handle[func()]
	b.Subscribe(func() {
		fired = append(fired, "first")
		// subscribing mid-emit must not affect this pass
		second = b.Subscribe(func() { fired = append(fired, "late") })
	})

	for _, cb := range b.Snapshot() {
		cb()
	}
	require.Equal(t, []string{"first"}, fired)
	require.NotNil(t, second)

	fired = nil
	for _, cb := range b.Snapshot() {
		cb()
	}
	require.Equal(t, []string{"first", "late"}, fired)
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	o := NewOnce()
	calls := 0
	o.Subscribe(func() { calls++ })
	o.Subscribe(func() { calls++ })

	o.Fire()
	o.Fire()
	o.Fire()

	require.Equal(t, 2, calls)
	require.True(t, o.Fired())
}

func TestOnceLateSubscriberFiresImmediately(t *testing.T) {
	o := NewOnce()
	o.Fire()

	calls := 0
	o.Subscribe(func() { calls++ })

	require.Equal(t, 1, calls)
}
