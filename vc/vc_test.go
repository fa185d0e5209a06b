package vc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestVC(t *testing.T) *VC {
	t.Helper()
	v, err := New(ID("test"), nil, nil)
	require.NoError(t, err)
	v.Acquire()
	return v
}

func TestAddPeerThenRemovePeerLeavesRosterUnchanged(t *testing.T) {
	v := newTestVC(t)

	var joins, leaves int
	v.OnNotification(func(_ PeerID, kind Notification) {
		switch kind {
		case NotificationPeerJoin:
			joins++
		case NotificationPeerLeave:
			leaves++
		}
	})

	v.AddPeer("A")
	v.RemovePeer("A")

	require.Equal(t, 1, joins)
	require.Equal(t, 1, leaves)
	require.Empty(t, v.AllPeers())
}

func TestRemovePeerIsIdempotentOnUnknownPeer(t *testing.T) {
	v := newTestVC(t)
	fired := false
	v.OnNotification(func(PeerID, Notification) { fired = true })

	v.RemovePeer("ghost")

	require.False(t, fired)
}

func TestRemovePeerEmitsProducerRemoveBeforeLeave(t *testing.T) {
	v := newTestVC(t)
	v.AddPeer("A")

	v.AddProducer("A", stubProducer("P1"))

	var events []string
	v.OnProducerRemove(func(_ PeerID, producerID string) {
		events = append(events, "producerRemove:"+producerID)
	})
	v.OnNotification(func(_ PeerID, kind Notification) {
		if kind == NotificationPeerLeave {
			events = append(events, "peerLeave")
		}
	})

	v.RemovePeer("A")

	require.Equal(t, []string{"producerRemove:P1", "peerLeave"}, events)
}

func TestRemoveProducerEmitsEvenWhenAbsent(t *testing.T) {
	v := newTestVC(t)
	fired := false
	v.OnProducerRemove(func(PeerID, string) { fired = true })

	v.RemoveProducer("nobody", "nothing")

	require.True(t, fired)
}

func TestSelfSuppressionIsCallerResponsibility(t *testing.T) {
	// VC itself broadcasts to every subscriber; self-suppression is
	// filtered at subscribe time by the peer session, not by the VC.
	v := newTestVC(t)
	var seen PeerID
	v.OnNotification(func(peerID PeerID, _ Notification) { seen = peerID })

	v.AddPeer("A")

	require.Equal(t, PeerID("A"), seen)
}

func TestCloseBagFiresExactlyOnceAndLateSubscriberStillFires(t *testing.T) {
	v := newTestVC(t)
	calls := 0
	v.OnClose(func() { calls++ })

	v.Release() // drops the only strong reference
	v.closeBag.Fire()
	v.closeBag.Fire()

	require.Equal(t, 1, calls)

	late := false
	v.OnClose(func() { late = true })
	require.True(t, late)
}

func TestRegistryGetOrCreateDeduplicatesRepeatedCallers(t *testing.T) {
	reg := NewRegistry()

	a, err := reg.GetOrCreate(ID("room"), nil, nil)
	require.NoError(t, err)
	b, err := reg.GetOrCreate(ID("room"), nil, nil)
	require.NoError(t, err)

	require.Same(t, a, b)
}

func TestRegistryRecreatesAfterLastStrongRefDrops(t *testing.T) {
	reg := NewRegistry()

	a, err := reg.GetOrCreate(ID("room"), nil, nil)
	require.NoError(t, err)
	a.Release()

	// give the close-bag goroutine a chance to run via a synchronous fire.
	a.closeBag.Fire()

	b, err := reg.GetOrCreate(ID("room"), nil, nil)
	require.NoError(t, err)
	require.NotSame(t, a, b)
}

type stubProducer string

func (s stubProducer) ProducerID() string { return string(s) }
