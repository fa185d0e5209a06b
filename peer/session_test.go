package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dreamh.dev/sfu/vc"
)

func TestTeardownIsIdempotentAndDoesNotPanic(t *testing.T) {
	v, err := vc.New(vc.ID("room"), nil, nil)
	require.NoError(t, err)
	v.Acquire()

	s := &Session{
		id:    vc.PeerID("A"),
		vc:    v,
		vcID:  v.ID(),
		inbox: make(chan func(), 8),
		send:  make(chan []byte, 8),
	}
	go s.run()
	s.vc.AddPeer(s.id)

	require.NotPanics(t, func() {
		s.teardown()
		s.teardown()
	})
	require.Empty(t, v.AllPeers())
}

func TestOutboundAfterCloseIsDropped(t *testing.T) {
	v, err := vc.New(vc.ID("room"), nil, nil)
	require.NoError(t, err)
	v.Acquire()

	s := &Session{
		id:    vc.PeerID("A"),
		vc:    v,
		vcID:  v.ID(),
		inbox: make(chan func(), 8),
		send:  make(chan []byte, 8),
	}
	go s.run()

	s.teardown()
	require.NotPanics(t, func() {
		s.outbound(newEcho(vc.PeerID("B"), "hi"))
	})
}

func TestSelfSuppressionFiltersOwnBroadcasts(t *testing.T) {
	v, err := vc.New(vc.ID("room"), nil, nil)
	require.NoError(t, err)
	v.Acquire()

	s := &Session{
		id:    vc.PeerID("A"),
		vc:    v,
		vcID:  v.ID(),
		inbox: make(chan func(), 8),
		send:  make(chan []byte, 8),
	}
	go s.run()
	s.subscribeBus()

	v.Echo(vc.PeerID("A"), "from self")
	v.Echo(vc.PeerID("B"), "from other")

	// give the posted closures a moment to land on send.
	time.Sleep(20 * time.Millisecond)

	var frames []string
	close(s.send)
	for data := range s.send {
		frames = append(frames, string(data))
	}
	require.Len(t, frames, 1)
	require.Contains(t, frames[0], "from other")
}
