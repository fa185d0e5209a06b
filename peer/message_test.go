package peer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"dreamh.dev/sfu/engine"
	"dreamh.dev/sfu/vc"
)

func TestInboundActionDecoding(t *testing.T) {
	raw := []byte(`{"action":"produce","kind":"audio","rtpParameters":{"codecs":[]}}`)
	var msg Inbound
	require.NoError(t, json.Unmarshal(raw, &msg))
	require.Equal(t, "produce", msg.Action)
	require.Equal(t, engine.KindAudio, msg.Kind)
	require.NotNil(t, msg.RTPParameters)
}

func TestOutboundNotificationWrapsKindTaggedPayload(t *testing.T) {
	out := newNotification(vc.PeerID("A"), vc.NotificationPeerJoin)
	data, err := json.Marshal(out)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "notification", decoded["action"])

	notification, ok := decoded["notification"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "peerJoin", notification["kind"])
	require.Equal(t, "A", notification["peerId"])
}

func TestOutboundProducerAddCamelCase(t *testing.T) {
	out := newProducerAdd(vc.PeerID("A"), "P1")
	data, err := json.Marshal(out)
	require.NoError(t, err)
	require.Contains(t, string(data), `"peerId":"A"`)
	require.Contains(t, string(data), `"producerId":"P1"`)
	require.Contains(t, string(data), `"action":"producerAdd"`)
}

func TestOutboundInitCarriesBothTransportsAndCapabilities(t *testing.T) {
	out := newInit("room", engine.TransportOptions{ID: "p"}, engine.TransportOptions{ID: "c"}, engine.RTPCapabilities{})
	require.Equal(t, "init", out.Action)
	require.Equal(t, "room", out.VcID)
	require.Equal(t, "p", out.ProducerTransportOptions.ID)
	require.Equal(t, "c", out.ConsumerTransportOptions.ID)
}
