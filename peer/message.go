package peer

import (
	"github.com/pion/webrtc/v4"

	"dreamh.dev/sfu/engine"
	"dreamh.dev/sfu/vc"
)

// Inbound is the envelope for every client→server frame, tagged by Action.
// Following the flat-struct-per-envelope style used for sfuMessage, every
// action's payload lives in its own omitempty field rather than behind a
// second-level discriminated union.
type Inbound struct {
	Action string `json:"action"`

	RTPCapabilities *engine.RTPCapabilities `json:"rtpCapabilities,omitempty"`

	DTLSParameters *webrtc.DTLSParameters `json:"dtlsParameters,omitempty"`

	Kind          engine.Kind           `json:"kind,omitempty"`
	RTPParameters *engine.RTPParameters `json:"rtpParameters,omitempty"`

	ProducerID string `json:"producerId,omitempty"`
	ConsumerID string `json:"consumerId,omitempty"`

	Text string `json:"text,omitempty"`

	NotificationKind vc.Notification `json:"notificationKind,omitempty"`
}

// Outbound is the envelope for every server→client frame, tagged by Action.
type Outbound struct {
	Action string `json:"action"`

	VcID                       string                    `json:"vcId,omitempty"`
	ProducerTransportOptions   *engine.TransportOptions  `json:"producerTransportOptions,omitempty"`
	ConsumerTransportOptions   *engine.TransportOptions  `json:"consumerTransportOptions,omitempty"`
	RTPCapabilities            *engine.RTPCapabilities   `json:"rtpCapabilities,omitempty"`

	PeerID     string `json:"peerId,omitempty"`
	ProducerID string `json:"producerId,omitempty"`
	ConsumerID string `json:"consumerId,omitempty"`
	Kind       engine.Kind `json:"kind,omitempty"`
	RTPParameters *engine.RTPParameters `json:"rtpParameters,omitempty"`

	Text string `json:"text,omitempty"`

	Notification *NotificationPayload `json:"notification,omitempty"`
}

// NotificationPayload is the nested, kind-tagged object carried by a
// server→client "notification" action.
type NotificationPayload struct {
	Kind   vc.Notification `json:"kind"`
	PeerID string          `json:"peerId"`
}

func newInit(vcID string, producerOpts, consumerOpts engine.TransportOptions, caps engine.RTPCapabilities) Outbound {
	return Outbound{
		Action:                   "init",
		VcID:                     vcID,
		ProducerTransportOptions: &producerOpts,
		ConsumerTransportOptions: &consumerOpts,
		RTPCapabilities:          &caps,
	}
}

func newNotification(peerID vc.PeerID, kind vc.Notification) Outbound {
	return Outbound{
		Action: "notification",
		Notification: &NotificationPayload{
			Kind:   kind,
			PeerID: string(peerID),
		},
	}
}

func newProducerAdd(peerID vc.PeerID, producerID string) Outbound {
	return Outbound{Action: "producerAdd", PeerID: string(peerID), ProducerID: producerID}
}

func newProducerRemove(peerID vc.PeerID, producerID string) Outbound {
	return Outbound{Action: "producerRemove", PeerID: string(peerID), ProducerID: producerID}
}

func newEcho(peerID vc.PeerID, text string) Outbound {
	return Outbound{Action: "echo", PeerID: string(peerID), Text: text}
}

func newConnectedProducerTransport() Outbound {
	return Outbound{Action: "connectedProducerTransport"}
}

func newConnectedConsumerTransport() Outbound {
	return Outbound{Action: "connectedConsumerTransport"}
}

func newProducerCreated(id string) Outbound {
	return Outbound{Action: "producerCreated", ProducerID: id}
}

func newConsumerCreated(id, producerID string, kind engine.Kind, params engine.RTPParameters) Outbound {
	return Outbound{
		Action:        "consumerCreated",
		ConsumerID:    id,
		ProducerID:    producerID,
		Kind:          kind,
		RTPParameters: &params,
	}
}
