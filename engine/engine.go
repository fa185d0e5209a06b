// Package engine adapts github.com/pion/webrtc's ORTC primitives
// (ICEGatherer, ICETransport, DTLSTransport, RTPSender, RTPReceiver) to the
// declarative Worker/Router/Transport/Producer/Consumer shape the signaling
// core expects. Unlike pion's high-level PeerConnection, the ORTC API never
// touches SDP: transports are created and configured directly with
// parameter structs, which is the closest match in the pack to mediasoup's
// WebRtcTransport model.
package engine

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// Kind mirrors mediasoup's media-kind discriminator.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) rtpCodecType() webrtc.RTPCodecType {
	if k == KindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// WorkerSettings are fixed at worker construction. The source this system
// is modeled on pins these rather than exposing them per call, so Worker
// takes no settings argument of its own — Verbose only controls whether
// ICE/DTLS state transitions are logged.
type WorkerSettings struct {
	Verbose bool
}

// DefaultWorkerSettings matches the fixed, debug-verbosity configuration the
// original worker construction used.
var DefaultWorkerSettings = WorkerSettings{Verbose: true}

// Worker owns the pion API instance (codecs + interceptors) that every
// Router built from it shares, standing in for a mediasoup native worker
// process.
type Worker struct {
	settings WorkerSettings
	api      *webrtc.API
	settingE webrtc.SettingEngine
}

// NewWorker constructs a worker with the fixed media-engine/interceptor
// stack. Fails only if codec or interceptor registration fails, matching
// the "worker creation can fail" contract.
func NewWorker(settings WorkerSettings, bindIP net.IP) (*Worker, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := RegisterCodecs(mediaEngine); err != nil {
		return nil, fmt.Errorf("engine: failed to create worker: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("engine: failed to create worker: %w", err)
	}

	var se webrtc.SettingEngine
	se.SetLite(true) // server-side transports behave as an ICE-lite agent, like a mediasoup WebRtcTransport
	if bindIP != nil {
		se.SetNAT1To1IPs([]string{bindIP.String()}, webrtc.ICECandidateTypeHost)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	)

	return &Worker{settings: settings, api: api, settingE: se}, nil
}

// RegisterCodecs installs the fixed codec capability list: Opus with
// in-band FEC and transport-cc, plus VP8/VP9/H265 with the NACK/PLI/FIR/REMB
// feedback set.
func RegisterCodecs(m *webrtc.MediaEngine) error {
	videoFeedback := []webrtc.RTCPFeedback{
		{Type: webrtc.TypeRTCPFBNACK},
		{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
		{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
		{Type: "goog-remb"},
		{Type: webrtc.TypeRTCPFBTransportCC},
	}

	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "useinbandfec=1",
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: webrtc.TypeRTCPFBTransportCC},
			},
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return err
	}

	videoCodecs := []struct {
		mime string
		pt   webrtc.PayloadType
	}{
		{webrtc.MimeTypeVP8, 96},
		{webrtc.MimeTypeVP9, 98},
		{webrtc.MimeTypeH265, 100},
	}
	for _, vc := range videoCodecs {
		if err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     vc.mime,
				ClockRate:    90000,
				RTCPFeedback: videoFeedback,
			},
			PayloadType: vc.pt,
		}, webrtc.RTPCodecTypeVideo); err != nil {
			return err
		}
	}
	return nil
}

// RTPCapabilities is the router's finalized, negotiable codec set, sent to
// clients verbatim in Init.
type RTPCapabilities struct {
	Codecs []webrtc.RTPCodecParameters `json:"codecs"`
}

// Router routes RTP between transports created against it, standing in for
// a mediasoup Router bound to one voice channel.
type Router struct {
	worker       *Worker
	capabilities RTPCapabilities
}

// NewRouter builds a router against worker's fixed codec set.
func NewRouter(worker *Worker) (*Router, error) {
	codecs := worker.api.MediaEngine().GetCodecsByKind(webrtc.RTPCodecTypeAudio)
	codecs = append(codecs, worker.api.MediaEngine().GetCodecsByKind(webrtc.RTPCodecTypeVideo)...)
	return &Router{worker: worker, capabilities: RTPCapabilities{Codecs: codecs}}, nil
}

// Capabilities returns the router's finalized RTP capabilities.
func (r *Router) Capabilities() RTPCapabilities {
	return r.capabilities
}

// TransportOptions is the opaque, engine-native payload forwarded verbatim
// to the client so it can configure its own ICE/DTLS stack against ours.
type TransportOptions struct {
	ID             string                `json:"id"`
	ICECandidates  []webrtc.ICECandidate `json:"iceCandidates"`
	ICEParameters  webrtc.ICEParameters  `json:"iceParameters"`
	DTLSParameters webrtc.DTLSParameters `json:"dtlsParameters"`
}

// Transport is one WebRTC-endpoint direction (producer-side or
// consumer-side) for a single peer, wrapping pion's ICEGatherer,
// ICETransport and DTLSTransport ORTC primitives.
type Transport struct {
	id       string
	router   *Router
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	mu        sync.Mutex
	connected bool
}

// NewTransport gathers ICE candidates through the router's worker and
// returns a Transport ready to hand its options to a client. Host
// candidates carry the address the worker was built with; bindIP and
// announcedIP are not consulted here. Listening is UDP-only, matching the
// single-listen-info contract.
func NewTransport(id string, router *Router, bindIP, announcedIP net.IP) (*Transport, error) {
	gatherer, err := router.worker.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("engine: failed to create transport: %w", err)
	}

	ice := router.worker.api.NewICETransport(gatherer)
	dtls, err := router.worker.api.NewDTLSTransport(ice, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to create transport: %w", err)
	}

	if router.worker.settings.Verbose {
		ice.OnConnectionStateChange(func(state webrtc.ICETransportState) {
			log.Printf("[vc] transport %s: ICE state %s", id, state)
		})
		dtls.OnStateChange(func(state webrtc.DTLSTransportState) {
			log.Printf("[vc] transport %s: DTLS state %s", id, state)
		})
	}

	gatherDone := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(gatherDone) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		return nil, fmt.Errorf("engine: failed to create transport: %w", err)
	}
	<-gatherDone

	return &Transport{id: id, router: router, gatherer: gatherer, ice: ice, dtls: dtls}, nil
}

// Options returns the payload sent to the client in Init.
func (t *Transport) Options() (TransportOptions, error) {
	candidates, err := t.gatherer.GetLocalCandidates()
	if err != nil {
		return TransportOptions{}, fmt.Errorf("engine: failed to read ICE candidates: %w", err)
	}
	iceParams, err := t.gatherer.GetLocalParameters()
	if err != nil {
		return TransportOptions{}, fmt.Errorf("engine: failed to read ICE parameters: %w", err)
	}
	dtlsParams, err := t.dtls.GetLocalParameters()
	if err != nil {
		return TransportOptions{}, fmt.Errorf("engine: failed to read DTLS parameters: %w", err)
	}

	out := make([]webrtc.ICECandidate, len(candidates))
	for i, c := range candidates {
		out[i] = *c
	}

	return TransportOptions{
		ID:             t.id,
		ICECandidates:  out,
		ICEParameters:  iceParams,
		DTLSParameters: dtlsParams,
	}, nil
}

// Connect starts ICE and DTLS against the client's declared DTLS
// parameters. The server acts as the ICE-controlled, DTLS-server side,
// mirroring a mediasoup WebRtcTransport.connect call.
func (t *Transport) Connect(remote webrtc.DTLSParameters) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}

	role := webrtc.ICERoleControlled
	if err := t.ice.Start(t.gatherer, webrtc.ICEParameters{}, &role); err != nil {
		return fmt.Errorf("engine: failed to connect transport: %w", err)
	}
	if err := t.dtls.Start(remote); err != nil {
		return fmt.Errorf("engine: failed to connect transport: %w", err)
	}
	t.connected = true
	return nil
}

// RTPParameters is the opaque, per-producer/consumer negotiated parameter
// set forwarded verbatim on the wire. The core treats it as opaque payload;
// only this package interprets it when talking to the underlying receiver
// or sender.
type RTPParameters struct {
	Codecs []webrtc.RTPCodecParameters `json:"codecs"`
	SSRC   uint32                      `json:"ssrc,omitempty"`
}

// Producer is a server-side handle for one inbound media stream from a
// client, wrapping an RTPReceiver bound to that client's producer
// transport.
type Producer struct {
	ID       string
	Kind     Kind
	receiver *webrtc.RTPReceiver

	closeOnce sync.Once
}

// Produce creates a receiver on transport for the declared kind/parameters
// and starts receiving. The minted ID is opaque, matching the
// engine-assigns-producer-ids contract.
func Produce(id string, transport *Transport, kind Kind, params RTPParameters) (*Producer, error) {
	receiver, err := transport.router.worker.api.NewRTPReceiver(kind.rtpCodecType(), transport.dtls)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to create producer: %w", err)
	}
	decoding := webrtc.RTPDecodingParameters{}
	if params.SSRC != 0 {
		decoding.SSRC = webrtc.SSRC(params.SSRC)
	}
	if err := receiver.Receive(webrtc.RTPReceiveParameters{Encodings: []webrtc.RTPDecodingParameters{decoding}}); err != nil {
		return nil, fmt.Errorf("engine: failed to create producer: %w", err)
	}
	return &Producer{ID: id, Kind: kind, receiver: receiver}, nil
}

// ProducerID satisfies vc.Producer so the roster can hold *Producer values
// without importing this package's webrtc-shaped internals.
func (p *Producer) ProducerID() string { return p.ID }

// Close releases the receiver's native resources. Safe to call more than
// once.
func (p *Producer) Close() error {
	var err error
	p.closeOnce.Do(func() { err = p.receiver.Stop() })
	return err
}

// Consumer is a server-side handle for one outbound media stream to a
// client, wrapping an RTPSender bound to that client's consumer transport.
type Consumer struct {
	ID         string
	ProducerID string
	Kind       Kind
	sender     *webrtc.RTPSender
	track      *webrtc.TrackLocalStaticRTP

	closeOnce sync.Once
}

// Consume creates a sender on transport for the given producer, starting
// paused (mirroring the consumer-starts-paused contract) until Resume is
// called.
func Consume(id string, transport *Transport, producer *Producer, params RTPParameters) (*Consumer, error) {
	mime := webrtc.MimeTypeOpus
	if producer.Kind == KindVideo {
		mime = webrtc.MimeTypeVP8
	}
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mime}, producer.ID, id)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to create consumer: %w", err)
	}

	sender, err := transport.router.worker.api.NewRTPSender(track, transport.dtls)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to create consumer: %w", err)
	}

	return &Consumer{ID: id, ProducerID: producer.ID, Kind: producer.Kind, sender: sender, track: track}, nil
}

// Resume starts the sender, mirroring mediasoup's consumer.resume().
func (c *Consumer) Resume() error {
	params := c.sender.GetParameters()
	if err := c.sender.Send(params); err != nil {
		return fmt.Errorf("engine: failed to resume consumer: %w", err)
	}
	return nil
}

// Close releases the sender's native resources. Safe to call more than
// once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.sender.Stop() })
	return err
}
