package engine

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestRegisterCodecsCoversFixedSet(t *testing.T) {
	m := &webrtc.MediaEngine{}
	require.NoError(t, RegisterCodecs(m))

	audio := m.GetCodecsByKind(webrtc.RTPCodecTypeAudio)
	require.Len(t, audio, 1)
	require.Equal(t, webrtc.MimeTypeOpus, audio[0].MimeType)
	require.Equal(t, uint32(48000), audio[0].ClockRate)
	require.Equal(t, uint16(2), audio[0].Channels)

	video := m.GetCodecsByKind(webrtc.RTPCodecTypeVideo)
	require.Len(t, video, 3)
	mimes := make([]string, len(video))
	for i, c := range video {
		mimes[i] = c.MimeType
		require.Equal(t, uint32(90000), c.ClockRate)
	}
	require.ElementsMatch(t, []string{webrtc.MimeTypeVP8, webrtc.MimeTypeVP9, webrtc.MimeTypeH265}, mimes)
}

func TestKindRTPCodecType(t *testing.T) {
	require.Equal(t, webrtc.RTPCodecTypeAudio, KindAudio.rtpCodecType())
	require.Equal(t, webrtc.RTPCodecTypeVideo, KindVideo.rtpCodecType())
}

func TestNewWorkerSucceeds(t *testing.T) {
	w, err := NewWorker(DefaultWorkerSettings, nil)
	require.NoError(t, err)
	require.NotNil(t, w.api)
}

func TestNewRouterCollectsWorkerCodecs(t *testing.T) {
	w, err := NewWorker(DefaultWorkerSettings, nil)
	require.NoError(t, err)

	r, err := NewRouter(w)
	require.NoError(t, err)
	require.Len(t, r.Capabilities().Codecs, 4)
}
