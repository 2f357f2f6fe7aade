package webrtc

import (
	"testing"

	"rtsview/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertStats(t *testing.T) {
	report := webrtc.StatsReport{
		"in-v": webrtc.InboundRTPStreamStats{
			ID: "in-v", Kind: "video", SSRC: 1111, CodecID: "c-vp8",
			BytesReceived: 4096, PacketsReceived: 10, PacketsLost: 1, NACKCount: 2, Jitter: 0.01,
		},
		"in-a": webrtc.InboundRTPStreamStats{ID: "in-a", Kind: "audio", SSRC: 2222, CodecID: "c-opus"},
		"rin":  webrtc.RemoteInboundRTPStreamStats{ID: "rin", Kind: "video", RoundTripTime: 0.045},
		"c-vp8": webrtc.CodecStats{ID: "c-vp8", MimeType: webrtc.MimeTypeVP8},
		"c-opus": webrtc.CodecStats{ID: "c-opus", MimeType: webrtc.MimeTypeOpus},
		"pc":     webrtc.PeerConnectionStats{ID: "pc"},
	}
	mids := map[webrtc.SSRC]string{1111: "0", 2222: "1"}

	converted := convertStats(report, mids)
	require.Len(t, converted.Entries, 5)

	stats, ok := domain.NormalizeStats(converted)
	require.True(t, ok)
	require.NotNil(t, stats.RoundTripTime)
	assert.InDelta(t, 0.045, *stats.RoundTripTime, 1e-9)

	require.Len(t, stats.Video, 1)
	assert.Equal(t, "0", stats.Video[0].Mid)
	assert.Equal(t, webrtc.MimeTypeVP8, stats.Video[0].CodecName)
	assert.Equal(t, uint64(4096), stats.Video[0].BytesReceived)
	assert.Equal(t, 2, stats.Video[0].NackCount)

	require.Len(t, stats.Audio, 1)
	assert.Equal(t, "1", stats.Audio[0].Mid)
	assert.Equal(t, webrtc.MimeTypeOpus, stats.Audio[0].CodecName)
}

func TestConvertStatsWithoutInbound(t *testing.T) {
	report := webrtc.StatsReport{"c": webrtc.CodecStats{ID: "c", MimeType: webrtc.MimeTypeOpus}}

	_, ok := domain.NormalizeStats(convertStats(report, nil))
	assert.False(t, ok)
}
