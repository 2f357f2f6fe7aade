package webrtc

import (
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"

	"rtsview/internal/core/domain"
	"rtsview/pkg/optimize"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// MediaSink receives the RTP packets of every projected track. pkt and its
// payload are only valid for the duration of the call.
type MediaSink interface {
	WriteRTP(mid string, kind domain.MediaType, pkt *rtp.Packet) error
}

// MidCounters is the traffic seen on one mid.
type MidCounters struct {
	Packets uint64
	Bytes   uint64
}

// CountingSink discards media and keeps per-mid counters. It serves
// headless viewers that only observe the session.
type CountingSink struct {
	mu       sync.Mutex
	counters map[string]MidCounters
}

func NewCountingSink() *CountingSink {
	return &CountingSink{counters: make(map[string]MidCounters)}
}

func (s *CountingSink) WriteRTP(mid string, kind domain.MediaType, pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[mid]
	c.Packets++
	c.Bytes += uint64(len(pkt.Payload))
	s.counters[mid] = c
	return nil
}

func (s *CountingSink) Counters(mid string) MidCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[mid]
}

type remoteVideoTrack struct {
	track *webrtc.TrackRemote
}

func (t *remoteVideoTrack) ID() string { return t.track.ID() }

// remoteAudioTrack starts disabled; the core enables it when the source is
// projected for audio.
type remoteAudioTrack struct {
	track   *webrtc.TrackRemote
	enabled atomic.Bool
	volume  atomic.Uint64
}

func newRemoteAudioTrack(track *webrtc.TrackRemote) *remoteAudioTrack {
	t := &remoteAudioTrack{track: track}
	t.volume.Store(math.Float64bits(1))
	return t
}

func (t *remoteAudioTrack) ID() string { return t.track.ID() }

func (t *remoteAudioTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *remoteAudioTrack) SetVolume(volume float64) {
	t.volume.Store(math.Float64bits(math.Max(0, math.Min(1, volume))))
}

func (t *remoteAudioTrack) Enabled() bool   { return t.enabled.Load() }
func (t *remoteAudioTrack) Volume() float64 { return math.Float64frombits(t.volume.Load()) }

// drain reads a remote track until it ends and forwards admitted packets.
// Audio is forwarded only while enabled with a non-zero volume; video waits
// on the keyframe gate.
var readBuffers = optimize.NewBytePool(optimize.PacketBufferSize)

func drain(track *webrtc.TrackRemote, mid string, audio *remoteAudioTrack, gate *KeyframeGate, sink MediaSink, logger *zap.SugaredLogger) {
	kind := domain.MediaVideo
	if audio != nil {
		kind = domain.MediaAudio
	}
	mime := track.Codec().MimeType

	buf := readBuffers.Get()
	defer readBuffers.Put(buf)
	pkt := &rtp.Packet{}

	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debugw("remote track ended", "mid", mid, "error", err)
			}
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			logger.Debugw("dropping malformed RTP packet", "mid", mid, "error", err)
			continue
		}

		if audio != nil {
			if !audio.Enabled() || audio.Volume() == 0 {
				continue
			}
		} else if !gate.Admit(mid, mime, pkt) {
			continue
		}

		if err := sink.WriteRTP(mid, kind, pkt); err != nil {
			logger.Warnw("error writing RTP packet to sink", "mid", mid, "error", err)
		}
	}
}
