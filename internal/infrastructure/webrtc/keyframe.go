package webrtc

import (
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// KeyframeGate holds back video on a mid after a projection change until a
// keyframe arrives, so the sink never starts decoding mid-GOP.
type KeyframeGate struct {
	mu      sync.Mutex
	waiting map[string]bool
}

func NewKeyframeGate() *KeyframeGate {
	return &KeyframeGate{waiting: make(map[string]bool)}
}

// Await starts holding back packets for mid.
func (g *KeyframeGate) Await(mid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.waiting[mid] = true
}

// Admit reports whether pkt may be forwarded on mid, opening the gate on the
// first keyframe.
func (g *KeyframeGate) Admit(mid, mimeType string, pkt *rtp.Packet) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.waiting[mid] {
		return true
	}
	if !isKeyframe(mimeType, pkt) {
		return false
	}
	delete(g.waiting, mid)
	return true
}

func (g *KeyframeGate) Waiting(mid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting[mid]
}

// isKeyframe detects VP8 and H.264 keyframes from the start of the payload.
// Other codecs are always admitted.
func isKeyframe(mimeType string, packet *rtp.Packet) bool {
	payload := packet.Payload
	if len(payload) == 0 {
		return false
	}

	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		// The P bit of the frame header is zero for keyframes.
		header, ok := vp8FrameHeader(payload)
		return ok && header&0x01 == 0
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		return isH264Keyframe(payload)
	default:
		return true
	}
}

// isH264Keyframe matches an IDR slice, or a STAP-A or FU-A start carrying one.
func isH264Keyframe(payload []byte) bool {
	switch nal := payload[0] & 0x1F; nal {
	case 5:
		return true
	case 24:
		return len(payload) > 3 && payload[3]&0x1F == 5
	case 28:
		return len(payload) > 1 && payload[1]&0x80 != 0 && payload[1]&0x1F == 5
	}
	return false
}

// vp8FrameHeader returns the first byte of the VP8 frame when payload looks
// like the start of a VP8 partition.
func vp8FrameHeader(payload []byte) (byte, bool) {
	first := payload[0]
	// S bit set and partition index zero marks the start of a frame.
	if first&0x10 == 0 || first&0x07 != 0 {
		return 0, false
	}

	i := 1
	if first&0x80 != 0 {
		if len(payload) <= i {
			return 0, false
		}
		ext := payload[i]
		i++
		if ext&0x80 != 0 {
			if len(payload) <= i {
				return 0, false
			}
			if payload[i]&0x80 != 0 {
				i++
			}
			i++
		}
		if ext&0x40 != 0 {
			i++
		}
		if ext&0x30 != 0 {
			i++
		}
	}
	if len(payload) <= i {
		return 0, false
	}
	return payload[i], true
}
