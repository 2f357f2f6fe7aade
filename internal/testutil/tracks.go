package testutil

import "sync"

// VideoTrack is a stand-in for a transport video track.
type VideoTrack struct {
	TrackID string
}

func NewVideoTrack(id string) *VideoTrack { return &VideoTrack{TrackID: id} }

func (t *VideoTrack) ID() string { return t.TrackID }

// AudioTrack records the enable and volume calls made on it.
type AudioTrack struct {
	TrackID string

	mu      sync.Mutex
	enabled bool
	volume  float64
}

func NewAudioTrack(id string) *AudioTrack { return &AudioTrack{TrackID: id} }

func (t *AudioTrack) ID() string { return t.TrackID }

func (t *AudioTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *AudioTrack) SetVolume(volume float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volume = volume
}

func (t *AudioTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *AudioTrack) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}
