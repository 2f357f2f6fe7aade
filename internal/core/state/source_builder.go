package state

import (
	"rtsview/internal/core/domain"

	"github.com/google/uuid"
)

// SourceBuilder accumulates one source out of unordered transport events.
// It is owned by a SubscriptionState and never shared outside the machine.
type SourceBuilder struct {
	id              uuid.UUID
	streamID        string
	sourceID        domain.SourceID
	supportedTracks []domain.TrackItem
	videoTrack      *domain.VideoTrackInfo
	audioTracks     []domain.AudioTrackInfo
	qualities       []domain.VideoQuality
	selectedQuality domain.VideoQuality
	playingAudio    bool
	playingVideo    bool
	stats           *domain.SourceStatistics
	requireAudio    bool
}

// NewSourceBuilder creates a builder for a source that became active.
// When requireAudio is false, missing audio tracks do not block Build.
func NewSourceBuilder(streamID string, sourceID domain.SourceID, tracks []domain.TrackItem, requireAudio bool) *SourceBuilder {
	supported := make([]domain.TrackItem, len(tracks))
	copy(supported, tracks)

	return &SourceBuilder{
		id:              uuid.New(),
		streamID:        streamID,
		sourceID:        sourceID,
		supportedTracks: supported,
		qualities:       []domain.VideoQuality{domain.AutoQuality},
		selectedQuality: domain.AutoQuality,
		requireAudio:    requireAudio,
	}
}

func (b *SourceBuilder) ID() uuid.UUID                        { return b.id }
func (b *SourceBuilder) StreamID() string                     { return b.streamID }
func (b *SourceBuilder) SourceID() domain.SourceID            { return b.sourceID }
func (b *SourceBuilder) IsPlayingAudio() bool                 { return b.playingAudio }
func (b *SourceBuilder) IsPlayingVideo() bool                 { return b.playingVideo }
func (b *SourceBuilder) SelectedQuality() domain.VideoQuality { return b.selectedQuality }

// SupportedTracks returns a copy of the declared track items.
func (b *SourceBuilder) SupportedTracks() []domain.TrackItem {
	out := make([]domain.TrackItem, len(b.supportedTracks))
	copy(out, b.supportedTracks)
	return out
}

func (b *SourceBuilder) declared(media domain.MediaType) []domain.TrackItem {
	var items []domain.TrackItem
	for _, t := range b.supportedTracks {
		if t.MediaType == media {
			items = append(items, t)
		}
	}
	return items
}

// HasMissingVideoTrack reports whether a declared video track is unbound.
func (b *SourceBuilder) HasMissingVideoTrack() bool {
	return len(b.declared(domain.MediaVideo)) > 0 && b.videoTrack == nil
}

// HasMissingAudioTrack reports whether any declared audio slot is unbound.
func (b *SourceBuilder) HasMissingAudioTrack() bool {
	return len(b.audioTracks) < len(b.declared(domain.MediaAudio))
}

func (b *SourceBuilder) hasVideoMid(mid string) bool {
	return b.videoTrack != nil && b.videoTrack.Mid == mid
}

func (b *SourceBuilder) hasAudioMid(mid string) bool {
	for _, a := range b.audioTracks {
		if a.Mid == mid {
			return true
		}
	}
	return false
}

// AddVideoTrack binds the video slot. It is a no-op when the source declares
// no video track or the slot is already bound.
func (b *SourceBuilder) AddVideoTrack(track domain.VideoTrack, mid string) bool {
	items := b.declared(domain.MediaVideo)
	if len(items) == 0 || b.videoTrack != nil {
		return false
	}

	b.videoTrack = &domain.VideoTrackInfo{
		TrackInfo: domain.TrackInfo{Mid: mid, TrackID: items[0].TrackID, MediaType: domain.MediaVideo},
		Track:     track,
	}
	return true
}

// AddAudioTrack binds the next free audio slot. It is a no-op when the
// source declares no audio or every slot is bound.
func (b *SourceBuilder) AddAudioTrack(track domain.AudioTrack, mid string) bool {
	items := b.declared(domain.MediaAudio)
	if len(items) == 0 || len(b.audioTracks) >= len(items) {
		return false
	}

	item := items[len(b.audioTracks)]
	b.audioTracks = append(b.audioTracks, domain.AudioTrackInfo{
		TrackInfo: domain.TrackInfo{Mid: mid, TrackID: item.TrackID, MediaType: domain.MediaAudio},
		Track:     track,
	})
	return true
}

// SetAvailableQualities replaces the quality list. While video plays the
// selection keeps naming what the transport projects until the orchestrator
// re-projects; otherwise a quality that is no longer offered falls back to
// auto.
func (b *SourceBuilder) SetAvailableQualities(list []domain.VideoQuality) {
	b.qualities = append([]domain.VideoQuality(nil), list...)
	if len(b.qualities) == 0 {
		b.qualities = []domain.VideoQuality{domain.AutoQuality}
	}
	if q, ok := b.quality(b.selectedQuality.Tag); ok {
		b.selectedQuality = q
	} else if !b.playingVideo {
		b.selectedQuality = domain.AutoQuality
	}
}

// SelectQuality records the projected quality, falling back to auto when it
// is not offered.
func (b *SourceBuilder) SelectQuality(q domain.VideoQuality) {
	if available, ok := b.quality(q.Tag); ok {
		b.selectedQuality = available
		return
	}
	b.selectedQuality = domain.AutoQuality
}

func (b *SourceBuilder) quality(tag domain.QualityTag) (domain.VideoQuality, bool) {
	for _, q := range b.qualities {
		if q.Tag == tag {
			return q, true
		}
	}
	return domain.VideoQuality{}, false
}

func (b *SourceBuilder) SetPlayingAudio(enabled bool) { b.playingAudio = enabled }
func (b *SourceBuilder) SetPlayingVideo(enabled bool) { b.playingVideo = enabled }

func (b *SourceBuilder) SetStatistics(stats domain.SourceStatistics) {
	b.stats = &stats
}

// Build returns an immutable snapshot, or ErrMissingVideoTrack /
// ErrMissingAudioTrack while required bindings are absent.
func (b *SourceBuilder) Build() (domain.StreamSource, error) {
	if b.requireAudio && b.HasMissingAudioTrack() {
		return domain.StreamSource{}, domain.ErrMissingAudioTrack
	}
	if b.HasMissingVideoTrack() {
		return domain.StreamSource{}, domain.ErrMissingVideoTrack
	}

	src := domain.StreamSource{
		ID:                 b.id,
		StreamID:           b.streamID,
		SourceID:           b.sourceID,
		AvailableQualities: append([]domain.VideoQuality(nil), b.qualities...),
		SelectedQuality:    b.selectedQuality,
		IsPlayingAudio:     b.playingAudio,
		IsPlayingVideo:     b.playingVideo,
		AudioTracks:        append([]domain.AudioTrackInfo(nil), b.audioTracks...),
	}
	if b.videoTrack != nil {
		v := *b.videoTrack
		src.VideoTrack = &v
	}
	if b.stats != nil {
		s := *b.stats
		src.Stats = &s
	}
	return src, nil
}

func (b *SourceBuilder) clone() *SourceBuilder {
	c := *b
	c.supportedTracks = append([]domain.TrackItem(nil), b.supportedTracks...)
	c.audioTracks = append([]domain.AudioTrackInfo(nil), b.audioTracks...)
	c.qualities = append([]domain.VideoQuality(nil), b.qualities...)
	if b.videoTrack != nil {
		v := *b.videoTrack
		c.videoTrack = &v
	}
	return &c
}
