package state

import (
	"rtsview/internal/core/domain"

	"github.com/google/uuid"
)

// SubscriptionState is the payload of the Subscribed state. Values handed out
// by the Machine are never mutated; every change is applied to a clone.
type SubscriptionState struct {
	builders     []*SourceBuilder
	viewerCount  int
	stats        *domain.StreamingStatistics
	requireAudio bool
}

func NewSubscriptionState(requireAudio bool) *SubscriptionState {
	return &SubscriptionState{requireAudio: requireAudio}
}

func (s *SubscriptionState) clone() *SubscriptionState {
	c := &SubscriptionState{
		builders:     make([]*SourceBuilder, len(s.builders)),
		viewerCount:  s.viewerCount,
		stats:        s.stats,
		requireAudio: s.requireAudio,
	}
	for i, b := range s.builders {
		c.builders[i] = b.clone()
	}
	return c
}

func (s *SubscriptionState) ViewerCount() int { return s.viewerCount }

func (s *SubscriptionState) BuilderCount() int { return len(s.builders) }

// Stats returns the last normalized statistics report, if any.
func (s *SubscriptionState) Stats() (domain.StreamingStatistics, bool) {
	if s.stats == nil {
		return domain.StreamingStatistics{}, false
	}
	return *s.stats, true
}

// Sources returns the sources whose builders are complete, in activation order.
func (s *SubscriptionState) Sources() []domain.StreamSource {
	sources := make([]domain.StreamSource, 0, len(s.builders))
	for _, b := range s.builders {
		src, err := b.Build()
		if err != nil {
			continue
		}
		sources = append(sources, src)
	}
	return sources
}

// Builder returns a copy of the builder with the given stable id.
func (s *SubscriptionState) Builder(id uuid.UUID) (*SourceBuilder, bool) {
	for _, b := range s.builders {
		if b.id == id {
			return b.clone(), true
		}
	}
	return nil, false
}

// BuilderBySource returns a copy of the builder for sourceID.
func (s *SubscriptionState) BuilderBySource(sourceID domain.SourceID) (*SourceBuilder, bool) {
	for _, b := range s.builders {
		if b.sourceID == sourceID {
			return b.clone(), true
		}
	}
	return nil, false
}

// MissingMedia reports whether some builder still waits for a track of kind.
func (s *SubscriptionState) MissingMedia(kind domain.MediaType) bool {
	return s.waiting(kind) != nil
}

func (s *SubscriptionState) waiting(kind domain.MediaType) *SourceBuilder {
	for _, b := range s.builders {
		if kind == domain.MediaVideo && b.HasMissingVideoTrack() {
			return b
		}
		if kind == domain.MediaAudio && b.HasMissingAudioTrack() {
			return b
		}
	}
	return nil
}

func (s *SubscriptionState) hasMid(mid string) bool {
	for _, b := range s.builders {
		if b.hasVideoMid(mid) || b.hasAudioMid(mid) {
			return true
		}
	}
	return false
}

func (s *SubscriptionState) find(id uuid.UUID) *SourceBuilder {
	for _, b := range s.builders {
		if b.id == id {
			return b
		}
	}
	return nil
}

// add appends a builder for a newly active source. A live source with the
// same id is kept and the event is reported as not applied.
func (s *SubscriptionState) add(streamID string, sourceID domain.SourceID, tracks []domain.TrackItem) bool {
	for _, b := range s.builders {
		if b.sourceID == sourceID {
			return false
		}
	}
	s.builders = append(s.builders, NewSourceBuilder(streamID, sourceID, tracks, s.requireAudio))
	return true
}

func (s *SubscriptionState) remove(streamID string, sourceID domain.SourceID) bool {
	for i, b := range s.builders {
		if b.streamID == streamID && b.sourceID == sourceID {
			s.builders = append(s.builders[:i], s.builders[i+1:]...)
			return true
		}
	}
	return false
}

func (s *SubscriptionState) bindVideo(track domain.VideoTrack, mid string) bool {
	b := s.waiting(domain.MediaVideo)
	if b == nil {
		return false
	}
	return b.AddVideoTrack(track, mid)
}

func (s *SubscriptionState) bindAudio(track domain.AudioTrack, mid string) bool {
	b := s.waiting(domain.MediaAudio)
	if b == nil {
		return false
	}
	return b.AddAudioTrack(track, mid)
}

func (s *SubscriptionState) setQualities(mid string, list []domain.VideoQuality) bool {
	for _, b := range s.builders {
		if b.hasVideoMid(mid) {
			b.SetAvailableQualities(list)
			return true
		}
	}
	return false
}

func (s *SubscriptionState) setStats(stats domain.StreamingStatistics) {
	s.stats = &stats
	for _, b := range s.builders {
		var (
			src   = domain.SourceStatistics{RoundTripTime: stats.RoundTripTime}
			found bool
		)
		if b.videoTrack != nil {
			for i := range stats.Video {
				if stats.Video[i].Mid == b.videoTrack.Mid {
					v := stats.Video[i]
					src.Video = &v
					found = true
					break
				}
			}
		}
		for i := range stats.Audio {
			if b.hasAudioMid(stats.Audio[i].Mid) {
				a := stats.Audio[i]
				src.Audio = &a
				found = true
				break
			}
		}
		if found {
			b.SetStatistics(src)
		}
	}
}
