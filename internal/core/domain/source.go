package domain

import (
	"strings"

	"github.com/google/uuid"
)

type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// SourceID identifies a source inside a multi-source stream.
// The empty value is the main source, which the transport reports without an id.
type SourceID string

const MainSource SourceID = ""

func (id SourceID) IsMain() bool {
	return id == MainSource
}

func (id SourceID) String() string {
	if id.IsMain() {
		return "MAIN"
	}
	return string(id)
}

// StreamDetail identifies the stream a connection attempt targets.
type StreamDetail struct {
	StreamName string `json:"stream_name" yaml:"stream_name"`
	AccountID  string `json:"account_id" yaml:"account_id"`
}

func (d StreamDetail) Valid() bool {
	return d.StreamName != "" && d.AccountID != ""
}

// TrackItem is one track a source declares in its active event.
type TrackItem struct {
	TrackID   string    `json:"track_id"`
	MediaType MediaType `json:"media_type"`
}

// ParseTrackItem parses a "<mediaType>/<trackId>" descriptor.
func ParseTrackItem(descriptor string) (TrackItem, bool) {
	parts := strings.Split(descriptor, "/")
	if len(parts) != 2 || parts[1] == "" {
		return TrackItem{}, false
	}

	mediaType := MediaType(strings.ToLower(parts[0]))
	if mediaType != MediaAudio && mediaType != MediaVideo {
		return TrackItem{}, false
	}

	return TrackItem{TrackID: parts[1], MediaType: mediaType}, true
}

// ParseTrackItems parses descriptors and drops the invalid ones.
func ParseTrackItems(descriptors []string) []TrackItem {
	items := make([]TrackItem, 0, len(descriptors))
	for _, d := range descriptors {
		if item, ok := ParseTrackItem(d); ok {
			items = append(items, item)
		}
	}
	return items
}

// TrackInfo describes a negotiated remote track.
type TrackInfo struct {
	Mid       string    `json:"mid"`
	TrackID   string    `json:"track_id"`
	MediaType MediaType `json:"media_type"`
}

type VideoTrackInfo struct {
	TrackInfo
	Track VideoTrack `json:"-"`
}

type AudioTrackInfo struct {
	TrackInfo
	Track AudioTrack `json:"-"`
}

// StreamSource is an immutable snapshot of a fully built source.
type StreamSource struct {
	ID                 uuid.UUID         `json:"id"`
	StreamID           string            `json:"stream_id"`
	SourceID           SourceID          `json:"source_id"`
	AvailableQualities []VideoQuality    `json:"available_qualities"`
	SelectedQuality    VideoQuality      `json:"selected_quality"`
	IsPlayingAudio     bool              `json:"is_playing_audio"`
	IsPlayingVideo     bool              `json:"is_playing_video"`
	AudioTracks        []AudioTrackInfo  `json:"audio_tracks"`
	VideoTrack         *VideoTrackInfo   `json:"video_track,omitempty"`
	Stats              *SourceStatistics `json:"stats,omitempty"`
}

// HasQuality reports whether q is currently offered by the source.
func (s StreamSource) HasQuality(q VideoQuality) bool {
	_, ok := s.Quality(q.Tag)
	return ok
}

// Quality returns the available quality with the given tag, including its layer.
func (s StreamSource) Quality(tag QualityTag) (VideoQuality, bool) {
	for _, q := range s.AvailableQualities {
		if q.Tag == tag {
			return q, true
		}
	}
	return VideoQuality{}, false
}

// VideoTrackKey returns the key renderers are registered under.
func (s StreamSource) VideoTrackKey() (string, bool) {
	if s.VideoTrack == nil {
		return "", false
	}
	if s.VideoTrack.Track != nil {
		return s.VideoTrack.Track.ID(), true
	}
	return s.VideoTrack.Mid, true
}
