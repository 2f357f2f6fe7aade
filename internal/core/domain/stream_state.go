package domain

type StreamStateKind string

const (
	StreamLoading      StreamStateKind = "loading"
	StreamSubscribed   StreamStateKind = "subscribed"
	StreamStopped      StreamStateKind = "stopped"
	StreamDisconnected StreamStateKind = "disconnected"
	StreamErrored      StreamStateKind = "error"
)

// StreamState is the state published to the UI layer.
type StreamState struct {
	Kind        StreamStateKind `json:"kind"`
	Sources     []StreamSource  `json:"sources,omitempty"`
	ViewerCount int             `json:"viewer_count"`
	Err         *StreamError    `json:"error,omitempty"`
}

func LoadingState() StreamState      { return StreamState{Kind: StreamLoading} }
func StoppedState() StreamState      { return StreamState{Kind: StreamStopped} }
func DisconnectedState() StreamState { return StreamState{Kind: StreamDisconnected} }

func SubscribedStreamState(sources []StreamSource, viewerCount int) StreamState {
	return StreamState{Kind: StreamSubscribed, Sources: sources, ViewerCount: viewerCount}
}

func ErrorStreamState(err *StreamError) StreamState {
	return StreamState{Kind: StreamErrored, Err: err}
}

// Source looks up a visible source by its id.
func (s StreamState) Source(id string) (StreamSource, bool) {
	for _, src := range s.Sources {
		if src.ID.String() == id || string(src.SourceID) == id {
			return src, true
		}
	}
	return StreamSource{}, false
}

// Equal is used to suppress duplicate publications. Statistics only compare
// by mid and received bytes.
func (s StreamState) Equal(other StreamState) bool {
	if s.Kind != other.Kind || s.ViewerCount != other.ViewerCount || !s.Err.Equal(other.Err) {
		return false
	}
	if len(s.Sources) != len(other.Sources) {
		return false
	}
	for i := range s.Sources {
		if !s.Sources[i].sameView(other.Sources[i]) {
			return false
		}
	}
	return true
}

func (s StreamSource) sameView(o StreamSource) bool {
	if s.ID != o.ID || s.IsPlayingAudio != o.IsPlayingAudio || s.IsPlayingVideo != o.IsPlayingVideo {
		return false
	}
	if !s.SelectedQuality.Equal(o.SelectedQuality) || len(s.AvailableQualities) != len(o.AvailableQualities) {
		return false
	}
	for i := range s.AvailableQualities {
		if !s.AvailableQualities[i].Equal(o.AvailableQualities[i]) {
			return false
		}
	}
	if len(s.AudioTracks) != len(o.AudioTracks) || (s.VideoTrack == nil) != (o.VideoTrack == nil) {
		return false
	}
	if s.VideoTrack != nil && s.VideoTrack.Mid != o.VideoTrack.Mid {
		return false
	}
	return statsMid(s.Stats) == statsMid(o.Stats) && statsBytes(s.Stats) == statsBytes(o.Stats)
}

func statsMid(s *SourceStatistics) string {
	if s == nil || s.Video == nil {
		return ""
	}
	return s.Video.Mid
}

func statsBytes(s *SourceStatistics) uint64 {
	if s == nil {
		return 0
	}
	var n uint64
	if s.Video != nil {
		n += s.Video.BytesReceived
	}
	if s.Audio != nil {
		n += s.Audio.BytesReceived
	}
	return n
}
