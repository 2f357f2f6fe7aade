package domain

// Event is a transport callback normalized by the subscription manager.
type Event interface {
	EventName() string
}

type (
	ConnectedEvent       struct{}
	DisconnectedEvent    struct{}
	SubscribedEvent      struct{}
	StoppedEvent         struct{}
	ConnectionErrorEvent struct {
		Status int
		Reason string
	}
	SubscribeErrorEvent struct {
		Reason string
	}
	SignalingErrorEvent struct {
		Message string
	}
	ActiveEvent struct {
		StreamID string
		SourceID SourceID
		Tracks   []TrackItem
	}
	InactiveEvent struct {
		StreamID string
		SourceID SourceID
	}
	VideoTrackEvent struct {
		Track VideoTrack
		Mid   string
	}
	AudioTrackEvent struct {
		Track AudioTrack
		Mid   string
	}
	LayersEvent struct {
		Mid            string
		ActiveLayers   []LayerData
		InactiveLayers []LayerData
	}
	StatsEvent struct {
		Stats StreamingStatistics
	}
	ViewerCountEvent struct {
		Count int
	}
)

func (ConnectedEvent) EventName() string       { return "connected" }
func (DisconnectedEvent) EventName() string    { return "disconnected" }
func (SubscribedEvent) EventName() string      { return "subscribed" }
func (StoppedEvent) EventName() string         { return "stopped" }
func (ConnectionErrorEvent) EventName() string { return "connection_error" }
func (SubscribeErrorEvent) EventName() string  { return "subscribe_error" }
func (SignalingErrorEvent) EventName() string  { return "signaling_error" }
func (ActiveEvent) EventName() string          { return "active" }
func (InactiveEvent) EventName() string        { return "inactive" }
func (VideoTrackEvent) EventName() string      { return "video_track" }
func (AudioTrackEvent) EventName() string      { return "audio_track" }
func (LayersEvent) EventName() string          { return "layers" }
func (StatsEvent) EventName() string           { return "stats" }
func (ViewerCountEvent) EventName() string     { return "viewer_count" }
