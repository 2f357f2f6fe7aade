package domain

// VideoTrack is the transport's handle for a received video track.
type VideoTrack interface {
	ID() string
}

// AudioTrack is the transport's handle for a received audio track.
type AudioTrack interface {
	ID() string
	SetEnabled(enabled bool)
	SetVolume(volume float64)
}

// ProjectionData asks the transport to deliver one track on a mid.
type ProjectionData struct {
	Media   MediaType  `json:"media"`
	Mid     string     `json:"mid"`
	TrackID string     `json:"trackId"`
	Layer   *LayerData `json:"layer,omitempty"`
}
