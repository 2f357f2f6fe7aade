package signal

import (
	"encoding/json"
	"fmt"
	"strings"

	"rtsview/internal/core/domain"
)

// Message types of the viewer signaling protocol.
const (
	TypeCommand  = "cmd"
	TypeResponse = "response"
	TypeError    = "error"
	TypeEvent    = "event"
)

// Commands sent by the viewer.
const (
	CmdView      = "view"
	CmdProject   = "project"
	CmdUnproject = "unproject"
	CmdUpdateSDP = "updateSDP"
)

// Events pushed by the server.
const (
	EventActive      = "active"
	EventInactive    = "inactive"
	EventStopped     = "stopped"
	EventLayers      = "layers"
	EventViewerCount = "viewercount"
)

// DefaultEvents is the event subscription sent with the view command.
var DefaultEvents = []string{EventActive, EventInactive, EventStopped, EventLayers, EventViewerCount}

type Message struct {
	Type    string          `json:"type"`
	Name    string          `json:"name,omitempty"`
	TransID uint64          `json:"transId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ViewRequest struct {
	StreamID           string   `json:"streamId"`
	SDP                string   `json:"sdp"`
	Events             []string `json:"events"`
	ForcePlayoutDelay  bool     `json:"forcePlayoutDelay,omitempty"`
	JitterMinimumDelay int64    `json:"jitterMinimumDelayMs,omitempty"`
}

type SDPResponse struct {
	SDP          string `json:"sdp"`
	SubscriberID string `json:"subscriberId,omitempty"`
}

type UpdateSDPRequest struct {
	SDP string `json:"sdp"`
}

type Layer struct {
	EncodingID         string `json:"encodingId,omitempty"`
	SpatialLayerID     int    `json:"spatialLayerId"`
	TemporalLayerID    int    `json:"temporalLayerId"`
	MaxSpatialLayerID  int    `json:"maxSpatialLayerId,omitempty"`
	MaxTemporalLayerID int    `json:"maxTemporalLayerId,omitempty"`
}

type Mapping struct {
	TrackID string `json:"trackId"`
	Mid     string `json:"mid"`
	Media   string `json:"media"`
	Layer   *Layer `json:"layer,omitempty"`
}

type ProjectRequest struct {
	SourceID *string   `json:"sourceId"`
	Mapping  []Mapping `json:"mapping"`
}

type UnprojectRequest struct {
	MediaIDs []string `json:"mediaIds"`
}

// NewProjectRequest converts projection data to the wire mapping. The main
// source is sent as a null source id.
func NewProjectRequest(sourceID domain.SourceID, data []domain.ProjectionData) ProjectRequest {
	req := ProjectRequest{Mapping: make([]Mapping, 0, len(data))}
	if !sourceID.IsMain() {
		id := string(sourceID)
		req.SourceID = &id
	}
	for _, d := range data {
		m := Mapping{TrackID: d.TrackID, Mid: d.Mid, Media: string(d.Media)}
		if d.Layer != nil {
			m.Layer = &Layer{
				EncodingID:         d.Layer.EncodingID,
				SpatialLayerID:     d.Layer.SpatialLayerID,
				TemporalLayerID:    d.Layer.TemporalLayerID,
				MaxSpatialLayerID:  d.Layer.MaxSpatialLayerID,
				MaxTemporalLayerID: d.Layer.MaxTemporalLayerID,
			}
		}
		req.Mapping = append(req.Mapping, m)
	}
	return req
}

type TrackDescriptor struct {
	Media   string `json:"media"`
	TrackID string `json:"trackId"`
}

type ActivePayload struct {
	StreamID string            `json:"streamId"`
	SourceID *string           `json:"sourceId"`
	Tracks   []TrackDescriptor `json:"tracks"`
}

// Descriptors renders the tracks as "<media>/<trackId>" strings.
func (p ActivePayload) Descriptors() []string {
	out := make([]string, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		out = append(out, fmt.Sprintf("%s/%s", strings.ToLower(t.Media), t.TrackID))
	}
	return out
}

type InactivePayload struct {
	StreamID string  `json:"streamId"`
	SourceID *string `json:"sourceId"`
}

func sourceOf(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func (p ActivePayload) Source() string   { return sourceOf(p.SourceID) }
func (p InactivePayload) Source() string { return sourceOf(p.SourceID) }

type LayerInfo struct {
	SpatialLayerID  int `json:"spatialLayerId"`
	TemporalLayerID int `json:"temporalLayerId"`
	Bitrate         int `json:"bitrate"`
}

type EncodingInfo struct {
	ID      string      `json:"id"`
	Bitrate int         `json:"bitrate"`
	Layers  []LayerInfo `json:"layers"`
}

type MediaLayers struct {
	Active   []EncodingInfo `json:"active"`
	Inactive []EncodingInfo `json:"inactive"`
}

type LayersPayload struct {
	Medias map[string]MediaLayers `json:"medias"`
}

// FlattenLayers expands every encoding into one entry per spatial and
// temporal layer. An encoding without layer detail is a single base layer.
func FlattenLayers(encodings []EncodingInfo) []domain.LayerData {
	var out []domain.LayerData
	for _, enc := range encodings {
		if len(enc.Layers) == 0 {
			out = append(out, domain.LayerData{EncodingID: enc.ID, Bitrate: enc.Bitrate})
			continue
		}
		maxSpatial, maxTemporal := 0, 0
		for _, l := range enc.Layers {
			maxSpatial = max(maxSpatial, l.SpatialLayerID)
			maxTemporal = max(maxTemporal, l.TemporalLayerID)
		}
		for _, l := range enc.Layers {
			out = append(out, domain.LayerData{
				EncodingID:         enc.ID,
				SpatialLayerID:     l.SpatialLayerID,
				TemporalLayerID:    l.TemporalLayerID,
				MaxSpatialLayerID:  maxSpatial,
				MaxTemporalLayerID: maxTemporal,
				Bitrate:            l.Bitrate,
			})
		}
	}
	return out
}

type ViewerCountPayload struct {
	ViewerCount int `json:"viewercount"`
}
