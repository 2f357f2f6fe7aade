package domain

import "fmt"

// QualityTag orders video qualities by fallback priority, Auto first.
type QualityTag int

const (
	QualityAuto QualityTag = iota
	QualityHigh
	QualityMedium
	QualityLow
)

func (t QualityTag) String() string {
	switch t {
	case QualityAuto:
		return "auto"
	case QualityHigh:
		return "high"
	case QualityMedium:
		return "medium"
	case QualityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParseQualityTag parses the names produced by QualityTag.String.
func ParseQualityTag(s string) (QualityTag, error) {
	switch s {
	case "", "auto":
		return QualityAuto, nil
	case "high":
		return QualityHigh, nil
	case "medium":
		return QualityMedium, nil
	case "low":
		return QualityLow, nil
	default:
		return QualityAuto, fmt.Errorf("unknown video quality %q", s)
	}
}

// LayerData is the simulcast layer selector the transport needs to
// re-request a quality.
type LayerData struct {
	EncodingID         string `json:"encoding_id"`
	SpatialLayerID     int    `json:"spatial_layer_id"`
	TemporalLayerID    int    `json:"temporal_layer_id"`
	MaxSpatialLayerID  int    `json:"max_spatial_layer_id"`
	MaxTemporalLayerID int    `json:"max_temporal_layer_id"`
	Bitrate            int    `json:"bitrate,omitempty"`
}

// IsBaseTemporalLayer reports whether the layer is a temporal base layer.
// 255 is used by codecs without temporal layering (H.264).
func (l LayerData) IsBaseTemporalLayer() bool {
	return l.TemporalLayerID == 0 || l.TemporalLayerID == 255
}

type VideoQuality struct {
	Tag   QualityTag `json:"tag"`
	Layer *LayerData `json:"layer,omitempty"`
}

var AutoQuality = VideoQuality{Tag: QualityAuto}

func HighQuality(l LayerData) VideoQuality   { return VideoQuality{Tag: QualityHigh, Layer: &l} }
func MediumQuality(l LayerData) VideoQuality { return VideoQuality{Tag: QualityMedium, Layer: &l} }
func LowQuality(l LayerData) VideoQuality    { return VideoQuality{Tag: QualityLow, Layer: &l} }

// Equal ignores the layer metadata.
func (q VideoQuality) Equal(other VideoQuality) bool {
	return q.Tag == other.Tag
}

// Outranks reports whether q comes before other in fallback priority.
func (q VideoQuality) Outranks(other VideoQuality) bool {
	return q.Tag < other.Tag
}

func (q VideoQuality) String() string {
	return q.Tag.String()
}

// DeriveQualities maps the active simulcast layers of a video track to the
// quality list offered to renderers.
func DeriveQualities(activeLayers []LayerData) []VideoQuality {
	base := make([]LayerData, 0, len(activeLayers))
	for _, l := range activeLayers {
		if l.IsBaseTemporalLayer() {
			base = append(base, l)
		}
	}

	switch len(base) {
	case 2:
		return []VideoQuality{AutoQuality, HighQuality(base[0]), LowQuality(base[1])}
	case 3:
		return []VideoQuality{AutoQuality, HighQuality(base[0]), MediumQuality(base[1]), LowQuality(base[2])}
	default:
		return []VideoQuality{AutoQuality}
	}
}
