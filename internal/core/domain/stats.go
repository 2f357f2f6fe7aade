package domain

import "fmt"

// StatsEntryType mirrors the WebRTC stats object types the core reads.
type StatsEntryType string

const (
	StatsInboundRTP       StatsEntryType = "inbound-rtp"
	StatsRemoteInboundRTP StatsEntryType = "remote-inbound-rtp"
	StatsCodec            StatsEntryType = "codec"
)

// StatsReport is the raw report a transport delivers.
type StatsReport struct {
	Entries []StatsEntry
}

// StatsEntry is one flattened WebRTC stats object. Only the fields relevant
// to its Type are populated.
type StatsEntry struct {
	Type      StatsEntryType
	ID        string
	Timestamp float64

	// inbound-rtp
	Kind                  string
	Mid                   string
	CodecID               string
	DecoderImplementation string
	FrameWidth            int
	FrameHeight           int
	FramesPerSecond       float64
	FramesReceived        int
	FramesDecoded         int
	AudioLevel            float64
	TotalAudioEnergy      float64
	TotalSamplesDuration  float64
	NackCount             int
	BytesReceived         uint64
	PacketsReceived       uint64
	PacketsLost           int64
	Jitter                float64

	// remote-inbound-rtp
	RoundTripTime float64

	// codec
	MimeType string
}

// InboundRTPStats is the per-track subset the UI consumes.
type InboundRTPStats struct {
	SID             string  `json:"sid"`
	Kind            string  `json:"kind"`
	Mid             string  `json:"mid"`
	Decoder         string  `json:"decoder,omitempty"`
	FrameWidth      int     `json:"frame_width"`
	FrameHeight     int     `json:"frame_height"`
	FPS             int     `json:"fps"`
	AudioLevel      int     `json:"audio_level"`
	TotalEnergy     float64 `json:"total_energy"`
	FramesReceived  int     `json:"frames_received"`
	FramesDecoded   int     `json:"frames_decoded"`
	NackCount       int     `json:"nack_count"`
	BytesReceived   uint64  `json:"bytes_received"`
	SampleDuration  float64 `json:"total_sample_duration"`
	CodecID         string  `json:"codec_id,omitempty"`
	CodecName       string  `json:"codec_name,omitempty"`
	Jitter          float64 `json:"jitter"`
	PacketsReceived uint64  `json:"packets_received"`
	PacketsLost     int64   `json:"packets_lost"`
	Timestamp       float64 `json:"timestamp"`
}

func (s InboundRTPStats) VideoResolution() string {
	return fmt.Sprintf("%d x %d", s.FrameWidth, s.FrameHeight)
}

// StreamingStatistics is a normalized report for the whole session.
type StreamingStatistics struct {
	RoundTripTime *float64          `json:"round_trip_time,omitempty"`
	Video         []InboundRTPStats `json:"video"`
	Audio         []InboundRTPStats `json:"audio"`
}

// SourceStatistics is the slice of a report that belongs to one source.
type SourceStatistics struct {
	RoundTripTime *float64         `json:"round_trip_time,omitempty"`
	Audio         *InboundRTPStats `json:"audio,omitempty"`
	Video         *InboundRTPStats `json:"video,omitempty"`
}

// NormalizeStats converts a raw report. It returns false when the report has
// no inbound or remote-inbound entries.
func NormalizeStats(report StatsReport) (StreamingStatistics, bool) {
	var (
		stats       StreamingStatistics
		haveRemote  bool
		haveInbound bool
		codecs      = make(map[string]string)
	)

	for _, e := range report.Entries {
		switch e.Type {
		case StatsCodec:
			codecs[e.ID] = e.MimeType
		case StatsRemoteInboundRTP:
			if !haveRemote {
				rtt := e.RoundTripTime
				stats.RoundTripTime = &rtt
			}
			haveRemote = true
		case StatsInboundRTP:
			haveInbound = true
		}
	}
	if !haveRemote || !haveInbound {
		return StreamingStatistics{}, false
	}

	for _, e := range report.Entries {
		if e.Type != StatsInboundRTP {
			continue
		}
		in := InboundRTPStats{
			SID:             e.ID,
			Kind:            e.Kind,
			Mid:             e.Mid,
			Decoder:         e.DecoderImplementation,
			FrameWidth:      e.FrameWidth,
			FrameHeight:     e.FrameHeight,
			FPS:             int(e.FramesPerSecond),
			AudioLevel:      int(e.AudioLevel),
			TotalEnergy:     e.TotalAudioEnergy,
			FramesReceived:  e.FramesReceived,
			FramesDecoded:   e.FramesDecoded,
			NackCount:       e.NackCount,
			BytesReceived:   e.BytesReceived,
			SampleDuration:  e.TotalSamplesDuration,
			CodecID:         e.CodecID,
			CodecName:       codecs[e.CodecID],
			Jitter:          e.Jitter,
			PacketsReceived: e.PacketsReceived,
			PacketsLost:     e.PacketsLost,
			Timestamp:       e.Timestamp,
		}
		switch MediaType(e.Kind) {
		case MediaVideo:
			stats.Video = append(stats.Video, in)
		case MediaAudio:
			stats.Audio = append(stats.Audio, in)
		}
	}

	return stats, true
}
