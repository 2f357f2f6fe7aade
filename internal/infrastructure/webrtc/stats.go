package webrtc

import (
	"sort"

	"rtsview/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// convertStats flattens a pion stats report. Inbound streams are tagged with
// the mid their SSRC was received on.
func convertStats(report webrtc.StatsReport, mids map[webrtc.SSRC]string) domain.StatsReport {
	out := domain.StatsReport{Entries: make([]domain.StatsEntry, 0, len(report))}

	for _, s := range report {
		switch st := s.(type) {
		case webrtc.InboundRTPStreamStats:
			out.Entries = append(out.Entries, domain.StatsEntry{
				Type:            domain.StatsInboundRTP,
				ID:              st.ID,
				Timestamp:       float64(st.Timestamp),
				Kind:            st.Kind,
				Mid:             mids[st.SSRC],
				CodecID:         st.CodecID,
				NackCount:       int(st.NACKCount),
				BytesReceived:   st.BytesReceived,
				PacketsReceived: uint64(st.PacketsReceived),
				PacketsLost:     int64(st.PacketsLost),
				Jitter:          st.Jitter,
			})
		case webrtc.RemoteInboundRTPStreamStats:
			out.Entries = append(out.Entries, domain.StatsEntry{
				Type:          domain.StatsRemoteInboundRTP,
				ID:            st.ID,
				Timestamp:     float64(st.Timestamp),
				Kind:          st.Kind,
				RoundTripTime: st.RoundTripTime,
			})
		case webrtc.CodecStats:
			out.Entries = append(out.Entries, domain.StatsEntry{
				Type:      domain.StatsCodec,
				ID:        st.ID,
				Timestamp: float64(st.Timestamp),
				MimeType:  st.MimeType,
			})
		}
	}

	// Report maps iterate randomly; keep the output stable.
	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].ID < out.Entries[j].ID })
	return out
}
