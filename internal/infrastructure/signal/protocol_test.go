package signal

import (
	"encoding/json"
	"testing"

	"rtsview/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivePayload(t *testing.T) {
	raw := `{"streamId":"acc/live","sourceId":"cam1","tracks":[{"media":"video","trackId":"v0"},{"media":"Audio","trackId":"a0"}]}`

	var p ActivePayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	assert.Equal(t, "acc/live", p.StreamID)
	assert.Equal(t, "cam1", p.Source())
	assert.Equal(t, []string{"video/v0", "audio/a0"}, p.Descriptors())

	var main InactivePayload
	require.NoError(t, json.Unmarshal([]byte(`{"streamId":"acc/live","sourceId":null}`), &main))
	assert.Equal(t, "", main.Source())
}

func TestFlattenLayers(t *testing.T) {
	raw := `{"medias":{"0":{"active":[
		{"id":"h","bitrate":2500000,"layers":[
			{"spatialLayerId":0,"temporalLayerId":0,"bitrate":1200000},
			{"spatialLayerId":0,"temporalLayerId":1,"bitrate":2500000}]},
		{"id":"l","bitrate":300000}
	],"inactive":[]}}}`

	var p LayersPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	layers := FlattenLayers(p.Medias["0"].Active)
	require.Len(t, layers, 3)
	assert.Equal(t, domain.LayerData{EncodingID: "h", TemporalLayerID: 0, MaxTemporalLayerID: 1, Bitrate: 1200000}, layers[0])
	assert.Equal(t, 1, layers[1].TemporalLayerID)
	assert.Equal(t, domain.LayerData{EncodingID: "l", Bitrate: 300000}, layers[2])

	qualities := domain.DeriveQualities(layers)
	require.Len(t, qualities, 3)
	assert.Equal(t, "h", qualities[1].Layer.EncodingID)
	assert.Equal(t, "l", qualities[2].Layer.EncodingID)
}

func TestNewProjectRequest(t *testing.T) {
	layer := domain.LayerData{EncodingID: "m", SpatialLayerID: 1}
	data := []domain.ProjectionData{{Media: domain.MediaVideo, Mid: "0", TrackID: "v0", Layer: &layer}}

	req := NewProjectRequest("cam1", data)
	require.NotNil(t, req.SourceID)
	assert.Equal(t, "cam1", *req.SourceID)
	require.Len(t, req.Mapping, 1)
	assert.Equal(t, "video", req.Mapping[0].Media)
	assert.Equal(t, "m", req.Mapping[0].Layer.EncodingID)
	assert.Equal(t, 1, req.Mapping[0].Layer.SpatialLayerID)

	main := NewProjectRequest(domain.MainSource, []domain.ProjectionData{{Media: domain.MediaAudio, Mid: "1", TrackID: "a0"}})
	encoded, err := json.Marshal(main)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sourceId":null,"mapping":[{"trackId":"a0","mid":"1","media":"audio"}]}`, string(encoded))
}
