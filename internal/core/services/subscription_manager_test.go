package services

import (
	"context"
	"errors"
	"testing"

	"rtsview/internal/core/domain"
	"rtsview/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) HandleEvent(event domain.Event) {
	m.Called(event)
}

var testDetail = domain.StreamDetail{StreamName: "stream", AccountID: "account"}

func newTestManager(t *testing.T, transports ...*testutil.FakeTransport) (*SubscriptionManager, *MockEventHandler, func() int) {
	t.Helper()
	factory, count := testutil.Factory(transports...)
	m := NewSubscriptionManager(factory, zap.NewNop().Sugar(), WithDirector("https://director.example/api", "secret"))
	h := &MockEventHandler{}
	m.SetEventHandler(h)
	return m, h, count
}

func TestSubscriptionManager_InvalidCredentials(t *testing.T) {
	m, _, count := newTestManager(t, testutil.NewFakeTransport())

	tests := []domain.StreamDetail{
		{StreamName: "", AccountID: "a"},
		{StreamName: "s", AccountID: ""},
	}
	for _, d := range tests {
		err := m.Connect(context.Background(), d, domain.DefaultSubscriptionConfig())
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	assert.Equal(t, 0, count())
}

func TestSubscriptionManager_ConnectAndSubscribe(t *testing.T) {
	ft := testutil.NewFakeTransport()
	m, h, _ := newTestManager(t, ft)
	h.On("HandleEvent", domain.ConnectedEvent{}).Once()
	h.On("HandleEvent", domain.SubscribedEvent{}).Once()

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx, testDetail, domain.DefaultSubscriptionConfig()))
	require.NoError(t, m.StartSubscribe(ctx))

	h.AssertExpectations(t)
	assert.Equal(t, []string{"connect", "subscribe"}, ft.Calls())
	assert.True(t, ft.StatsEnabled())

	creds := ft.Credentials()
	assert.Equal(t, "stream", creds.StreamName)
	assert.Equal(t, "secret", creds.Token)
	assert.Equal(t, "https://director.example/api", creds.APIURL)

	assert.ErrorIs(t, m.StartSubscribe(ctx), domain.ErrAlreadyConnected)
}

func TestSubscriptionManager_StartSubscribeRequiresConnection(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.AutoConnect = false
	ft.ConnectErr = errors.New("unreachable")
	m, _, _ := newTestManager(t, ft)
	ctx := context.Background()

	assert.ErrorIs(t, m.StartSubscribe(ctx), domain.ErrNoTransport)

	err := m.Connect(ctx, testDetail, domain.DefaultSubscriptionConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ft.ConnectErr)
	assert.ErrorIs(t, m.StartSubscribe(ctx), domain.ErrNotConnected)
}

func TestSubscriptionManager_StopSubscribeAttemptsBothSteps(t *testing.T) {
	ft := testutil.NewFakeTransport()
	ft.UnsubscribeErr = errors.New("unsubscribe failed")
	ft.DisconnectErr = errors.New("disconnect failed")
	m, h, _ := newTestManager(t, ft)
	h.On("HandleEvent", mock.Anything)

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx, testDetail, domain.DefaultSubscriptionConfig()))

	err := m.StopSubscribe(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ft.UnsubscribeErr)
	assert.ErrorIs(t, err, ft.DisconnectErr)
	assert.Equal(t, 1, ft.CallCount("unsubscribe"))
	assert.Equal(t, 1, ft.CallCount("disconnect"))

	assert.NoError(t, m.StopSubscribe(ctx), "transport released")
	assert.Equal(t, 1, ft.CallCount("unsubscribe"))
}

func TestSubscriptionManager_ReconnectReplacesTransport(t *testing.T) {
	first, second := testutil.NewFakeTransport(), testutil.NewFakeTransport()
	m, h, count := newTestManager(t, first, second)
	h.On("HandleEvent", domain.ConnectedEvent{}).Twice()

	ctx := context.Background()
	require.NoError(t, m.Connect(ctx, testDetail, domain.DefaultSubscriptionConfig()))
	require.NoError(t, m.Connect(ctx, testDetail, domain.DefaultSubscriptionConfig()))

	assert.Equal(t, 2, count())
	assert.Equal(t, 1, first.CallCount("disconnect"))

	// Callbacks from the replaced transport are ignored.
	first.Listener().OnStopped()
	h.AssertExpectations(t)
	h.AssertNotCalled(t, "HandleEvent", domain.StoppedEvent{})
}

func TestSubscriptionManager_NormalizesCallbacks(t *testing.T) {
	ft := testutil.NewFakeTransport()
	m, h, _ := newTestManager(t, ft)
	h.On("HandleEvent", domain.ConnectedEvent{}).Once()
	require.NoError(t, m.Connect(context.Background(), testDetail, domain.DefaultSubscriptionConfig()))

	l := ft.Listener()

	t.Run("active parses descriptors", func(t *testing.T) {
		h.On("HandleEvent", domain.ActiveEvent{
			StreamID: "acc/stream",
			SourceID: "cam",
			Tracks: []domain.TrackItem{
				{TrackID: "v0", MediaType: domain.MediaVideo},
				{TrackID: "a0", MediaType: domain.MediaAudio},
			},
		}).Once()
		l.OnActive("acc/stream", []string{"Video/v0", "bogus", "audio/a0"}, "cam")
	})

	t.Run("stats without remote inbound are dropped", func(t *testing.T) {
		l.OnStatsReport(domain.StatsReport{Entries: []domain.StatsEntry{
			{Type: domain.StatsInboundRTP, Kind: "video", Mid: "0"},
		}})
	})

	t.Run("stats resolve codec names", func(t *testing.T) {
		h.On("HandleEvent", mock.MatchedBy(func(e domain.Event) bool {
			s, ok := e.(domain.StatsEvent)
			return ok && len(s.Stats.Video) == 1 && s.Stats.Video[0].CodecName == "video/VP8" &&
				s.Stats.RoundTripTime != nil && *s.Stats.RoundTripTime == 0.1
		})).Once()
		l.OnStatsReport(domain.StatsReport{Entries: []domain.StatsEntry{
			{Type: domain.StatsCodec, ID: "c1", MimeType: "video/VP8"},
			{Type: domain.StatsRemoteInboundRTP, RoundTripTime: 0.1},
			{Type: domain.StatsInboundRTP, Kind: "video", Mid: "0", CodecID: "c1"},
		}})
	})

	h.AssertExpectations(t)
}

func TestSubscriptionManager_Projection(t *testing.T) {
	ft := testutil.NewFakeTransport()
	m, h, _ := newTestManager(t, ft)
	h.On("HandleEvent", mock.Anything)
	ctx := context.Background()
	require.NoError(t, m.Connect(ctx, testDetail, domain.DefaultSubscriptionConfig()))

	audio := testutil.NewAudioTrack("a")
	layer := domain.LayerData{EncodingID: "l"}
	src := domain.StreamSource{
		SourceID: "cam",
		VideoTrack: &domain.VideoTrackInfo{
			TrackInfo: domain.TrackInfo{Mid: "0", TrackID: "v0", MediaType: domain.MediaVideo},
		},
		AudioTracks: []domain.AudioTrackInfo{{
			TrackInfo: domain.TrackInfo{Mid: "1", TrackID: "a0", MediaType: domain.MediaAudio},
			Track:     audio,
		}},
	}

	m.ProjectVideo(ctx, src, domain.LowQuality(layer))
	m.ProjectAudio(ctx, src)
	assert.True(t, audio.Enabled())
	assert.Equal(t, 1.0, audio.Volume())

	m.UnprojectAudio(ctx, src)
	m.UnprojectVideo(ctx, src)
	assert.False(t, audio.Enabled())

	projections := ft.Projections()
	require.Len(t, projections, 2)
	assert.Equal(t, domain.SourceID("cam"), projections[0].SourceID)
	assert.Equal(t, domain.ProjectionData{Media: domain.MediaVideo, Mid: "0", TrackID: "v0", Layer: &layer}, projections[0].Data[0])
	assert.Equal(t, domain.ProjectionData{Media: domain.MediaAudio, Mid: "1", TrackID: "a0"}, projections[1].Data[0])
	assert.Equal(t, [][]string{{"1"}, {"0"}}, ft.Unprojected())
}
