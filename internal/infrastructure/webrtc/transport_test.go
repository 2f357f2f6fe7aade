package webrtc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rtsview/internal/core/domain"
	"rtsview/internal/infrastructure/signal"
	"rtsview/pkg/retry"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingListener struct {
	mu     sync.Mutex
	events []string
	active []string
	layers map[string][]domain.LayerData
	status int
}

func newRecordingListener() *recordingListener {
	return &recordingListener{layers: make(map[string][]domain.LayerData)}
}

func (l *recordingListener) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, name)
}

func (l *recordingListener) has(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == name {
			return true
		}
	}
	return false
}

func (l *recordingListener) OnConnected() { l.add("connected") }
func (l *recordingListener) OnConnectionError(status int, reason string) {
	l.mu.Lock()
	l.status = status
	l.mu.Unlock()
	l.add("connection_error")
}
func (l *recordingListener) OnDisconnected()                      { l.add("disconnected") }
func (l *recordingListener) OnSubscribed()                        { l.add("subscribed") }
func (l *recordingListener) OnSubscribedError(reason string)      { l.add("subscribe_error") }
func (l *recordingListener) OnSignalingError(message string)      { l.add("signaling_error") }
func (l *recordingListener) OnStopped()                           { l.add("stopped") }
func (l *recordingListener) OnInactive(streamID, sourceID string) { l.add("inactive") }
func (l *recordingListener) OnActive(streamID string, tracks []string, sourceID string) {
	l.mu.Lock()
	l.active = tracks
	l.mu.Unlock()
	l.add("active")
}
func (l *recordingListener) OnVideoTrack(track domain.VideoTrack, mid string) { l.add("video_track") }
func (l *recordingListener) OnAudioTrack(track domain.AudioTrack, mid string) { l.add("audio_track") }
func (l *recordingListener) OnLayers(mid string, active, inactive []domain.LayerData) {
	l.mu.Lock()
	l.layers[mid] = active
	l.mu.Unlock()
	l.add("layers")
}
func (l *recordingListener) OnStatsReport(report domain.StatsReport) { l.add("stats") }
func (l *recordingListener) OnViewerCount(count int)                 { l.add("viewer_count") }

// viewerServer plays director and signaling server. It answers the view
// command with a real pion peer connection.
type viewerServer struct {
	t        *testing.T
	director *httptest.Server
	signal   *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	commands []signal.Message
	peers    []*webrtc.PeerConnection
}

func newViewerServer(t *testing.T) *viewerServer {
	s := &viewerServer{t: t}
	upgrader := websocket.Upgrader{}

	s.signal = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		for {
			var msg signal.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			resp := s.answer(msg)
			s.mu.Lock()
			s.commands = append(s.commands, msg)
			err := conn.WriteJSON(resp)
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	s.director = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"urls": []string{"ws" + strings.TrimPrefix(s.signal.URL, "http")},
				"jwt":  token,
			},
		})
	}))

	t.Cleanup(func() {
		s.mu.Lock()
		for _, pc := range s.peers {
			pc.Close()
		}
		s.mu.Unlock()
		s.director.Close()
		s.signal.Close()
	})
	return s
}

func (s *viewerServer) answer(msg signal.Message) signal.Message {
	resp := signal.Message{Type: signal.TypeResponse, TransID: msg.TransID, Data: json.RawMessage(`{}`)}
	if msg.Name != signal.CmdView {
		return resp
	}

	var req signal.ViewRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return signal.Message{Type: signal.TypeError, TransID: msg.TransID, Data: json.RawMessage(`"bad view"`)}
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(s.t, err)
	s.mu.Lock()
	s.peers = append(s.peers, pc)
	s.mu.Unlock()

	require.NoError(s.t, pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: req.SDP}))
	answer, err := pc.CreateAnswer(nil)
	require.NoError(s.t, err)
	gathered := webrtc.GatheringCompletePromise(pc)
	require.NoError(s.t, pc.SetLocalDescription(answer))
	<-gathered

	data, _ := json.Marshal(signal.SDPResponse{SDP: pc.LocalDescription().SDP, SubscriberID: "sub-1"})
	resp.Data = data
	return resp
}

func (s *viewerServer) push(name string, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NoError(s.t, s.conn.WriteJSON(signal.Message{Type: signal.TypeEvent, Name: name, Data: json.RawMessage(data)}))
}

func (s *viewerServer) command(name string) (signal.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commands {
		if c.Name == name {
			return c, true
		}
	}
	return signal.Message{}, false
}

func newTestTransport(t *testing.T) (*Transport, *recordingListener) {
	t.Helper()
	cfg := retry.DefaultConfig()
	cfg.Enabled = false
	logger := zap.NewNop().Sugar()

	tr := NewTransport(Config{Signal: signal.DefaultOptions()}, signal.NewDirectorClient(nil, cfg, logger), nil, logger)
	l := newRecordingListener()
	tr.SetListener(l)
	return tr, l
}

func TestTransportSubscribe(t *testing.T) {
	server := newViewerServer(t)
	tr, l := newTestTransport(t)
	ctx := context.Background()

	creds := domain.Credentials{StreamName: "live", AccountID: "acc", APIURL: server.director.URL}
	require.NoError(t, tr.Connect(ctx, creds, domain.DefaultSubscriptionConfig()))
	assert.True(t, tr.IsConnected())
	assert.True(t, l.has("connected"))

	require.NoError(t, tr.Subscribe(ctx))
	assert.True(t, tr.IsSubscribed())
	assert.True(t, l.has("subscribed"))

	view, ok := server.command(signal.CmdView)
	require.True(t, ok)
	var req signal.ViewRequest
	require.NoError(t, json.Unmarshal(view.Data, &req))
	assert.Equal(t, "live", req.StreamID)
	assert.True(t, req.ForcePlayoutDelay)
	assert.Contains(t, req.SDP, "a=recvonly")
	assert.Contains(t, req.SDP, "VP8/90000")
	assert.Contains(t, req.SDP, "opus/48000")
	assert.Contains(t, req.SDP, "nack")

	server.push(signal.EventActive, `{"streamId":"acc/live","sourceId":null,"tracks":[{"media":"video","trackId":"v"},{"media":"audio","trackId":"a"}]}`)
	server.push(signal.EventLayers, `{"medias":{"0":{"active":[{"id":"h"},{"id":"l"}],"inactive":[]}}}`)
	server.push(signal.EventViewerCount, `{"viewercount":5}`)

	require.Eventually(t, func() bool { return l.has("viewer_count") }, time.Second, 5*time.Millisecond)
	l.mu.Lock()
	assert.Equal(t, []string{"video/v", "audio/a"}, l.active)
	assert.Len(t, l.layers["0"], 2)
	l.mu.Unlock()

	layer := domain.LayerData{EncodingID: "h"}
	require.NoError(t, tr.Project(ctx, domain.MainSource, []domain.ProjectionData{
		{Media: domain.MediaVideo, Mid: "0", TrackID: "v", Layer: &layer},
	}))
	project, ok := server.command(signal.CmdProject)
	require.True(t, ok)
	assert.JSONEq(t, `{"sourceId":null,"mapping":[{"trackId":"v","mid":"0","media":"video","layer":{"encodingId":"h","spatialLayerId":0,"temporalLayerId":0}}]}`, string(project.Data))
	assert.True(t, tr.gate.Waiting("0"))

	require.NoError(t, tr.Unproject(ctx, []string{"0"}))
	_, ok = server.command(signal.CmdUnproject)
	assert.True(t, ok)

	require.NoError(t, tr.Unsubscribe(ctx))
	require.NoError(t, tr.Disconnect(ctx))
	assert.False(t, tr.IsSubscribed())
	assert.False(t, tr.IsConnected())
	assert.True(t, l.has("disconnected"))
}

func TestTransportConnectRejected(t *testing.T) {
	director := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer director.Close()

	tr, l := newTestTransport(t)
	err := tr.Connect(context.Background(), domain.Credentials{StreamName: "live", AccountID: "acc", APIURL: director.URL}, domain.SubscriptionConfig{})
	require.Error(t, err)

	assert.False(t, tr.IsConnected())
	assert.True(t, l.has("connection_error"))
	l.mu.Lock()
	assert.Equal(t, http.StatusForbidden, l.status)
	l.mu.Unlock()
}

func TestTransportSignalingDrop(t *testing.T) {
	server := newViewerServer(t)
	tr, l := newTestTransport(t)

	creds := domain.Credentials{StreamName: "live", AccountID: "acc", APIURL: server.director.URL}
	require.NoError(t, tr.Connect(context.Background(), creds, domain.SubscriptionConfig{}))

	require.Eventually(t, func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return server.conn != nil
	}, time.Second, 5*time.Millisecond)
	server.mu.Lock()
	server.conn.Close()
	server.mu.Unlock()

	require.Eventually(t, func() bool { return l.has("signaling_error") }, time.Second, 5*time.Millisecond)
	assert.False(t, tr.IsConnected())
}

func TestTransportRequiresConnection(t *testing.T) {
	tr, _ := newTestTransport(t)
	ctx := context.Background()

	assert.ErrorIs(t, tr.Subscribe(ctx), ErrNotConnected)
	assert.ErrorIs(t, tr.AddRemoteTrack(ctx, domain.MediaVideo), ErrNotConnected)
	assert.ErrorIs(t, tr.Project(ctx, domain.MainSource, nil), ErrNotConnected)
	assert.ErrorIs(t, tr.Unproject(ctx, []string{"0"}), ErrNotConnected)
	assert.NoError(t, tr.Unsubscribe(ctx))
	assert.NoError(t, tr.Disconnect(ctx))
}

func TestRemoteAudioTrack(t *testing.T) {
	a := newRemoteAudioTrack(nil)
	assert.False(t, a.Enabled())
	assert.Equal(t, 1.0, a.Volume())

	a.SetEnabled(true)
	a.SetVolume(3)
	assert.True(t, a.Enabled())
	assert.Equal(t, 1.0, a.Volume())

	a.SetVolume(-1)
	assert.Equal(t, 0.0, a.Volume())
}
