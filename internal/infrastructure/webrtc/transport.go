package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"rtsview/internal/core/domain"
	"rtsview/internal/core/ports"
	"rtsview/internal/infrastructure/signal"
	"rtsview/pkg/tracing"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

var (
	ErrNotConnected  = errors.New("signaling is not connected")
	ErrNotSubscribed = errors.New("peer connection is not subscribed")
)

// Config configures the media transport.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	StatsInterval time.Duration
	Signal        signal.Options
}

// Transport is a recvonly viewer: signaling over websocket, media over a pion
// peer connection. It implements ports.Transport.
type Transport struct {
	cfg      Config
	director *signal.DirectorClient
	sink     MediaSink
	gate     *KeyframeGate
	logger   *zap.SugaredLogger

	mu           sync.Mutex
	listener     ports.TransportListener
	client       *signal.Client
	conn         signal.Connection
	pc           *webrtc.PeerConnection
	streamName   string
	subCfg       domain.SubscriptionConfig
	subscribed   bool
	statsEnabled bool
	statsCancel  context.CancelFunc
	mids         map[webrtc.SSRC]string
	ssrcs        map[string]webrtc.SSRC
}

var _ ports.Transport = (*Transport)(nil)

func NewTransport(cfg Config, director *signal.DirectorClient, sink MediaSink, logger *zap.SugaredLogger) *Transport {
	if sink == nil {
		sink = NewCountingSink()
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = time.Second
	}
	return &Transport{
		cfg:      cfg,
		director: director,
		sink:     sink,
		gate:     NewKeyframeGate(),
		logger:   logger,
		mids:     make(map[webrtc.SSRC]string),
		ssrcs:    make(map[string]webrtc.SSRC),
	}
}

// NewFactory returns a transport factory sharing one director client and sink.
func NewFactory(cfg Config, director *signal.DirectorClient, sink MediaSink, logger *zap.SugaredLogger) ports.TransportFactory {
	return func() ports.Transport {
		return NewTransport(cfg, director, sink, logger)
	}
}

func (t *Transport) SetListener(listener ports.TransportListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
}

func (t *Transport) notify(fn func(l ports.TransportListener)) {
	t.mu.Lock()
	l := t.listener
	t.mu.Unlock()
	if l != nil {
		fn(l)
	}
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil
}

func (t *Transport) IsSubscribed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribed
}

// Connect looks up the stream with the director and opens signaling.
// Failures are reported to the listener with the director's HTTP status.
func (t *Transport) Connect(ctx context.Context, creds domain.Credentials, cfg domain.SubscriptionConfig) error {
	ctx, span := tracing.TraceWebRTC(ctx, "connect", creds.StreamName)
	defer span.End()

	conn, err := t.director.Lookup(ctx, creds)
	if err != nil {
		tracing.RecordError(ctx, err)
		t.notify(func(l ports.TransportListener) { l.OnConnectionError(signal.StatusOf(err), err.Error()) })
		return fmt.Errorf("director lookup failed: %w", err)
	}

	wsURL, err := conn.WebSocketURL()
	if err != nil {
		t.notify(func(l ports.TransportListener) { l.OnConnectionError(0, err.Error()) })
		return err
	}

	client, err := signal.Dial(ctx, wsURL, t.cfg.Signal, t.logger, t.handleEvent, t.handleClose)
	if err != nil {
		tracing.RecordError(ctx, err)
		t.notify(func(l ports.TransportListener) { l.OnConnectionError(0, err.Error()) })
		return err
	}

	t.mu.Lock()
	t.client = client
	t.conn = conn
	t.streamName = creds.StreamName
	t.subCfg = cfg
	t.mu.Unlock()

	t.logger.Infow("signaling connected", "stream_name", creds.StreamName)
	t.notify(func(l ports.TransportListener) { l.OnConnected() })
	return nil
}

func (t *Transport) newPeerConnection(conn signal.Connection, cfg domain.SubscriptionConfig) (*webrtc.PeerConnection, error) {
	iceServers := append([]webrtc.ICEServer(nil), t.cfg.ICEServers...)
	for _, s := range conn.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	settingEngine := webrtc.SettingEngine{}
	if t.cfg.PortRange.Min > 0 && t.cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(t.cfg.PortRange.Min, t.cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}
	if factory := NewLoggerFactory(t.logger, cfg.TransportLogLevel); factory != nil {
		settingEngine.LoggerFactory = factory
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	)
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   iceServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	})
}

// Subscribe negotiates a recvonly peer connection with one video and one
// audio transceiver and sends the view command.
func (t *Transport) Subscribe(ctx context.Context) error {
	t.mu.Lock()
	client, conn, cfg, streamName := t.client, t.conn, t.subCfg, t.streamName
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	ctx, span := tracing.TraceWebRTC(ctx, "subscribe", streamName)
	defer span.End()

	pc, err := t.newPeerConnection(conn, cfg)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return fmt.Errorf("failed to add %s transceiver: %w", kind, err)
		}
	}

	pc.OnTrack(t.onTrack(pc))
	pc.OnConnectionStateChange(t.onConnectionState)

	offer, err := t.localOffer(ctx, pc)
	if err != nil {
		pc.Close()
		return err
	}

	var answer signal.SDPResponse
	err = client.Call(ctx, signal.CmdView, signal.ViewRequest{
		StreamID:           streamName,
		SDP:                offer,
		Events:             signal.DefaultEvents,
		ForcePlayoutDelay:  cfg.ForcePlayoutDelay,
		JitterMinimumDelay: cfg.JitterMinimumDelay.Milliseconds(),
	}, &answer)
	if err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return fmt.Errorf("view command failed: %w", err)
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		pc.Close()
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	t.mu.Lock()
	t.pc = pc
	t.subscribed = true
	t.mu.Unlock()

	t.logger.Infow("subscribed", "stream_name", streamName, "subscriber_id", answer.SubscriberID)
	t.notify(func(l ports.TransportListener) { l.OnSubscribed() })
	return nil
}

// localOffer creates an offer and waits for ICE gathering to finish.
func (t *Transport) localOffer(ctx context.Context, pc *webrtc.PeerConnection) (string, error) {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return pc.LocalDescription().SDP, nil
}

func (t *Transport) onTrack(pc *webrtc.PeerConnection) func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {
	return func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		mid := ""
		for _, tr := range pc.GetTransceivers() {
			if tr.Receiver() == receiver {
				mid = tr.Mid()
				break
			}
		}

		t.mu.Lock()
		t.mids[track.SSRC()] = mid
		t.ssrcs[mid] = track.SSRC()
		t.mu.Unlock()

		t.logger.Infow("remote track received",
			"mid", mid,
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)

		// Interceptors need RTCP to be read.
		go func() {
			for {
				if _, _, err := receiver.ReadRTCP(); err != nil {
					return
				}
			}
		}()

		switch track.Kind() {
		case webrtc.RTPCodecTypeVideo:
			go drain(track, mid, nil, t.gate, t.sink, t.logger)
			t.notify(func(l ports.TransportListener) { l.OnVideoTrack(&remoteVideoTrack{track: track}, mid) })
		case webrtc.RTPCodecTypeAudio:
			audio := newRemoteAudioTrack(track)
			go drain(track, mid, audio, t.gate, t.sink, t.logger)
			t.notify(func(l ports.TransportListener) { l.OnAudioTrack(audio, mid) })
		}
	}
}

func (t *Transport) onConnectionState(state webrtc.PeerConnectionState) {
	t.logger.Infow("peer connection state changed", "connection_state", state.String())

	if state == webrtc.PeerConnectionStateFailed {
		t.notify(func(l ports.TransportListener) { l.OnSignalingError("peer connection failed") })
	}
}

func (t *Transport) handleEvent(name string, data json.RawMessage) {
	switch name {
	case signal.EventActive:
		var p signal.ActivePayload
		if t.decode(name, data, &p) {
			t.notify(func(l ports.TransportListener) { l.OnActive(p.StreamID, p.Descriptors(), p.Source()) })
		}
	case signal.EventInactive:
		var p signal.InactivePayload
		if t.decode(name, data, &p) {
			t.notify(func(l ports.TransportListener) { l.OnInactive(p.StreamID, p.Source()) })
		}
	case signal.EventStopped:
		t.notify(func(l ports.TransportListener) { l.OnStopped() })
	case signal.EventLayers:
		var p signal.LayersPayload
		if t.decode(name, data, &p) {
			for mid, media := range p.Medias {
				active, inactive := signal.FlattenLayers(media.Active), signal.FlattenLayers(media.Inactive)
				t.notify(func(l ports.TransportListener) { l.OnLayers(mid, active, inactive) })
			}
		}
	case signal.EventViewerCount:
		var p signal.ViewerCountPayload
		if t.decode(name, data, &p) {
			t.notify(func(l ports.TransportListener) { l.OnViewerCount(p.ViewerCount) })
		}
	default:
		t.logger.Debugw("ignoring signaling event", "event", name)
	}
}

func (t *Transport) decode(name string, data json.RawMessage, out any) bool {
	if err := json.Unmarshal(data, out); err != nil {
		t.logger.Warnw("malformed signaling event", "event", name, "error", err)
		return false
	}
	return true
}

// handleClose runs when the signaling connection drops on its own.
func (t *Transport) handleClose(err error) {
	t.mu.Lock()
	t.client = nil
	t.mu.Unlock()

	reason := "signaling connection closed"
	if err != nil {
		reason = err.Error()
	}
	t.notify(func(l ports.TransportListener) { l.OnSignalingError(reason) })
}

func (t *Transport) Unsubscribe(ctx context.Context) error {
	t.mu.Lock()
	pc := t.pc
	t.pc = nil
	t.subscribed = false
	t.mids = make(map[webrtc.SSRC]string)
	t.ssrcs = make(map[string]webrtc.SSRC)
	t.mu.Unlock()

	t.EnableStats(false)
	if pc == nil {
		return nil
	}
	if err := pc.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close signaling: %w", err)
	}
	t.notify(func(l ports.TransportListener) { l.OnDisconnected() })
	return nil
}

// EnableStats starts or stops periodic stats reports.
func (t *Transport) EnableStats(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enabled == t.statsEnabled {
		return
	}
	t.statsEnabled = enabled

	if !enabled {
		if t.statsCancel != nil {
			t.statsCancel()
			t.statsCancel = nil
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.statsCancel = cancel
	go t.collectStats(ctx)
}

func (t *Transport) collectStats(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		pc := t.pc
		mids := make(map[webrtc.SSRC]string, len(t.mids))
		for ssrc, mid := range t.mids {
			mids[ssrc] = mid
		}
		t.mu.Unlock()

		if pc == nil {
			continue
		}
		report := convertStats(pc.GetStats(), mids)
		t.notify(func(l ports.TransportListener) { l.OnStatsReport(report) })
	}
}

// AddRemoteTrack adds a recvonly transceiver and renegotiates. The new track
// is reported through OnTrack once the server projects into it.
func (t *Transport) AddRemoteTrack(ctx context.Context, media domain.MediaType) error {
	t.mu.Lock()
	client, pc := t.client, t.pc
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	if pc == nil {
		return ErrNotSubscribed
	}

	kind := webrtc.RTPCodecTypeVideo
	if media == domain.MediaAudio {
		kind = webrtc.RTPCodecTypeAudio
	}
	if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return fmt.Errorf("failed to add %s transceiver: %w", media, err)
	}

	offer, err := t.localOffer(ctx, pc)
	if err != nil {
		return err
	}

	var answer signal.SDPResponse
	if err := client.Call(ctx, signal.CmdUpdateSDP, signal.UpdateSDPRequest{SDP: offer}, &answer); err != nil {
		return fmt.Errorf("renegotiation failed: %w", err)
	}
	return pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP})
}

// Project asks the server to forward tracks of sourceID onto the given mids.
// Video mids are gated until the keyframe requested here arrives.
func (t *Transport) Project(ctx context.Context, sourceID domain.SourceID, data []domain.ProjectionData) error {
	t.mu.Lock()
	client, pc := t.client, t.pc
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	if err := client.Call(ctx, signal.CmdProject, signal.NewProjectRequest(sourceID, data), nil); err != nil {
		return err
	}

	for _, d := range data {
		if d.Media == domain.MediaVideo {
			t.gate.Await(d.Mid)
			t.requestKeyframe(pc, d.Mid)
		}
	}
	return nil
}

func (t *Transport) requestKeyframe(pc *webrtc.PeerConnection, mid string) {
	t.mu.Lock()
	ssrc, ok := t.ssrcs[mid]
	t.mu.Unlock()
	if pc == nil || !ok {
		return
	}

	if err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(ssrc)}}); err != nil {
		t.logger.Debugw("failed to request keyframe", "mid", mid, "error", err)
	}
}

func (t *Transport) Unproject(ctx context.Context, mids []string) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.Call(ctx, signal.CmdUnproject, signal.UnprojectRequest{MediaIDs: mids}, nil)
}
