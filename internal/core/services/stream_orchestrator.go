package services

import (
	"context"
	"sync"
	"time"

	"rtsview/internal/core/domain"
	"rtsview/internal/core/ports"
	"rtsview/internal/core/state"

	"go.uber.org/zap"
)

type OrchestratorConfig struct {
	ReconnectEnabled  bool
	ReconnectInterval time.Duration
	QueueSize         int
	// CallQueueSize bounds the transport calls waiting to be sent. Calls
	// issued while the queue is full are dropped and logged.
	CallQueueSize int
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ReconnectEnabled:  true,
		ReconnectInterval: 5 * time.Second,
		QueueSize:         256,
		CallQueueSize:     64,
	}
}

type OrchestratorOption func(*StreamOrchestrator)

func WithRendererRegistry(r ports.RendererRegistry) OrchestratorOption {
	return func(o *StreamOrchestrator) { o.registry = r }
}

func WithTaskScheduler(s ports.TaskScheduler) OrchestratorOption {
	return func(o *StreamOrchestrator) { o.scheduler = s }
}

func WithNetworkMonitor(m ports.NetworkMonitor) OrchestratorOption {
	return func(o *StreamOrchestrator) { o.monitor = m }
}

func WithSessionMetrics(m ports.SessionMetrics) OrchestratorOption {
	return func(o *StreamOrchestrator) { o.metrics = m }
}

type pendingTrack struct {
	mid   string
	video domain.VideoTrack
	audio domain.AudioTrack
}

// StreamOrchestrator is the public entry point of the viewer core. Every
// event and public call is applied by one goroutine reading a bounded
// command queue; transport round-trips happen outside of it.
type StreamOrchestrator struct {
	cfg       OrchestratorConfig
	manager   ports.SubscriptionManager
	registry  ports.RendererRegistry
	scheduler ports.TaskScheduler
	monitor   ports.NetworkMonitor
	metrics   ports.SessionMetrics
	logger    *zap.SugaredLogger

	ctx       context.Context
	cancel    context.CancelFunc
	cmds      chan func()
	calls     chan func()
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// Owned by the command loop.
	machine   *state.Machine
	detail    *domain.StreamDetail
	subConfig domain.SubscriptionConfig
	pending   []pendingTrack

	mu        sync.RWMutex
	published domain.StreamState
	watchers  map[chan domain.StreamState]struct{}
}

var _ ports.StreamViewer = (*StreamOrchestrator)(nil)

func NewStreamOrchestrator(
	manager ports.SubscriptionManager,
	logger *zap.SugaredLogger,
	cfg OrchestratorConfig,
	opts ...OrchestratorOption,
) *StreamOrchestrator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultOrchestratorConfig().QueueSize
	}
	if cfg.CallQueueSize <= 0 {
		cfg.CallQueueSize = DefaultOrchestratorConfig().CallQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &StreamOrchestrator{
		cfg:       cfg,
		manager:   manager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		cmds:      make(chan func(), cfg.QueueSize),
		calls:     make(chan func(), cfg.CallQueueSize),
		done:      make(chan struct{}),
		machine:   state.NewMachine(logger),
		published: domain.DisconnectedState(),
		watchers:  make(map[chan domain.StreamState]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = NewRendererRegistry()
	}
	if o.scheduler == nil {
		o.scheduler = NewTaskScheduler()
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}

	o.machine.OnStateChange(o.stateChanged)
	o.machine.OnDropped(func(event string, in state.State) {
		o.metrics.RecordDroppedEvent(event, in.String())
	})
	manager.SetEventHandler(o)

	o.wg.Add(2)
	go o.run()
	go o.runCalls()

	if o.monitor != nil {
		o.monitor.Start(ctx, o.onReachabilityChange)
	}
	return o
}

func (o *StreamOrchestrator) run() {
	defer o.wg.Done()
	for {
		select {
		case cmd := <-o.cmds:
			cmd()
		case <-o.done:
			return
		}
	}
}

// runCalls sends projection requests to the transport in order.
func (o *StreamOrchestrator) runCalls() {
	defer o.wg.Done()
	for {
		select {
		case call := <-o.calls:
			call()
		case <-o.done:
			return
		}
	}
}

// exec runs fn on the command loop and waits for its result.
func (o *StreamOrchestrator) exec(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case o.cmds <- func() { errc <- fn() }:
	case <-o.done:
		return domain.ErrOrchestratorClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-o.done:
		return domain.ErrOrchestratorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues fn without waiting for it to run.
func (o *StreamOrchestrator) post(fn func()) {
	select {
	case o.cmds <- fn:
	case <-o.done:
	}
}

// call queues a transport request. Only the command loop calls it, and it
// never waits: a request that does not fit in CallQueueSize is dropped.
func (o *StreamOrchestrator) call(fn func(ctx context.Context)) {
	select {
	case o.calls <- func() { fn(o.ctx) }:
	default:
		in := o.machine.Current()
		o.logger.Warnw("transport call queue full, dropping call",
			"queue_size", cap(o.calls),
			"state", in.String(),
		)
		o.metrics.RecordDroppedEvent("transport_call", in.String())
	}
}

// HandleEvent receives normalized transport events from any goroutine.
func (o *StreamOrchestrator) HandleEvent(event domain.Event) {
	o.post(func() { o.apply(event) })
}

// Connect starts a new session. It returns once the connect request has been
// handed to the transport; progress is observed through Watch.
func (o *StreamOrchestrator) Connect(ctx context.Context, streamName, accountID string, cfg domain.SubscriptionConfig) error {
	detail := domain.StreamDetail{StreamName: streamName, AccountID: accountID}
	if !detail.Valid() {
		return domain.ErrInvalidCredentials
	}

	err := o.exec(ctx, func() error {
		if !o.machine.StartConnection(cfg) {
			return domain.ErrUnexpectedState
		}
		o.scheduler.Invalidate()
		o.detail = &detail
		o.subConfig = cfg
		o.pending = nil
		return nil
	})
	if err != nil {
		return err
	}

	return o.connectTransport(ctx, detail, cfg)
}

func (o *StreamOrchestrator) connectTransport(ctx context.Context, detail domain.StreamDetail, cfg domain.SubscriptionConfig) error {
	err := o.manager.Connect(ctx, detail, cfg)
	if err == nil {
		return o.dropIfStopped(ctx)
	}

	o.logger.Warnw("connect failed", "stream_name", detail.StreamName, "error", err)
	if xerr := o.exec(context.Background(), func() error {
		if o.machine.Current().Kind() != state.KindConnecting {
			return nil
		}
		o.machine.OnConnectionError(0, err.Error())
		o.pending = nil
		o.scheduleReconnect()
		return nil
	}); xerr != nil {
		o.logger.Debugw("could not record connect failure", "error", xerr)
	}
	return err
}

// dropIfStopped releases a transport whose connect raced with StopConnection.
func (o *StreamOrchestrator) dropIfStopped(ctx context.Context) error {
	var stopped bool
	if err := o.exec(ctx, func() error {
		stopped = o.detail == nil
		return nil
	}); err != nil {
		return err
	}
	if !stopped {
		return nil
	}
	o.logger.Debugw("connection stopped while connecting")
	return o.manager.StopSubscribe(ctx)
}

// StopConnection ends the session, cancels any pending reconnection and
// discards the subscription state before tearing the transport down.
func (o *StreamOrchestrator) StopConnection(ctx context.Context) error {
	err := o.exec(ctx, func() error {
		o.scheduler.Invalidate()
		o.detail = nil
		o.pending = nil
		o.machine.StopSubscribe()
		o.registry.Reset()
		return nil
	})
	if err != nil {
		return err
	}
	return o.manager.StopSubscribe(ctx)
}

// PlayAudio makes source the only source playing audio.
func (o *StreamOrchestrator) PlayAudio(ctx context.Context, source domain.StreamSource) error {
	return o.exec(ctx, func() error {
		src, err := o.lookup(source)
		if err != nil {
			return err
		}
		if len(src.AudioTracks) == 0 {
			return domain.ErrNoAudioTrack
		}

		for _, other := range o.visibleSources() {
			if other.ID != src.ID && other.IsPlayingAudio {
				o.unprojectAudio(other)
			}
		}
		if src.IsPlayingAudio {
			return nil
		}

		o.call(func(ctx context.Context) { o.manager.ProjectAudio(ctx, src) })
		o.metrics.RecordProjection(domain.MediaAudio, true)
		o.machine.SetPlayingAudio(src.ID, true)
		return nil
	})
}

func (o *StreamOrchestrator) StopAudio(ctx context.Context, source domain.StreamSource) error {
	return o.exec(ctx, func() error {
		src, err := o.lookup(source)
		if err != nil {
			return err
		}
		if src.IsPlayingAudio {
			o.unprojectAudio(src)
		}
		return nil
	})
}

func (o *StreamOrchestrator) unprojectAudio(src domain.StreamSource) {
	o.call(func(ctx context.Context) { o.manager.UnprojectAudio(ctx, src) })
	o.metrics.RecordProjection(domain.MediaAudio, false)
	o.machine.SetPlayingAudio(src.ID, false)
}

// PlayVideo binds renderer to the source's video track and projects the
// highest quality any of the track's renderers asks for.
func (o *StreamOrchestrator) PlayVideo(ctx context.Context, source domain.StreamSource, renderer domain.RendererID, quality domain.VideoQuality) error {
	return o.exec(ctx, func() error {
		src, err := o.lookup(source)
		if err != nil {
			return err
		}
		key, ok := src.VideoTrackKey()
		if !ok {
			return domain.ErrNoVideoTrack
		}

		o.registry.Register(renderer, key, quality)
		o.reconcileVideo(src)
		return nil
	})
}

// StopVideo releases renderer. The track is unprojected once no renderer
// displays it anymore.
func (o *StreamOrchestrator) StopVideo(ctx context.Context, source domain.StreamSource, renderer domain.RendererID) error {
	return o.exec(ctx, func() error {
		src, err := o.lookup(source)
		if err != nil {
			return err
		}
		key, ok := src.VideoTrackKey()
		if !ok {
			return domain.ErrNoVideoTrack
		}

		o.registry.Deregister(renderer)
		if !src.IsPlayingVideo {
			return nil
		}
		if o.registry.HasActiveRenderer(key) {
			o.reconcileVideo(src)
			return nil
		}

		o.call(func(ctx context.Context) { o.manager.UnprojectVideo(ctx, src) })
		o.metrics.RecordProjection(domain.MediaVideo, false)
		o.machine.SetPlayingVideo(src.ID, false)
		o.machine.OnLayers(src.VideoTrack.Mid, nil, nil)
		return nil
	})
}

// SelectVideoQuality projects quality for a playing source regardless of
// what its renderers asked for. It falls back to auto when not offered.
func (o *StreamOrchestrator) SelectVideoQuality(ctx context.Context, source domain.StreamSource, quality domain.VideoQuality) error {
	return o.exec(ctx, func() error {
		src, err := o.lookup(source)
		if err != nil {
			return err
		}
		if src.VideoTrack == nil {
			return domain.ErrNoVideoTrack
		}
		if !src.IsPlayingVideo {
			return domain.ErrUnexpectedState
		}

		q := o.available(src, quality)
		o.call(func(ctx context.Context) { o.manager.ProjectVideo(ctx, src, q) })
		o.metrics.RecordProjection(domain.MediaVideo, true)
		o.machine.SelectVideoQuality(src.ID, q)
		return nil
	})
}

// NewRendererID hands out a handle for PlayVideo/StopVideo.
func (o *StreamOrchestrator) NewRendererID() domain.RendererID {
	return o.registry.NewRendererID()
}

func (o *StreamOrchestrator) available(src domain.StreamSource, quality domain.VideoQuality) domain.VideoQuality {
	if q, ok := src.Quality(quality.Tag); ok {
		return q
	}
	return domain.AutoQuality
}

// reconcileVideo projects the quality the renderers of src currently need
// when it differs from what is projected.
func (o *StreamOrchestrator) reconcileVideo(src domain.StreamSource) {
	key, ok := src.VideoTrackKey()
	if !ok || !o.registry.HasActiveRenderer(key) {
		return
	}

	q := o.available(src, o.registry.RequestedQuality(key))
	if src.IsPlayingVideo && q.Equal(src.SelectedQuality) {
		return
	}

	o.call(func(ctx context.Context) { o.manager.ProjectVideo(ctx, src, q) })
	o.metrics.RecordProjection(domain.MediaVideo, true)
	o.machine.SelectVideoQuality(src.ID, q)
	o.machine.SetPlayingVideo(src.ID, true)
}

func (o *StreamOrchestrator) visibleSources() []domain.StreamSource {
	sub, ok := o.machine.Current().Subscription()
	if !ok {
		return nil
	}
	return sub.Sources()
}

// lookup returns the current snapshot of a source the caller saw earlier.
func (o *StreamOrchestrator) lookup(source domain.StreamSource) (domain.StreamSource, error) {
	if o.machine.Current().Kind() != state.KindSubscribed {
		return domain.StreamSource{}, domain.ErrUnexpectedState
	}
	for _, src := range o.visibleSources() {
		if src.ID == source.ID {
			return src, nil
		}
	}
	return domain.StreamSource{}, domain.ErrSourceNotFound
}

func (o *StreamOrchestrator) apply(event domain.Event) {
	switch e := event.(type) {
	case domain.ConnectedEvent:
		o.onConnected()
	case domain.SubscribedEvent:
		o.machine.OnSubscribed()
	case domain.ConnectionErrorEvent:
		o.machine.OnConnectionError(e.Status, e.Reason)
		o.pending = nil
		o.scheduleReconnect()
	case domain.SubscribeErrorEvent:
		if o.machine.OnSubscribedError(e.Reason) {
			o.pending = nil
			o.scheduleReconnect()
		}
	case domain.SignalingErrorEvent:
		if o.machine.OnSignalingError(e.Message) {
			o.pending = nil
			o.scheduleReconnect()
		}
	case domain.DisconnectedEvent:
		o.machine.OnDisconnected()
		o.pending = nil
	case domain.StoppedEvent:
		o.machine.OnStopped()
		o.pending = nil
		o.scheduleReconnect()
	case domain.ActiveEvent:
		o.onActive(e)
	case domain.InactiveEvent:
		o.onInactive(e)
	case domain.VideoTrackEvent:
		o.onTrack(pendingTrack{mid: e.Mid, video: e.Track})
	case domain.AudioTrackEvent:
		o.onTrack(pendingTrack{mid: e.Mid, audio: e.Track})
	case domain.LayersEvent:
		if o.machine.OnLayers(e.Mid, e.ActiveLayers, e.InactiveLayers) {
			for _, src := range o.visibleSources() {
				if src.VideoTrack != nil && src.VideoTrack.Mid == e.Mid {
					o.reconcileVideo(src)
				}
			}
		}
	case domain.StatsEvent:
		o.machine.OnStatsReport(e.Stats)
	case domain.ViewerCountEvent:
		o.machine.OnViewerCount(e.Count)
		o.metrics.SetViewerCount(e.Count)
	default:
		o.logger.Warnw("unknown event", "event", event.EventName())
	}
}

func (o *StreamOrchestrator) onConnected() {
	if !o.machine.OnConnected() {
		return
	}
	o.scheduler.Invalidate()
	if !o.machine.StartSubscribe() {
		return
	}

	go func() {
		if err := o.manager.StartSubscribe(o.ctx); err != nil {
			o.logger.Warnw("subscribe failed", "error", err)
			o.HandleEvent(domain.SubscribeErrorEvent{Reason: err.Error()})
		}
	}()
}

func (o *StreamOrchestrator) onActive(e domain.ActiveEvent) {
	if o.machine.Current().Kind() == state.KindSubscribing {
		o.logger.Debugw("active before subscribed", "source_id", e.SourceID)
		o.machine.OnSubscribed()
	}
	if !o.machine.OnActive(e.StreamID, e.SourceID, e.Tracks) {
		return
	}

	o.call(func(ctx context.Context) { o.manager.AddRemoteTrack(ctx, e.Tracks) })
	o.flushPending()
}

func (o *StreamOrchestrator) onInactive(e domain.InactiveEvent) {
	if sub, ok := o.machine.Current().Subscription(); ok {
		if b, ok := sub.BuilderBySource(e.SourceID); ok && b.IsPlayingAudio() {
			if src, err := b.Build(); err == nil {
				o.call(func(ctx context.Context) { o.manager.UnprojectAudio(ctx, src) })
				o.metrics.RecordProjection(domain.MediaAudio, false)
			}
		}
	}

	o.machine.OnInactive(e.StreamID, e.SourceID)
	if o.machine.Current().Kind() == state.KindStopped {
		o.pending = nil
		o.scheduleReconnect()
	}
}

func (o *StreamOrchestrator) onTrack(t pendingTrack) {
	switch o.machine.Current().Kind() {
	case state.KindConnecting, state.KindConnected, state.KindSubscribing:
		o.keepPending(t)
		return
	case state.KindSubscribed:
		if o.bind(t) {
			return
		}
		o.keepPending(t)
	default:
		o.bind(t)
	}
}

func (o *StreamOrchestrator) bind(t pendingTrack) bool {
	if t.video != nil {
		return o.machine.OnVideoTrack(t.video, t.mid)
	}
	return o.machine.OnAudioTrack(t.audio, t.mid)
}

func (o *StreamOrchestrator) keepPending(t pendingTrack) {
	for i, p := range o.pending {
		if p.mid == t.mid {
			o.pending[i] = t
			return
		}
	}
	o.logger.Debugw("caching track until a source claims it", "mid", t.mid)
	o.pending = append(o.pending, t)
}

func (o *StreamOrchestrator) flushPending() {
	kept := o.pending[:0]
	for _, t := range o.pending {
		if !o.bind(t) {
			kept = append(kept, t)
		}
	}
	o.pending = kept
}

func (o *StreamOrchestrator) scheduleReconnect() {
	if !o.cfg.ReconnectEnabled || o.detail == nil {
		return
	}
	if o.scheduler.Schedule(o.cfg.ReconnectInterval, o.reconnect) {
		o.logger.Infow("reconnection scheduled", "after", o.cfg.ReconnectInterval)
	}
}

func (o *StreamOrchestrator) reconnect() {
	var (
		detail domain.StreamDetail
		cfg    domain.SubscriptionConfig
	)
	err := o.exec(o.ctx, func() error {
		if o.detail == nil || !o.machine.StartConnection(o.subConfig) {
			return domain.ErrUnexpectedState
		}
		detail, cfg = *o.detail, o.subConfig
		o.pending = nil
		return nil
	})
	if err != nil {
		o.logger.Debugw("reconnection skipped", "error", err)
		return
	}

	o.metrics.RecordReconnectAttempt()
	o.logger.Infow("reconnecting", "stream_name", detail.StreamName)
	_ = o.connectTransport(o.ctx, detail, cfg)
}

func (o *StreamOrchestrator) onReachabilityChange(reachable bool) {
	if !reachable {
		return
	}
	o.post(func() {
		cur := o.machine.Current()
		retry := cur.Kind() == state.KindStopped
		if serr, ok := cur.Error(); ok && serr.Kind == domain.ErrKindConnectFailed {
			retry = true
		}
		if !retry || o.detail == nil {
			return
		}
		o.scheduler.Invalidate()
		go o.reconnect()
	})
}

func (o *StreamOrchestrator) stateChanged(from, to state.State) {
	if from.Kind() != to.Kind() {
		o.metrics.RecordTransition(from.String(), to.String())
	}
	public := to.Public()
	o.metrics.SetVisibleSources(len(public.Sources))
	o.publish(public)
}

func (o *StreamOrchestrator) publish(next domain.StreamState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if next.Equal(o.published) {
		return
	}
	o.published = next
	for ch := range o.watchers {
		offer(ch, next)
	}
}

// offer replaces a stale undelivered state with the newest one.
func offer(ch chan domain.StreamState, s domain.StreamState) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// State returns the last published state.
func (o *StreamOrchestrator) State() domain.StreamState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.published
}

// Watch delivers the current state followed by every change until ctx is
// done. Slow readers only see the latest state.
func (o *StreamOrchestrator) Watch(ctx context.Context) <-chan domain.StreamState {
	ch := make(chan domain.StreamState, 1)

	o.mu.Lock()
	ch <- o.published
	select {
	case <-o.done:
		o.mu.Unlock()
		close(ch)
		return ch
	default:
	}
	o.watchers[ch] = struct{}{}
	o.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-o.done:
		}
		o.mu.Lock()
		if _, ok := o.watchers[ch]; ok {
			delete(o.watchers, ch)
			close(ch)
		}
		o.mu.Unlock()
	}()
	return ch
}

// Close stops the command loop and any pending reconnection. It does not
// tear the transport down; call StopConnection first for that.
func (o *StreamOrchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.scheduler.Invalidate()
		if o.monitor != nil {
			o.monitor.Stop()
		}
		o.cancel()
		close(o.done)
		o.wg.Wait()

		o.mu.Lock()
		for ch := range o.watchers {
			delete(o.watchers, ch)
			close(ch)
		}
		o.mu.Unlock()
	})
	return nil
}

// flush waits until every command and transport call queued so far ran.
func (o *StreamOrchestrator) flush(ctx context.Context) error {
	calls := make(chan struct{})
	if err := o.exec(ctx, func() error {
		select {
		case o.calls <- func() { close(calls) }:
		case <-ctx.Done():
		}
		return nil
	}); err != nil {
		return err
	}
	select {
	case <-calls:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordTransition(from, to string)                      {}
func (noopMetrics) RecordDroppedEvent(event, state string)                {}
func (noopMetrics) RecordReconnectAttempt()                               {}
func (noopMetrics) RecordProjection(media domain.MediaType, project bool) {}
func (noopMetrics) SetVisibleSources(n int)                               {}
func (noopMetrics) SetViewerCount(n int)                                  {}
