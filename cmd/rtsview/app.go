package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"rtsview/internal/core/domain"
	"rtsview/internal/core/services"
	"rtsview/internal/infrastructure/distributed"
	"rtsview/internal/infrastructure/monitoring"
	"rtsview/internal/infrastructure/signal"
	webrtcinfra "rtsview/internal/infrastructure/webrtc"
	"rtsview/pkg/circuitbreaker"
	"rtsview/pkg/config"
	"rtsview/pkg/logger"
	"rtsview/pkg/retry"
	"rtsview/pkg/tracing"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// app holds the long-lived components shared by the watch and serve commands.
type app struct {
	cfg        *config.Config
	zapLogger  *zap.Logger
	log        *zap.SugaredLogger
	instanceID string

	tracer       *tracing.TracerProvider
	registry     *prometheus.Registry
	health       *monitoring.HealthChecker
	orchestrator *services.StreamOrchestrator
	redis        *redis.Client
	bus          *distributed.StateBus
}

func newApp(cfg *config.Config) (*app, error) {
	zapLogger := logger.New(cfg.Logging.Level)
	log := zapLogger.Sugar()

	instanceID, err := os.Hostname()
	if err != nil || instanceID == "" {
		instanceID = uuid.NewString()
	}

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := monitoring.NewSessionCollector(registry)

	var directorOpts []signal.DirectorOption
	if cfg.Director.BreakerThreshold > 0 {
		directorOpts = append(directorOpts, signal.WithCircuitBreaker(circuitbreaker.Config{
			FailureThreshold: cfg.Director.BreakerThreshold,
			OpenTimeout:      cfg.Director.BreakerOpenTimeout,
		}))
	}
	director := signal.NewDirectorClient(&http.Client{Timeout: cfg.Director.Timeout}, retry.DefaultConfig(), log.Named("director"), directorOpts...)
	factory := webrtcinfra.NewFactory(transportConfig(cfg), director, webrtcinfra.NewCountingSink(), log.Named("transport"))
	manager := services.NewSubscriptionManager(factory, log.Named("subscription"),
		services.WithDirector(cfg.Subscription.DirectorURL, cfg.Subscription.Token))

	opts := []services.OrchestratorOption{services.WithSessionMetrics(collector)}
	if cfg.Monitoring.ReachabilityURL != "" {
		monitor := monitoring.NewReachabilityMonitor(cfg.Monitoring.ReachabilityURL, cfg.Monitoring.ReachabilityInterval, log.Named("reachability"))
		opts = append(opts, services.WithNetworkMonitor(monitor))
	}

	orchestrator := services.NewStreamOrchestrator(manager, log.Named("orchestrator"), services.OrchestratorConfig{
		ReconnectEnabled:  cfg.Reconnect.Enabled,
		ReconnectInterval: cfg.Reconnect.Interval,
		QueueSize:         cfg.Orchestrator.QueueSize,
		CallQueueSize:     cfg.Orchestrator.CallQueueSize,
	}, opts...)

	a := &app{
		cfg:          cfg,
		zapLogger:    zapLogger,
		log:          log,
		instanceID:   instanceID,
		tracer:       tracer,
		registry:     registry,
		health:       monitoring.NewHealthChecker(),
		orchestrator: orchestrator,
	}
	a.health.AddViewerCheck(orchestrator.State)

	if cfg.Redis.Enabled {
		client, err := distributed.NewRedisClient(context.Background(), distributed.RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, log)
		if err != nil {
			log.Warnw("state bus disabled", "error", err)
		} else {
			a.redis = client
			a.bus = distributed.NewStateBus(client, instanceID, cfg.Redis.Channel, log.Named("state_bus"))
			a.health.AddRedisCheck(client, 2*time.Second)
		}
	}

	return a, nil
}

func transportConfig(cfg *config.Config) webrtcinfra.Config {
	tc := webrtcinfra.Config{
		StatsInterval: cfg.Subscription.StatsInterval,
		Signal: signal.Options{
			PingInterval:   cfg.Signal.PingInterval,
			PongTimeout:    cfg.Signal.PongTimeout,
			WriteTimeout:   cfg.Signal.WriteTimeout,
			CommandTimeout: cfg.Signal.CommandTimeout,
			MaxMessageSize: cfg.Signal.MaxMessageSizeBytes,
		},
	}
	for _, s := range cfg.WebRTC.ICEServers {
		tc.ICEServers = append(tc.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	tc.PortRange.Min = cfg.WebRTC.PortRange.Min
	tc.PortRange.Max = cfg.WebRTC.PortRange.Max
	return tc
}

func (a *app) subscriptionConfig() domain.SubscriptionConfig {
	s := a.cfg.Subscription
	return domain.SubscriptionConfig{
		DisableAudio:       s.DisableAudio,
		StatsEnabled:       s.StatsEnabled,
		ForcePlayoutDelay:  s.ForcePlayoutDelay,
		JitterMinimumDelay: s.JitterMinimumDelay,
		TransportLogLevel:  s.TransportLogLevel,
	}
}

// publishStates forwards every published state to the sinks until ctx ends.
func (a *app) publishStates(ctx context.Context, sinks ...func(domain.StreamState)) error {
	for st := range a.orchestrator.Watch(ctx) {
		a.log.Infow("viewer state",
			"state", st.Kind,
			"sources", len(st.Sources),
			"viewer_count", st.ViewerCount,
		)
		for _, sink := range sinks {
			sink(st)
		}
	}
	return nil
}

// busSink publishes states to redis under the stream name. It is a no-op
// without redis.
func (a *app) busSink(ctx context.Context, streamName func() string) func(domain.StreamState) {
	if a.bus == nil {
		return func(domain.StreamState) {}
	}
	return func(st domain.StreamState) {
		name := streamName()
		if name == "" {
			return
		}
		if err := a.bus.Publish(ctx, name, st); err != nil {
			a.log.Warnw("failed to publish viewer state", "stream_name", name, "error", err)
		}
	}
}

func (a *app) close(streamName string) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var err error
	if stopErr := a.orchestrator.StopConnection(shutdownCtx); stopErr != nil && !errors.Is(stopErr, domain.ErrOrchestratorClosed) {
		err = multierr.Append(err, stopErr)
	}
	err = multierr.Append(err, a.orchestrator.Close())

	if a.bus != nil {
		if streamName != "" {
			err = multierr.Append(err, a.bus.Unregister(shutdownCtx, streamName))
		}
		err = multierr.Append(err, a.bus.Close())
	}
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	err = multierr.Append(err, a.tracer.Shutdown(shutdownCtx))
	_ = a.zapLogger.Sync()
	return err
}
