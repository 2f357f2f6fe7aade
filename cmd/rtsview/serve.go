package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"rtsview/internal/core/domain"
	"rtsview/internal/core/ports"
	httphandlers "rtsview/internal/handlers/http"
	"rtsview/internal/infrastructure/distributed"
	"rtsview/internal/infrastructure/middleware"
	statesignal "rtsview/internal/infrastructure/signal"
	"rtsview/pkg/config"
	"rtsview/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the viewer behind an HTTP control API",
		Long:  "serve exposes connect, playback and quality control over HTTP, streams state changes over a websocket and serves health and metrics. A stream configured in subscription.stream_name is connected on start.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "override server.address")
	return cmd
}

// namedViewer remembers the stream of the last accepted Connect so published
// states can be keyed by it.
type namedViewer struct {
	ports.StreamViewer
	stream atomic.Value
}

func (v *namedViewer) Connect(ctx context.Context, streamName, accountID string, cfg domain.SubscriptionConfig) error {
	err := v.StreamViewer.Connect(ctx, streamName, accountID, cfg)
	// Transport failures still leave the session retrying this stream.
	if !errors.Is(err, domain.ErrInvalidCredentials) && !errors.Is(err, domain.ErrUnexpectedState) {
		v.stream.Store(streamName)
	}
	return err
}

func (v *namedViewer) streamName() string {
	name, _ := v.stream.Load().(string)
	return name
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	viewer := &namedViewer{StreamViewer: a.orchestrator}
	states := statesignal.NewStateStreamServer(a.orchestrator.State, a.log.Named("state_stream"))
	states.SetPingInterval(cfg.Signal.PingInterval)
	states.SetPongTimeout(cfg.Signal.PongTimeout)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	requestLog := logger.NewContextLogger(a.zapLogger)
	router.Use(
		middleware.RecoveryMiddleware(requestLog),
		middleware.TracingMiddleware(),
		middleware.RequestLogger(requestLog),
		middleware.ErrorHandlerMiddleware(requestLog),
	)
	if cfg.RateLimiting.Enabled {
		router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	}

	auth := middleware.APITokenMiddleware(cfg.Server.APIToken)
	var metrics http.Handler
	if cfg.Monitoring.PrometheusEnabled {
		metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
	}
	var directory httphandlers.ViewerDirectory
	if a.bus != nil {
		directory = a.bus
	}

	ops := httphandlers.NewOpsHandler(a.health, directory, metrics, states.HandleWebSocket).
		WithAPIMiddleware(auth)
	if cfg.RateLimiting.Enabled {
		ops.WithStateMiddleware(middleware.NewWebSocketRateLimitMiddleware(cfg))
	}

	registrars := []ports.RouteRegistrar{
		httphandlers.NewViewerHandler(viewer, a.subscriptionConfig(), auth),
		ops,
	}
	for _, r := range registrars {
		r.SetupRoutes(router)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Infow("starting control server", "address", cfg.Server.Address, "instance_id", a.instanceID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Errorw("error during server shutdown", "error", err)
			return srv.Close()
		}
		return nil
	})
	g.Go(func() error {
		return a.publishStates(gctx, states.Broadcast, a.busSink(gctx, viewer.streamName))
	})
	if a.bus != nil {
		g.Go(func() error {
			err := a.bus.Subscribe(gctx, func(event distributed.StateEvent) {
				a.log.Debugw("peer viewer state",
					"instance_id", event.InstanceID,
					"stream_name", event.StreamName,
					"state", event.State.Kind,
				)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warnw("state bus subscription ended", "error", err)
			}
			return nil
		})
	}
	if name := cfg.Subscription.StreamName; name != "" {
		g.Go(func() error {
			err := viewer.Connect(gctx, name, cfg.Subscription.AccountID, a.subscriptionConfig())
			if err != nil {
				a.log.Warnw("initial connect failed", "stream_name", name, "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	a.log.Infow("control server stopped")
	if closeErr := a.close(viewer.streamName()); closeErr != nil {
		a.log.Errorw("error during shutdown", "error", closeErr)
	}
	return err
}
