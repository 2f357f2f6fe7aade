package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"rtsview/internal/core/domain"
	"rtsview/pkg/config"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type watchOptions struct {
	streamName   string
	accountID    string
	token        string
	disableAudio bool
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to a stream and log its state until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if opts.streamName != "" {
				cfg.Subscription.StreamName = opts.streamName
			}
			if opts.accountID != "" {
				cfg.Subscription.AccountID = opts.accountID
			}
			if opts.token != "" {
				cfg.Subscription.Token = opts.token
			}
			if cmd.Flags().Changed("disable-audio") {
				cfg.Subscription.DisableAudio = opts.disableAudio
			}
			return runWatch(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.streamName, "stream", "s", "", "stream name")
	cmd.Flags().StringVarP(&opts.accountID, "account", "a", "", "account id")
	cmd.Flags().StringVar(&opts.token, "token", "", "subscriber token for secured streams")
	cmd.Flags().BoolVar(&opts.disableAudio, "disable-audio", false, "do not wait for audio tracks")

	return cmd
}

func runWatch(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	streamName := cfg.Subscription.StreamName
	a.log.Infow("starting viewer",
		"stream_name", streamName,
		"account_id", cfg.Subscription.AccountID,
		"instance_id", a.instanceID,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.publishStates(gctx, a.busSink(gctx, func() string { return streamName }))
	})
	g.Go(func() error {
		err := a.orchestrator.Connect(gctx, streamName, cfg.Subscription.AccountID, a.subscriptionConfig())
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return err
		}
		if err != nil {
			a.log.Warnw("initial connect failed", "error", err)
		}
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	a.log.Infow("stopping viewer", "stream_name", streamName)
	if closeErr := a.close(streamName); closeErr != nil {
		a.log.Errorw("error during shutdown", "error", closeErr)
	}
	return err
}
