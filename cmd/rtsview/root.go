package main

import (
	"fmt"

	"rtsview/pkg/config"

	"github.com/spf13/cobra"
)

var defaultConfigPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/rtsview/config.yaml",
	"config.yaml",
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "rtsview",
		Short:         "Headless real-time stream viewer",
		Long:          "rtsview subscribes to a Millicast real-time stream and keeps the session alive: it tracks sources, binds renderers and reconnects on failure.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: first of configs/config.yaml, /etc/rtsview/config.yaml, config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(newWatchCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))

	return rootCmd
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	paths := defaultConfigPaths
	if o.configPath != "" {
		paths = []string{o.configPath}
	}

	var (
		cfg *config.Config
		err error
	)
	for _, path := range paths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}
