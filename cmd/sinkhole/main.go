package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haukened/dns-sinkhole/internal/dns/common/log"
	"github.com/haukened/dns-sinkhole/internal/dns/config"
	"github.com/haukened/dns-sinkhole/internal/dns/domain"
	"github.com/haukened/dns-sinkhole/internal/dns/gateways/invalidation"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "sinkhole"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           appName,
		Short:         "Filtering DNS forwarder backed by categorized blocklists",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default $"+config.ConfigFileEnv+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Answer DNS queries and refresh the blocklist on schedule",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cmd, configPath)
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return serve(ctx, cfg)
			},
		},
		&cobra.Command{
			Use:   "ingest",
			Short: "Ingest every enabled feed once and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cmd, configPath)
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return ingestOnce(ctx, cfg, cmd)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
			},
		},
	)
	return root
}

// loadConfig loads configuration and configures global logging.
func loadConfig(cmd *cobra.Command, path string) (*config.AppConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Configuration error: %v\n", err)
		return nil, err
	}
	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Logging configuration error: %v\n", err)
		return nil, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	logger := log.GetLogger()
	logger.Info(map[string]any{
		"version":   version,
		"env":       cfg.Env,
		"log_level": cfg.Log.Level,
		"port":      cfg.Server.Port,
		"driver":    cfg.Blocklist.Driver,
		"upstreams": cfg.Upstream.Servers,
	}, "Starting DNS sinkhole")

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error(map[string]any{"error": err}, "Failed to build application")
		return err
	}
	if err := app.Run(ctx); err != nil {
		logger.Error(map[string]any{"error": err}, "Server failed")
		return err
	}
	logger.Info(nil, "DNS sinkhole stopped gracefully")
	return nil
}

// errIngestFailed is returned when at least one feed could not be ingested.
var errIngestFailed = errors.New("one or more feeds failed to ingest")

func ingestOnce(ctx context.Context, cfg *config.AppConfig, cmd *cobra.Command) error {
	logger := log.GetLogger()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline := newPipeline(cfg, store, nil, logger)
	// Serving processes only learn about new rows through the bus.
	if cfg.Redis.URL != "" {
		client, err := invalidation.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		pipeline.AddInvalidator(invalidation.NewBus(client, cfg.Redis.Channel, log.Component(logger, "invalidation")))
	}
	results := pipeline.IngestAll(ctx, cfg.BlocklistFeeds())
	return reportResults(cmd, results)
}

func reportResults(cmd *cobra.Command, results []domain.IngestResult) error {
	out := cmd.OutOrStdout()
	failed := false
	for _, r := range results {
		if r.Failed() {
			failed = true
			fmt.Fprintf(out, "%-20s error: %v\n", r.Category, r.Err)
			continue
		}
		fmt.Fprintf(out, "%-20s inserted %d\n", r.Category, r.Inserted)
	}
	if failed {
		return errIngestFailed
	}
	return nil
}
