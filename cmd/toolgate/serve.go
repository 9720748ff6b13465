package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/polisai/toolgate/pkg/gateway"
	"github.com/polisai/toolgate/pkg/registry"
	"github.com/polisai/toolgate/pkg/telemetry"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides server.address)")
	cmd.Flags().String("registry", "", "Path to the tool registry (overrides registry_path)")
	cmd.Flags().Bool("watch", false, "Reload the registry when the file changes")
	return cmd
}

// runServe is the main entry point for the serve command
func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Address = addr
	}
	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		cfg.WatchRegistry = true
	}
	path, err := registryPath(cmd, cfg)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("Failed to set up telemetry", "error", err)
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	provider, err := registry.NewProvider(path, logger)
	if err != nil {
		logger.Error("Failed to load registry", "path", path, "error", err)
		return err
	}
	defer func() { _ = provider.Close() }()

	a, err := newApp(ctx, cfg, provider, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Failed to close audit store", "error", err)
		}
	}()
	provider.SetRecorder(a.metrics)

	if cfg.WatchRegistry {
		if err := provider.Watch(ctx, func(reg *registry.Registry) {
			logger.Info("Registry reloaded", "tools", reg.Len())
		}); err != nil {
			logger.Warn("Failed to start registry watcher", "error", err)
		}
	}

	server := gateway.NewServer(a.gateway, a.metrics, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sighupChan := make(chan os.Signal, 1)
	signal.Notify(sighupChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)
	defer signal.Stop(sighupChan)

	go func() {
		for {
			select {
			case sig := <-sigChan:
				logger.Info("Received shutdown signal", "signal", sig.String())
				cancel()
				return
			case <-sighupChan:
				if reg, err := provider.Reload(); err != nil {
					logger.Error("Registry reload failed, keeping previous registry", "error", err)
				} else {
					logger.Info("Registry reloaded on SIGHUP", "tools", reg.Len())
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg := cfg.Server.TLS; tlsCfg != nil && tlsCfg.Enabled {
			serverTLS, err := tlsCfg.ServerTLS()
			if err != nil {
				errCh <- err
				return
			}
			errCh <- server.StartTLS(cfg.Server.Address, serverTLS, tlsCfg.CertFile, tlsCfg.KeyFile)
			return
		}
		errCh <- server.Start(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Server error", "error", err)
			return err
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err)
		}
	}

	logger.Info("toolgate stopped")
	return nil
}
