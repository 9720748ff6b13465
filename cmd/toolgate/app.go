package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/polisai/toolgate/pkg/audit"
	"github.com/polisai/toolgate/pkg/config"
	"github.com/polisai/toolgate/pkg/credentials"
	"github.com/polisai/toolgate/pkg/forward"
	"github.com/polisai/toolgate/pkg/gateway"
	"github.com/polisai/toolgate/pkg/metrics"
	"github.com/polisai/toolgate/pkg/policy"
	"github.com/polisai/toolgate/pkg/script"
)

// app owns every long-lived component built from the configuration.
type app struct {
	gateway *gateway.Gateway
	metrics *metrics.Metrics
	sink    *audit.SQLiteSink
	logger  *slog.Logger
}

// newApp wires a gateway around source using cfg.
func newApp(ctx context.Context, cfg *config.Config, source gateway.RegistrySource, logger *slog.Logger) (*app, error) {
	secrets, err := secretSource(cfg.Secrets)
	if err != nil {
		return nil, err
	}

	var sinks []audit.Sink
	var sink *audit.SQLiteSink
	if cfg.Audit.SQLitePath != "" {
		sink, err = audit.OpenSQLiteSink(ctx, cfg.Audit.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		sinks = append(sinks, sink)
	}

	m := metrics.New(logger)
	gw, err := gateway.New(gateway.Options{
		Registry:  source,
		Enforcer:  policy.NewEnforcer(),
		Resolver:  credentials.NewResolver(secrets, cfg.Secrets.ServiceTokenKey),
		Forwarder: forward.New(logger),
		Runner:    script.NewRunner(logger),
		Audit:     audit.NewLogger(logger, sinks...),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		if sink != nil {
			_ = sink.Close()
		}
		return nil, err
	}

	return &app{gateway: gw, metrics: m, sink: sink, logger: logger}, nil
}

func secretSource(cfg config.SecretsConfig) (credentials.SecretSource, error) {
	if cfg.DotenvFile == "" {
		return credentials.EnvSource{}, nil
	}
	src, err := credentials.NewDotenvSource(cfg.DotenvFile, credentials.EnvSource{})
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}
	return src, nil
}

// Close flushes the audit store.
func (a *app) Close() error {
	var errs []error
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	return errors.Join(errs...)
}
