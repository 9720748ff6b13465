// Package main is the entry point for the toolgate binary.
// It serves the tool-invocation gateway and offers offline helpers for
// validating registries, issuing single calls and reading the audit trail.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/polisai/toolgate/pkg/config"
	"github.com/polisai/toolgate/pkg/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for toolgate
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "toolgate",
		Short: "Tool-invocation gateway",
		Long: `toolgate sits between an LLM orchestrator and its tool backends.

It resolves named tool calls against a registry, enforces per-tool policy,
injects backend credentials, forwards to HTTP backends or runs local scripts,
and records a redacted audit event for every call.

Example:
  toolgate serve --config toolgate.yaml
  toolgate validate registry.yaml
  toolgate call graph_query --registry registry.yaml --args '{"query":"MATCH (n) RETURN n"}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to gateway configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json, text)")

	rootCmd.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newCallCmd(),
		newAuditCmd(),
	)
	return rootCmd
}

// loadConfig reads the gateway configuration and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logCfg := cfg.Logging
	logCfg.Output = cmd.ErrOrStderr()
	logger := logging.NewLogger(logCfg)
	slog.SetDefault(logger)
	return logger
}

// registryPath resolves the registry location from a flag, then config.
func registryPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if path, _ := cmd.Flags().GetString("registry"); path != "" {
		return path, nil
	}
	if cfg.RegistryPath != "" {
		return cfg.RegistryPath, nil
	}
	return "", fmt.Errorf("no registry configured: set registry_path or pass --registry")
}
