package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/polisai/toolgate/pkg/audit"
	"github.com/polisai/toolgate/pkg/domain"
	"github.com/polisai/toolgate/pkg/registry"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <registry.yaml>",
		Short: "Validate a tool registry file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "registry OK: %d tools\n", reg.Len())
			for _, tool := range reg.Tools() {
				fmt.Fprintf(out, "  %s -> %s (%s)\n", tool.Name, tool.Backend, tool.Type)
			}
			return nil
		},
	}
}

// errCallFailed signals a failed call whose result was already printed.
type errCallFailed struct {
	status int
	code   string
}

func (e *errCallFailed) Error() string {
	if e.code == "" {
		return fmt.Sprintf("tool call failed with status %d", e.status)
	}
	return fmt.Sprintf("tool call failed with status %d (%s)", e.status, e.code)
}

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Execute a single tool call in-process and print the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runCall,
	}
	cmd.Flags().String("registry", "", "Path to the tool registry (overrides registry_path)")
	cmd.Flags().String("args", "{}", "Tool arguments as a JSON object")
	cmd.Flags().StringArrayP("header", "H", nil, "Caller header as 'Name: value' (repeatable)")
	cmd.Flags().String("request-id", "", "Request ID to record (default: random UUID)")
	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := registryPath(cmd, cfg)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	reg, err := registry.LoadFile(path)
	if err != nil {
		return err
	}

	rawArgs, _ := cmd.Flags().GetString("args")
	if !json.Valid([]byte(rawArgs)) {
		return fmt.Errorf("--args is not valid JSON")
	}
	headerFlags, _ := cmd.Flags().GetStringArray("header")
	headers, err := parseHeaders(headerFlags)
	if err != nil {
		return err
	}
	requestID, _ := cmd.Flags().GetString("request-id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	a, err := newApp(cmd.Context(), cfg, reg, logger)
	if err != nil {
		return err
	}
	result := a.gateway.Call(cmd.Context(), domain.ToolCallRequest{
		RequestID: requestID,
		ToolName:  args[0],
		Arguments: json.RawMessage(rawArgs),
		Headers:   headers,
	})
	if err := a.Close(); err != nil {
		logger.Warn("Failed to close audit store", "error", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if !result.Success {
		failure := &errCallFailed{status: result.Status}
		if result.Error != nil {
			failure.code = result.Error.Code
		}
		return failure
	}
	return nil
}

func parseHeaders(values []string) (http.Header, error) {
	headers := make(http.Header, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected 'Name: value'", v)
		}
		headers.Add(name, strings.TrimSpace(value))
	}
	return headers, nil
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print recorded audit events from the SQLite audit store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("db")
			if path == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				path = cfg.Audit.SQLitePath
			}
			if path == "" {
				return fmt.Errorf("no audit store configured: set audit.sqlite_path or pass --db")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			events, err := audit.ReadEvents(cmd.Context(), path, limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, ev := range events {
					if err := enc.Encode(ev); err != nil {
						return err
					}
				}
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tREQUEST\tTOOL\tBACKEND\tSTATUS\tMS\tOUTCOME")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"), ev.RequestID, ev.ToolName,
					ev.Backend, ev.Status, ev.DurationMS, ev.Outcome)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("db", "", "Path to the SQLite audit store (overrides audit.sqlite_path)")
	cmd.Flags().Int("limit", 50, "Show only the most recent N events (0 for all)")
	cmd.Flags().Bool("json", false, "Print events as JSON lines")
	return cmd
}
