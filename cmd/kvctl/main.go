package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreamware/kvclient/internal/cluster"
	"github.com/dreamware/kvclient/internal/config"
	"github.com/dreamware/kvclient/internal/failover"
	"github.com/dreamware/kvclient/internal/logging"
)

var version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		reportError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kvctl",
		Short: "kvctl - command-line client for the key-value cluster",
		Long: `kvctl talks to a key-value cluster over its HTTP API.

Every request is sent to the configured endpoints one at a time, in order,
until one of them answers successfully. If none does, kvctl prints what
each endpoint said and exits non-zero.

Endpoints come from --endpoints, the KV_ENDPOINTS environment variable or
the endpoints list of a --config file, in that order of precedence.

Examples:
  kvctl --endpoints http://10.0.0.1:2379,http://10.0.0.2:2379 member list
  kvctl set /config/mode active --ttl 60
  kvctl set /config/mode standby --prev-value active
  kvctl get /config --recursive
  kvctl rm /config --recursive
  kvctl endpoint status`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringSlice("endpoints", nil, "Comma separated cluster endpoints, tried in order")
	root.PersistentFlags().String("config", "", "YAML config file")
	root.PersistentFlags().Duration("timeout", 0, "Per-endpoint request timeout (default from config, 5s)")
	root.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	root.PersistentFlags().String("log-format", "", "Log format: console, json")

	root.AddCommand(newMemberCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newSetCmd())
	root.AddCommand(newMkCmd())
	root.AddCommand(newUpdateCmd())
	root.AddCommand(newRmCmd())
	root.AddCommand(newHealthCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newEndpointCmd())
	return root
}

// loadConfig layers the global flags over the config file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("endpoints") {
		cfg.Endpoints, _ = cmd.Flags().GetStringSlice("endpoints")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat, _ = cmd.Flags().GetString("log-format")
	}
	return cfg, nil
}

func newClient(cmd *cobra.Command) (*cluster.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

	opts := []cluster.Option{cluster.WithLogger(log)}
	if cfg.Timeout > 0 {
		opts = append(opts, cluster.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts, cluster.WithBasicAuth(cfg.Username, cfg.Password))
	}
	return cluster.NewClient(cfg.Endpoints, opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// reportError prints err for a human. A failover error is expanded to one
// line per endpoint, in the order they were tried.
func reportError(w io.Writer, err error) {
	var errs failover.Errors
	if !errors.As(err, &errs) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	if len(errs) == 0 {
		fmt.Fprintln(w, "Error: no endpoints configured")
		return
	}

	// A bare Errors means every endpoint was tried; anything wrapping it
	// means the command was interrupted part way.
	if _, exhausted := err.(failover.Errors); exhausted {
		fmt.Fprintf(w, "Error: all %d endpoint(s) failed:\n", len(errs))
	} else {
		fmt.Fprintf(w, "Error: %v\n", err)
		fmt.Fprintf(w, "Tried %d endpoint(s):\n", len(errs))
	}
	for _, e := range errs {
		var epErr *cluster.EndpointError
		if errors.As(e, &epErr) {
			fmt.Fprintf(w, "  %s: %v\n", epErr.Endpoint, epErr.Err)
			continue
		}
		fmt.Fprintf(w, "  %v\n", e)
	}
}
