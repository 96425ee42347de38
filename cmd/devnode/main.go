// Package main implements devnode, a single in-memory cluster member for
// local development and testing of the kvclient packages.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                devnode                  │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /health       - Liveness             │
//	│    /version      - Server version       │
//	│    /v2/members   - Membership           │
//	│    /v2/keys/*    - Keyspace             │
//	│    /metrics      - Prometheus           │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    devserver     - API handlers         │
//	│    MemoryStore   - Versioned keyspace   │
//	│    join          - Seed registration    │
//	└─────────────────────────────────────────┘
//
// Configuration (environment, or a YAML file named by NODE_CONFIG):
//   - NODE_ID: Unique node identifier (required)
//   - NODE_LISTEN: Listen address (default: ":2379")
//   - NODE_ADDR: Client URL advertised in the member list
//   - NODE_PEER_ADDR: Peer URL advertised in the member list
//   - NODE_CLUSTER_ID: Value of X-Etcd-Cluster-Id (default: "dev-cluster")
//   - NODE_JOIN: Comma separated client URLs of a cluster to register with
//   - NODE_LOG_LEVEL, NODE_LOG_FORMAT: Logging
//
// Example usage:
//
//	NODE_ID=node-1 NODE_LISTEN=:2379 NODE_ADDR=http://localhost:2379 ./devnode
//	NODE_ID=node-2 NODE_LISTEN=:22379 NODE_ADDR=http://localhost:22379 \
//	  NODE_PEER_ADDR=http://localhost:22380 NODE_JOIN=http://localhost:2379 ./devnode
//
//	kvctl --endpoints http://localhost:2379,http://localhost:22379 set /greeting hello
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/kvclient/internal/cluster"
	"github.com/dreamware/kvclient/internal/config"
	"github.com/dreamware/kvclient/internal/devserver"
	"github.com/dreamware/kvclient/internal/logging"
	"github.com/dreamware/kvclient/internal/members"
	"github.com/dreamware/kvclient/internal/metrics"
	"github.com/dreamware/kvclient/internal/storage"
)

// exit is a variable so tests can intercept process termination.
var exit = os.Exit

const (
	joinAttempts = 10
	joinBackoff  = 400 * time.Millisecond
	shutdownWait = 5 * time.Second
)

func main() {
	cfg, err := config.LoadNode(os.Getenv("NODE_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "devnode: %v\n", err)
		exit(1)
		return
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Error().Err(err).Str("listen", cfg.Listen).Msg("listen failed")
		exit(1)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, ln, cfg, log); err != nil {
		log.Error().Err(err).Msg("devnode failed")
		exit(1)
	}
}

// serve runs the node on ln until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, cfg *config.NodeConfig, log zerolog.Logger) error {
	srv := devserver.New(cfg, storage.NewMemoryStore(), log, metrics.NewRegistry())
	httpSrv := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("node", cfg.ID).
			Str("member_id", srv.MemberID()).
			Str("listen", ln.Addr().String()).
			Str("client_url", cfg.ClientURL).
			Msg("devnode listening")
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if len(cfg.Join) > 0 {
		go func() {
			if err := join(ctx, cfg, log); err != nil {
				log.Error().Err(err).Strs("seeds", cfg.Join).Msg("could not join cluster, running standalone")
			}
		}()
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("devnode stopped")
	return nil
}

// join registers this node's peer URL with the seed cluster, retrying while
// the seeds start up. Being registered already counts as success.
func join(ctx context.Context, cfg *config.NodeConfig, log zerolog.Logger) error {
	if cfg.PeerURL == "" {
		return errors.New("join requires a peer URL")
	}
	c, err := cluster.NewClient(cfg.Join, cluster.WithLogger(log))
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < joinAttempts; i++ {
		resp, err := members.Add(ctx, c, []string{cfg.PeerURL})
		if err == nil {
			log.Info().Str("member_id", resp.Data.ID).Strs("seeds", cfg.Join).Msg("joined cluster")
			return nil
		}
		var apiErr *cluster.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			log.Info().Strs("seeds", cfg.Join).Msg("already a member")
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", i+1).Msg("join retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(joinBackoff):
		}
	}
	return fmt.Errorf("join failed after %d attempts: %w", joinAttempts, lastErr)
}
