package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/kvclient/internal/cluster"
	"github.com/dreamware/kvclient/internal/config"
	"github.com/dreamware/kvclient/internal/devserver"
	"github.com/dreamware/kvclient/internal/health"
	"github.com/dreamware/kvclient/internal/kv"
	"github.com/dreamware/kvclient/internal/members"
	"github.com/dreamware/kvclient/internal/storage"
)

func nodeConfig(id, clientURL string) *config.NodeConfig {
	cfg := config.DefaultNode()
	cfg.ID = id
	cfg.Name = id
	cfg.ClientURL = clientURL
	cfg.PeerURL = "http://" + id + ":2380"
	return cfg
}

// TestServeLifecycle starts a node on a random port, talks to it through the
// client packages and stops it by canceling the context.
func TestServeLifecycle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, nodeConfig("node-1", url), zerolog.Nop()) }()

	c, err := cluster.NewClient([]string{url})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		resp, err := health.Check(context.Background(), c)
		return err == nil && resp.Data.Healthy()
	}, 2*time.Second, 20*time.Millisecond)

	_, err = kv.Set(context.Background(), c, "/k", "v", nil)
	require.NoError(t, err)

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownWait + time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

// TestJoin verifies a node registers its peer URL with a seed, and that a
// second attempt is treated as already joined.
func TestJoin(t *testing.T) {
	seedCfg := nodeConfig("seed", "http://seed:2379")
	seed := httptest.NewServer(devserver.New(seedCfg, storage.NewMemoryStore(), zerolog.Nop(), nil))
	defer seed.Close()

	cfg := nodeConfig("node-2", "http://node-2:2379")
	cfg.Join = []string{seed.URL}

	require.NoError(t, join(context.Background(), cfg, zerolog.Nop()))
	require.NoError(t, join(context.Background(), cfg, zerolog.Nop()))

	c, err := cluster.NewClient([]string{seed.URL})
	require.NoError(t, err)
	list, err := members.List(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, list.Data, 2)
	assert.Equal(t, []string{"http://node-2:2380"}, list.Data[1].PeerURLs)
}

func TestJoinStopsOnCancel(t *testing.T) {
	gone := httptest.NewServer(http.NotFoundHandler())
	goneURL := gone.URL
	gone.Close()

	cfg := nodeConfig("node-2", "http://node-2:2379")
	cfg.Join = []string{goneURL}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := join(ctx, cfg, zerolog.Nop())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJoinRequiresPeerURL(t *testing.T) {
	cfg := nodeConfig("node-2", "http://node-2:2379")
	cfg.PeerURL = ""
	cfg.Join = []string{"http://seed:2379"}

	assert.Error(t, join(context.Background(), cfg, zerolog.Nop()))
}
