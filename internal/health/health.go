// Package health wraps the liveness and version endpoints. Both answer from
// the first reachable member, so they describe that member, not the whole
// cluster.
package health

import (
	"context"
	"net/http"

	"github.com/dreamware/kvclient/internal/cluster"
)

// Status is the body of GET /health.
type Status struct {
	Health string `json:"health"`
}

// Healthy reports whether the member considers itself healthy.
func (s Status) Healthy() bool {
	return s.Health == "true"
}

// VersionInfo is the body of GET /version.
type VersionInfo struct {
	Server  string `json:"etcdserver"`
	Cluster string `json:"etcdcluster"`
}

// Check queries GET /health.
func Check(ctx context.Context, c *cluster.Client) (cluster.Response[Status], error) {
	return cluster.Do[Status](ctx, c, cluster.Request{
		Name:   "health.check",
		Method: http.MethodGet,
		Path:   "health",
	})
}

// Version queries GET /version.
func Version(ctx context.Context, c *cluster.Client) (cluster.Response[VersionInfo], error) {
	return cluster.Do[VersionInfo](ctx, c, cluster.Request{
		Name:   "health.version",
		Method: http.MethodGet,
		Path:   "version",
	})
}
