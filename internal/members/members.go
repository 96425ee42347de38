// Package members wraps the cluster membership API (/v2/members).
//
// Every call is sent through cluster.Do and therefore fails over across the
// client's endpoints.
package members

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dreamware/kvclient/internal/cluster"
)

const basePath = "v2/members"

// Member is one server of the cluster.
type Member struct {
	// ID is the cluster-internal identifier, a hex string.
	ID string `json:"id"`
	// Name is the human readable name; empty until the member has started.
	Name       string   `json:"name"`
	PeerURLs   []string `json:"peerURLs"`
	ClientURLs []string `json:"clientURLs"`
}

// ListResponse is the body of GET /v2/members.
type ListResponse struct {
	Members []Member `json:"members"`
}

// PeerURLsRequest is the body of the add and update calls.
type PeerURLsRequest struct {
	PeerURLs []string `json:"peerURLs"`
}

// List returns the members of the cluster.
func List(ctx context.Context, c *cluster.Client) (cluster.Response[[]Member], error) {
	resp, err := cluster.Do[ListResponse](ctx, c, cluster.Request{
		Name:   "members.list",
		Method: http.MethodGet,
		Path:   basePath,
	})
	return cluster.Response[[]Member]{Data: resp.Data.Members, Cluster: resp.Cluster}, err
}

// Add registers a new member reachable at peerURLs. The returned member has
// no name or client URLs until it starts.
func Add(ctx context.Context, c *cluster.Client, peerURLs []string) (cluster.Response[Member], error) {
	return cluster.Do[Member](ctx, c, cluster.Request{
		Name:    "members.add",
		Method:  http.MethodPost,
		Path:    basePath,
		JSON:    PeerURLsRequest{PeerURLs: peerURLs},
		Success: []int{http.StatusCreated},
	})
}

// Delete removes the member with the given id.
func Delete(ctx context.Context, c *cluster.Client, id string) (cluster.Response[struct{}], error) {
	return cluster.Do[struct{}](ctx, c, cluster.Request{
		Name:    "members.delete",
		Method:  http.MethodDelete,
		Path:    memberPath(id),
		Success: []int{http.StatusNoContent},
	})
}

// Update replaces the peer URLs of the member with the given id.
func Update(ctx context.Context, c *cluster.Client, id string, peerURLs []string) (cluster.Response[struct{}], error) {
	return cluster.Do[struct{}](ctx, c, cluster.Request{
		Name:    "members.update",
		Method:  http.MethodPut,
		Path:    memberPath(id),
		JSON:    PeerURLsRequest{PeerURLs: peerURLs},
		Success: []int{http.StatusNoContent},
	})
}

func memberPath(id string) string {
	return basePath + "/" + url.PathEscape(id)
}
