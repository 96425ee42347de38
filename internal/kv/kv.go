// Package kv wraps the keys API (/v2/keys).
//
// Writes can be made conditional on the current value or modification index
// of a key with ComparisonConditions. All calls fail over across the
// client's endpoints through cluster.Do.
package kv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dreamware/kvclient/internal/cluster"
)

// ErrInvalidConditions is returned by the compare-and-* calls when no
// condition was given. Such a call is rejected before any request is sent.
var ErrInvalidConditions = errors.New("kv: at least one comparison condition is required")

// ErrInvalidKey is returned, before any request is sent, for a key with a
// "." or ".." segment.
var ErrInvalidKey = errors.New("kv: key must not contain . or .. segments")

// Error codes returned by cluster members in APIError.ErrorCode.
const (
	ErrorCodeKeyNotFound   = 100
	ErrorCodeTestFailed    = 101
	ErrorCodeNotFile       = 102
	ErrorCodeNodeExist     = 105
	ErrorCodeValueRequired = 200
	ErrorCodeTTLNaN        = 202
	ErrorCodeIndexNaN      = 203
)

// ComparisonConditions guard a write. Each non-nil field must match the
// key's current state for the write to happen.
type ComparisonConditions struct {
	ModifiedIndex *uint64
	Value         *string
}

// IsEmpty reports whether no condition is set.
func (c ComparisonConditions) IsEmpty() bool {
	return c.ModifiedIndex == nil && c.Value == nil
}

func (c ComparisonConditions) apply(q url.Values) {
	if c.ModifiedIndex != nil {
		q.Set("prevIndex", strconv.FormatUint(*c.ModifiedIndex, 10))
	}
	if c.Value != nil {
		q.Set("prevValue", *c.Value)
	}
}

// Node is a key, or a directory of keys, in the keyspace.
type Node struct {
	Key           string  `json:"key"`
	Value         *string `json:"value,omitempty"`
	Dir           bool    `json:"dir,omitempty"`
	TTL           *int64  `json:"ttl,omitempty"`
	Expiration    *string `json:"expiration,omitempty"`
	CreatedIndex  uint64  `json:"createdIndex,omitempty"`
	ModifiedIndex uint64  `json:"modifiedIndex,omitempty"`
	Nodes         []Node  `json:"nodes,omitempty"`
}

// KeyValueInfo is the body of every keys API response.
type KeyValueInfo struct {
	Action   string `json:"action"`
	Node     Node   `json:"node"`
	PrevNode *Node  `json:"prevNode,omitempty"`
}

// GetOptions tune Get.
type GetOptions struct {
	// Recursive returns every key below a directory.
	Recursive bool
	// Sort orders directory children by key.
	Sort bool
	// Strong asks for a quorum read instead of the answering member's view.
	Strong bool
}

// Get reads a key or directory.
func Get(ctx context.Context, c *cluster.Client, key string, opts GetOptions) (cluster.Response[KeyValueInfo], error) {
	q := url.Values{}
	if opts.Recursive {
		q.Set("recursive", "true")
	}
	if opts.Sort {
		q.Set("sorted", "true")
	}
	if opts.Strong {
		q.Set("quorum", "true")
	}
	path, err := keyPath(key)
	if err != nil {
		return cluster.Response[KeyValueInfo]{}, err
	}
	return cluster.Do[KeyValueInfo](ctx, c, cluster.Request{
		Name:   "kv.get",
		Method: http.MethodGet,
		Path:   path,
		Query:  q,
	})
}

// Set writes value to key whether or not it exists. ttl, when non-nil, is
// the lifetime of the key in seconds.
func Set(ctx context.Context, c *cluster.Client, key, value string, ttl *uint64) (cluster.Response[KeyValueInfo], error) {
	return write(ctx, c, "kv.set", key, value, ttl, nil, http.StatusOK, http.StatusCreated)
}

// Create writes key only if it does not exist yet.
func Create(ctx context.Context, c *cluster.Client, key, value string, ttl *uint64) (cluster.Response[KeyValueInfo], error) {
	q := url.Values{"prevExist": {"false"}}
	return write(ctx, c, "kv.create", key, value, ttl, q, http.StatusCreated)
}

// Update writes key only if it already exists.
func Update(ctx context.Context, c *cluster.Client, key, value string, ttl *uint64) (cluster.Response[KeyValueInfo], error) {
	q := url.Values{"prevExist": {"true"}}
	return write(ctx, c, "kv.update", key, value, ttl, q, http.StatusOK)
}

// CompareAndSwap writes key only if cond matches its current state.
func CompareAndSwap(ctx context.Context, c *cluster.Client, key, value string, ttl *uint64, cond ComparisonConditions) (cluster.Response[KeyValueInfo], error) {
	if cond.IsEmpty() {
		return cluster.Response[KeyValueInfo]{}, ErrInvalidConditions
	}
	q := url.Values{}
	cond.apply(q)
	return write(ctx, c, "kv.compare_and_swap", key, value, ttl, q, http.StatusOK)
}

// Delete removes key. recursive is required to remove a directory.
func Delete(ctx context.Context, c *cluster.Client, key string, recursive bool) (cluster.Response[KeyValueInfo], error) {
	q := url.Values{}
	if recursive {
		q.Set("recursive", "true")
	}
	return remove(ctx, c, "kv.delete", key, q)
}

// CompareAndDelete removes key only if cond matches its current state.
func CompareAndDelete(ctx context.Context, c *cluster.Client, key string, cond ComparisonConditions) (cluster.Response[KeyValueInfo], error) {
	if cond.IsEmpty() {
		return cluster.Response[KeyValueInfo]{}, ErrInvalidConditions
	}
	q := url.Values{}
	cond.apply(q)
	return remove(ctx, c, "kv.compare_and_delete", key, q)
}

func write(ctx context.Context, c *cluster.Client, name, key, value string, ttl *uint64, q url.Values, success ...int) (cluster.Response[KeyValueInfo], error) {
	path, err := keyPath(key)
	if err != nil {
		return cluster.Response[KeyValueInfo]{}, err
	}
	form := url.Values{"value": {value}}
	if ttl != nil {
		form.Set("ttl", strconv.FormatUint(*ttl, 10))
	}
	return cluster.Do[KeyValueInfo](ctx, c, cluster.Request{
		Name:    name,
		Method:  http.MethodPut,
		Path:    path,
		Query:   q,
		Form:    form,
		Success: success,
	})
}

func remove(ctx context.Context, c *cluster.Client, name, key string, q url.Values) (cluster.Response[KeyValueInfo], error) {
	path, err := keyPath(key)
	if err != nil {
		return cluster.Response[KeyValueInfo]{}, err
	}
	return cluster.Do[KeyValueInfo](ctx, c, cluster.Request{
		Name:   name,
		Method: http.MethodDelete,
		Path:   path,
		Query:  q,
	})
}

// keyPath maps "/foo/bar" to "v2/keys/foo/bar", escaping each segment.
// Empty segments are dropped so the path is already in the clean form a
// member routes without redirecting.
func keyPath(key string) (string, error) {
	var segments []string
	for _, s := range strings.Split(key, "/") {
		switch s {
		case "":
			continue
		case ".", "..":
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		segments = append(segments, url.PathEscape(s))
	}
	return "v2/keys/" + strings.Join(segments, "/"), nil
}

// IsKeyNotFound reports whether err carries the key-not-found error code
// from any endpoint.
func IsKeyNotFound(err error) bool {
	return hasCode(err, ErrorCodeKeyNotFound)
}

// IsKeyExists reports whether a create hit a key that already exists.
func IsKeyExists(err error) bool {
	return hasCode(err, ErrorCodeNodeExist)
}

// IsCompareFailed reports whether a compare-and-* precondition did not hold.
func IsCompareFailed(err error) bool {
	return hasCode(err, ErrorCodeTestFailed)
}

func hasCode(err error, code int) bool {
	var apiErr *cluster.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == code
}
