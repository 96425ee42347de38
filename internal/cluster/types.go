package cluster

import (
	"fmt"
	"net/http"
	"strconv"
)

// Headers set by cluster members on every v2 API response.
const (
	HeaderClusterID = "X-Etcd-Cluster-Id"
	HeaderEtcdIndex = "X-Etcd-Index"
	HeaderRaftIndex = "X-Raft-Index"
	HeaderRaftTerm  = "X-Raft-Term"
	HeaderRequestID = "X-Request-Id"
)

// ClusterInfo is the cluster metadata the answering member attached to its
// response. Fields are nil when the header was missing or malformed.
type ClusterInfo struct {
	ClusterID string  `json:"cluster_id,omitempty"`
	EtcdIndex *uint64 `json:"etcd_index,omitempty"`
	RaftIndex *uint64 `json:"raft_index,omitempty"`
	RaftTerm  *uint64 `json:"raft_term,omitempty"`
}

// ParseClusterInfo reads the X-Etcd-* and X-Raft-* headers.
func ParseClusterInfo(h http.Header) ClusterInfo {
	return ClusterInfo{
		ClusterID: h.Get(HeaderClusterID),
		EtcdIndex: headerUint(h, HeaderEtcdIndex),
		RaftIndex: headerUint(h, HeaderRaftIndex),
		RaftTerm:  headerUint(h, HeaderRaftTerm),
	}
}

func headerUint(h http.Header, name string) *uint64 {
	raw := h.Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Response pairs decoded data with the answering member's cluster info.
type Response[T any] struct {
	Data    T           `json:"data"`
	Cluster ClusterInfo `json:"cluster"`
}

// APIError is the structured error body returned for non-success statuses.
// The keys API fills every field; the members API only sets Message.
type APIError struct {
	ErrorCode int    `json:"errorCode,omitempty"`
	Message   string `json:"message"`
	Cause     string `json:"cause,omitempty"`
	Index     uint64 `json:"index,omitempty"`

	// StatusCode is the HTTP status the body arrived with.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Cause != "" {
		msg += " (" + e.Cause + ")"
	}
	if e.ErrorCode != 0 {
		return fmt.Sprintf("api error %d: %s [status %d]", e.ErrorCode, msg, e.StatusCode)
	}
	return fmt.Sprintf("api error: %s [status %d]", msg, e.StatusCode)
}

// TransportError means no HTTP response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// SerializationError means a response body could not be decoded.
type SerializationError struct {
	StatusCode int
	Err        error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("decode response (status %d): %v", e.StatusCode, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// EndpointError attributes a failure to the endpoint that produced it.
type EndpointError struct {
	Endpoint string
	Err      error
}

func (e *EndpointError) Error() string { return e.Endpoint + ": " + e.Err.Error() }
func (e *EndpointError) Unwrap() error { return e.Err }
