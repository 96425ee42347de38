// Package cluster is the HTTP transport shared by the kvclient API packages.
//
// # Overview
//
// A Client knows the base URLs of the cluster members it may talk to. Each
// API call is described once as a Request (method, relative path, query,
// body, expected status codes) and handed to Do, which sends it to the
// members one after the other through a failover.Driver:
//
//	client ──► Do ──► failover.Driver
//	                    │
//	                    ├─► http://node-1:2379/v2/members   (connection refused)
//	                    ├─► http://node-2:2379/v2/members   (503, structured error)
//	                    └─► http://node-3:2379/v2/members   (200) ──► Response[T]
//
// # Classifying an answer
//
// Every endpoint attempt ends in exactly one of:
//
//   - success: the status is listed in Request.Success and the body decodes
//     into T (an empty body gives the zero T)
//   - *APIError: any other status whose body is a structured error
//   - *SerializationError: a body that could not be decoded
//   - *TransportError: no response at all (dial, TLS, timeout, cancellation)
//
// Failures are wrapped in *EndpointError so callers can tell which member
// said what. If no member succeeds, Do returns failover.Errors in the order
// the members were tried.
//
// # Cluster metadata
//
// Responses carry the X-Etcd-Cluster-Id, X-Etcd-Index, X-Raft-Index and
// X-Raft-Term headers of the member that answered; Do exposes them as
// Response.Cluster.
//
// # Observability
//
// Each call gets a uuid request id (sent as X-Request-Id), an otel span with
// one event per attempt, debug log lines per attempt, and prometheus
// counters when a metrics.Registry is configured.
//
// # Timeouts
//
// WithTimeout bounds a single attempt, not the whole call; a call across n
// unreachable members can take up to n timeouts. Use a context deadline to
// bound the call as a whole.
package cluster
