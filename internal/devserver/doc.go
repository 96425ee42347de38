// Package devserver is a single-process stand-in for a cluster member.
//
// It speaks the subset of the HTTP API the client packages use, with the
// same status codes, error bodies and X-Etcd-* headers, so the clients can be
// exercised end to end without a real cluster:
//
//	GET    /health              {"health":"true"}
//	GET    /version             {"etcdserver":..., "etcdcluster":...}
//	GET    /v2/members          list
//	POST   /v2/members          add (201), 409 if a peer URL is taken
//	DELETE /v2/members/{id}     remove (204), 404 if unknown
//	PUT    /v2/members/{id}     replace peer URLs (204)
//	GET    /v2/keys/{key}       read a key or implicit directory
//	PUT    /v2/keys/{key}       set, create, update or compare-and-swap
//	DELETE /v2/keys/{key}       delete or compare-and-delete
//	GET    /metrics             prometheus exposition, when a registry is set
//
// Keys live in a storage.Store. Directories are implicit: "/a" is a
// directory while some key below "/a/" exists and "/a" itself holds no
// value. The store index doubles as X-Etcd-Index and X-Raft-Index.
//
// Several Servers behind httptest listeners make a convenient multi-member
// cluster, but they share nothing: each has its own keyspace and member
// list. There is no replication.
package devserver
