// Package storage provides the versioned in-memory keyspace behind the dev
// node.
//
// # Overview
//
// MemoryStore keeps one Entry per key. Every successful Put or Delete bumps
// a single store-wide index; the entry written records that index as its
// ModifiedIndex, and keeps the CreatedIndex of the first write. The index is
// what clients compare against in compare-and-swap and compare-and-delete.
//
//	Put("/a", "1")  index=1  /a{created=1 modified=1}
//	Put("/b", "x")  index=2  /b{created=2 modified=2}
//	Put("/a", "2")  index=3  /a{created=1 modified=3}
//	Delete("/b")    index=4
//
// # Preconditions
//
// Writes and deletes take a Precondition:
//
//   - PrevExist=false: create only, ErrKeyExists if the key is live
//   - PrevExist=true: update only, ErrKeyNotFound if it is not
//   - PrevValue / PrevIndex: ErrKeyNotFound if missing, ErrCompareFailed
//     if the live entry differs
//
// A failed precondition leaves the index unchanged.
//
// # Expiry
//
// Put with a positive ttl sets Entry.Expires. Expired entries are invisible
// to every read and to precondition checks; they stay in the map until their
// key is written again.
//
// # Concurrency
//
// All methods are safe for concurrent use. Reads take a read lock, writes an
// exclusive lock. Values are copied in and out, so callers may reuse their
// buffers.
package storage
