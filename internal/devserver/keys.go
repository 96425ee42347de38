package devserver

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/kvclient/internal/cluster"
	"github.com/dreamware/kvclient/internal/kv"
	"github.com/dreamware/kvclient/internal/storage"
)

// Actions reported in keys API responses.
const (
	actionGet              = "get"
	actionSet              = "set"
	actionCreate           = "create"
	actionUpdate           = "update"
	actionCompareAndSwap   = "compareAndSwap"
	actionDelete           = "delete"
	actionCompareAndDelete = "compareAndDelete"
)

// keyFromPath maps "/v2/keys/foo/bar/" to "/foo/bar" and "/v2/keys" to "/".
func keyFromPath(p string) string {
	rest := strings.Trim(strings.TrimPrefix(p, keysPath), "/")
	return "/" + rest
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	key := keyFromPath(r.URL.Path)
	if err := r.ParseForm(); err != nil {
		s.writeKeyError(w, http.StatusBadRequest, kv.ErrorCodeValueRequired, "Invalid form", err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getKey(w, r, key)
	case http.MethodPut:
		s.putKey(w, r, key)
	case http.MethodDelete:
		s.deleteKey(w, r, key)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request, key string) {
	if e, err := s.store.Get(key); err == nil {
		writeJSON(w, http.StatusOK, kv.KeyValueInfo{Action: actionGet, Node: s.leaf(e)})
		return
	}

	children := s.store.List(key)
	if len(children) == 0 && key != "/" {
		s.writeKeyError(w, http.StatusNotFound, kv.ErrorCodeKeyNotFound, "Key not found", key)
		return
	}
	recursive := r.Form.Get("recursive") == "true"
	writeJSON(w, http.StatusOK, kv.KeyValueInfo{Action: actionGet, Node: s.dir(key, children, recursive)})
}

func (s *Server) putKey(w http.ResponseWriter, r *http.Request, key string) {
	if !r.Form.Has("value") {
		s.writeKeyError(w, http.StatusBadRequest, kv.ErrorCodeValueRequired, "Value is Required in POST form", "")
		return
	}
	value := r.Form.Get("value")

	var ttl time.Duration
	if raw := r.Form.Get("ttl"); raw != "" {
		secs, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			s.writeKeyError(w, http.StatusBadRequest, kv.ErrorCodeTTLNaN, "The given TTL in POST form is not a number", "")
			return
		}
		ttl = time.Duration(secs) * time.Second
	}

	pre, ok := s.precondition(w, r.Form)
	if !ok {
		return
	}

	prev, cur, err := s.store.Put(key, []byte(value), ttl, pre)
	if err != nil {
		s.writeStoreError(w, err, key, pre)
		return
	}

	action, status := actionSet, http.StatusOK
	switch {
	case pre.PrevExist != nil && !*pre.PrevExist:
		action, status = actionCreate, http.StatusCreated
	case pre.PrevExist != nil && *pre.PrevExist:
		action = actionUpdate
	case pre.PrevValue != nil || pre.PrevIndex != 0:
		action = actionCompareAndSwap
	case prev == nil:
		status = http.StatusCreated
	}

	info := kv.KeyValueInfo{Action: action, Node: s.leaf(cur)}
	if prev != nil {
		p := s.leaf(*prev)
		info.PrevNode = &p
	}
	writeJSON(w, status, info)
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request, key string) {
	pre, ok := s.precondition(w, r.Form)
	if !ok {
		return
	}
	if pre.PrevExist != nil {
		s.writeKeyError(w, http.StatusBadRequest, kv.ErrorCodeValueRequired, "prevExist is not supported on delete", "")
		return
	}
	conditional := pre.PrevValue != nil || pre.PrevIndex != 0

	if r.Form.Get("recursive") == "true" && !conditional {
		s.deleteTree(w, key)
		return
	}

	old, err := s.store.Delete(key, pre)
	if err != nil {
		s.writeStoreError(w, err, key, pre)
		return
	}
	action := actionDelete
	if conditional {
		action = actionCompareAndDelete
	}
	s.writeDeleted(w, action, old)
}

// deleteTree removes a directory, or a plain key, in one store change.
func (s *Server) deleteTree(w http.ResponseWriter, key string) {
	removed, err := s.store.DeleteTree(key)
	if err != nil {
		s.writeStoreError(w, err, key, storage.Precondition{})
		return
	}
	if len(removed) == 1 && removed[0].Key == key {
		s.writeDeleted(w, actionDelete, removed[0])
		return
	}
	writeJSON(w, http.StatusOK, kv.KeyValueInfo{
		Action:   actionDelete,
		Node:     kv.Node{Key: key, Dir: true, ModifiedIndex: s.store.Index()},
		PrevNode: &kv.Node{Key: key, Dir: true},
	})
}

func (s *Server) writeDeleted(w http.ResponseWriter, action string, old storage.Entry) {
	prev := s.leaf(old)
	writeJSON(w, http.StatusOK, kv.KeyValueInfo{
		Action: action,
		Node: kv.Node{
			Key:           old.Key,
			CreatedIndex:  old.CreatedIndex,
			ModifiedIndex: s.store.Index(),
		},
		PrevNode: &prev,
	})
}

// precondition reads prevExist, prevValue and prevIndex. On a malformed
// value it writes the error response and reports false.
func (s *Server) precondition(w http.ResponseWriter, form url.Values) (storage.Precondition, bool) {
	var pre storage.Precondition
	if raw := form.Get("prevExist"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeKeyError(w, http.StatusBadRequest, kv.ErrorCodeValueRequired, "prevExist must be a boolean", raw)
			return pre, false
		}
		pre.PrevExist = &b
	}
	if form.Has("prevValue") {
		v := form.Get("prevValue")
		pre.PrevValue = &v
	}
	if raw := form.Get("prevIndex"); raw != "" {
		idx, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeKeyError(w, http.StatusBadRequest, kv.ErrorCodeIndexNaN, "The given index in POST form is not a number", "")
			return pre, false
		}
		pre.PrevIndex = idx
	}
	return pre, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, key string, pre storage.Precondition) {
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		s.writeKeyError(w, http.StatusNotFound, kv.ErrorCodeKeyNotFound, "Key not found", key)
	case errors.Is(err, storage.ErrKeyExists):
		s.writeKeyError(w, http.StatusPreconditionFailed, kv.ErrorCodeNodeExist, "Key already exists", key)
	case errors.Is(err, storage.ErrNotFile):
		s.writeKeyError(w, http.StatusForbidden, kv.ErrorCodeNotFile, "Not a file", key)
	case errors.Is(err, storage.ErrCompareFailed):
		s.writeKeyError(w, http.StatusPreconditionFailed, kv.ErrorCodeTestFailed, "Compare failed", compareCause(pre))
	default:
		s.log.Error().Err(err).Str("key", key).Msg("store error")
		writeMessage(w, http.StatusInternalServerError, err.Error())
	}
}

func compareCause(pre storage.Precondition) string {
	var parts []string
	if pre.PrevValue != nil {
		parts = append(parts, "prevValue="+*pre.PrevValue)
	}
	if pre.PrevIndex != 0 {
		parts = append(parts, fmt.Sprintf("prevIndex=%d", pre.PrevIndex))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (s *Server) writeKeyError(w http.ResponseWriter, status, code int, msg, cause string) {
	writeJSON(w, status, cluster.APIError{
		ErrorCode: code,
		Message:   msg,
		Cause:     cause,
		Index:     s.store.Index(),
	})
}

// leaf renders a stored entry as a node.
func (s *Server) leaf(e storage.Entry) kv.Node {
	value := string(e.Value)
	n := kv.Node{
		Key:           e.Key,
		Value:         &value,
		CreatedIndex:  e.CreatedIndex,
		ModifiedIndex: e.ModifiedIndex,
	}
	if !e.Expires.IsZero() {
		ttl := int64(math.Ceil(e.Expires.Sub(s.now()).Seconds()))
		exp := e.Expires.UTC().Format(time.RFC3339Nano)
		n.TTL = &ttl
		n.Expiration = &exp
	}
	return n
}

// dir renders the implicit directory key from the entries below it.
// Without recursive only the immediate children are listed, and child
// directories come back without their contents. A key that holds a value and
// also has keys below it is rendered as a leaf; with recursive its subtree is
// attached to it.
func (s *Server) dir(key string, entries []storage.Entry, recursive bool) kv.Node {
	node := kv.Node{Key: key, Dir: true}
	base := strings.TrimSuffix(key, "/") + "/"

	groups := make(map[string][]storage.Entry)
	var children []string
	for _, e := range entries {
		rel := strings.TrimPrefix(e.Key, base)
		child := base + strings.SplitN(rel, "/", 2)[0]
		if _, seen := groups[child]; !seen {
			children = append(children, child)
		}
		groups[child] = append(groups[child], e)
	}
	slices.Sort(children)

	for _, child := range children {
		var self *storage.Entry
		var below []storage.Entry
		for i, e := range groups[child] {
			if e.Key == child {
				self = &groups[child][i]
				continue
			}
			below = append(below, e)
		}

		switch {
		case self != nil:
			leaf := s.leaf(*self)
			if recursive && len(below) > 0 {
				leaf.Nodes = s.dir(child, below, true).Nodes
			}
			node.Nodes = append(node.Nodes, leaf)
		case recursive:
			node.Nodes = append(node.Nodes, s.dir(child, below, true))
		default:
			node.Nodes = append(node.Nodes, kv.Node{Key: child, Dir: true})
		}
	}
	return node
}
