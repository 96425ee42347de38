package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/kvclient/internal/members"
)

var (
	errNoSuchMember   = errors.New("no such member")
	errPeerURLInUse   = errors.New("peer URL already in use")
	errNoPeerURLs     = errors.New("at least one peer URL is required")
	errInvalidPeerURL = errors.New("invalid peer URL")
)

// memberRegistry is the membership list of the dev cluster. Members are kept
// in the order they joined.
type memberRegistry struct {
	mu      sync.RWMutex
	members []members.Member
}

func newMemberRegistry(self members.Member) *memberRegistry {
	return &memberRegistry{members: []members.Member{self}}
}

func (r *memberRegistry) list() []members.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]members.Member, len(r.members))
	for i, m := range r.members {
		out[i] = cloneMember(m)
	}
	return out
}

// add registers a member that has not started yet: it has an id and peer
// URLs but no name or client URLs.
func (r *memberRegistry) add(peerURLs []string) (members.Member, error) {
	if err := validatePeerURLs(peerURLs); err != nil {
		return members.Member{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.peerURLTaken(peerURLs, "") {
		return members.Member{}, errPeerURLInUse
	}
	m := members.Member{
		ID:         newMemberID(),
		PeerURLs:   slices.Clone(peerURLs),
		ClientURLs: []string{},
	}
	r.members = append(r.members, m)
	return cloneMember(m), nil
}

func (r *memberRegistry) remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.members, func(m members.Member) bool { return m.ID == id })
	if idx < 0 {
		return errNoSuchMember
	}
	r.members = slices.Delete(r.members, idx, idx+1)
	return nil
}

func (r *memberRegistry) update(id string, peerURLs []string) error {
	if err := validatePeerURLs(peerURLs); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.members, func(m members.Member) bool { return m.ID == id })
	if idx < 0 {
		return errNoSuchMember
	}
	if r.peerURLTaken(peerURLs, id) {
		return errPeerURLInUse
	}
	r.members[idx].PeerURLs = slices.Clone(peerURLs)
	return nil
}

// peerURLTaken must be called with r.mu held.
func (r *memberRegistry) peerURLTaken(peerURLs []string, except string) bool {
	for _, m := range r.members {
		if m.ID == except {
			continue
		}
		for _, u := range peerURLs {
			if slices.Contains(m.PeerURLs, u) {
				return true
			}
		}
	}
	return false
}

func validatePeerURLs(peerURLs []string) error {
	if len(peerURLs) == 0 {
		return errNoPeerURLs
	}
	for _, raw := range peerURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", errInvalidPeerURL, raw)
		}
	}
	return nil
}

// newMemberID returns a 16 digit hex id, the shape cluster members use.
func newMemberID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:8])
}

// memberIDFor derives a stable id for the node itself from its node id, so a
// restarted dev node keeps its identity.
func memberIDFor(nodeID string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(nodeID))
	return fmt.Sprintf("%x", id[:8])
}

func cloneMember(m members.Member) members.Member {
	m.PeerURLs = slices.Clone(m.PeerURLs)
	m.ClientURLs = slices.Clone(m.ClientURLs)
	return m
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, members.ListResponse{Members: s.members.list()})
	case http.MethodPost:
		var req members.PeerURLsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "bad json: "+err.Error())
			return
		}
		m, err := s.members.add(req.PeerURLs)
		if err != nil {
			s.writeMemberError(w, err)
			return
		}
		s.log.Info().Str("member_id", m.ID).Strs("peer_urls", m.PeerURLs).Msg("member added")
		writeJSON(w, http.StatusCreated, m)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, membersPath+"/")
	if id == "" || strings.Contains(id, "/") {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		if err := s.members.remove(id); err != nil {
			s.writeMemberError(w, fmt.Errorf("%w: %s", err, id))
			return
		}
		s.log.Info().Str("member_id", id).Msg("member removed")
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPut:
		var req members.PeerURLsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "bad json: "+err.Error())
			return
		}
		if err := s.members.update(id, req.PeerURLs); err != nil {
			s.writeMemberError(w, fmt.Errorf("%w: %s", err, id))
			return
		}
		s.log.Info().Str("member_id", id).Strs("peer_urls", req.PeerURLs).Msg("member updated")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodDelete, http.MethodPut)
	}
}

func (s *Server) writeMemberError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoSuchMember):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errPeerURLInUse):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		writeMessage(w, http.StatusBadRequest, err.Error())
	}
}
