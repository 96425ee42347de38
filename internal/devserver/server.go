package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dreamware/kvclient/internal/cluster"
	"github.com/dreamware/kvclient/internal/config"
	"github.com/dreamware/kvclient/internal/health"
	"github.com/dreamware/kvclient/internal/members"
	"github.com/dreamware/kvclient/internal/metrics"
	"github.com/dreamware/kvclient/internal/storage"
)

// Versions reported by GET /version.
const (
	ServerVersion  = "2.3.8"
	ClusterVersion = "2.3.0"
)

const (
	membersPath = "/v2/members"
	keysPath    = "/v2/keys"
	raftTerm    = 1
)

// Server is a single dev cluster member. It is an http.Handler; callers own
// the listener.
type Server struct {
	cfg     *config.NodeConfig
	store   storage.Store
	log     zerolog.Logger
	metrics *metrics.Registry
	members *memberRegistry
	mux     *http.ServeMux
	now     func() time.Time
}

// New builds a server for cfg backed by store. The member list starts with
// the node itself, its id derived from cfg.ID.
//
// Parameters:
//   - cfg: Node identity and URLs advertised in the members API
//   - store: Keyspace served under /v2/keys
//   - log: Logger for request and error lines
//   - reg: Metrics registry; nil records nothing and leaves /metrics unserved
//
// Returns:
//   - *Server: http.Handler ready to mount on a listener
//
// Example:
//
//	srv := devserver.New(cfg, storage.NewMemoryStore(), log, metrics.NewRegistry())
//	http.Serve(ln, srv)
func New(cfg *config.NodeConfig, store storage.Store, log zerolog.Logger, reg *metrics.Registry) *Server {
	self := members.Member{
		ID:         memberIDFor(cfg.ID),
		Name:       cfg.Name,
		ClientURLs: []string{cfg.ClientURL},
		PeerURLs:   []string{},
	}
	if cfg.PeerURL != "" {
		self.PeerURLs = []string{cfg.PeerURL}
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		log:     log.With().Str("node", cfg.ID).Logger(),
		metrics: reg,
		members: newMemberRegistry(self),
		mux:     http.NewServeMux(),
		now:     time.Now,
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/version", s.handleVersion)
	s.mux.HandleFunc(membersPath, s.handleMembers)
	s.mux.HandleFunc(membersPath+"/", s.handleMember)
	s.mux.HandleFunc(keysPath, s.handleKeys)
	s.mux.HandleFunc(keysPath+"/", s.handleKeys)
	if reg != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	}
	return s
}

// ServeHTTP stamps cluster headers on every API response, then logs and
// counts the request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	route := routeOf(r.URL.Path)
	if route != "/metrics" {
		requestID := r.Header.Get(cluster.HeaderRequestID)
		// Stamped when the handler commits its status, so writes report the
		// index they produced.
		rec.onHeader = func(h http.Header) {
			s.setClusterHeaders(h)
			if requestID != "" {
				h.Set(cluster.HeaderRequestID, requestID)
			}
		}
	}

	s.mux.ServeHTTP(rec, r)

	s.metrics.ObserveRequest(route, r.Method, strconv.Itoa(rec.status))
	s.log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Dur("elapsed", time.Since(start)).
		Str("request_id", r.Header.Get(cluster.HeaderRequestID)).
		Msg("request served")
}

// MemberID is the id this node reports for itself in the member list.
func (s *Server) MemberID() string {
	return memberIDFor(s.cfg.ID)
}

func (s *Server) setClusterHeaders(h http.Header) {
	index := strconv.FormatUint(s.store.Index(), 10)
	h.Set(cluster.HeaderClusterID, s.cfg.ClusterID)
	h.Set(cluster.HeaderEtcdIndex, index)
	h.Set(cluster.HeaderRaftIndex, index)
	h.Set(cluster.HeaderRaftTerm, strconv.Itoa(raftTerm))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, health.Status{Health: "true"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, health.VersionInfo{Server: ServerVersion, Cluster: ClusterVersion})
}

// routeOf collapses a path to its route so metric labels stay bounded.
func routeOf(p string) string {
	switch {
	case p == keysPath || strings.HasPrefix(p, keysPath+"/"):
		return keysPath
	case p == membersPath || strings.HasPrefix(p, membersPath+"/"):
		return membersPath
	case p == "/health", p == "/version", p == "/metrics":
		return p
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	onHeader func(http.Header)
	status   int
	wrote    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.wrote = true
		r.status = code
		if r.onHeader != nil {
			r.onHeader(r.Header())
		}
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeMessage writes the members API error shape, {"message": "..."}.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, cluster.APIError{Message: msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}
