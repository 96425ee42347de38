package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/kvclient/internal/cluster"
)

// Endpoint status values.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// DefaultInterval is used by NewMonitor when given a non-positive interval.
const DefaultInterval = 5 * time.Second

// ErrUnhealthy is returned by the default probe when a member answers but
// reports itself unhealthy.
var ErrUnhealthy = errors.New("member reports unhealthy")

// EndpointHealth is the health record of one endpoint.
type EndpointHealth struct {
	Endpoint         string    `json:"endpoint"`
	Status           string    `json:"status"`
	LastCheck        time.Time `json:"last_check"`
	LastHealthy      time.Time `json:"last_healthy,omitempty"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	LastError        string    `json:"last_error,omitempty"`
}

// Monitor probes every endpoint of a client on its own, without failing
// over, and tracks which ones are reachable. Unlike Check, which describes
// the first member that answers, a Monitor describes all of them.
// All methods are safe for concurrent use.
type Monitor struct {
	client      *cluster.Client
	log         zerolog.Logger
	checkFunc   func(ctx context.Context, endpoint string) error
	onUnhealthy func(endpoint string)
	now         func() time.Time
	endpoints   map[string]*EndpointHealth
	interval    time.Duration
	maxFailures int
	mu          sync.RWMutex
}

// NewMonitor creates a monitor over c's endpoints. Each endpoint is probed
// through a client pinned to it, so one member's answer never stands in for
// another's. Endpoints are marked unhealthy after 3 consecutive failures.
//
// Parameters:
//   - c: Client whose endpoints are watched; its timeout bounds each probe
//   - interval: How often Start runs a round (non-positive means DefaultInterval)
//
// Returns:
//   - *Monitor: Monitor with every endpoint in StatusUnknown
//
// Example:
//
//	monitor := health.NewMonitor(client, 10*time.Second)
//	monitor.SetOnUnhealthy(func(endpoint string) {
//	    log.Warn().Str("endpoint", endpoint).Msg("member unreachable")
//	})
//	go monitor.Start(ctx)
func NewMonitor(c *cluster.Client, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		client:      c,
		log:         zerolog.Nop(),
		now:         time.Now,
		endpoints:   make(map[string]*EndpointHealth),
		interval:    interval,
		maxFailures: 3,
	}
	m.checkFunc = m.probe
	return m
}

// SetLogger sets the logger for status transitions.
func (m *Monitor) SetLogger(log zerolog.Logger) {
	m.log = log
}

// SetMaxFailures sets how many consecutive failures mark an endpoint
// unhealthy. Values below 1 are treated as 1.
func (m *Monitor) SetMaxFailures(n int) {
	if n < 1 {
		n = 1
	}
	m.maxFailures = n
}

// SetOnUnhealthy sets a callback invoked once each time an endpoint turns
// unhealthy. It runs on the checking goroutine, outside the monitor's lock.
//
// Parameters:
//   - callback: Function to call with the endpoint URL on each transition
func (m *Monitor) SetOnUnhealthy(callback func(endpoint string)) {
	m.onUnhealthy = callback
}

// SetCheckFunction replaces the probe, mostly for tests.
func (m *Monitor) SetCheckFunction(checkFunc func(ctx context.Context, endpoint string) error) {
	m.checkFunc = checkFunc
}

// Start checks every endpoint immediately and then once per interval,
// until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", m.interval).Msg("health monitor started")
	m.CheckAll(ctx)

	for {
		select {
		case <-ticker.C:
			m.CheckAll(ctx)
		case <-ctx.Done():
			m.log.Info().Msg("health monitor stopped")
			return
		}
	}
}

// CheckAll probes every endpoint once, in order, and returns the resulting
// records in the same order.
func (m *Monitor) CheckAll(ctx context.Context) []EndpointHealth {
	endpoints := m.client.Endpoints()
	for _, ep := range endpoints {
		if ctx.Err() != nil {
			break
		}
		m.checkEndpoint(ctx, ep)
	}
	return m.All()
}

func (m *Monitor) checkEndpoint(ctx context.Context, endpoint string) {
	m.mu.Lock()
	rec, ok := m.endpoints[endpoint]
	if !ok {
		rec = &EndpointHealth{Endpoint: endpoint, Status: StatusUnknown}
		m.endpoints[endpoint] = rec
	}
	m.mu.Unlock()

	err := m.checkFunc(ctx, endpoint)

	m.mu.Lock()
	rec.LastCheck = m.now()
	turnedUnhealthy := false
	if err != nil {
		rec.ConsecutiveFails++
		rec.LastError = err.Error()
		m.log.Debug().Err(err).Str("endpoint", endpoint).
			Int("fails", rec.ConsecutiveFails).Msg("health probe failed")
		if rec.ConsecutiveFails >= m.maxFailures && rec.Status != StatusUnhealthy {
			rec.Status = StatusUnhealthy
			turnedUnhealthy = true
		}
	} else {
		if rec.Status == StatusUnhealthy {
			m.log.Info().Str("endpoint", endpoint).Msg("endpoint recovered")
		}
		rec.Status = StatusHealthy
		rec.ConsecutiveFails = 0
		rec.LastError = ""
		rec.LastHealthy = rec.LastCheck
	}
	callback := m.onUnhealthy
	m.mu.Unlock()

	if turnedUnhealthy {
		m.log.Warn().Str("endpoint", endpoint).Msg("endpoint marked unhealthy")
		if callback != nil {
			callback(endpoint)
		}
	}
}

// probe asks a single member for its health.
func (m *Monitor) probe(ctx context.Context, endpoint string) error {
	resp, err := Check(ctx, m.client.Pin(endpoint))
	if err != nil {
		return err
	}
	if !resp.Data.Healthy() {
		return ErrUnhealthy
	}
	return nil
}

// Get returns a copy of the record for endpoint.
func (m *Monitor) Get(endpoint string) (EndpointHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.endpoints[endpoint]
	if !ok {
		return EndpointHealth{}, false
	}
	return *rec, true
}

// All returns copies of every record, in the client's endpoint order.
// Endpoints never checked are reported as unknown.
func (m *Monitor) All() []EndpointHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	endpoints := m.client.Endpoints()
	out := make([]EndpointHealth, 0, len(endpoints))
	for _, ep := range endpoints {
		if rec, ok := m.endpoints[ep]; ok {
			out = append(out, *rec)
			continue
		}
		out = append(out, EndpointHealth{Endpoint: ep, Status: StatusUnknown})
	}
	return out
}

// IsHealthy reports whether endpoint passed its most recent check.
func (m *Monitor) IsHealthy(endpoint string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.endpoints[endpoint]
	return ok && rec.Status == StatusHealthy
}
