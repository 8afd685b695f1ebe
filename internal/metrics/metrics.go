// Package metrics is a minimal, concurrency-safe counter registry for the
// signaling relay, with Prometheus text exposition.
package metrics

import "sync"

// Counter names used by the relay.
const (
	Registered         = "registered"
	DuplicateID        = "duplicate_id"
	Disconnected       = "disconnected"
	RelayedOffer       = "relayed_offer"
	RelayedAnswer      = "relayed_answer"
	RelayedCandidate   = "relayed_candidate"
	RelayedDeclined    = "relayed_call_declined"
	DropTargetNotFound = "drop_target_not_found"
	DropTargetClosed   = "drop_target_closed"
	DropUnregistered   = "drop_unregistered_sender"
	DropBadMessage     = "drop_bad_message"
	DropRateLimited    = "drop_rate_limited"
	AuthFailure        = "auth_failure"
)

type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
