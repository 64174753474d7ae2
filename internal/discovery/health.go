package discovery

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is a peer's last-known liveness state.
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "ONLINE"
	case StatusOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// PeerHealth is one row of the health monitor's table.
type PeerHealth struct {
	NodeID        NodeID
	Status        Status
	LastHeartbeat time.Time
	FailureCount  int
	LatencyMillis float64
}

// heartbeatFanOut bounds how many peers are pinged concurrently per
// heartbeat tick.
const heartbeatFanOut = 16

// PingFunc sends a heartbeat control request to a peer and returns the
// round-trip latency, or an error if the peer did not respond.
type PingFunc func(peer Peer) (time.Duration, error)

// Monitor tracks peer liveness via periodic heartbeats.
type Monitor struct {
	mu    sync.Mutex
	table map[NodeID]*PeerHealth
	peers map[NodeID]Peer

	ping            PingFunc
	heartbeatEvery  time.Duration
	heartbeatTimeout time.Duration

	stop chan struct{}
}

// NewMonitor creates a Monitor. heartbeatEvery defaults to 60s and
// heartbeatTimeout to 3x that when zero, matching the discovery
// design's defaults.
func NewMonitor(ping PingFunc, heartbeatEvery, heartbeatTimeout time.Duration) *Monitor {
	if heartbeatEvery <= 0 {
		heartbeatEvery = 60 * time.Second
	}
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 3 * heartbeatEvery
	}
	return &Monitor{
		table:            make(map[NodeID]*PeerHealth),
		peers:            make(map[NodeID]Peer),
		ping:             ping,
		heartbeatEvery:   heartbeatEvery,
		heartbeatTimeout: heartbeatTimeout,
		stop:             make(chan struct{}),
	}
}

// Track registers (or re-registers) a peer to be heartbeated.
func (m *Monitor) Track(peer Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[peer.NodeID] = peer
	if _, ok := m.table[peer.NodeID]; !ok {
		m.table[peer.NodeID] = &PeerHealth{NodeID: peer.NodeID, Status: StatusUnknown}
	}
}

// Forget removes a peer from tracking, called when discovery reports
// it gone.
func (m *Monitor) Forget(id NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, id)
	delete(m.table, id)
}

// Status returns a snapshot of one peer's health row.
func (m *Monitor) Status(id NodeID) (PeerHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.table[id]
	if !ok {
		return PeerHealth{}, false
	}
	return *h, true
}

// Snapshot returns the full health table, for status endpoints and
// the node manager's stats tick.
func (m *Monitor) Snapshot() []PeerHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PeerHealth, 0, len(m.table))
	for _, h := range m.table {
		out = append(out, *h)
	}
	return out
}

// Run starts the periodic heartbeat loop; it blocks until Stop is
// called, so callers should run it in its own goroutine.
func (m *Monitor) Run() {
	ticker := time.NewTicker(m.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.heartbeatAll()
		}
	}
}

// Stop ends the heartbeat loop.
func (m *Monitor) Stop() { close(m.stop) }

func (m *Monitor) heartbeatAll() {
	m.mu.Lock()
	peers := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(heartbeatFanOut)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			m.heartbeatOne(peer)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) heartbeatOne(peer Peer) {
	latency, err := m.ping(peer)

	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.table[peer.NodeID]
	if !ok {
		return
	}
	if err != nil {
		h.FailureCount++
		if time.Since(h.LastHeartbeat) > m.heartbeatTimeout {
			h.Status = StatusOffline
		}
		return
	}
	h.Status = StatusOnline
	h.LastHeartbeat = time.Now()
	h.FailureCount = 0
	h.LatencyMillis = float64(latency.Microseconds()) / 1000.0
}
