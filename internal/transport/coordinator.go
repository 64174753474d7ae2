package transport

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/librorum/vdfs/internal/netsession"
	"github.com/librorum/vdfs/internal/observability"
	"github.com/librorum/vdfs/internal/shmem"
	"github.com/librorum/vdfs/internal/wire"
)

// Link is the common interface both transport legs satisfy, letting
// the rest of the system send/receive frames without caring which
// leg was chosen.
type Link interface {
	Send(ctx context.Context, h wire.Header, payload []byte) error
	Receive(ctx context.Context) (wire.Frame, error)
	Close() error
}

// netLink adapts *netsession.Session (which has no ctx-aware Send) to
// the Link interface.
type netLink struct{ s *netsession.Session }

func (n netLink) Send(_ context.Context, h wire.Header, payload []byte) error {
	_, err := n.s.Send(h, payload)
	return err
}
func (n netLink) Receive(_ context.Context) (wire.Frame, error) { return n.s.Receive() }
func (n netLink) Close() error                                   { return n.s.Close() }

type shmLink struct{ t *shmem.Transport }

func (s shmLink) Send(ctx context.Context, h wire.Header, payload []byte) error {
	return s.t.Send(ctx, h, payload)
}
func (s shmLink) Receive(ctx context.Context) (wire.Frame, error) { return s.t.Receive(ctx) }
func (s shmLink) Close() error                                     { return s.t.Close() }

// Transport leg names, used both for the LinksActive metric label and
// for Reachability.Leg.
const (
	LegShmem   = "shmem"
	LegNetwork = "network"
)

// linkStats is the per-peer, per-transport counter set required by
// §4.4: message count, byte count, error count, and accumulated
// latency, from which average throughput is derived on query.
type linkStats struct {
	messages     uint64
	bytes        uint64
	errors       uint64
	totalLatency uint64 // nanoseconds, summed across every Send/Receive
}

// LinkMetrics is a point-in-time, atomically-read snapshot of a peer
// link's counters.
type LinkMetrics struct {
	Leg               string
	Messages          uint64
	Bytes             uint64
	Errors            uint64
	TotalLatency      time.Duration
	AverageThroughput float64 // bytes/sec, derived from Bytes/TotalLatency
}

// meteredLink wraps a Link to record per-transport counters on every
// call and to drive the node-wide observability.Metrics transfer
// gauges, so a link's activity is visible both per-peer (LinkMetrics)
// and in the Prometheus surface.
type meteredLink struct {
	Link
	leg     string
	stats   *linkStats
	metrics *observability.Metrics
}

func (m meteredLink) Send(ctx context.Context, h wire.Header, payload []byte) error {
	if m.metrics != nil {
		m.metrics.RecordTransferStart()
	}
	start := time.Now()
	err := m.Link.Send(ctx, h, payload)
	elapsed := time.Since(start)
	atomic.AddUint64(&m.stats.totalLatency, uint64(elapsed))

	if m.metrics != nil {
		m.metrics.RecordTransferComplete(err == nil, elapsed.Seconds())
	}
	if err != nil {
		atomic.AddUint64(&m.stats.errors, 1)
		return err
	}
	atomic.AddUint64(&m.stats.messages, 1)
	atomic.AddUint64(&m.stats.bytes, uint64(wire.HeaderSize+len(payload)))
	if m.metrics != nil {
		m.metrics.RecordChunkSent(len(payload))
	}
	return nil
}

func (m meteredLink) Receive(ctx context.Context) (wire.Frame, error) {
	start := time.Now()
	f, err := m.Link.Receive(ctx)
	elapsed := time.Since(start)
	atomic.AddUint64(&m.stats.totalLatency, uint64(elapsed))

	if err != nil {
		atomic.AddUint64(&m.stats.errors, 1)
		return f, err
	}
	atomic.AddUint64(&m.stats.messages, 1)
	atomic.AddUint64(&m.stats.bytes, uint64(f.Size()))
	if m.metrics != nil {
		m.metrics.RecordChunkReceived(len(f.Payload))
	}
	return f, nil
}

func (m meteredLink) Close() error {
	if m.metrics != nil {
		m.metrics.RecordLinkClosed(m.leg)
	}
	return m.Link.Close()
}

// PeerInfo is what the coordinator needs to know about a peer to pick
// a leg for it: its discovered network address and the machine it
// runs on (same machine id as this node means shared memory is safe
// to use).
type PeerInfo struct {
	NodeID    string
	MachineID string
	Address   string
}

// machineID returns a stable identifier for the local host, used to
// decide whether a peer shares this machine (and can therefore use
// the shared-memory fast path) or not.
func machineID() string {
	if id, err := os.Hostname(); err == nil {
		return id
	}
	return "unknown"
}

// Coordinator chooses shared memory or the network session per peer
// and keeps the resulting Link alive for reuse across a peer's
// lifetime, publishing lifecycle events onto an EventBus as it does.
type Coordinator struct {
	mu    sync.Mutex
	links map[string]Link
	stats map[string]*linkStats

	localMachineID string
	netCfg         netsession.Config
	shmSize        int
	bus            *EventBus
	metrics        *observability.Metrics
}

// Config configures a Coordinator.
type Config struct {
	NetSessionConfig netsession.Config
	ShmRegionSize    int
	Bus              *EventBus

	// Metrics, when set, receives link-established/closed and transfer
	// counters from every link the coordinator creates.
	Metrics *observability.Metrics
}

// NewCoordinator creates a Coordinator using the local machine's
// hostname as its machine id.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.ShmRegionSize <= 0 {
		cfg.ShmRegionSize = shmem.DefaultRegionSize
	}
	return &Coordinator{
		links:          make(map[string]Link),
		stats:          make(map[string]*linkStats),
		localMachineID: machineID(),
		netCfg:         cfg.NetSessionConfig,
		shmSize:        cfg.ShmRegionSize,
		bus:            cfg.Bus,
		metrics:        cfg.Metrics,
	}
}

// LinkFor returns (creating if necessary) the Link to use for peer,
// selecting the shared-memory transport when the peer reports the
// same MachineID as this node, and the TCP network session otherwise.
func (c *Coordinator) LinkFor(ctx context.Context, peer PeerInfo, owner bool) (Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if link, ok := c.links[peer.NodeID]; ok {
		return link, nil
	}

	var link Link
	var leg string
	var err error
	if peer.MachineID != "" && peer.MachineID == c.localMachineID {
		leg = LegShmem
		var tx *shmem.Transport
		tx, err = shmem.NewTransport("peer-"+peer.NodeID, c.shmSize, owner, shmem.DefaultConfig())
		if err == nil {
			link = shmLink{t: tx}
		}
	} else {
		leg = LegNetwork
		var sess *netsession.Session
		sess, err = netsession.Dial(ctx, peer.Address, c.netCfg)
		if err == nil {
			link = netLink{s: sess}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("transport: establish link to %s: %w", peer.NodeID, err)
	}

	stats := &linkStats{}
	metered := meteredLink{Link: link, leg: leg, stats: stats, metrics: c.metrics}

	c.links[peer.NodeID] = metered
	c.stats[peer.NodeID] = stats
	if c.metrics != nil {
		c.metrics.RecordLinkEstablished(leg)
	}
	if c.bus != nil {
		c.bus.PublishSessionCreated(peer.NodeID, "", 0)
	}
	return metered, nil
}

// AdoptIncoming registers an already-established inbound session
// (from netsession.Listener.Accept) as the link for a peer.
func (c *Coordinator) AdoptIncoming(peerNodeID string, sess *netsession.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := &linkStats{}
	c.links[peerNodeID] = meteredLink{Link: netLink{s: sess}, leg: LegNetwork, stats: stats, metrics: c.metrics}
	c.stats[peerNodeID] = stats
	if c.metrics != nil {
		c.metrics.RecordLinkEstablished(LegNetwork)
	}
}

// Close tears down every link the coordinator currently holds.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for id, link := range c.links {
		if err := link.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.links, id)
		delete(c.stats, id)
	}
	return firstErr
}

// LinkMetrics returns a snapshot of the per-transport counters §4.4
// requires — messages, bytes, error count, total latency, and average
// throughput — for an established peer link, surfaced atomically.
func (c *Coordinator) LinkMetrics(peerNodeID string) (LinkMetrics, bool) {
	c.mu.Lock()
	stats, ok := c.stats[peerNodeID]
	link, linkOK := c.links[peerNodeID]
	c.mu.Unlock()
	if !ok {
		return LinkMetrics{}, false
	}

	messages := atomic.LoadUint64(&stats.messages)
	bytes := atomic.LoadUint64(&stats.bytes)
	errs := atomic.LoadUint64(&stats.errors)
	latency := time.Duration(atomic.LoadUint64(&stats.totalLatency))

	var throughput float64
	if latency > 0 {
		throughput = float64(bytes) / latency.Seconds()
	}

	leg := ""
	if linkOK {
		if m, ok := link.(meteredLink); ok {
			leg = m.leg
		}
	}
	return LinkMetrics{
		Leg: leg, Messages: messages, Bytes: bytes, Errors: errs,
		TotalLatency: latency, AverageThroughput: throughput,
	}, true
}

// Reachability is the result of a CanCommunicateWith query: which leg
// the coordinator would use for a peer, without registering a link.
type Reachability struct {
	Leg       string
	Reachable bool
}

// CanCommunicateWith reports which transport leg the coordinator would
// choose for peer, without establishing any persistent state — for
// the shared-memory case this may probe that a region can be created
// (immediately destroying it again), but peer is never added to the
// coordinator's link table and no region is left open for it. For a
// peer on a different machine, no shared-memory region is ever probed
// or opened; reachability is decided purely from the presence of a
// network endpoint.
func (c *Coordinator) CanCommunicateWith(peer PeerInfo) Reachability {
	if peer.MachineID == "" || peer.MachineID != c.localMachineID {
		return Reachability{Leg: LegNetwork, Reachable: peer.Address != ""}
	}

	name := "peer-" + peer.NodeID
	if shmem.Exists(name) {
		return Reachability{Leg: LegShmem, Reachable: true}
	}
	tx, err := shmem.NewTransport(name, c.shmSize, true, shmem.DefaultConfig())
	if err != nil {
		return Reachability{Leg: LegShmem, Reachable: false}
	}
	_ = tx.Destroy()
	return Reachability{Leg: LegShmem, Reachable: true}
}
