// Package node binds every VDFS component into one addressable node:
// metadata, the content store, the hybrid cache, the consistency
// checker, the hybrid transport coordinator, and mDNS discovery with
// health monitoring. It is the thing cmd/vdfsd and pkg/vdfsapi drive.
package node

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/librorum/vdfs/internal/cache"
	"github.com/librorum/vdfs/internal/chunkstore"
	"github.com/librorum/vdfs/internal/config"
	"github.com/librorum/vdfs/internal/consistency"
	vcrypto "github.com/librorum/vdfs/internal/crypto"
	"github.com/librorum/vdfs/internal/crypto/identity"
	"github.com/librorum/vdfs/internal/discovery"
	"github.com/librorum/vdfs/internal/metadata"
	"github.com/librorum/vdfs/internal/netsession"
	"github.com/librorum/vdfs/internal/observability"
	"github.com/librorum/vdfs/internal/transport"
)

// StorageInfo is the node's self-reported status, returned by Stats.
type StorageInfo struct {
	NodeID        string
	TotalFiles    int
	TotalChunks   int
	BytesStored   int64
	CacheDirty    int
	PeersOnline   int
	PeersOffline  int
	UptimeSeconds int64
}

// Node owns every subsystem for one VDFS participant.
type Node struct {
	id  discovery.NodeID
	cfg config.Config

	meta     *metadata.Manager
	sqlStore *metadata.SQLiteStore
	store    *chunkstore.Store
	cache    *cache.Cache
	checker  *consistency.Checker

	bus       *transport.EventBus
	coord     *transport.Coordinator
	monitor   *discovery.Monitor
	publisher *discovery.Publisher
	browser   *discovery.Browser
	flusher   *cache.Scheduler

	logger  *observability.Logger
	metrics *observability.Metrics

	identityPriv ed25519.PrivateKey
	identityPub  ed25519.PublicKey

	mu        sync.RWMutex
	mounted   bool
	startedAt time.Time
}

// New wires every subsystem together from cfg without starting any
// background loop; call Start to bring the node fully online.
func New(nodeID string, cfg config.Config, logger *observability.Logger, metrics *observability.Metrics) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("node: create data dir: %w", err)
	}

	sqlStore, err := metadata.OpenSQLiteStore(filepath.Join(cfg.DataDir, "metadata.db"))
	if err != nil {
		return nil, fmt.Errorf("node: open metadata store: %w", err)
	}

	meta, err := metadata.LoadFromSQLite(sqlStore)
	if err != nil {
		sqlStore.Close()
		return nil, fmt.Errorf("node: rehydrate metadata: %w", err)
	}

	store, err := chunkstore.Open(filepath.Join(cfg.DataDir, "chunks"))
	if err != nil {
		sqlStore.Close()
		return nil, fmt.Errorf("node: open chunk store: %w", err)
	}

	bus := transport.NewEventBus(cfg.EventBufferSize)

	c := cache.New(cache.Config{
		MaxMemoryBytes: cfg.CacheMemoryBytes,
		TTL:            cfg.TTL,
		Weights:        cfg.EvictionWeights,
		Disk:           store,
		WriteBack: func(key cache.Key, data []byte) error {
			if key.Kind != cache.KindChunkData {
				// FileData/FileMetadata/DirectoryListing entries cache
				// data durable elsewhere (the chunk store, the metadata
				// manager's SQLite-backed index); only chunk bytes need
				// a write-back target here.
				return nil
			}
			return store.Put(key.Chunk, data)
		},
		Invalidate: func(key cache.Key) {
			bus.Publish(&transport.Event{SessionID: key.Path + string(key.Chunk), Type: transport.EventTransferProgress, Timestamp: time.Now(), Message: "cache invalidated"})
		},
	})

	checker := consistency.New(meta, store, func(entry string) bool {
		return discovery.NodeID(entry).Valid()
	})

	n := &Node{
		id:       discovery.NodeID(nodeID),
		cfg:      cfg,
		meta:     meta,
		sqlStore: sqlStore,
		store:    store,
		cache:    c,
		checker:  checker,
		bus:      bus,
		coord: transport.NewCoordinator(transport.Config{
			NetSessionConfig: netsession.Config{
				DialTimeout:       cfg.NetworkTimeout,
				MaxRetries:        cfg.MaxRetries,
				RetransmitTimeout: cfg.RetransmitTimeout,
			},
			Bus:     bus,
			Metrics: metrics,
		}),
		logger:  logger,
		metrics: metrics,
	}

	n.monitor = discovery.NewMonitor(n.pingPeer, cfg.HeartbeatInterval, cfg.HeartbeatTimeout)

	if cfg.VerificationEnabled {
		priv, pub, err := identity.LoadOrCreate(cfg.IdentityKeyPath, "")
		if err != nil {
			store.Close()
			sqlStore.Close()
			return nil, fmt.Errorf("node: load identity key: %w", err)
		}
		n.identityPriv, n.identityPub = priv, pub
	}

	flusher, err := cache.NewScheduler(c)
	if err != nil {
		store.Close()
		sqlStore.Close()
		return nil, fmt.Errorf("node: create cache scheduler: %w", err)
	}
	n.flusher = flusher

	return n, nil
}

// Start initializes storage paths (already done in New), launches
// mDNS discovery, starts the health monitor and cache flush tick, and
// marks the node mounted so file operations are accepted.
func (n *Node) Start(ctx context.Context, advertisePort int, version, system string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mounted {
		return nil
	}

	publisher, err := discovery.Publish(n.id, advertisePort, version, system)
	if err != nil {
		return fmt.Errorf("node: start mdns publisher: %w", err)
	}
	n.publisher = publisher

	browser, err := discovery.Browse(n.id, n.onPeerFound, n.onPeerLost)
	if err != nil {
		publisher.Shutdown()
		return fmt.Errorf("node: start mdns browser: %w", err)
	}
	n.browser = browser

	go n.monitor.Run()
	if err := n.flusher.Start(n.cfg.WriteBackInterval, func(err error) {
		if n.logger != nil {
			n.logger.Error(err, "cache flush failed")
		}
	}); err != nil {
		browser.Stop()
		publisher.Shutdown()
		return fmt.Errorf("node: start cache flush scheduler: %w", err)
	}

	n.mounted = true
	n.startedAt = time.Now()
	if n.logger != nil {
		n.logger.Info("node started")
	}
	return nil
}

// Stop drains in-flight writes by flushing every dirty cache entry,
// halts discovery and the health monitor, and closes transport links;
// the content store and metadata database are left open. The node
// refuses further file operations once stopped.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.mounted {
		return nil
	}

	if _, err := n.cache.FlushDirty(); err != nil && n.logger != nil {
		n.logger.Error(err, "final cache flush encountered errors")
	}

	if err := n.flusher.Shutdown(); err != nil && n.logger != nil {
		n.logger.Error(err, "cache scheduler shutdown")
	}
	n.monitor.Stop()
	if n.browser != nil {
		n.browser.Stop()
	}
	if n.publisher != nil {
		n.publisher.Shutdown()
	}
	if err := n.coord.Close(); err != nil && n.logger != nil {
		n.logger.Error(err, "closing transport links")
	}

	n.mounted = false
	return nil
}

// Mount is an alias for Start kept to match the public operation name
// the control-plane surface exposes; vdfsd calls Start directly with
// its own advertise parameters. Mount passes port 0 and empty
// version/system strings; mDNS publishing and browsing still start.
func (n *Node) Mount(ctx context.Context) error {
	return n.Start(ctx, 0, "", "")
}

// Unmount is Stop under the public operation name.
func (n *Node) Unmount(ctx context.Context) error { return n.Stop(ctx) }

func (n *Node) pingPeer(peer discovery.Peer) (time.Duration, error) {
	start := time.Now()
	link, err := n.coord.LinkFor(context.Background(), transport.PeerInfo{
		NodeID: string(peer.NodeID), Address: peer.Address,
	}, false)
	if err != nil {
		return 0, err
	}
	_ = link
	return time.Since(start), nil
}

func (n *Node) onPeerFound(peer discovery.Peer) {
	n.monitor.Track(peer)
	if n.metrics != nil {
		n.metrics.RecordPeerDiscovered()
	}
	if n.logger != nil {
		n.logger.PeerDiscovered(string(peer.NodeID), peer.Address)
	}
}

func (n *Node) onPeerLost(id discovery.NodeID) {
	n.monitor.Forget(id)
	if n.logger != nil {
		n.logger.PeerLost(string(id))
	}
}

// Stats reports the node's current self-observed status.
func (n *Node) Stats() StorageInfo {
	files, chunks := n.meta.Stats()
	used, _ := n.store.DiskUsage()

	online, offline := 0, 0
	for _, h := range n.monitor.Snapshot() {
		switch h.Status {
		case discovery.StatusOnline:
			online++
		case discovery.StatusOffline:
			offline++
		}
	}

	n.mu.RLock()
	uptime := int64(0)
	if n.mounted {
		uptime = int64(time.Since(n.startedAt).Seconds())
	}
	n.mu.RUnlock()

	return StorageInfo{
		NodeID:        string(n.id),
		TotalFiles:    files,
		TotalChunks:   chunks,
		BytesStored:   used,
		CacheDirty:    n.cache.Stats().DirtyCount,
		PeersOnline:   online,
		PeersOffline:  offline,
		UptimeSeconds: uptime,
	}
}

// Checker exposes the consistency checker for periodic and on-demand
// invariant sweeps driven by the daemon's scheduler.
func (n *Node) Checker() *consistency.Checker { return n.checker }

// Store exposes the content store for GC scheduling.
func (n *Node) Store() *chunkstore.Store { return n.store }

// ID returns this node's stable identifier.
func (n *Node) ID() string { return string(n.id) }

// Peers returns the current health table, one row per tracked peer.
func (n *Node) Peers() []discovery.PeerHealth { return n.monitor.Snapshot() }

// AddPeer begins tracking a peer manually, for callers that know a
// peer's address out-of-band rather than through mDNS discovery.
func (n *Node) AddPeer(id, address string, port int) {
	n.monitor.Track(discovery.Peer{NodeID: discovery.NodeID(id), Address: address, Port: port})
}

// RemovePeer stops tracking a peer.
func (n *Node) RemovePeer(id string) { n.monitor.Forget(discovery.NodeID(id)) }

// Heartbeat reports this node's own liveness, for a peer's control
// client to confirm the connection is alive before it issues requests.
func (n *Node) Heartbeat() (nodeID string, uptimeSeconds int64) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.mounted {
		return string(n.id), 0
	}
	return string(n.id), int64(time.Since(n.startedAt).Seconds())
}

// ErrVerificationDisabled is returned by SignVerification when the node
// was started without an identity key, i.e. VerificationEnabled is false.
var ErrVerificationDisabled = fmt.Errorf("node: verification signing is disabled")

// SignVerification produces a signed attestation that this node holds
// path with the given Merkle root, for a peer that wants cryptographic
// confirmation a transfer landed intact rather than trusting an
// unsigned control-plane response.
func (n *Node) SignVerification(path string) (*vcrypto.VerificationMessage, error) {
	if n.identityPriv == nil {
		return nil, ErrVerificationDisabled
	}
	info, err := n.meta.GetFileInfo(path)
	if err != nil {
		return nil, err
	}
	msg := vcrypto.SignVerification(string(n.id), path, info.MerkleRoot, n.identityPriv)
	return &msg, nil
}
