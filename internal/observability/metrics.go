package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric exported by a node.
type Metrics struct {
	// Transfer metrics
	TransfersTotal        *prometheus.CounterVec
	TransfersActive       prometheus.Gauge
	TransferDuration      prometheus.Histogram
	BytesTransferredTotal *prometheus.CounterVec
	ChunksSentTotal       prometheus.Counter
	ChunksReceivedTotal   prometheus.Counter
	ChunksRetransmitted   *prometheus.CounterVec

	// Transport metrics
	LinksActive           *prometheus.GaugeVec
	ShmRingBufferWaitTime prometheus.Histogram
	ShmRingBufferFull     prometheus.Counter

	// Cache metrics
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal *prometheus.CounterVec
	CacheDirtyEntries   prometheus.Gauge
	CacheFlushDuration  prometheus.Histogram

	// Content store metrics
	ChunkStoreBytesUsed  prometheus.Gauge
	ChunkStoreGCReclaims prometheus.Counter
	MerkleVerifications  *prometheus.CounterVec

	// FEC metrics (adaptive replica repair)
	FECReconstructionsTotal        prometheus.Counter
	FECReconstructionFailuresTotal prometheus.Counter
	FECParityShardsSentTotal       prometheus.Counter

	// Discovery and health metrics
	PeersDiscoveredTotal prometheus.Counter
	PeersOnline          prometheus.Gauge
	PeersOffline         prometheus.Gauge

	// Consistency metrics
	ConsistencyIssuesTotal  *prometheus.CounterVec
	ConsistencyRepairsTotal *prometheus.CounterVec

	// Metadata store metrics
	MetadataOperationsTotal *prometheus.CounterVec

	activeTransfers int64
}

// NewMetrics creates and registers every node metric.
func NewMetrics() *Metrics {
	m := &Metrics{
		TransfersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vdfs_transfers_total",
				Help: "Total transfers initiated",
			},
			[]string{"status"},
		),

		TransfersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vdfs_transfers_active",
				Help: "Currently active transfers",
			},
		),

		TransferDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vdfs_transfer_duration_seconds",
				Help:    "Transfer completion time distribution",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),

		BytesTransferredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vdfs_bytes_transferred_total",
				Help: "Total bytes transferred",
			},
			[]string{"direction"},
		),

		ChunksSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_chunks_sent_total",
				Help: "Total chunks sent",
			},
		),

		ChunksReceivedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_chunks_received_total",
				Help: "Total chunks received",
			},
		),

		ChunksRetransmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vdfs_chunks_retransmitted_total",
				Help: "Chunks requiring retransmission",
			},
			[]string{"reason"},
		),

		LinksActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vdfs_links_active",
				Help: "Active peer links by leg",
			},
			[]string{"leg"},
		),

		ShmRingBufferWaitTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vdfs_shm_ring_buffer_wait_seconds",
				Help:    "Time spent waiting for ring buffer space",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),

		ShmRingBufferFull: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_shm_ring_buffer_full_total",
				Help: "Times a shared-memory ring buffer rejected a write as full",
			},
		),

		CacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_cache_hits_total",
				Help: "Hybrid cache hits",
			},
		),

		CacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_cache_misses_total",
				Help: "Hybrid cache misses",
			},
		),

		CacheEvictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vdfs_cache_evictions_total",
				Help: "Cache entries evicted",
			},
			[]string{"reason"},
		),

		CacheDirtyEntries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vdfs_cache_dirty_entries",
				Help: "Cache entries awaiting write-back",
			},
		),

		CacheFlushDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vdfs_cache_flush_duration_seconds",
				Help:    "Dirty-entry flush latency",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
		),

		ChunkStoreBytesUsed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vdfs_chunkstore_bytes_used",
				Help: "Disk space used by the content-addressed chunk store",
			},
		),

		ChunkStoreGCReclaims: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_chunkstore_gc_reclaims_total",
				Help: "Chunks reclaimed by garbage collection sweeps",
			},
		),

		MerkleVerifications: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vdfs_merkle_verifications_total",
				Help: "Merkle root verifications",
			},
			[]string{"result"},
		),

		FECReconstructionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_fec_reconstructions_total",
				Help: "Chunks reconstructed via forward error correction",
			},
		),

		FECReconstructionFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_fec_reconstruction_failures_total",
				Help: "Failed FEC reconstructions",
			},
		),

		FECParityShardsSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_fec_parity_shards_sent_total",
				Help: "Parity shards transmitted for replica repair",
			},
		),

		PeersDiscoveredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vdfs_peers_discovered_total",
				Help: "Peers discovered via mDNS",
			},
		),

		PeersOnline: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vdfs_peers_online",
				Help: "Peers currently marked online by the health monitor",
			},
		),

		PeersOffline: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vdfs_peers_offline",
				Help: "Peers currently marked offline by the health monitor",
			},
		),

		ConsistencyIssuesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vdfs_consistency_issues_total",
				Help: "Consistency issues detected, by type",
			},
			[]string{"issue_type"},
		),

		ConsistencyRepairsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vdfs_consistency_repairs_total",
				Help: "Consistency issue repairs attempted, by result",
			},
			[]string{"result"},
		),

		MetadataOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vdfs_metadata_operations_total",
				Help: "Metadata manager operation count",
			},
			[]string{"operation", "result"},
		),
	}

	return m
}

// RecordTransferStart increments active transfer counters.
func (m *Metrics) RecordTransferStart() {
	atomic.AddInt64(&m.activeTransfers, 1)
	m.TransfersActive.Set(float64(atomic.LoadInt64(&m.activeTransfers)))
}

// RecordTransferComplete records transfer completion metrics.
func (m *Metrics) RecordTransferComplete(success bool, durationSeconds float64) {
	atomic.AddInt64(&m.activeTransfers, -1)
	m.TransfersActive.Set(float64(atomic.LoadInt64(&m.activeTransfers)))

	status := "success"
	if !success {
		status = "failure"
	}

	m.TransfersTotal.WithLabelValues(status).Inc()
	m.TransferDuration.Observe(durationSeconds)
}

// RecordChunkSent updates metrics for a sent chunk.
func (m *Metrics) RecordChunkSent(bytes int) {
	m.ChunksSentTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("sent").Add(float64(bytes))
}

// RecordChunkReceived updates metrics for a received chunk.
func (m *Metrics) RecordChunkReceived(bytes int) {
	m.ChunksReceivedTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("received").Add(float64(bytes))
}

// RecordChunkRetransmit increments retransmit counters.
func (m *Metrics) RecordChunkRetransmit(reason string) {
	m.ChunksRetransmitted.WithLabelValues(reason).Inc()
}

// RecordLinkEstablished tracks an active link by which leg carries it.
func (m *Metrics) RecordLinkEstablished(leg string) {
	m.LinksActive.WithLabelValues(leg).Inc()
}

// RecordLinkClosed releases a previously recorded link.
func (m *Metrics) RecordLinkClosed(leg string) {
	m.LinksActive.WithLabelValues(leg).Dec()
}

// RecordShmRingBufferFull counts a ring buffer write that found no space.
func (m *Metrics) RecordShmRingBufferFull() {
	m.ShmRingBufferFull.Inc()
}

// RecordCacheAccess tracks a cache hit or miss.
func (m *Metrics) RecordCacheAccess(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// RecordCacheEviction counts an evicted entry, by reason (score, ttl).
func (m *Metrics) RecordCacheEviction(reason string) {
	m.CacheEvictionsTotal.WithLabelValues(reason).Inc()
}

// RecordChunkStoreGC updates metrics after a garbage-collection sweep.
func (m *Metrics) RecordChunkStoreGC(reclaimed int) {
	m.ChunkStoreGCReclaims.Add(float64(reclaimed))
}

// RecordMerkleVerification increments Merkle verification counters.
func (m *Metrics) RecordMerkleVerification(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.MerkleVerifications.WithLabelValues(result).Inc()
}

// RecordFECReconstruction updates FEC reconstruction counters.
func (m *Metrics) RecordFECReconstruction(success bool) {
	if success {
		m.FECReconstructionsTotal.Inc()
	} else {
		m.FECReconstructionFailuresTotal.Inc()
	}
}

// RecordPeerDiscovered counts a newly discovered peer.
func (m *Metrics) RecordPeerDiscovered() {
	m.PeersDiscoveredTotal.Inc()
}

// SetPeerCounts sets the online/offline peer gauges from the health monitor's table.
func (m *Metrics) SetPeerCounts(online, offline int) {
	m.PeersOnline.Set(float64(online))
	m.PeersOffline.Set(float64(offline))
}

// RecordConsistencyIssue counts a detected issue by type.
func (m *Metrics) RecordConsistencyIssue(issueType string) {
	m.ConsistencyIssuesTotal.WithLabelValues(issueType).Inc()
}

// RecordConsistencyRepair counts a repair attempt by outcome.
func (m *Metrics) RecordConsistencyRepair(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ConsistencyRepairsTotal.WithLabelValues(result).Inc()
}

// RecordMetadataOperation counts a metadata manager operation by outcome.
func (m *Metrics) RecordMetadataOperation(operation string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.MetadataOperationsTotal.WithLabelValues(operation, result).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
