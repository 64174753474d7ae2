// Package config holds the node's runtime configuration, loaded from
// flags with a file-based override following the same
// "defaults first, flags win" shape the daemon wiring used before.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/librorum/vdfs/internal/cache"
	"github.com/librorum/vdfs/internal/validation"
)

// Config is the full set of tunables named in the control-plane and
// configuration surface.
type Config struct {
	ControlAddress string `json:"control_address"`
	DataDir        string `json:"data_dir"`

	ChunkSize          int           `json:"chunk_size"`
	CacheMemoryBytes   int64         `json:"cache_memory_bytes"`
	CacheDiskBytes     int64         `json:"cache_disk_bytes"`
	ReplicationFactor  int           `json:"replication_factor"`
	NetworkTimeout     time.Duration `json:"network_timeout"`
	HeartbeatInterval  time.Duration `json:"heartbeat_interval"`
	HeartbeatTimeout   time.Duration `json:"heartbeat_timeout"`

	// FileThreshold is the cache granularity cutover: files at or
	// under this size are cached whole under a FileData key; larger
	// files are cached per chunk under ChunkData keys instead.
	FileThreshold int64         `json:"file_threshold"`
	TTL           time.Duration `json:"ttl"`
	EvictionWeights    cache.Weights `json:"eviction_weights"`
	MaxRetries         int           `json:"max_retries"`
	RetransmitTimeout  time.Duration `json:"retransmit_timeout"`
	GCRetention        time.Duration `json:"gc_retention"`
	GCInterval         time.Duration `json:"gc_interval"`
	WriteBackInterval  time.Duration `json:"write_back_interval"`
	EventBufferSize    int           `json:"event_buffer_size"`

	// VerificationEnabled turns on Ed25519-signed post-transfer
	// verification messages. Off by default: most deployments trust the
	// Merkle root check already performed by the consistency checker,
	// and signing adds a per-node identity key to provision.
	VerificationEnabled bool   `json:"verification_enabled"`
	IdentityKeyPath      string `json:"identity_key_path"`
	IdentityPassphrase   string `json:"identity_passphrase"`

	// UploadRateLimit and UploadBurst bound how many uploads per second
	// the control-plane surface accepts, the same shape as the
	// daemon's connection-accept limiter.
	UploadRateLimit float64 `json:"upload_rate_limit"`
	UploadBurst     int     `json:"upload_burst"`
}

// Default returns the configuration's documented defaults.
func Default() Config {
	return Config{
		ControlAddress:    ":9090",
		DataDir:           "./vdfs-data",
		ChunkSize:         8 << 20,
		CacheMemoryBytes:  256 << 20,
		CacheDiskBytes:    10 << 30,
		ReplicationFactor: 1,
		NetworkTimeout:    30 * time.Second,
		HeartbeatInterval: 60 * time.Second,
		HeartbeatTimeout:  180 * time.Second,
		FileThreshold:     1 << 20,
		TTL:               0,
		EvictionWeights:   cache.DefaultWeights(),
		MaxRetries:        3,
		RetransmitTimeout: 5 * time.Second,
		GCRetention:       24 * time.Hour,
		GCInterval:        time.Hour,
		WriteBackInterval: 10 * time.Second,
		EventBufferSize:   128,

		VerificationEnabled: false,

		UploadRateLimit: 50,
		UploadBurst:     100,
	}
}

// Load reads a JSON configuration file at path, overlaying it onto
// Default. A missing file is not an error — it just means the
// defaults apply, matching how a freshly initialized node has no
// config file yet.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a configuration that would put the node in a
// state Load's caller couldn't reasonably run with, before any
// subsystem is opened against it.
func (c Config) Validate() error {
	if err := validation.ValidateAddr(c.ControlAddress); err != nil {
		return fmt.Errorf("control_address: %w", err)
	}
	if err := validation.ValidateStringNonEmpty(c.DataDir); err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	if err := validation.ValidateRangeInt(c.ReplicationFactor, 1, 16); err != nil {
		return fmt.Errorf("replication_factor: %w", err)
	}
	return nil
}
