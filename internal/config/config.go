// Package config defines xlimdb's runtime configuration.
package config

import "time"

// Config is the top-level configuration for an xlimdb server process.
type Config struct {
	DataDir string

	Storage StorageConfig
	Cache   CacheConfig
	IPC     IPCConfig
}

// StorageConfig configures the embedded storage engine. Most fields mirror
// tuning knobs an LSM-tree engine would expose (write buffer size, target
// file size, bytes-per-sync); bbolt is a single-writer mmap B+tree and has
// no equivalent for most of them, so only InitialMmapSizeMB, NoSync and
// OpenTimeout actually reach the engine's open options. The rest are kept so operators
// migrating tuning profiles between engines have somewhere to put them.
type StorageConfig struct {
	WriteBufferSizeMB     uint64 // hint only, no bbolt equivalent
	TargetFileSizeMB      uint64 // hint only, no bbolt equivalent
	PointLookupOptimize   bool   // hint only, no bbolt equivalent
	BytesPerSync          uint64 // hint only, no bbolt equivalent
	InitialMmapSizeMB     uint64 // passed to bolt.Options.InitialMmapSize
	NoSync                bool   // passed to bolt.Options.NoSync (unsafe, tests only)
	OpenTimeout           time.Duration // passed to bolt.Options.Timeout
}

// CacheConfig configures the bounded in-memory read cache sitting in front
// of document reads.
type CacheConfig struct {
	Enabled        bool
	MaxDocuments   int
}

// IPCConfig configures the TCP listener and its connection-handler pool.
type IPCConfig struct {
	Address        string
	MaxConnections int
}

// DefaultConfig returns the configuration a freshly initialized server runs
// with.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Storage: StorageConfig{
			WriteBufferSizeMB:   64,
			TargetFileSizeMB:    64,
			PointLookupOptimize: true,
			BytesPerSync:        1 << 20,
			InitialMmapSizeMB:   16,
			NoSync:              false,
			OpenTimeout:         5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:      true,
			MaxDocuments: 4096,
		},
		IPC: IPCConfig{
			Address:        ":7878",
			MaxConnections: 256,
		},
	}
}
