/*
Package rconfig holds the engine tuning knobs that are deployment
choices rather than fixed constants: how aggressively the editor cache
evicts idle editors, and when a commit's state is persisted as a full
snapshot versus a (base, delta) pair.

Values are built programmatically in most call sites but shaped for
marshaling: a plain struct loadable from YAML via gopkg.in/yaml.v3,
with defaults filled in by New.
*/
package rconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the engine-wide tuning knobs.
type Config struct {
	// DropMap governs the editor cache's TTL-based eviction.
	DropMap DropMapConfig `yaml:"drop_map"`

	// Snapshot governs the full-snapshot-vs-delta policy for commits.
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// DropMapConfig tunes pkg/dropmap as used by pkg/engine's editor cache.
type DropMapConfig struct {
	// TTL is how long an Editor survives after its last external handle
	// drops, before the next GC sweep evicts it.
	TTL time.Duration `yaml:"ttl"`

	// Capacity is the number of pending evictions that forces an
	// immediate GC sweep rather than waiting for the next scheduled one.
	Capacity int `yaml:"capacity"`
}

// SnapshotConfig tunes pkg/commit's RatioSnapshotPolicy.
type SnapshotConfig struct {
	// DeltaRatio: store a delta when its serialized size is less than
	// this fraction of a full snapshot's serialized size.
	DeltaRatio float64 `yaml:"delta_ratio"`

	// MaxChainDepth bounds how many deltas may be chained before a full
	// snapshot is forced, regardless of size, so checkout never has to
	// resolve an unbounded SnapshotEntry chain.
	MaxChainDepth int `yaml:"max_chain_depth"`
}

// New returns the default Config: a delta is preferred under half the
// snapshot's size, with a hard fallback to a full snapshot every 32
// commits on a branch.
func New() Config {
	return Config{
		DropMap: DropMapConfig{
			TTL:      60 * time.Second,
			Capacity: 64,
		},
		Snapshot: SnapshotConfig{
			DeltaRatio:    0.5,
			MaxChainDepth: 32,
		},
	}
}

// Load reads a YAML config file, falling back to New's defaults for any
// field left unset in the file.
func Load(path string) (Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("rconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("rconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}
