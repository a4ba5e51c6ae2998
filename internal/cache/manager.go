package cache

import (
	"time"

	"github.com/charmbracelet/log"
)

// Config sizes the cache tiers.
type Config struct {
	MemoryCapacity int64         // bytes, 0 disables the memory tier
	DiskCapacity   int64         // bytes, 0 disables the disk tier
	DiskPath       string        // directory for the disk tier
	TTL            time.Duration // entries older than this are pruned
}

// DefaultConfig returns the default tier sizes.
func DefaultConfig(diskPath string) Config {
	return Config{
		MemoryCapacity: 64 * 1024 * 1024,
		DiskCapacity:   512 * 1024 * 1024,
		DiskPath:       diskPath,
		TTL:            7 * 24 * time.Hour,
	}
}

// Manager fronts the tiers: memory first, then disk, promoting disk hits
// back into memory.
type Manager struct {
	memory *Memory
	disk   *Disk
}

// NewManager builds the configured tiers. Either tier may be disabled.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{}
	if cfg.MemoryCapacity > 0 {
		m.memory = NewMemory(cfg.MemoryCapacity)
	}
	if cfg.DiskCapacity > 0 && cfg.DiskPath != "" {
		disk, err := NewDisk(cfg.DiskPath, cfg.DiskCapacity)
		if err != nil {
			return nil, err
		}
		m.disk = disk
		if cfg.TTL > 0 {
			if n := disk.Prune(cfg.TTL); n > 0 {
				log.Debug("pruned expired cache entries", "count", n)
			}
		}
	}
	return m, nil
}

// Get looks a synthesis request up across the tiers. A payload that fails
// to decode counts as a miss.
func (m *Manager) Get(key Key) (Entry, bool) {
	hash := key.Hash()
	if m.memory != nil {
		if v, ok := m.memory.Get(hash); ok {
			if e, err := decodeEntry(v); err == nil {
				return e, true
			}
			m.memory.Delete(hash) //nolint:errcheck
		}
	}
	if m.disk != nil {
		if v, ok := m.disk.Get(hash); ok {
			e, err := decodeEntry(v)
			if err != nil {
				log.Warn("dropping corrupt cache entry", "key", hash, "err", err)
				m.disk.Delete(hash) //nolint:errcheck
				return Entry{}, false
			}
			if m.memory != nil {
				if err := m.memory.Put(hash, v); err != nil && err != ErrItemTooLarge {
					log.Warn("promoting cache entry", "err", err)
				}
			}
			return e, true
		}
	}
	return Entry{}, false
}

// Put stores a synthesis result in every enabled tier.
func (m *Manager) Put(key Key, e Entry) {
	hash := key.Hash()
	payload := encodeEntry(e)
	if m.memory != nil {
		if err := m.memory.Put(hash, payload); err != nil && err != ErrItemTooLarge {
			log.Warn("memory cache put", "err", err)
		}
	}
	if m.disk != nil {
		if err := m.disk.Put(hash, payload); err != nil && err != ErrItemTooLarge {
			log.Warn("disk cache put", "err", err)
		}
	}
}

// Clear empties every tier.
func (m *Manager) Clear() error {
	if m.memory != nil {
		m.memory.Clear()
	}
	if m.disk != nil {
		return m.disk.Clear()
	}
	return nil
}

// TierStats reports per-tier statistics keyed by tier name.
func (m *Manager) TierStats() map[string]Stats {
	out := make(map[string]Stats, 2)
	if m.memory != nil {
		out["memory"] = m.memory.Stats()
	}
	if m.disk != nil {
		out["disk"] = m.disk.Stats()
	}
	return out
}

// Close releases tier resources.
func (m *Manager) Close() error {
	if m.disk != nil {
		return m.disk.Close()
	}
	return nil
}
