package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexFile = "index.json"

// Disk is the L2 tier: zstd-compressed payload files under a directory,
// tracked by a JSON index. The index is rewritten on every mutation; a lost
// index only costs cached work, never correctness.
type Disk struct {
	mu       sync.Mutex
	dir      string
	capacity int64
	size     int64
	index    map[string]*entryMeta
	stats    Stats

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewDisk opens (or creates) a disk cache under dir holding at most
// capacity bytes of compressed data.
func NewDisk(dir string, capacity int64) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	d := &Disk{
		dir:      dir,
		capacity: capacity,
		index:    make(map[string]*entryMeta),
		stats:    Stats{Capacity: capacity},
		enc:      enc,
		dec:      dec,
	}
	if err := d.loadIndex(); err != nil {
		log.Warn("cache index unreadable, starting empty", "dir", dir, "err", err)
	}
	return d, nil
}

func (d *Disk) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(d.dir, indexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var entries []entryMeta
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	for i := range entries {
		e := entries[i]
		if _, err := os.Stat(d.pathFor(e.Key)); err != nil {
			continue
		}
		d.index[e.Key] = &e
		d.size += e.Size
	}
	return nil
}

// saveIndex writes the index atomically. Must be called with the lock held.
func (d *Disk) saveIndex() error {
	entries := make([]entryMeta, 0, len(d.index))
	for _, e := range d.index {
		entries = append(entries, *e)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(d.dir, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (d *Disk) pathFor(key string) string {
	return filepath.Join(d.dir, key+".zst")
}

// Get reads and decompresses a cached payload.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	meta, ok := d.index[key]
	if !ok {
		d.stats.Misses++
		d.mu.Unlock()
		return nil, false
	}
	meta.LastAccess = time.Now()
	d.stats.Hits++
	d.mu.Unlock()

	compressed, err := os.ReadFile(d.pathFor(key))
	if err != nil {
		d.Delete(key)
		return nil, false
	}
	raw, err := d.dec.DecodeAll(compressed, nil)
	if err != nil {
		log.Warn("corrupt cache entry dropped", "key", key, "err", err)
		d.Delete(key)
		return nil, false
	}
	return raw, true
}

// Put compresses and stores a payload, evicting least recently used entries
// when over capacity.
func (d *Disk) Put(key string, value []byte) error {
	compressed := d.enc.EncodeAll(value, nil)
	n := int64(len(compressed))
	if n > d.capacity {
		return ErrItemTooLarge
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.index[key]; ok {
		d.size -= old.Size
	}
	for d.size+n > d.capacity && len(d.index) > 0 {
		d.evictLRU()
	}
	if err := os.WriteFile(d.pathFor(key), compressed, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	now := time.Now()
	d.index[key] = &entryMeta{
		Key:        key,
		Size:       n,
		RawSize:    int64(len(value)),
		StoredAt:   now,
		LastAccess: now,
	}
	d.size += n
	return d.saveIndex()
}

// evictLRU drops the least recently accessed entry. Lock must be held.
func (d *Disk) evictLRU() {
	var oldest *entryMeta
	for _, e := range d.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	os.Remove(d.pathFor(oldest.Key))
	d.size -= oldest.Size
	delete(d.index, oldest.Key)
	d.stats.Evictions++
}

// Delete removes an entry if present.
func (d *Disk) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	meta, ok := d.index[key]
	if !ok {
		return nil
	}
	os.Remove(d.pathFor(key))
	d.size -= meta.Size
	delete(d.index, key)
	return d.saveIndex()
}

// Clear removes every entry.
func (d *Disk) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.index {
		os.Remove(d.pathFor(key))
	}
	d.index = make(map[string]*entryMeta)
	d.size = 0
	return d.saveIndex()
}

// Size returns the compressed on-disk size.
func (d *Disk) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Stats returns a snapshot of the counters.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Size = d.size
	s.ItemCount = int64(len(d.index))
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
	return s
}

// Prune removes entries stored before the cutoff and reports how many were
// dropped.
func (d *Disk) Prune(maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	var victims []string
	for key, e := range d.index {
		if e.StoredAt.Before(cutoff) {
			victims = append(victims, key)
		}
	}
	sort.Strings(victims)
	for _, key := range victims {
		os.Remove(d.pathFor(key))
		d.size -= d.index[key].Size
		delete(d.index, key)
	}
	if len(victims) > 0 {
		if err := d.saveIndex(); err != nil {
			log.Warn("saving cache index after prune", "err", err)
		}
	}
	return len(victims)
}

// Close releases the compressor resources.
func (d *Disk) Close() error {
	d.dec.Close()
	return d.enc.Close()
}
