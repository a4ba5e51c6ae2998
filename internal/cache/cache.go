// Package cache stores synthesized audio keyed by the exact synthesis
// request, so re-running a batch does not re-pay engine calls. It is a
// two-tier store: a byte-capped in-memory LRU in front of a zstd-compressed
// disk cache.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Common errors for cache operations.
var (
	ErrItemTooLarge = errors.New("item too large for cache")
	ErrCorrupted    = errors.New("cache data corrupted")
)

// Key identifies one synthesis request. Two requests with identical fields
// produce identical audio, so they share a cache slot. Format is the target
// output format; the same text rendered to wav and to mp3 must not collide.
type Key struct {
	Text    string
	Engine  string
	Voice   string
	Rate    float64
	Pitch   float64
	Volume  float64
	Emotion string
	Format  string
}

// Hash returns the stable cache key string.
func (k Key) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%.3f\x00%.1f\x00%.3f\x00%s\x00%s",
		k.Text, k.Engine, k.Voice, k.Rate, k.Pitch, k.Volume, k.Emotion, k.Format)
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is the cached payload for one request: the audio bytes plus the
// engine's timing sidecar when it produced one. Both survive the round
// trip so a cache hit can still emit subtitles.
type Entry struct {
	Audio      []byte
	SRTContent string
}

const entryVersion = 1

// encodeEntry packs an entry into the byte payload the tiers store:
// version byte, uvarint sidecar length, sidecar, audio.
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(e.SRTContent)+len(e.Audio))
	buf = append(buf, entryVersion)
	buf = binary.AppendUvarint(buf, uint64(len(e.SRTContent)))
	buf = append(buf, e.SRTContent...)
	buf = append(buf, e.Audio...)
	return buf
}

func decodeEntry(data []byte) (Entry, error) {
	if len(data) == 0 || data[0] != entryVersion {
		return Entry{}, ErrCorrupted
	}
	n, read := binary.Uvarint(data[1:])
	if read <= 0 || uint64(len(data)-1-read) < n {
		return Entry{}, ErrCorrupted
	}
	body := data[1+read:]
	return Entry{SRTContent: string(body[:n]), Audio: body[n:]}, nil
}

// Stats holds cache performance counters.
type Stats struct {
	Capacity  int64
	Size      int64
	ItemCount int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// Store is implemented by each cache tier.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Size() int64
	Stats() Stats
}

// entryMeta describes a cached item for index bookkeeping.
type entryMeta struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"` // compressed size on disk
	RawSize    int64     `json:"raw_size"`
	StoredAt   time.Time `json:"stored_at"`
	LastAccess time.Time `json:"last_access"`
}
