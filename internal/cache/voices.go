package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/dgnsrekt/rtvoice/tts"
)

// VoiceCache stores voice catalogs keyed by backend, e.g. a server URL.
type VoiceCache struct {
	disk *DiskCache
	ttl  time.Duration
}

// NewVoiceCache creates a voice cache in dir. Entries older than ttl are
// reported as expired; a ttl of zero never expires.
func NewVoiceCache(dir string, ttl time.Duration) (*VoiceCache, error) {
	disk, err := NewDiskCache(dir, zstd.SpeedDefault)
	if err != nil {
		return nil, err
	}
	return &VoiceCache{disk: disk, ttl: ttl}, nil
}

// Get returns the cached catalog for key.
func (vc *VoiceCache) Get(key string) ([]tts.Voice, error) {
	data, stored, err := vc.disk.Get("voices:" + key)
	if err != nil {
		return nil, err
	}
	if vc.ttl > 0 && time.Since(stored) > vc.ttl {
		return nil, ErrCacheExpired
	}

	var voices []tts.Voice
	if err := json.Unmarshal(data, &voices); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return voices, nil
}

// Put stores the catalog for key.
func (vc *VoiceCache) Put(key string, voices []tts.Voice) error {
	data, err := json.Marshal(voices)
	if err != nil {
		return fmt.Errorf("error encoding voices: %w", err)
	}
	return vc.disk.Put("voices:"+key, data)
}

// Invalidate drops the catalog for key.
func (vc *VoiceCache) Invalidate(key string) error {
	return vc.disk.Delete("voices:" + key)
}

// Stats returns the underlying disk cache statistics.
func (vc *VoiceCache) Stats() Stats {
	return vc.disk.Stats()
}

// Close releases the cache.
func (vc *VoiceCache) Close() error {
	return vc.disk.Close()
}

// IsMiss reports whether err means the catalog has to be fetched again.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCacheExpired) || errors.Is(err, ErrCacheCorrupted)
}
