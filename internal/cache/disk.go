package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// DiskCache stores zstd-compressed values, one file per key. The file
// modification time is the time the value was stored.
type DiskCache struct {
	basePath string
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder

	mu    sync.Mutex
	stats Stats
}

// NewDiskCache creates a cache rooted at basePath.
func NewDiskCache(basePath string, level zstd.EncoderLevel) (*DiskCache, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &DiskCache{
		basePath: basePath,
		encoder:  encoder,
		decoder:  decoder,
	}, nil
}

// Path returns the cache directory.
func (dc *DiskCache) Path() string {
	return dc.basePath
}

func (dc *DiskCache) filePath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(dc.basePath, hex.EncodeToString(sum[:])+".zst")
}

// Get returns the value for key and when it was stored.
func (dc *DiskCache) Get(key string) ([]byte, time.Time, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.stats.LastAccess = time.Now()

	path := dc.filePath(key)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		dc.stats.Misses++
		return nil, time.Time{}, ErrCacheMiss
	}
	if err != nil {
		dc.stats.Misses++
		return nil, time.Time{}, err
	}

	compressed, err := os.ReadFile(path)
	if err != nil {
		dc.stats.Misses++
		return nil, time.Time{}, err
	}
	data, err := dc.decoder.DecodeAll(compressed, nil)
	if err != nil {
		// unreadable entries are dropped so the next Put starts clean
		_ = os.Remove(path)
		dc.stats.Misses++
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}

	dc.stats.Hits++
	return data, info.ModTime(), nil
}

// Put stores value under key, replacing any previous value.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	path := dc.filePath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, dc.encoder.EncodeAll(value, nil), 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	dc.stats.Writes++
	return nil
}

// Delete removes key. Missing keys are not an error.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	err := os.Remove(dc.filePath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes every cached value.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(dc.basePath, "*.zst"))
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns cache statistics.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.stats
}

// Close releases the zstd encoder and decoder.
func (dc *DiskCache) Close() error {
	dc.decoder.Close()
	return dc.encoder.Close()
}
