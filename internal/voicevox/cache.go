package voicevox

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Cache stores synthesized WAV data on disk, keyed by text and speaker, so
// repeated lines skip the engine round trip.
type Cache struct {
	dir string
}

// NewCache creates the cache directory if needed. An empty dir disables
// caching (Get always misses, Put is a no-op).
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return &Cache{}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create voice cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Path returns the cache file path for a text/speaker pair.
func (c *Cache) Path(text string, speakerID int) string {
	if c.dir == "" {
		return ""
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%s_%d", text, speakerID)))
	return filepath.Join(c.dir, "voice_"+hex.EncodeToString(sum[:])+".wav")
}

// Get returns cached WAV data, or nil on a miss.
func (c *Cache) Get(text string, speakerID int) []byte {
	path := c.Path(text, speakerID)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return data
}

// Put stores WAV data for a text/speaker pair.
func (c *Cache) Put(text string, speakerID int, data []byte) error {
	path := c.Path(text, speakerID)
	if path == "" {
		return nil
	}
	return os.WriteFile(path, data, 0644)
}
