package build

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/spf13/afero"
)

// Key derives a cache key from file content and the settings that shape
// the output. Changing either yields a different key.
func Key(content []byte, settings string) string {
	h := sha256.New()
	h.Write([]byte(settings))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// DiskStore persists cache values as files under a directory of the
// project filesystem, sharded by the first two characters of the key.
type DiskStore struct {
	fs  afero.Fs
	dir string
}

// NewDiskStore creates a store rooted at dir. The directory is created on
// first write.
func NewDiskStore(fsys afero.Fs, dir string) *DiskStore {
	return &DiskStore{fs: fsys, dir: dir}
}

func (s *DiskStore) path(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return path.Join(s.dir, shard, key)
}

// Get returns the stored value for key. A missing entry is not an error.
func (s *DiskStore) Get(key string) ([]byte, bool, error) {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return data, true, nil
}

// Put stores value under key. The file is written next to its final name
// and renamed into place so readers never observe a partial entry.
func (s *DiskStore) Put(key string, value []byte) error {
	target := s.path(key)
	if err := s.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, value, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to commit cache entry %s: %w", key, err)
	}
	return nil
}

// OutputCache is the two level cache used by tasks: the in-memory LRU is
// consulted first, then the disk store. Disk hits are promoted into memory.
type OutputCache struct {
	memory *BuildCache
	disk   *DiskStore
}

// NewOutputCache combines memory and disk. disk may be nil for a
// memory-only cache.
func NewOutputCache(memory *BuildCache, disk *DiskStore) *OutputCache {
	return &OutputCache{memory: memory, disk: disk}
}

// Get looks key up in memory, then on disk.
func (c *OutputCache) Get(key string) ([]byte, bool, error) {
	if v, ok := c.memory.Get(key); ok {
		return v, true, nil
	}
	if c.disk == nil {
		return nil, false, nil
	}
	v, ok, err := c.disk.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	c.memory.Set(key, v)
	return v, true, nil
}

// Put stores value in both levels.
func (c *OutputCache) Put(key string, value []byte) error {
	c.memory.Set(key, value)
	if c.disk == nil {
		return nil
	}
	return c.disk.Put(key, value)
}

// Stats returns the memory level statistics.
func (c *OutputCache) Stats() CacheStats {
	return c.memory.Stats()
}
