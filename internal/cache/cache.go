package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MimeLyc/mythos-studio/pkg/file"
	"github.com/MimeLyc/mythos-studio/pkg/log"
)

const metadataFile = "metadata.json"

// Entry is one row of the metadata index. Descriptive fields are kept for
// inspection only; lookups go through the key.
type Entry struct {
	Key        string    `json:"key"`
	Kind       Kind      `json:"type"`
	Filename   string    `json:"filename"`
	Prompt     string    `json:"prompt,omitempty"`
	Reference  string    `json:"ref_path,omitempty"`
	SceneIndex *int      `json:"scene_index,omitempty"`
	Text       string    `json:"text,omitempty"`
	Voice      string    `json:"voice,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats is derived by scanning the blob directories.
type Stats struct {
	ImageCount     int   `json:"image_count"`
	AudioCount     int   `json:"audio_count"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// Cache is a content-addressed store of generated images and audio, backed
// by a directory tree and a JSON index. Safe for concurrent use.
type Cache struct {
	dir string

	mu      sync.RWMutex
	entries map[string]Entry
}

// New opens or initializes the cache rooted at dir. An index that exists but
// cannot be parsed is returned as an error and left untouched on disk.
func New(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}

	for _, kind := range []Kind{KindImage, KindAudio} {
		if err := os.MkdirAll(filepath.Join(dir, kind.dir()), 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	c := &Cache{
		dir:     dir,
		entries: make(map[string]Entry),
	}
	if err := c.load(); err != nil {
		return nil, err
	}

	log.Info("Cache opened at %s with %d entries", dir, len(c.entries))
	return c, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache index: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("cache index %s is corrupt: %w", c.indexPath(), err)
	}
	for key, entry := range entries {
		if entry.Key == "" {
			entry.Key = key
			entries[key] = entry
		}
	}
	c.entries = entries
	return nil
}

// persist writes entries as the index. It must be called with mu held for
// writing; callers install entries in memory only after it succeeds.
func (c *Cache) persist(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	if err := file.WriteAtomic(c.indexPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache index: %w", err)
	}
	return nil
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.dir, metadataFile)
}

func (c *Cache) blobPath(entry Entry) string {
	return filepath.Join(c.dir, entry.Kind.dir(), entry.Filename)
}

// Lookup returns the blob path for d when both the index entry and the blob
// exist. A dangling entry is a miss.
func (c *Cache) Lookup(d Descriptor) (string, bool) {
	key := d.Key()

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}

	path := c.blobPath(entry)
	if !file.Exists(path) {
		log.Debug("Cache entry %s has no blob at %s", key, path)
		return "", false
	}
	return path, true
}

// Store copies the blob at sourcePath into the cache under d's key and
// records it in the index. The stored path is returned.
func (c *Cache) Store(d Descriptor, sourcePath string) (string, error) {
	if d.Kind.dir() == "" {
		return "", fmt.Errorf("unknown cache kind %q", d.Kind)
	}

	key := d.Key()
	ext := filepath.Ext(sourcePath)
	if ext == "" {
		ext = d.Kind.defaultExt()
	}

	entry := Entry{
		Key:       key,
		Kind:      d.Kind,
		Filename:  key + ext,
		CreatedAt: time.Now().UTC(),
	}
	switch d.Kind {
	case KindImage:
		idx := d.SceneIndex
		entry.Prompt = d.Prompt
		entry.Reference = d.fields()[1]
		entry.SceneIndex = &idx
	case KindAudio:
		entry.Text = d.Text
		entry.Voice = d.Voice
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.blobPath(entry)
	if err := file.CopyFile(sourcePath, dst); err != nil {
		return "", fmt.Errorf("failed to store %s blob: %w", d.Kind, err)
	}

	next := make(map[string]Entry, len(c.entries)+1)
	for k, v := range c.entries {
		next[k] = v
	}
	next[key] = entry
	if err := c.persist(next); err != nil {
		return "", err
	}
	c.entries = next

	log.Debug("Cached %s %s", d.Kind, entry.Filename)
	return dst, nil
}

// Stats counts blobs per kind and the total size of everything under the root.
func (c *Cache) Stats() (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	images, err := file.Usage(filepath.Join(c.dir, KindImage.dir()))
	if err != nil {
		return Stats{}, fmt.Errorf("failed to scan images: %w", err)
	}
	audio, err := file.Usage(filepath.Join(c.dir, KindAudio.dir()))
	if err != nil {
		return Stats{}, fmt.Errorf("failed to scan audio: %w", err)
	}

	var indexSize int64
	if info, err := os.Stat(c.indexPath()); err == nil {
		indexSize = info.Size()
	}

	return Stats{
		ImageCount:     images.Files,
		AudioCount:     audio.Files,
		TotalSizeBytes: images.Bytes + audio.Bytes + indexSize,
	}, nil
}

// Clear removes every blob and resets the index. Concurrent lookups observe
// either the old state or the empty one. The in-memory index is emptied even
// when removal fails part way, since some blobs may already be gone.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)

	for _, kind := range []Kind{KindImage, KindAudio} {
		dir := filepath.Join(c.dir, kind.dir())
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to recreate %s: %w", dir, err)
		}
	}

	if err := c.persist(c.entries); err != nil {
		return err
	}

	log.Info("Cache cleared at %s", c.dir)
	return nil
}
