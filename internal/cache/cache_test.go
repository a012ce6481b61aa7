package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBlob(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDescriptorKey_Deterministic(t *testing.T) {
	a := ImageDescriptor("a temple at dawn", "characters/shiva.png", 2)
	b := ImageDescriptor("a temple at dawn", "characters/shiva.png", 2)
	assert.Equal(t, a.Key(), b.Key())
	assert.Len(t, a.Key(), 64)

	assert.NotEqual(t, a.Key(), ImageDescriptor("a temple at dawn", "characters/shiva.png", 3).Key())
	assert.NotEqual(t, a.Key(), ImageDescriptor("a temple at dawn", "", 2).Key())
	assert.Equal(t, ImageDescriptor("p", "", 0).Key(), ImageDescriptor("p", "none", 0).Key())

	assert.Equal(t, AudioDescriptor("hello", "alloy").Key(), AudioDescriptor("hello", "alloy").Key())
	assert.NotEqual(t, AudioDescriptor("hello", "alloy").Key(), AudioDescriptor("hello", "onyx").Key())
}

func TestDescriptorKey_FieldBoundaries(t *testing.T) {
	assert.NotEqual(t,
		AudioDescriptor("a|b", "c").Key(),
		AudioDescriptor("a", "b|c").Key())
}

func TestStoreThenLookup(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	src := writeBlob(t, t.TempDir(), "scene_0.png", "png-bytes")
	d := ImageDescriptor("prompt", "", 0)

	_, ok := c.Lookup(d)
	assert.False(t, ok)

	stored, err := c.Store(d, src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(c.Dir(), "images", d.Key()+".png"), stored)

	got, ok := c.Lookup(d)
	require.True(t, ok)
	assert.Equal(t, stored, got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	// A second cache over the same directory sees the persisted entry.
	reopened, err := New(c.Dir())
	require.NoError(t, err)
	got, ok = reopened.Lookup(d)
	require.True(t, ok)
	assert.Equal(t, stored, got)
}

func TestStore_WritesMetadata(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	d := AudioDescriptor("narration", "alloy")
	_, err = c.Store(d, writeBlob(t, t.TempDir(), "scene_0.mp3", "mp3"))
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(c.Dir(), metadataFile))
	require.NoError(t, err)

	var entries map[string]Entry
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Contains(t, entries, d.Key())

	entry := entries[d.Key()]
	assert.Equal(t, KindAudio, entry.Kind)
	assert.Equal(t, d.Key()+".mp3", entry.Filename)
	assert.Equal(t, "narration", entry.Text)
	assert.Equal(t, "alloy", entry.Voice)
	assert.Nil(t, entry.SceneIndex)
}

func TestLookup_MissingBlobIsMiss(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	d := ImageDescriptor("prompt", "", 1)
	stored, err := c.Store(d, writeBlob(t, t.TempDir(), "x.png", "png"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(stored))

	_, ok := c.Lookup(d)
	assert.False(t, ok)
}

func TestNew_CorruptIndexFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, metadataFile), []byte("{not json"), 0644))

	_, err := New(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt")

	// The corrupt file is left for the operator.
	data, readErr := os.ReadFile(filepath.Join(dir, metadataFile))
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}

func TestStatsAndClear(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	src := t.TempDir()

	for i := 0; i < 3; i++ {
		_, err := c.Store(ImageDescriptor(fmt.Sprintf("p%d", i), "", i), writeBlob(t, src, fmt.Sprintf("%d.png", i), "1234"))
		require.NoError(t, err)
	}
	_, err = c.Store(AudioDescriptor("t", "v"), writeBlob(t, src, "a.mp3", "12"))
	require.NoError(t, err)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ImageCount)
	assert.Equal(t, 1, stats.AudioCount)
	assert.Greater(t, stats.TotalSizeBytes, int64(14))

	require.NoError(t, c.Clear())

	stats, err = c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ImageCount)
	assert.Equal(t, 0, stats.AudioCount)

	_, ok := c.Lookup(ImageDescriptor("p0", "", 0))
	assert.False(t, ok)
	assert.DirExists(t, filepath.Join(c.Dir(), "images"))
	assert.DirExists(t, filepath.Join(c.Dir(), "audio"))

	reopened, err := New(c.Dir())
	require.NoError(t, err)
	_, ok = reopened.Lookup(AudioDescriptor("t", "v"))
	assert.False(t, ok)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	src := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		path := writeBlob(t, src, fmt.Sprintf("%d.mp3", i), "audio")
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			_, err := c.Store(AudioDescriptor(fmt.Sprintf("line %d", i), "alloy"), path)
			assert.NoError(t, err)
		}(i, path)
	}
	wg.Wait()

	reopened, err := New(c.Dir())
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		_, ok := reopened.Lookup(AudioDescriptor(fmt.Sprintf("line %d", i), "alloy"))
		assert.True(t, ok, "entry %d", i)
	}
}

// blockIndex replaces the index file with a directory so the next persist fails.
func blockIndex(t *testing.T, c *Cache) {
	t.Helper()
	require.NoError(t, os.RemoveAll(c.indexPath()))
	require.NoError(t, os.MkdirAll(filepath.Join(c.indexPath(), "busy"), 0755))
}

func TestStore_IndexWriteFailureIsNotVisible(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)
	src := t.TempDir()

	kept := AudioDescriptor("kept", "alloy")
	_, err = c.Store(kept, writeBlob(t, src, "kept.mp3", "mp3"))
	require.NoError(t, err)

	blockIndex(t, c)

	lost := ImageDescriptor("prompt", "", 0)
	_, err = c.Store(lost, writeBlob(t, src, "lost.png", "png"))
	require.Error(t, err)

	_, ok := c.Lookup(lost)
	assert.False(t, ok)
	_, ok = c.Lookup(kept)
	assert.True(t, ok)
}

func TestClear_FailureStillResetsIndex(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = c.Store(AudioDescriptor("t", "v"), writeBlob(t, t.TempDir(), "a.mp3", "12"))
	require.NoError(t, err)

	blockIndex(t, c)

	require.Error(t, c.Clear())
	assert.Empty(t, c.entries)
	_, ok := c.Lookup(AudioDescriptor("t", "v"))
	assert.False(t, ok)
}
