package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceExt(t *testing.T) {
	tests := []struct {
		path string
		ext  string
		want string
	}{
		{path: "/a/scene_1.png", ext: ".mp4", want: "/a/scene_1.mp4"},
		{path: "/a/scene_1.png", ext: "mp4", want: "/a/scene_1.mp4"},
		{path: "/a/scene_1", ext: ".mp4", want: "/a/scene_1.mp4"},
		{path: "/a/.hidden", ext: ".mp4", want: "/a/.hidden.mp4"},
		{path: "", ext: ".mp4", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ReplaceExt(tt.path, tt.ext), tt.path)
	}
}

func TestWithPrefix(t *testing.T) {
	assert.Equal(t, filepath.Join("/a", "sub_scene_1.png"), WithPrefix("/a/scene_1.png", "sub_"))
}

func TestCopyFileAndUsage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))

	dst := filepath.Join(dir, "nested", "dst.bin")
	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.True(t, Exists(dst))
	assert.False(t, Exists(filepath.Join(dir, "nested")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("partial"), 0644))

	usage, err := Usage(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Files)
	assert.Equal(t, int64(10), usage.Bytes)
}

func TestUsageMissingDir(t *testing.T) {
	usage, err := Usage(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Equal(t, DirUsage{}, usage)
}

func TestCopyFileMissingSource(t *testing.T) {
	err := CopyFile(filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "dst"))
	require.Error(t, err)
}
