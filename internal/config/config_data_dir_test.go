package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_DataDirDefault(t *testing.T) {
	t.Setenv("DATA_DIR", "")
	t.Setenv("CACHE_DIR", "")
	t.Setenv("OUTPUT_DIR", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/app/data", cfg.System.DataDir)
	assert.Equal(t, filepath.Join("/app/data", "studio.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join("/app/data", "cache"), cfg.Storage.CacheDir)
	assert.Equal(t, filepath.Join("/app/data", "output"), cfg.Storage.OutputDir)
}

func TestNewFromEnv_DataDirFromEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/studio-data")
	t.Setenv("CACHE_DIR", "/tmp/blobs")
	t.Setenv("OUTPUT_DIR", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/studio-data", cfg.System.DataDir)
	assert.Equal(t, filepath.Join("/tmp/studio-data", "studio.db"), cfg.DBPath())
	assert.Equal(t, "/tmp/blobs", cfg.Storage.CacheDir)
	assert.Equal(t, filepath.Join("/tmp/studio-data", "output"), cfg.Storage.OutputDir)
}
