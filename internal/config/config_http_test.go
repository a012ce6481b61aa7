package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_HTTPDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("UI_STATIC_DIR", "")
	t.Setenv("UI_ENABLED", "")
	t.Setenv("JOB_WORKERS", "")
	t.Setenv("TRUST_PROXY_HEADERS", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "/app/web", cfg.HTTP.UIStaticDir)
	assert.True(t, cfg.HTTP.UIEnabled)
	assert.Equal(t, 1, cfg.Jobs.Workers)
	assert.False(t, cfg.HTTP.TrustProxyHeaders)
}

func TestNewFromEnv_TrustProxyHeaders(t *testing.T) {
	t.Setenv("TRUST_PROXY_HEADERS", "true")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.HTTP.TrustProxyHeaders)
}

func TestNewFromEnv_UIDisabled(t *testing.T) {
	t.Setenv("UI_ENABLED", "false")

	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.HTTP.UIEnabled)
}
