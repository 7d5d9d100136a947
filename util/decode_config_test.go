package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type decodeTestConfig struct {
	Path     string        `yaml:"path"`
	Gzip     bool          `yaml:"gzip"`
	Interval time.Duration `yaml:"interval"`
}

func TestDecodeConfig(t *testing.T) {
	input := map[string]interface{}{
		"path":     "/tmp/out.pftrace",
		"gzip":     true,
		"interval": "30s",
	}
	config := decodeTestConfig{}
	err := DecodeConfig("testsink", input, &config)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out.pftrace", config.Path)
	assert.True(t, config.Gzip)
	assert.Equal(t, 30*time.Second, config.Interval)
}

func TestDecodeConfigEnvOverride(t *testing.T) {
	t.Setenv("TESTSINK_PATH", "/var/trace/out.pftrace")
	input := map[string]interface{}{
		"path": "/tmp/out.pftrace",
	}
	config := decodeTestConfig{}
	err := DecodeConfig("testsink", input, &config)
	require.NoError(t, err)
	assert.Equal(t, "/var/trace/out.pftrace", config.Path)
}

func TestDecodeConfigBadDuration(t *testing.T) {
	input := map[string]interface{}{
		"interval": "not-a-duration",
	}
	config := decodeTestConfig{}
	err := DecodeConfig("testsink", input, &config)
	assert.Error(t, err)
}
