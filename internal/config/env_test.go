package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUsesDefaultsWhenEnvUnset(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 512, c.TileWidth)
	assert.Equal(t, 12, c.NumLevels)
	assert.Equal(t, ".bil", c.FormatSuffix)
	assert.Equal(t, ":8080", c.ListenAddr)
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	t.Setenv("ELEVATIOND_TILE_WIDTH", "256")
	t.Setenv("ELEVATIOND_NUM_LEVELS", "6")
	t.Setenv("ELEVATIOND_CACHE_NAME", "custom")
	t.Setenv("ELEVATIOND_DATA_TYPE", "float32")
	t.Setenv("ELEVATIOND_BYTE_ORDER", "big")
	t.Setenv("ELEVATIOND_BATHYMETRY_ENABLED", "true")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 256, c.TileWidth)
	assert.Equal(t, 6, c.NumLevels)
	assert.Equal(t, "custom", c.CacheName)
	assert.Equal(t, dataTypeOf("float32"), c.DataType)
	assert.Equal(t, byteOrderOf("big"), c.ByteOrder)
	assert.True(t, c.BathymetryEnabled)
}

func TestLoadRejectsInvalidResultingConfig(t *testing.T) {
	t.Setenv("ELEVATIOND_TILE_WIDTH", "0")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadIgnoresUnparseableNumericOverride(t *testing.T) {
	t.Setenv("ELEVATIOND_NUM_LEVELS", "not-a-number")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12, c.NumLevels, "an unparseable override should fall back to the default")
}
