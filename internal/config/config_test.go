package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 300_000, cfg.CacheTimeoutMs)
	assert.Equal(t, 1000, cfg.MaxCacheSize)
	assert.Equal(t, 0.01, cfg.DecayLambdaPerHour)
	assert.Equal(t, 0.5, cfg.LongTermDemotionDecay)
}

func TestValidate_RequiresDimensionAndGraphName(t *testing.T) {
	cfg := &StoreConfig{}
	err := cfg.Validate()
	require.Error(t, err)

	cfg.Dimension = 768
	err = cfg.Validate()
	require.Error(t, err)

	cfg.GraphName = "http://example.org/g"
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML_OverlaysNonZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dimension: 1536\ngraphName: http://example.org/g\n"), 0o644))

	cfg := Load()
	require.NoError(t, LoadYAML(cfg, path))
	assert.Equal(t, 1536, cfg.Dimension)
	assert.Equal(t, "http://example.org/g", cfg.GraphName)
}
