package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, _, err := Load(Overrides{}, zerolog.Nop(), nil)
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.HeartbeatTimeoutSeconds)
	assert.Equal(t, []string{"ESP", "NATIONAL PG"}, cfg.PrefixPhrases)
	assert.InDelta(t, 0.70, cfg.ConfidenceThreshold, 0.0001)
	assert.Equal(t, 64, cfg.OutboundQueueCapacity)
}

func TestLoadOverridesWinOverDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, _, err := Load(Overrides{
		DatabasePath: filepath.Join(dir, "custom.db"),
		ListenAddr:   "127.0.0.1:9090",
		LogLevel:     "debug",
	}, zerolog.Nop(), nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "custom.db"), cfg.DatabasePath)
	assert.Equal(t, "127.0.0.1", cfg.ListenHost)
	assert.Equal(t, 9090, cfg.ListenPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chetan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("confidence_threshold: 0.85\nprefix_phrases:\n  - HEY ROBOT\n"), 0o644))

	cfg, _, err := Load(Overrides{ConfigFile: path}, zerolog.Nop(), nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.85, cfg.ConfidenceThreshold, 0.0001)
	assert.Equal(t, []string{"HEY ROBOT"}, cfg.PrefixPhrases)
}
