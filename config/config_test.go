package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/config"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Equal(t, config.DefaultSocketPath, cfg.SocketPath)
	require.Greater(t, cfg.MaxConcurrentJobs, 0)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"socket_path":"/tmp/custom.sock","max_concurrent_jobs":4}`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.sock", cfg.SocketPath)
	require.Equal(t, 4, cfg.MaxConcurrentJobs)
}

func TestResolvePathHonorsEnvironmentOverride(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "/tmp/my-config.json")
	require.Equal(t, "/tmp/my-config.json", config.ResolvePath())
}

func TestLogLevelDefaultsToInfo(t *testing.T) {
	cfg := &config.Config{MinimumLogLevel: "nonsense"}
	require.Equal(t, common.LogInfo, cfg.LogLevel())
}

func TestLogLevelParsesKnownValues(t *testing.T) {
	cfg := &config.Config{MinimumLogLevel: "DEBUG"}
	require.Equal(t, common.LogDebug, cfg.LogLevel())
}
