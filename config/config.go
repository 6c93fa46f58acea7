// Package config loads the daemon's process-wide configuration: socket path,
// checkpoint/log directories, concurrency limit, and default block size. The file
// location is selected by the COPYD_CONFIG_PATH environment variable, defaulting to a
// well-known path under the daemon's app-data folder.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/copyd/copyd/common"
	"github.com/pkg/errors"
)

// EnvConfigPath is the one environment override the daemon recognizes.
const EnvConfigPath = "COPYD_CONFIG_PATH"

// DefaultSocketPath is used when the config file doesn't set SocketPath.
const DefaultSocketPath = "/run/copyd/copyd.sock"

// Config is the daemon's flat, file-driven configuration.
type Config struct {
	SocketPath        string `json:"socket_path"`
	CheckpointDir     string `json:"checkpoint_dir"`
	LogDir            string `json:"log_dir"`
	MaxConcurrentJobs int    `json:"max_concurrent_jobs"`
	DefaultBlockSize  int64  `json:"default_block_size"`
	MinimumLogLevel   string `json:"minimum_log_level"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		SocketPath:        DefaultSocketPath,
		CheckpointDir:     filepath.Join(common.DefaultAppDataFolder(), "checkpoints"),
		LogDir:            filepath.Join(common.DefaultAppDataFolder(), "logs"),
		MaxConcurrentJobs: common.ComputeConcurrencyValue(runtime.NumCPU()),
		DefaultBlockSize:  1 << 20,
		MinimumLogLevel:   "INFO",
	}
}

// ResolvePath returns the config file path to load: COPYD_CONFIG_PATH if set, else the
// default location under the daemon's app-data folder.
func ResolvePath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return filepath.Join(common.DefaultAppDataFolder(), "config.json")
}

// Load reads the config file at path, overlaying it onto Default(). A missing file is
// not an error: the daemon runs fine on defaults alone, the way a first-run install
// would before anyone writes a config file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parsing %s", path)
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = common.ComputeConcurrencyValue(runtime.NumCPU())
	}
	return cfg, nil
}

// LogLevel parses MinimumLogLevel into a common.LogLevel, defaulting to LogInfo on an
// unrecognized value rather than failing daemon startup over a typo in a config file.
func (c *Config) LogLevel() common.LogLevel {
	switch c.MinimumLogLevel {
	case "NONE":
		return common.LogNone
	case "FATAL":
		return common.LogFatal
	case "PANIC":
		return common.LogPanic
	case "ERROR":
		return common.LogError
	case "WARN", "WARNING":
		return common.LogWarning
	case "DEBUG":
		return common.LogDebug
	default:
		return common.LogInfo
	}
}
