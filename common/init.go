package common

import (
	"log"
	"os"
	"path/filepath"
)

// CheckpointFolder holds one JSON checkpoint file per job, written atomically by the
// checkpoint store. LogPathFolder is where the daemon's rotating log lives. Both default
// under DefaultAppDataFolder but can be overridden by config.Load before InitializeFolders runs.
var CheckpointFolder string
var LogPathFolder string

func InitializeFolders(checkpointDir, logDir string) {
	appFolder := DefaultAppDataFolder()

	CheckpointFolder = checkpointDir
	if CheckpointFolder == "" {
		CheckpointFolder = filepath.Join(appFolder, "checkpoints")
	}
	LogPathFolder = logDir
	if LogPathFolder == "" {
		LogPathFolder = filepath.Join(appFolder, "logs")
	}

	if err := os.MkdirAll(CheckpointFolder, os.ModeDir|os.ModePerm); err != nil && !os.IsExist(err) {
		log.Fatalf("copyd: could not create checkpoint directory %s: %v", CheckpointFolder, err)
	}
	if err := os.MkdirAll(LogPathFolder, os.ModeDir|os.ModePerm); err != nil && !os.IsExist(err) {
		log.Fatalf("copyd: could not create log directory %s: %v", LogPathFolder, err)
	}
}

// DefaultAppDataFolder returns ~/.copyd, falling back to the system temp dir if the
// home directory can't be resolved (e.g. running as a stripped-down system service user).
func DefaultAppDataFolder() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".copyd")
}
