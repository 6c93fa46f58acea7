package jobmanager

import (
	"sync"

	"github.com/copyd/copyd/common"
)

// folderTracker records which destination directories this job created itself, so that
// under Skip/Serial exists-actions a pre-existing directory's metadata is left alone
// while a directory the job just made can still have properties applied to it.
type folderTracker struct {
	mu      sync.Mutex
	created map[string]bool
}

func newFolderTracker() *folderTracker {
	return &folderTracker{created: make(map[string]bool)}
}

func (t *folderTracker) CreateFolder(folder string, doCreation func() error) error {
	if err := doCreation(); err != nil {
		if err == common.FolderCreationErrorAlreadyExists {
			return nil
		}
		return err
	}
	t.mu.Lock()
	t.created[folder] = true
	t.mu.Unlock()
	return nil
}

func (t *folderTracker) ShouldSetProperties(folder string, action common.ExistsAction) bool {
	if action == common.EExistsAction.Overwrite() {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.created[folder]
}

func (t *folderTracker) StopTracking(folder string) {
	t.mu.Lock()
	delete(t.created, folder)
	t.mu.Unlock()
}
