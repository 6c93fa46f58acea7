package common

import "sync"

// FolderCreationTracker ensures that in a Skip/Serial existsAction run we only apply
// preserved directory metadata (mode, owner, timestamps) to directories this job itself
// created, mirroring the same rule already applied to files.
type FolderCreationTracker interface {
	CreateFolder(folder string, doCreation func() error) error
	ShouldSetProperties(folder string, action ExistsAction) bool
	StopTracking(folder string)
}

// FolderCreationErrorAlreadyExists is returned by doCreation to signal the folder already
// existed; CreateFolder treats that as success without recording the folder as newly made.
var FolderCreationErrorAlreadyExists = folderCreationErrorAlreadyExists{}

type folderCreationErrorAlreadyExists struct{}

func (folderCreationErrorAlreadyExists) Error() string { return "folder already exists" }

func NewFolderCreationTracker(preserveFolderMetadata bool) FolderCreationTracker {
	if !preserveFolderMetadata {
		// avoid growing an unbounded map when nothing will ever consult it
		return &nullFolderTracker{}
	}
	return &simpleFolderTracker{contents: make(map[string]struct{})}
}

type simpleFolderTracker struct {
	mu       sync.Mutex
	contents map[string]struct{}
}

func (f *simpleFolderTracker) CreateFolder(folder string, doCreation func() error) error {
	err := doCreation()
	if err != nil {
		if _, ok := err.(folderCreationErrorAlreadyExists); ok {
			return nil
		}
		return err
	}

	f.mu.Lock()
	f.contents[folder] = struct{}{}
	f.mu.Unlock()
	return nil
}

func (f *simpleFolderTracker) ShouldSetProperties(folder string, action ExistsAction) bool {
	if action == EExistsAction.Overwrite() {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	_, createdByThisJob := f.contents[folder]
	return createdByThisJob
}

func (f *simpleFolderTracker) StopTracking(folder string) {
	f.mu.Lock()
	delete(f.contents, folder)
	f.mu.Unlock()
}

type nullFolderTracker struct{}

func (f *nullFolderTracker) CreateFolder(folder string, doCreation func() error) error {
	err := doCreation()
	if _, ok := err.(folderCreationErrorAlreadyExists); ok {
		return nil
	}
	return err
}

func (f *nullFolderTracker) ShouldSetProperties(folder string, action ExistsAction) bool {
	return action == EExistsAction.Overwrite()
}

func (f *nullFolderTracker) StopTracking(folder string) {}
