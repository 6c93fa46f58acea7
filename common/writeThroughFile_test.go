package common_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"testing"

	"github.com/copyd/copyd/common"
	"github.com/stretchr/testify/assert"
)

func TestCreateParentDirectoryIfNotExist(t *testing.T) {
	a := assert.New(t)
	tracker := common.NewFolderCreationTracker(true)

	dir := t.TempDir()
	destination := filepath.Join(dir, "nested", "child", "stuff.txt")

	err := common.CreateParentDirectoryIfNotExist(context.Background(), destination, tracker)
	a.NoError(err)

	info, err := os.Stat(filepath.Join(dir, "nested", "child"))
	a.NoError(err)
	a.True(info.IsDir())

	// pointing straight at the filesystem root is a no-op, not an error
	err = common.CreateParentDirectoryIfNotExist(context.Background(), "/stuff.txt", tracker)
	a.NoError(err)
}

// Test EINTR errors are not returned on Linux
func TestCreateFileOfSizeWithWriteThroughOption(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("fallocate is Linux specific")
		return
	}
	a := assert.New(t)
	destinationPath := filepath.Join(t.TempDir(), "preallocated.bin")

	f, err := common.CreateFileOfSizeWithWriteThroughOption(destinationPath, 4096, false)
	if err != nil {
		a.NotEqual(syscall.EINTR, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	a.NoError(err)
	a.EqualValues(4096, info.Size())
}
