package checkpoint_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/copyd/copyd/checkpoint"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := checkpoint.NewStore(dir, nil)
	require.NoError(t, err)

	cp := &checkpoint.JobCheckpoint{
		JobID:         "job-1",
		OperationKind: "Copy",
		Files: map[string]checkpoint.FileCheckpoint{
			checkpoint.FileKey("/src/a", "/dst/a"): {
				SourcePath:      "/src/a",
				DestinationPath: "/dst/a",
				BytesCopied:     10,
				TotalSize:       100,
			},
		},
		TotalFiles: 1,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.Save(cp))

	loaded, err := store.Load("job-1")
	require.NoError(t, err)
	require.Equal(t, "job-1", loaded.JobID)
	require.Len(t, loaded.Files, 1)
}

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := checkpoint.NewStore(dir, nil)
	require.NoError(t, err)

	_, err = store.Load("does-not-exist")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestListResumableSkipsCompletedJobs(t *testing.T) {
	dir := t.TempDir()
	store, err := checkpoint.NewStore(dir, nil)
	require.NoError(t, err)

	unfinished := &checkpoint.JobCheckpoint{
		JobID: "unfinished",
		Files: map[string]checkpoint.FileCheckpoint{
			"a": {}, "b": {},
		},
		CompletedKeys: []string{"a"},
	}
	finished := &checkpoint.JobCheckpoint{
		JobID: "finished",
		Files: map[string]checkpoint.FileCheckpoint{
			"a": {},
		},
		CompletedKeys: []string{"a"},
	}
	require.NoError(t, store.Save(unfinished))
	require.NoError(t, store.Save(finished))

	ids, err := store.ListResumable()
	require.NoError(t, err)
	require.Equal(t, []string{"unfinished"}, ids)
}

func TestDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := checkpoint.NewStore(dir, nil)
	require.NoError(t, err)

	require.NoError(t, store.Delete("never-existed"))
}

func TestResumeSafeDetectsSourceChange(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("hello"), 0o644))

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)

	fc := checkpoint.FileCheckpoint{
		SourcePath:         src,
		DestinationPath:    dst,
		BytesCopied:        5,
		TotalSize:          srcInfo.Size(),
		SourceLastModified: srcInfo.ModTime(),
	}
	require.True(t, checkpoint.ResumeSafe(fc))

	// mutate the source; resume should no longer be considered safe
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(src, []byte("hello world, but different now"), 0o644))
	require.False(t, checkpoint.ResumeSafe(fc))
}
