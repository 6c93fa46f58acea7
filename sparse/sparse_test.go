package sparse_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/copyd/copyd/sparse"
	"github.com/stretchr/testify/require"
)

func TestIsSparseDenseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dense")
	require.NoError(t, os.WriteFile(path, []byte("not sparse at all, fully allocated content"), 0o644))

	sp, err := sparse.IsSparse(path)
	require.NoError(t, err)
	require.False(t, sp)
}

func TestCopyPreservesApparentSize(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src")

	f, err := os.Create(srcPath)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("tail-bytes"), 1<<20) // forces a hole before the tail write on most filesystems
	require.NoError(t, err)
	require.NoError(t, f.Close())

	src, err := os.Open(srcPath)
	require.NoError(t, err)
	defer src.Close()

	dstPath := filepath.Join(dir, "dst")
	dst, err := os.Create(dstPath)
	require.NoError(t, err)
	defer dst.Close()

	n, err := sparse.Copy(src, dst)
	require.NoError(t, err)

	srcInfo, err := os.Stat(srcPath)
	require.NoError(t, err)
	dstInfo, err := os.Stat(dstPath)
	require.NoError(t, err)

	require.Equal(t, srcInfo.Size(), n)
	require.Equal(t, srcInfo.Size(), dstInfo.Size())
}
