package copyengine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/copyengine"
	"github.com/stretchr/testify/require"
)

func TestCopyFileReadWrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))

	res, err := copyengine.CopyFile(context.Background(), src, dst, copyengine.Options{
		RequestedEngine: common.EEngine.ReadWrite(),
		ExistsAction:    common.EExistsAction.Overwrite(),
	})
	require.NoError(t, err)
	require.EqualValues(t, 11, res.BytesCopied)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(content))
}

func TestCopyFileSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	res, err := copyengine.CopyFile(context.Background(), src, dst, copyengine.Options{
		RequestedEngine: common.EEngine.ReadWrite(),
		ExistsAction:    common.EExistsAction.Skip(),
	})
	require.NoError(t, err)
	require.True(t, res.Skipped)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "old", string(content))
}

func TestCopyFileSerialRenamesOnCollision(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	res, err := copyengine.CopyFile(context.Background(), src, dst, copyengine.Options{
		RequestedEngine: common.EEngine.ReadWrite(),
		ExistsAction:    common.EExistsAction.Serial(),
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "dst.1.txt"), res.DestinationPath)

	content, err := os.ReadFile(res.DestinationPath)
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
}

func TestCopyFileDryRunDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	res, err := copyengine.CopyFile(context.Background(), src, dst, copyengine.Options{
		RequestedEngine: common.EEngine.ReadWrite(),
		ExistsAction:    common.EExistsAction.Overwrite(),
		DryRun:          true,
	})
	require.NoError(t, err)
	require.EqualValues(t, 5, res.BytesCopied)
	_, err = os.Stat(dst)
	require.True(t, os.IsNotExist(err))
}

func TestCopyFileAppliesRegexRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "report-2024.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	res, err := copyengine.CopyFile(context.Background(), src, dst, copyengine.Options{
		RequestedEngine:    common.EEngine.ReadWrite(),
		ExistsAction:       common.EExistsAction.Overwrite(),
		RegexRenameMatch:   `\d{4}`,
		RegexRenameReplace: "redacted",
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "report-redacted.txt"), res.DestinationPath)
}
