package planner_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/copyd/copyd/planner"
	"github.com/stretchr/testify/require"
)

func TestPlanSingleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dest := filepath.Join(dir, "out.txt")

	plan, err := planner.Plan([]string{src}, dest, planner.Options{})
	require.NoError(t, err)
	require.Len(t, plan.Files, 1)
	require.Equal(t, src, plan.Files[0].SourcePath)
	require.Equal(t, dest, plan.Files[0].DestPath)
}

func TestPlanRecursiveDirectory(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "srcdir")
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "top.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "nested", "leaf.txt"), []byte("b"), 0o644))

	dest := filepath.Join(root, "destdir")
	plan, err := planner.Plan([]string{srcDir}, dest, planner.Options{Recursive: true})
	require.NoError(t, err)

	require.Len(t, plan.Files, 2)
	require.NotEmpty(t, plan.Directories)
}

func TestPlanSkipsDirectoryWithoutRecursive(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "srcdir")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "top.txt"), []byte("a"), 0o644))

	dest := filepath.Join(root, "destdir")
	plan, err := planner.Plan([]string{srcDir}, dest, planner.Options{Recursive: false})
	require.NoError(t, err)
	require.Empty(t, plan.Files)
	require.Empty(t, plan.Directories)
}

func TestPlanDetectsHardLinks(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("shared"), 0o644))
	require.NoError(t, os.Link(a, b))

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	plan, err := planner.Plan([]string{a, b}, dest, planner.Options{PreserveLinks: true})
	require.NoError(t, err)
	require.Len(t, plan.Files, 2)
	require.NotEmpty(t, plan.Files[0].HardLinkKey)
	require.Equal(t, plan.Files[0].HardLinkKey, plan.Files[1].HardLinkKey)
	require.Len(t, plan.HardLinkTable, 1)
}

func TestPlanMultipleSourcesForceDirectoryDestination(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("2"), 0o644))

	dest := filepath.Join(dir, "nonexistent-dest-dir")
	plan, err := planner.Plan([]string{a, b}, dest, planner.Options{})
	require.NoError(t, err)
	require.Len(t, plan.Files, 2)
	for _, f := range plan.Files {
		require.Equal(t, dest, filepath.Dir(f.DestPath))
	}
}
