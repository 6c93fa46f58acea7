package verify_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/verify"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func TestVerifyNoneAlwaysPasses(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", []byte("hello"))
	b := writeFile(t, dir, "b", []byte("different"))
	require.NoError(t, verify.Verify(common.EVerifyMode.None(), a, b))
}

func TestVerifySizeMatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", []byte("hello"))
	b := writeFile(t, dir, "b", []byte("world"))
	require.NoError(t, verify.Verify(common.EVerifyMode.Size(), a, b))
}

func TestVerifySizeMismatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", []byte("hello"))
	b := writeFile(t, dir, "b", []byte("hello world"))
	require.Error(t, verify.Verify(common.EVerifyMode.Size(), a, b))
}

func TestVerifySha256MatchAndMismatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", []byte("identical content"))
	b := writeFile(t, dir, "b", []byte("identical content"))
	c := writeFile(t, dir, "c", []byte("different content"))

	require.NoError(t, verify.Verify(common.EVerifyMode.Sha256(), a, b))
	require.Error(t, verify.Verify(common.EVerifyMode.Sha256(), a, c))
}

func TestVerifyIsSymmetric(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", []byte("payload"))
	b := writeFile(t, dir, "b", []byte("payload"))

	errAB := verify.Verify(common.EVerifyMode.Md5(), a, b)
	errBA := verify.Verify(common.EVerifyMode.Md5(), b, a)
	require.NoError(t, errAB)
	require.NoError(t, errBA)
}
