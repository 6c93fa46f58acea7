// Package verify compares two files after a copy completes, under one of the modes a
// job can request: a cheap size check or a full content digest.
package verify

import (
	"crypto/md5"
	"crypto/sha256"
	"hash"
	"io"
	"os"

	"github.com/copyd/copyd/common"
	"github.com/pkg/errors"
)

// chunkSize is the minimum read buffer used while digesting; the spec requires at least
// 8 KiB per comparison chunk so a digest pass doesn't thrash on tiny reads.
const chunkSize = 32 * 1024

// Verify compares a and b under mode. A nil error means the two files satisfy mode, which
// by construction is symmetric: Verify(mode, a, b) == Verify(mode, b, a).
func Verify(mode common.VerifyMode, a, b string) error {
	switch mode {
	case common.EVerifyMode.None():
		return nil
	case common.EVerifyMode.Size():
		return verifySize(a, b)
	case common.EVerifyMode.Md5():
		return verifyDigest(a, b, md5.New)
	case common.EVerifyMode.Sha256():
		return verifyDigest(a, b, sha256.New)
	default:
		return errors.Errorf("verify: unknown mode %v", mode)
	}
}

func verifySize(a, b string) error {
	sa, err := os.Stat(a)
	if err != nil {
		return errors.Wrap(err, "verify: stat source")
	}
	sb, err := os.Stat(b)
	if err != nil {
		return errors.Wrap(err, "verify: stat destination")
	}
	if sa.Size() != sb.Size() {
		return errors.Errorf("verify: size mismatch %d != %d", sa.Size(), sb.Size())
	}
	return nil
}

func verifyDigest(a, b string, newHash func() hash.Hash) error {
	digestA, err := digest(a, newHash)
	if err != nil {
		return errors.Wrap(err, "verify: digesting source")
	}
	digestB, err := digest(b, newHash)
	if err != nil {
		return errors.Wrap(err, "verify: digesting destination")
	}
	if string(digestA) != string(digestB) {
		return errors.New("verify: checksum mismatch")
	}
	return nil
}

func digest(path string, newHash func() hash.Hash) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := newHash()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
