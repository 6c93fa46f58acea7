// Package sparse implements hole-aware file copying: detection via allocated-vs-apparent
// size, and transfer via SEEK_DATA/SEEK_HOLE so destination holes are preserved instead
// of being materialized as runs of zero bytes.
package sparse

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// sparseThreshold matches the spec's heuristic: a file is considered sparse when its
// allocated storage is less than 95% of its apparent size. Conservative on purpose —
// a false negative just means the file takes the dense copy path, which is still correct.
const sparseThreshold = 0.95

// IsSparse reports whether path's on-disk allocation is meaningfully smaller than its
// logical size.
func IsSparse(path string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, errors.Wrap(err, "sparse: stat")
	}
	apparent := st.Size
	if apparent == 0 {
		return false, nil
	}
	allocated := st.Blocks * 512
	return float64(allocated) < sparseThreshold*float64(apparent), nil
}

// Copy transfers src to dst preserving hole structure, returning the number of bytes
// logically represented (the source's apparent size), not the number of bytes physically
// written — those differ by design for a sparse file.
func Copy(src, dst *os.File) (int64, error) {
	info, err := src.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "sparse: stat source")
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	buf := make([]byte, 1<<20)
	var offset int64
	for offset < size {
		dataStart, err := unix.Seek(int(src.Fd()), offset, unix.SEEK_DATA)
		if err != nil {
			if isNoDataError(err) {
				break // no more data regions; the remainder is a trailing hole
			}
			return offset, errors.Wrap(err, "sparse: SEEK_DATA")
		}

		holeStart, err := unix.Seek(int(src.Fd()), dataStart, unix.SEEK_HOLE)
		if err != nil {
			return offset, errors.Wrap(err, "sparse: SEEK_HOLE")
		}

		if err := copyRange(src, dst, buf, dataStart, holeStart); err != nil {
			return offset, err
		}
		offset = holeStart
	}

	if err := unix.Ftruncate(int(dst.Fd()), size); err != nil {
		return offset, errors.Wrap(err, "sparse: truncating destination to final size")
	}
	return size, nil
}

func copyRange(src, dst *os.File, buf []byte, start, end int64) error {
	remaining := end - start
	pos := start
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := src.ReadAt(buf[:n], pos)
		if read > 0 {
			if _, werr := dst.WriteAt(buf[:read], pos); werr != nil {
				return errors.Wrap(werr, "sparse: writing data region")
			}
			pos += int64(read)
			remaining -= int64(read)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return errors.Wrap(err, "sparse: reading data region")
		}
	}
	return nil
}

func isNoDataError(err error) bool {
	return errors.Is(err, unix.ENXIO)
}
