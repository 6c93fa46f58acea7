//go:build linux || darwin

package common

import (
	"errors"

	"github.com/pkg/xattr"
)

// CopyXattrs enumerates every extended attribute on src and replicates it onto dst.
// A filesystem that doesn't support xattrs (ENOTSUP/EOPNOTSUPP) is silently treated
// as having none, per the metadata-preservation policy of "unsupported -> ignored".
func CopyXattrs(src, dst string) error {
	names, err := xattr.List(src)
	if err != nil {
		if isXattrUnsupported(err) {
			return nil
		}
		return err
	}

	for _, name := range names {
		val, err := xattr.Get(src, name)
		if err != nil {
			if isXattrUnsupported(err) {
				continue
			}
			return err
		}
		if err := xattr.Set(dst, name, val); err != nil {
			if isXattrUnsupported(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isXattrUnsupported(err error) bool {
	var xerr *xattr.Error
	if errors.As(err, &xerr) {
		return errors.Is(xerr.Err, xattr.ENOTSUP)
	}
	return false
}
