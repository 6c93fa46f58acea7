// Package copyengine selects and executes one of copyd's kernel-assisted copy
// strategies for a single file, with automatic fallback, destination-exists handling,
// metadata preservation, rate limiting, and an optional dry-run mode.
package copyengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/ratelimit"
	"github.com/copyd/copyd/sparse"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	blockSizeReadWrite     = 1 << 20 // 1 MiB
	blockSizeCopyFileRange = 4 << 20 // 4 MiB
	blockSizeSendfile      = 1 << 20 // 1 MiB
)

// readWriteBufferPool hands out power-of-2 buffers for the ReadWrite engine so a
// multi-file job doesn't churn one fresh allocation per file per chunk.
var readWriteBufferPool = common.NewMultiSizeSlicePool(64 << 20)

// readWriteMemoryLimiter bounds the total bytes concurrently rented from readWriteBufferPool
// across every job the daemon is running, so a burst of small-file copies can't each grab a
// large chunk buffer and push the process into swapping.
var readWriteMemoryLimiter = common.NewCacheLimiter(512 << 20)

// Options configures a single file transfer.
type Options struct {
	PreserveMetadata   bool
	PreserveSparse     bool
	ExistsAction       common.ExistsAction
	RequestedEngine    common.Engine
	MaxRateBps         uint64
	BlockSize          int64
	DryRun             bool
	RegexRenameMatch   string
	RegexRenameReplace string
	Verify             common.VerifyMode
	Logger             common.ILogger
}

// Result reports what actually happened for one file.
type Result struct {
	BytesCopied     int64
	EngineUsed      common.Engine
	DestinationPath string // may differ from the requested path under ExistsAction.Serial()
	Skipped         bool
}

// CopyFile transfers src to dst according to opts, performing destination-exists
// resolution, strategy selection with fallback, optional sparse handling, and optional
// metadata preservation.
func CopyFile(ctx context.Context, src, dst string, opts Options) (Result, error) {
	dst = applyRename(dst, opts)

	resolvedDst, skip, err := resolveExists(dst, opts.ExistsAction)
	if err != nil {
		return Result{}, err
	}
	if skip {
		return Result{DestinationPath: resolvedDst, Skipped: true}, nil
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return Result{}, errors.Wrap(err, "copyengine: stat source")
	}

	if opts.DryRun {
		if opts.Logger != nil {
			how := fmt.Sprintf("engine %s", fallbackChain(opts.RequestedEngine, onSameDevice(src, resolvedDst))[0])
			if opts.PreserveSparse {
				if sp, err := sparse.IsSparse(src); err == nil && sp {
					how = "sparse copy"
				}
			}
			opts.Logger.Log(common.LogInfo, fmt.Sprintf("dry-run: would copy %s -> %s (%d bytes, %s)", src, resolvedDst, srcInfo.Size(), how))
		}
		return Result{BytesCopied: srcInfo.Size(), DestinationPath: resolvedDst}, nil
	}

	if err := os.MkdirAll(filepath.Dir(resolvedDst), 0o755); err != nil {
		return Result{}, errors.Wrap(err, "copyengine: creating parent directory")
	}

	useSparse := opts.PreserveSparse
	if useSparse {
		if sp, err := sparse.IsSparse(src); err == nil {
			useSparse = sp
		}
	}

	var (
		bytesCopied int64
		engineUsed  common.Engine
	)
	if useSparse {
		bytesCopied, err = copyWithSparse(src, resolvedDst)
		engineUsed = common.EEngine.Sparse()
	} else {
		bytesCopied, engineUsed, err = copyWithStrategy(ctx, src, resolvedDst, srcInfo, opts)
	}
	if err != nil {
		return Result{}, err
	}

	if opts.PreserveMetadata {
		if err := preserveMetadata(src, resolvedDst, srcInfo); err != nil {
			return Result{}, err
		}
	}

	if opts.Verify != common.EVerifyMode.None() {
		// Verification is invoked by the caller (jobmanager) after this returns, since
		// it owns the verify package dependency; CopyFile only reports what it did.
	}

	return Result{BytesCopied: bytesCopied, EngineUsed: engineUsed, DestinationPath: resolvedDst}, nil
}

func applyRename(dst string, opts Options) string {
	if opts.RegexRenameMatch == "" {
		return dst
	}
	re, err := regexp.Compile(opts.RegexRenameMatch)
	if err != nil {
		return dst
	}
	dir := filepath.Dir(dst)
	base := filepath.Base(dst)
	return filepath.Join(dir, re.ReplaceAllString(base, opts.RegexRenameReplace))
}

// resolveExists applies the destination-exists policy, returning the (possibly renamed)
// destination path and whether the caller should skip the copy entirely.
func resolveExists(dst string, action common.ExistsAction) (string, bool, error) {
	_, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return dst, false, nil
		}
		return "", false, errors.Wrap(err, "copyengine: checking destination")
	}

	switch action {
	case common.EExistsAction.Overwrite():
		return dst, false, nil
	case common.EExistsAction.Skip():
		return dst, true, nil
	case common.EExistsAction.Serial():
		return serialName(dst)
	default:
		return dst, false, nil
	}
}

func serialName(dst string) (string, bool, error) {
	ext := filepath.Ext(dst)
	base := dst[:len(dst)-len(ext)]

	for n := 1; n <= 9999; n++ {
		candidate := fmt.Sprintf("%s.%d%s", base, n, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, false, nil
		}
	}
	candidate := fmt.Sprintf("%s.%d%s", base, time.Now().Unix(), ext)
	return candidate, false, nil
}

func copyWithSparse(src, dst string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: opening source")
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: creating destination")
	}
	defer dstFile.Close()

	return sparse.Copy(srcFile, dstFile)
}

// copyWithStrategy tries strategies in the fallback order the spec prescribes, starting
// either from the explicitly requested engine or from the same-device/cross-device auto
// selection.
func copyWithStrategy(ctx context.Context, src, dst string, srcInfo os.FileInfo, opts Options) (int64, common.Engine, error) {
	sameDevice := onSameDevice(src, dst)

	chain := fallbackChain(opts.RequestedEngine, sameDevice)
	pacer := ratelimit.NewPacer(opts.MaxRateBps)

	var lastErr error
	for _, engine := range chain {
		n, err := tryEngine(ctx, engine, src, dst, srcInfo, opts, pacer)
		if err == nil {
			return n, engine, nil
		}
		lastErr = err
		if opts.Logger != nil {
			opts.Logger.Log(common.LogDebug, fmt.Sprintf("copyengine: %s failed for %s, falling back: %v", engine, src, err))
		}
	}
	return 0, common.EEngine.Auto(), errors.Wrap(lastErr, "copyengine: all strategies exhausted")
}

func fallbackChain(requested common.Engine, sameDevice bool) []common.Engine {
	switch requested {
	case common.EEngine.Reflink():
		return []common.Engine{common.EEngine.Reflink(), common.EEngine.CopyFileRange(), common.EEngine.ReadWrite()}
	case common.EEngine.CopyFileRange(), common.EEngine.IoUringLike():
		// IoUringLike has no stable Go binding available; it degrades to CopyFileRange.
		return []common.Engine{common.EEngine.CopyFileRange(), common.EEngine.ReadWrite()}
	case common.EEngine.Sendfile():
		return []common.Engine{common.EEngine.Sendfile(), common.EEngine.ReadWrite()}
	case common.EEngine.ReadWrite():
		return []common.Engine{common.EEngine.ReadWrite()}
	default: // Auto
		if sameDevice {
			return []common.Engine{common.EEngine.Reflink(), common.EEngine.CopyFileRange(), common.EEngine.ReadWrite()}
		}
		return []common.Engine{common.EEngine.CopyFileRange(), common.EEngine.Sendfile(), common.EEngine.ReadWrite()}
	}
}

func tryEngine(ctx context.Context, engine common.Engine, src, dst string, srcInfo os.FileInfo, opts Options, pacer *ratelimit.Pacer) (int64, error) {
	switch engine {
	case common.EEngine.Reflink():
		return copyReflink(src, dst)
	case common.EEngine.CopyFileRange():
		return copyFileRange(ctx, src, dst, srcInfo, blockSize(opts, blockSizeCopyFileRange), pacer)
	case common.EEngine.Sendfile():
		return copySendfile(ctx, src, dst, srcInfo, blockSize(opts, blockSizeSendfile), pacer)
	case common.EEngine.ReadWrite():
		return copyReadWrite(ctx, src, dst, srcInfo, blockSize(opts, blockSizeReadWrite), pacer)
	default:
		return 0, errors.Errorf("copyengine: unsupported engine %v", engine)
	}
}

func blockSize(opts Options, fallback int64) int64 {
	if opts.BlockSize > 0 {
		return opts.BlockSize
	}
	return fallback
}

func onSameDevice(a, b string) bool {
	var sa, sb unix.Stat_t
	if err := unix.Stat(a, &sa); err != nil {
		return false
	}
	// b may not exist yet; fall back to its parent directory's device.
	if err := unix.Stat(b, &sb); err != nil {
		if err := unix.Stat(filepath.Dir(b), &sb); err != nil {
			return false
		}
	}
	return sa.Dev == sb.Dev
}

func copyReflink(src, dst string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: opening source")
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: creating destination")
	}
	defer dstFile.Close()

	if err := unix.IoctlFileClone(int(dstFile.Fd()), int(srcFile.Fd())); err != nil {
		return 0, errors.Wrap(err, "copyengine: FICLONE")
	}
	info, err := srcFile.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: stat after reflink")
	}
	return info.Size(), nil
}

func copyFileRange(ctx context.Context, src, dst string, srcInfo os.FileInfo, chunk int64, pacer *ratelimit.Pacer) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: opening source")
	}
	defer srcFile.Close()

	dstFile, err := common.CreateFileOfSize(dst, srcInfo.Size())
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: creating destination")
	}
	defer dstFile.Close()

	remaining := srcInfo.Size()
	var total int64
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n := chunk
		if remaining < n {
			n = remaining
		}
		written, err := unix.CopyFileRange(int(srcFile.Fd()), nil, int(dstFile.Fd()), nil, int(n), 0)
		if err != nil {
			return total, errors.Wrap(err, "copyengine: copy_file_range")
		}
		if written == 0 {
			break
		}
		total += int64(written)
		remaining -= int64(written)
		pacer.WaitFor(ctx, int64(written))
	}
	return total, nil
}

func copySendfile(ctx context.Context, src, dst string, srcInfo os.FileInfo, chunk int64, pacer *ratelimit.Pacer) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: opening source")
	}
	defer srcFile.Close()

	dstFile, err := common.CreateFileOfSize(dst, srcInfo.Size())
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: creating destination")
	}
	defer dstFile.Close()

	remaining := srcInfo.Size()
	var total int64
	var offset int64
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n := int(chunk)
		if int64(n) > remaining {
			n = int(remaining)
		}
		written, err := unix.Sendfile(int(dstFile.Fd()), int(srcFile.Fd()), &offset, n)
		if err != nil {
			return total, errors.Wrap(err, "copyengine: sendfile")
		}
		if written == 0 {
			break
		}
		total += int64(written)
		remaining -= int64(written)
		pacer.WaitFor(ctx, int64(written))
	}
	return total, nil
}

func copyReadWrite(ctx context.Context, src, dst string, srcInfo os.FileInfo, chunk int64, pacer *ratelimit.Pacer) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: opening source")
	}
	defer srcFile.Close()

	dstFile, err := common.CreateFileOfSize(dst, srcInfo.Size())
	if err != nil {
		return 0, errors.Wrap(err, "copyengine: creating destination")
	}
	defer dstFile.Close()

	// two buffers of chunk bytes each are rented below
	if err := readWriteMemoryLimiter.WaitUntilAdd(ctx, 2*chunk, func() bool { return false }); err != nil {
		return 0, err
	}
	defer readWriteMemoryLimiter.Remove(2 * chunk)

	// Double-buffered: a reader goroutine fills the next buffer while the main loop writes
	// out the one filled previously, so disk read and write I/O overlap instead of
	// serializing on a single shared buffer.
	bufA := readWriteBufferPool.RentSlice(uint32(chunk))
	bufB := readWriteBufferPool.RentSlice(uint32(chunk))
	defer readWriteBufferPool.ReturnSlice(bufA)
	defer readWriteBufferPool.ReturnSlice(bufB)

	type readResult struct {
		n   int
		err error
	}
	results := make(chan readResult, 1)
	next := make(chan []byte, 1)

	go func() {
		for buf := range next {
			n, err := srcFile.Read(buf)
			results <- readResult{n: n, err: err}
			if err != nil {
				return
			}
		}
	}()
	defer close(next)

	buffers := [2][]byte{bufA, bufB}
	cur := 0
	next <- buffers[cur]

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res := <-results
		filled := buffers[cur]
		cur = 1 - cur
		if res.err == nil {
			next <- buffers[cur] // kick off the next read while we write what we just got
		}

		if res.n > 0 {
			if _, werr := dstFile.Write(filled[:res.n]); werr != nil {
				return total, errors.Wrap(werr, "copyengine: writing")
			}
			total += int64(res.n)
			pacer.WaitFor(ctx, int64(res.n))
		}
		if res.err != nil {
			if res.err == io.EOF {
				break
			}
			return total, errors.Wrap(res.err, "copyengine: reading")
		}
	}
	return total, nil
}

func preserveMetadata(src, dst string, srcInfo os.FileInfo) error {
	if err := os.Chmod(dst, srcInfo.Mode()); err != nil {
		return errors.Wrap(err, "copyengine: chmod")
	}

	atime := srcInfo.ModTime()
	if stat, ok := srcInfo.Sys().(*syscall.Stat_t); ok {
		if err := os.Chown(dst, int(stat.Uid), int(stat.Gid)); err != nil {
			common.LogToJobLogWithPrefix("copyengine: chown failed (non-fatal): "+err.Error(), common.LogDebug)
		}
		atime = time.Unix(stat.Atim.Unix())
	}

	if err := os.Chtimes(dst, atime, srcInfo.ModTime()); err != nil {
		return errors.Wrap(err, "copyengine: chtimes")
	}

	if err := common.CopyXattrs(src, dst); err != nil {
		common.LogToJobLogWithPrefix("copyengine: xattr copy failed (non-fatal): "+err.Error(), common.LogDebug)
	}
	return nil
}

// FormatBlockSize renders a block size the way daemon logs/config echo it back, e.g. for
// a --block-size flag validation message.
func FormatBlockSize(n int64) string {
	return common.ByteSizeToString(n, false)
}
