// Package planner turns a job's source list and destination into a deterministic
// FilePlan: the directories to create, the files to copy, the symlinks to recreate, and
// the hard-link equivalence classes among the source files.
package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/copyd/copyd/common"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// FileEntry describes one regular file to transfer.
type FileEntry struct {
	SourcePath  string
	DestPath    string
	Size        int64
	ModTime     time.Time
	IsSparse    bool
	HardLinkKey string // empty unless this file shares an inode with another planned file
}

// SymlinkEntry describes one symlink to recreate on the destination side.
type SymlinkEntry struct {
	SourcePath string
	DestPath   string
}

// FilePlan is the full, ordered materialization of a job's sources onto its destination.
type FilePlan struct {
	Directories   []string
	Files         []FileEntry
	Symlinks      []SymlinkEntry
	HardLinkTable map[string]string // (dev-ino) -> first-seen source path
}

// Options controls how the planner traverses and classifies sources.
type Options struct {
	Recursive     bool
	PreserveLinks bool
	Logger        common.ILogger
}

// Plan traverses sources and produces the FilePlan for copying them to destination.
// Plan performs no mutation; it only reads metadata (Lstat) from the source tree.
func Plan(sources []string, destination string, opts Options) (*FilePlan, error) {
	plan := &FilePlan{HardLinkTable: make(map[string]string)}

	destIsDir, err := destinationIsDirectory(sources, destination)
	if err != nil {
		return nil, err
	}

	// destPaths catches two concurrently-walked sources landing on the same destination
	// path before any copy engine writer gets a chance to race another onto it.
	destPaths := common.NewExclusiveStringMap()

	var mu sync.Mutex
	var g errgroup.Group
	for _, src := range sources {
		src := src
		g.Go(func() error {
			dest := destination
			if destIsDir {
				dest = filepath.Join(destination, filepath.Base(filepath.Clean(src)))
			}
			return walk(src, dest, opts, plan, &mu, destPaths)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The walk above fans out across goroutines, so the order files/directories land in
	// plan is a race. Sort by destination path for a deterministic plan regardless of
	// scheduling; first-seen hard-link canonicalization is unaffected since that's decided
	// while walk still holds mu, not by final slice order.
	sort.Strings(plan.Directories)
	sort.Slice(plan.Files, func(i, j int) bool { return plan.Files[i].DestPath < plan.Files[j].DestPath })
	sort.Slice(plan.Symlinks, func(i, j int) bool { return plan.Symlinks[i].DestPath < plan.Symlinks[j].DestPath })

	return plan, nil
}

func destinationIsDirectory(sources []string, destination string) (bool, error) {
	info, err := os.Stat(destination)
	if err == nil {
		return info.IsDir(), nil
	}
	if !os.IsNotExist(err) {
		return false, errors.Wrap(err, "planner: stat destination")
	}
	return len(sources) > 1, nil
}

func walk(src, dest string, opts Options, plan *FilePlan, mu *sync.Mutex, destPaths *common.ExclusiveStringMap) error {
	info, err := os.Lstat(src)
	if err != nil {
		return errors.Wrapf(err, "planner: stat source %s", src)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		if err := destPaths.Add(dest); err != nil {
			return errors.Wrapf(err, "planner: destination %s", dest)
		}
		mu.Lock()
		plan.Symlinks = append(plan.Symlinks, SymlinkEntry{SourcePath: src, DestPath: dest})
		mu.Unlock()
		return nil

	case info.IsDir():
		if !opts.Recursive {
			if opts.Logger != nil {
				opts.Logger.Log(common.LogWarning, "planner: skipping directory (recursive not set): "+src)
			}
			return nil
		}
		mu.Lock()
		plan.Directories = append(plan.Directories, dest)
		mu.Unlock()

		children, err := os.ReadDir(src)
		if err != nil {
			return errors.Wrapf(err, "planner: reading directory %s", src)
		}
		var g errgroup.Group
		for _, child := range children {
			child := child
			g.Go(func() error {
				return walk(filepath.Join(src, child.Name()), filepath.Join(dest, child.Name()), opts, plan, mu, destPaths)
			})
		}
		return g.Wait()

	default:
		return planFile(src, dest, info, opts, plan, mu, destPaths)
	}
}

func planFile(src, dest string, info os.FileInfo, opts Options, plan *FilePlan, mu *sync.Mutex, destPaths *common.ExclusiveStringMap) error {
	if err := destPaths.Add(dest); err != nil {
		return errors.Wrapf(err, "planner: destination %s", dest)
	}

	entry := FileEntry{SourcePath: src, DestPath: dest, Size: info.Size(), ModTime: info.ModTime()}

	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		entry.IsSparse = isSparse(stat)

		if opts.PreserveLinks && stat.Nlink > 1 {
			key := fmt.Sprintf("%d-%d", stat.Dev, stat.Ino)
			mu.Lock()
			if _, seen := plan.HardLinkTable[key]; !seen {
				plan.HardLinkTable[key] = src // first occurrence becomes canonical; copied normally
			}
			mu.Unlock()
			entry.HardLinkKey = key
		}
	}

	mu.Lock()
	plan.Files = append(plan.Files, entry)
	mu.Unlock()
	return nil
}

// isSparse applies the spec's 95%-allocated heuristic directly off a Stat_t so the
// planner doesn't need a second syscall for a file it just Lstat'd.
func isSparse(stat *syscall.Stat_t) bool {
	if stat.Size == 0 {
		return false
	}
	allocated := int64(stat.Blocks) * 512
	return float64(allocated) < 0.95*float64(stat.Size)
}
