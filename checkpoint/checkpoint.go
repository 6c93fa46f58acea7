// Package checkpoint is the durable per-job progress store: one JSON file per job,
// written atomically, that lets the job manager resume an interrupted copy instead of
// restarting it from zero.
package checkpoint

import (
	"encoding/json"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/copyd/copyd/common"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Load when no checkpoint exists for the given job id.
var ErrNotFound = errors.New("checkpoint: not found")

// FileCheckpoint is the persisted progress of a single file within a job.
type FileCheckpoint struct {
	SourcePath         string    `json:"source_path"`
	DestinationPath    string    `json:"destination_path"`
	BytesCopied        int64     `json:"bytes_copied"`
	TotalSize          int64     `json:"total_size"`
	SourceLastModified time.Time `json:"source_last_modified"`
	ChunkSize          int64     `json:"chunk_size"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// JobCheckpoint is the persisted aggregate progress of one job.
type JobCheckpoint struct {
	JobID         string                    `json:"job_id"`
	OperationKind string                    `json:"operation_kind"`
	Sources       []string                  `json:"sources"`
	Destination   string                    `json:"destination"`
	Options       JobOptions                `json:"options"`
	Files         map[string]FileCheckpoint `json:"files"` // keyed by file key, see FileKey
	CompletedKeys []string                  `json:"completed_files"`
	FailedKeys    []string                  `json:"failed_files"`
	TotalBytes    int64                     `json:"total_bytes"`
	TotalFiles    int64                     `json:"total_files"`
	ResumeCount   int                       `json:"resume_count"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// JobOptions is the durable subset of a job's request options needed to reproduce an
// identical plan on resume. It mirrors jobmanager.Options field-for-field rather than
// importing it, keeping checkpoint's schema independent of the in-memory job type it
// backs, the way JobCheckpoint is already kept independent of JobRecord.
type JobOptions struct {
	Recursive          bool                `json:"recursive"`
	PreserveMetadata   bool                `json:"preserve_metadata"`
	PreserveLinks      bool                `json:"preserve_links"`
	PreserveSparse     bool                `json:"preserve_sparse"`
	Verify             common.VerifyMode   `json:"verify"`
	ExistsAction       common.ExistsAction `json:"exists_action"`
	MaxRateBps         uint64              `json:"max_rate_bps"`
	Engine             common.Engine       `json:"engine"`
	DryRun             bool                `json:"dry_run"`
	RegexRenameMatch   string              `json:"regex_rename_match"`
	RegexRenameReplace string              `json:"regex_rename_replace"`
	BlockSize          int64               `json:"block_size"`
	Compress           bool                `json:"compress"`
	Encrypt            bool                `json:"encrypt"`
}

// FileKey returns a stable identifier for a (source, destination) pair, used as the map
// key inside JobCheckpoint.Files: a 64-bit FNV-1a hash of source, a zero byte, and
// destination, rendered in hex.
func FileKey(source, destination string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(destination))
	return strconv.FormatUint(h.Sum64(), 16)
}

// Store persists JobCheckpoints as one JSON file per job under dir.
type Store struct {
	dir    string
	locks  *keyedMutex
	logger common.ILogger
}

// NewStore creates a Store rooted at dir, creating it if necessary.
func NewStore(dir string, logger common.ILogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "checkpoint: creating store directory")
	}
	return &Store{dir: dir, locks: newKeyedMutex(), logger: logger}, nil
}

func (s *Store) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

// Save durably persists cp, replacing any prior checkpoint for the same job id. The write
// goes to a temp file in the same directory, is fsynced, then renamed into place so a
// crash mid-write never leaves a corrupt or truncated record on disk.
func (s *Store) Save(cp *JobCheckpoint) error {
	unlock := s.locks.lock(cp.JobID)
	defer unlock()

	cp.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errors.Wrap(err, "checkpoint: marshaling")
	}

	final := s.path(cp.JobID)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "checkpoint: creating temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "checkpoint: writing temp file")
	}
	if err := common.Fdatasync(f); err != nil {
		f.Close()
		return errors.Wrap(err, "checkpoint: fsyncing temp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "checkpoint: closing temp file")
	}
	if err := os.Rename(tmp, final); err != nil {
		return errors.Wrap(err, "checkpoint: renaming into place")
	}
	return nil
}

// Load reads the checkpoint for jobID, or ErrNotFound if none exists.
func (s *Store) Load(jobID string) (*JobCheckpoint, error) {
	data, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "checkpoint: reading")
	}
	var cp JobCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrap(err, "checkpoint: corrupt record")
	}
	return &cp, nil
}

// Delete removes the checkpoint for jobID. Absence is not an error.
func (s *Store) Delete(jobID string) error {
	unlock := s.locks.lock(jobID)
	defer unlock()

	if err := os.Remove(s.path(jobID)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "checkpoint: deleting")
	}
	return nil
}

// ListResumable returns the job ids of every checkpoint on disk whose record still has
// unfinished work: fewer completed files than the job planned (TotalFiles, or the number
// of file entries when that is larger), or at least one file recorded as failed.
func (s *Store) ListResumable() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint: listing store directory")
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		jobID := e.Name()[:len(e.Name())-len(".json")]
		cp, err := s.Load(jobID)
		if err != nil {
			if s.logger != nil {
				s.logger.Log(common.LogWarning, "checkpoint: skipping unreadable record "+jobID+": "+err.Error())
			}
			continue
		}
		if isResumable(cp) {
			ids = append(ids, jobID)
		}
	}
	return ids, nil
}

func isResumable(cp *JobCheckpoint) bool {
	planned := int64(len(cp.Files))
	if cp.TotalFiles > planned {
		planned = cp.TotalFiles
	}
	remaining := planned - int64(len(cp.CompletedKeys))
	return remaining > 0 || len(cp.FailedKeys) > 0
}

// Cleanup deletes checkpoints whose UpdatedAt is older than cutoff.
func (s *Store) Cleanup(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, errors.Wrap(err, "checkpoint: listing store directory")
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		jobID := e.Name()[:len(e.Name())-len(".json")]
		cp, err := s.Load(jobID)
		if err != nil {
			continue
		}
		if cp.UpdatedAt.Before(cutoff) {
			if err := s.Delete(jobID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// StoreStats summarizes the checkpoint store's current contents.
type StoreStats struct {
	TotalCheckpoints int
	ResumableJobs    int
}

// Stats returns totals across all checkpoints currently on disk.
func (s *Store) Stats() (StoreStats, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return StoreStats{}, errors.Wrap(err, "checkpoint: listing store directory")
	}
	stats := StoreStats{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		stats.TotalCheckpoints++
		jobID := e.Name()[:len(e.Name())-len(".json")]
		cp, err := s.Load(jobID)
		if err == nil && isResumable(cp) {
			stats.ResumableJobs++
		}
	}
	return stats, nil
}

// ResumeSafe reports whether fc's recorded progress can be trusted given the file's
// current on-disk state: the destination must exist at exactly bytes_copied, and the
// source must be unchanged in both size and modification time.
func ResumeSafe(fc FileCheckpoint) bool {
	destInfo, err := os.Stat(fc.DestinationPath)
	if err != nil || destInfo.Size() != fc.BytesCopied {
		return false
	}
	srcInfo, err := os.Stat(fc.SourcePath)
	if err != nil {
		return false
	}
	if srcInfo.Size() != fc.TotalSize {
		return false
	}
	if !srcInfo.ModTime().Equal(fc.SourceLastModified) {
		return false
	}
	return true
}

// keyedMutex hands out per-key exclusivity, grounded on the same "lock by identity, not
// globally" shape as common's exclusive string map, so concurrent saves for different
// jobs never block each other while saves for the same job never interleave.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
