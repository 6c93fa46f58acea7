// Package jobmanager owns job lifecycle: the in-memory registry, the priority queue,
// concurrency-limited admission, the per-job executor, and crash recovery from
// checkpoints.
package jobmanager

import (
	"context"
	"sync"
	"time"

	"github.com/copyd/copyd/checkpoint"
	"github.com/copyd/copyd/common"
)

// OperationKind distinguishes a copy from a move; a move additionally unlinks each
// source file once its copy (and verification, if requested) succeeds.
type OperationKind uint8

const (
	OperationCopy OperationKind = iota
	OperationMove
)

// Options mirrors the CreateJob request fields the executor needs to act on.
type Options struct {
	Recursive          bool
	PreserveMetadata   bool
	PreserveLinks      bool
	PreserveSparse     bool
	Verify             common.VerifyMode
	ExistsAction       common.ExistsAction
	MaxRateBps         uint64
	Engine             common.Engine
	DryRun             bool
	RegexRenameMatch   string
	RegexRenameReplace string
	BlockSize          int64
	Compress           bool // accepted, not semantically implemented in this core
	Encrypt            bool // accepted, not semantically implemented in this core
	Operation          OperationKind
}

// toCheckpointOptions projects Options onto the durable subset checkpoint persists, so a
// crash-recovered job is replanned with the same flags as its first run.
func toCheckpointOptions(o Options) checkpoint.JobOptions {
	return checkpoint.JobOptions{
		Recursive:          o.Recursive,
		PreserveMetadata:   o.PreserveMetadata,
		PreserveLinks:      o.PreserveLinks,
		PreserveSparse:     o.PreserveSparse,
		Verify:             o.Verify,
		ExistsAction:       o.ExistsAction,
		MaxRateBps:         o.MaxRateBps,
		Engine:             o.Engine,
		DryRun:             o.DryRun,
		RegexRenameMatch:   o.RegexRenameMatch,
		RegexRenameReplace: o.RegexRenameReplace,
		BlockSize:          o.BlockSize,
		Compress:           o.Compress,
		Encrypt:            o.Encrypt,
	}
}

// fromCheckpointOptions reverses toCheckpointOptions, reconstructing Options for a
// recovered job. op is the job's operation kind, persisted separately as
// JobCheckpoint.OperationKind since it has no counterpart in the wire request options.
func fromCheckpointOptions(jo checkpoint.JobOptions, op OperationKind) Options {
	return Options{
		Recursive:          jo.Recursive,
		PreserveMetadata:   jo.PreserveMetadata,
		PreserveLinks:      jo.PreserveLinks,
		PreserveSparse:     jo.PreserveSparse,
		Verify:             jo.Verify,
		ExistsAction:       jo.ExistsAction,
		MaxRateBps:         jo.MaxRateBps,
		Engine:             jo.Engine,
		DryRun:             jo.DryRun,
		RegexRenameMatch:   jo.RegexRenameMatch,
		RegexRenameReplace: jo.RegexRenameReplace,
		BlockSize:          jo.BlockSize,
		Compress:           jo.Compress,
		Encrypt:            jo.Encrypt,
		Operation:          op,
	}
}

// Progress is the mutable, frequently-updated part of a JobRecord.
type Progress struct {
	BytesCopied    int64
	TotalBytes     int64
	FilesCopied    int64
	TotalFiles     int64
	ThroughputMbps float64
	EtaSeconds     uint64
}

const logRingCapacity = 100

// logRing is a bounded, drop-oldest ring buffer of timestamped log lines surfaced back
// through JobStatus.
type logRing struct {
	mu      sync.Mutex
	entries []string
}

func (r *logRing) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, time.Now().UTC().Format(time.RFC3339)+" "+line)
	if len(r.entries) > logRingCapacity {
		r.entries = r.entries[len(r.entries)-logRingCapacity:]
	}
}

func (r *logRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

// JobRecord is a job's full in-memory state. Its mutable fields are guarded by mu; the
// registry never hands out a copy, only the pointer, so every reader observes live state.
type JobRecord struct {
	ID          common.JobID
	Sources     []string
	Destination string
	Options     Options
	Priority    uint64

	state common.JobState

	mu          sync.Mutex
	progress    Progress
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	lastError   string
	resumeCount int

	logs   logRing
	cancel context.CancelFunc
	rate   common.CountPerSecond
}

func newJobRecord(sources []string, destination string, opts Options, priority uint64) *JobRecord {
	return &JobRecord{
		ID:          common.NewJobID(),
		Sources:     sources,
		Destination: destination,
		Options:     opts,
		Priority:    priority,
		state:       common.EJobState.Pending(),
		createdAt:   time.Now(),
		rate:        common.NewCountPerSecond(),
	}
}

func (j *JobRecord) State() common.JobState { return j.state.AtomicLoad() }

func (j *JobRecord) setState(s common.JobState) { j.state.AtomicStore(s) }

func (j *JobRecord) Progress() Progress {
	j.mu.Lock()
	p := j.progress
	j.mu.Unlock()
	// bytes/sec -> megabits/sec, matching the unit ThroughputMbps promises callers.
	p.ThroughputMbps = j.rate.LatestRate() * 8 / 1e6
	return p
}

func (j *JobRecord) updateProgress(fn func(*Progress)) {
	j.mu.Lock()
	fn(&j.progress)
	j.mu.Unlock()
}

// recordBytes feeds the job's rolling throughput counter; called once per completed file.
func (j *JobRecord) recordBytes(n int64) {
	if n > 0 {
		j.rate.Add(uint64(n))
	}
}

func (j *JobRecord) logf(format string) { j.logs.append(format) }

func (j *JobRecord) Logs() []string { return j.logs.snapshot() }

func (j *JobRecord) Timestamps() (created, started, completed time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.createdAt, j.startedAt, j.completedAt
}

func (j *JobRecord) LastError() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastError
}

func (j *JobRecord) setLastError(err string) {
	j.mu.Lock()
	j.lastError = err
	j.mu.Unlock()
}
