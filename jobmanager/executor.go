package jobmanager

import (
	"context"
	"os"
	"time"

	"github.com/copyd/copyd/checkpoint"
	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/copyengine"
	"github.com/copyd/copyd/metrics"
	"github.com/copyd/copyd/planner"
	"github.com/copyd/copyd/verify"
)

// loadPriorCheckpoint returns the job's last-saved checkpoint, or nil if none exists (a
// fresh job, or the store is disabled). Any other load error is logged and treated the
// same as "none" — a corrupt checkpoint must never block the job from running.
func (m *Manager) loadPriorCheckpoint(job *JobRecord) *checkpoint.JobCheckpoint {
	if m.store == nil {
		return nil
	}
	prior, err := m.store.Load(job.ID.String())
	if err != nil {
		if err != checkpoint.ErrNotFound {
			job.logf("checkpoint: failed to load prior checkpoint: " + err.Error())
		}
		return nil
	}
	return prior
}

// runExecutor drives one job from Pending to a terminal state. It is the only writer of
// job.state while the job is active; Manager.Cancel/Pause only ever set state from
// outside, which runExecutor observes at its yield points.
func (m *Manager) runExecutor(parent context.Context, job *JobRecord) {
	ctx, cancel := context.WithCancel(parent)
	m.active.Store(job.ID.String(), cancel)
	defer func() {
		m.active.Delete(job.ID.String())
		cancel()
	}()

	job.mu.Lock()
	job.startedAt = time.Now()
	job.mu.Unlock()
	job.setState(common.EJobState.Running())
	job.logf("job started")
	if m.sink != nil {
		m.sink.Observe(metrics.Event{Kind: metrics.EventStatusChange, JobID: job.ID.String(), NewState: "Running"})
	}

	plan, err := planner.Plan(job.Sources, job.Destination, planner.Options{
		Recursive:     job.Options.Recursive,
		PreserveLinks: job.Options.PreserveLinks,
		Logger:        m.logger,
	})
	if err != nil {
		m.finishFailed(job, err)
		return
	}

	job.updateProgress(func(p *Progress) {
		p.TotalFiles = int64(len(plan.Files))
		for _, f := range plan.Files {
			p.TotalBytes += f.Size
		}
	})

	folders := newFolderTracker()
	for _, dir := range plan.Directories {
		if err := common.CreateDirectoryIfNotExist(ctx, dir, folders); err != nil {
			job.logf("failed to create directory " + dir + ": " + err.Error())
		}
	}

	priorCP := m.loadPriorCheckpoint(job)
	priorCompleted := make(map[string]bool)
	if priorCP != nil {
		for _, k := range priorCP.CompletedKeys {
			priorCompleted[k] = true
		}
	}

	cp := &checkpoint.JobCheckpoint{
		JobID:         job.ID.String(),
		Sources:       job.Sources,
		Destination:   job.Destination,
		Options:       toCheckpointOptions(job.Options),
		Files:         make(map[string]checkpoint.FileCheckpoint),
		TotalFiles:    int64(len(plan.Files)),
		CreatedAt:     time.Now(),
		ResumeCount:   job.resumeCount,
		OperationKind: operationKindString(job.Options.Operation),
	}
	if priorCP != nil {
		cp.CreatedAt = priorCP.CreatedAt
	}

	copiedSources := make(map[string]string) // hard-link key -> destination of the canonical copy

	anySucceeded := false
	anyAttempted := len(plan.Files) > 0

	for _, file := range plan.Files {
		if m.observeYieldPoint(ctx, job) {
			break // cancelled or paused
		}

		key := checkpoint.FileKey(file.SourcePath, file.DestPath)
		if priorFC, ok := completedPriorFile(priorCP, priorCompleted, key); ok && checkpoint.ResumeSafe(priorFC) {
			job.logf("resume: skipping already-completed file " + file.SourcePath)
			cp.Files[key] = priorFC
			cp.CompletedKeys = append(cp.CompletedKeys, key)
			cp.TotalBytes += priorFC.BytesCopied
			job.updateProgress(func(p *Progress) {
				p.BytesCopied += priorFC.BytesCopied
				p.FilesCopied++
			})
			anySucceeded = true
			if file.HardLinkKey != "" {
				copiedSources[file.HardLinkKey] = priorFC.DestinationPath
			}
			continue
		}

		fileStart := time.Now()
		if file.HardLinkKey != "" {
			if canonicalDest, already := copiedSources[file.HardLinkKey]; already {
				if err := os.Link(canonicalDest, file.DestPath); err != nil {
					job.logf("hard link failed for " + file.DestPath + ": " + err.Error())
					cp.FailedKeys = append(cp.FailedKeys, checkpoint.FileKey(file.SourcePath, file.DestPath))
				} else {
					m.recordFileSuccess(job, cp, file, file.DestPath, file.Size, time.Since(fileStart))
					anySucceeded = true
				}
				continue
			}
		}

		copyOpts := copyengine.Options{
			PreserveMetadata:   job.Options.PreserveMetadata,
			PreserveSparse:     job.Options.PreserveSparse,
			ExistsAction:       job.Options.ExistsAction,
			RequestedEngine:    job.Options.Engine,
			MaxRateBps:         job.Options.MaxRateBps,
			BlockSize:          job.Options.BlockSize,
			DryRun:             job.Options.DryRun,
			RegexRenameMatch:   job.Options.RegexRenameMatch,
			RegexRenameReplace: job.Options.RegexRenameReplace,
			Logger:             m.logger,
		}
		result, copyErr := common.WithRetry(ctx, m.logger, "copy "+file.SourcePath, common.IsTransientFilesystemError,
			func() (copyengine.Result, error) { return copyengine.CopyFile(ctx, file.SourcePath, file.DestPath, copyOpts) })
		if copyErr != nil {
			job.logf("copy failed for " + file.SourcePath + ": " + copyErr.Error())
			cp.FailedKeys = append(cp.FailedKeys, checkpoint.FileKey(file.SourcePath, file.DestPath))
			if m.sink != nil {
				m.sink.Observe(metrics.Event{Kind: metrics.EventFileError, JobID: job.ID.String(), Path: file.SourcePath, Err: copyErr})
			}
			continue
		}

		if !result.Skipped && job.Options.Verify != common.EVerifyMode.None() && !job.Options.DryRun {
			if err := verify.Verify(job.Options.Verify, file.SourcePath, result.DestinationPath); err != nil {
				job.logf("verification failed for " + file.SourcePath + ": " + err.Error())
				cp.FailedKeys = append(cp.FailedKeys, checkpoint.FileKey(file.SourcePath, file.DestPath))
				if m.sink != nil {
					m.sink.Observe(metrics.Event{Kind: metrics.EventFileError, JobID: job.ID.String(), Path: file.SourcePath, Err: err})
				}
				continue
			}
		}

		if file.HardLinkKey != "" {
			copiedSources[file.HardLinkKey] = result.DestinationPath
		}

		m.recordFileSuccess(job, cp, file, result.DestinationPath, result.BytesCopied, time.Since(fileStart))
		anySucceeded = true

		if job.Options.Operation == OperationMove && !result.Skipped && !job.Options.DryRun {
			if err := os.Remove(file.SourcePath); err != nil {
				job.logf("move: failed to remove source " + file.SourcePath + ": " + err.Error())
			}
		}

		if m.store != nil {
			_ = m.store.Save(cp)
		}
	}

	for _, sym := range plan.Symlinks {
		if target, err := os.Readlink(sym.SourcePath); err == nil {
			_ = os.Symlink(target, sym.DestPath)
		}
	}

	m.finishExecution(job, cp, anyAttempted, anySucceeded)
}

// observeYieldPoint checks for cancellation or a pause request; it returns true if the
// caller's loop should stop. Pause transitions the job itself; cancellation is already
// reflected in job.State() by Manager.Cancel.
func (m *Manager) observeYieldPoint(ctx context.Context, job *JobRecord) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	state := job.State()
	return state == common.EJobState.Cancelled() || state == common.EJobState.Paused()
}

// completedPriorFile reports whether key names a file the prior checkpoint recorded as
// completed, returning its FileCheckpoint. priorCP may be nil (no prior checkpoint at all).
func completedPriorFile(priorCP *checkpoint.JobCheckpoint, priorCompleted map[string]bool, key string) (checkpoint.FileCheckpoint, bool) {
	if priorCP == nil || !priorCompleted[key] {
		return checkpoint.FileCheckpoint{}, false
	}
	fc, ok := priorCP.Files[key]
	return fc, ok
}

// recordFileSuccess records a successfully-transferred (or hard-linked) file into cp,
// using file's source metadata so a later ResumeSafe check on this entry has something
// real to validate against rather than zero values.
func (m *Manager) recordFileSuccess(job *JobRecord, cp *checkpoint.JobCheckpoint, file planner.FileEntry, destination string, bytesCopied int64, elapsed time.Duration) {
	job.updateProgress(func(p *Progress) {
		p.BytesCopied += bytesCopied
		p.FilesCopied++
	})
	job.recordBytes(bytesCopied)
	key := checkpoint.FileKey(file.SourcePath, destination)
	cp.Files[key] = checkpoint.FileCheckpoint{
		SourcePath:         file.SourcePath,
		DestinationPath:    destination,
		BytesCopied:        bytesCopied,
		TotalSize:          file.Size,
		SourceLastModified: file.ModTime,
		ChunkSize:          job.Options.BlockSize,
		UpdatedAt:          time.Now(),
	}
	cp.CompletedKeys = append(cp.CompletedKeys, key)
	cp.TotalBytes += bytesCopied

	if m.sink != nil {
		m.sink.Observe(metrics.Event{Kind: metrics.EventFileCompleted, JobID: job.ID.String(), Path: file.SourcePath, BytesCopied: bytesCopied, Duration: elapsed})
	}
}

func (m *Manager) finishExecution(job *JobRecord, cp *checkpoint.JobCheckpoint, anyAttempted, anySucceeded bool) {
	switch job.State() {
	case common.EJobState.Cancelled():
		job.logf("job cancelled")
		return
	case common.EJobState.Paused():
		if m.store != nil {
			_ = m.store.Save(cp)
		}
		job.logf("job paused")
		// Stays out of the queue entirely while Paused; Manager.Resume transitions it
		// back to Pending and pushes it to the front when the client asks to continue.
		return
	}

	job.mu.Lock()
	job.completedAt = time.Now()
	job.mu.Unlock()

	if anyAttempted && !anySucceeded {
		job.setState(common.EJobState.Failed())
		job.setLastError("all files failed")
		job.logf("job failed: all files failed")
		return
	}

	job.setState(common.EJobState.Completed())
	job.logf("job completed")
	if m.store != nil {
		_ = m.store.Delete(job.ID.String())
	}
}

func (m *Manager) finishFailed(job *JobRecord, err error) {
	job.mu.Lock()
	job.completedAt = time.Now()
	job.mu.Unlock()
	job.setState(common.EJobState.Failed())
	job.setLastError(err.Error())
	job.logf("job failed: " + err.Error())
}

func operationKindString(k OperationKind) string {
	if k == OperationMove {
		return "Move"
	}
	return "Copy"
}

func operationKindFromString(s string) OperationKind {
	if s == "Move" {
		return OperationMove
	}
	return OperationCopy
}
