package daemon

import (
	"runtime"
	"time"

	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/jobmanager"
	"github.com/copyd/copyd/security"
	"github.com/copyd/copyd/wire"
	"github.com/shirou/gopsutil/v3/cpu"
)

func (s *Server) handleCreateJob(req *wire.Request) *wire.Response {
	if err := security.Validate(req.Sources, req.Destination, s.policy); err != nil {
		return errorResponse(wire.ERequestKind.CreateJob(), err)
	}

	opts := jobmanager.Options{
		Recursive:          req.Recursive,
		PreserveMetadata:   req.PreserveMetadata,
		PreserveLinks:      req.PreserveLinks,
		PreserveSparse:     req.PreserveSparse,
		Verify:             req.Verify,
		ExistsAction:       req.ExistsAction,
		MaxRateBps:         req.MaxRateBps,
		Engine:             req.Engine,
		DryRun:             req.DryRun,
		RegexRenameMatch:   req.RegexRenameMatch,
		RegexRenameReplace: req.RegexRenameReplace,
		BlockSize:          int64(req.BlockSize),
		Compress:           req.Compress,
		Encrypt:            req.Encrypt,
	}

	job := s.manager.CreateJob(req.Sources, req.Destination, opts, req.Priority)
	return &wire.Response{Kind: wire.ERequestKind.CreateJob(), JobID: job.ID.String()}
}

func (s *Server) handleJobStatus(req *wire.Request) *wire.Response {
	id, err := common.ParseJobID(req.JobID)
	if err != nil {
		return errorResponse(wire.ERequestKind.JobStatus(), err)
	}
	job, err := s.manager.Get(id)
	if err != nil {
		return errorResponse(wire.ERequestKind.JobStatus(), err)
	}

	progress := job.Progress()
	created, started, completed := job.Timestamps()

	return &wire.Response{
		Kind:        wire.ERequestKind.JobStatus(),
		JobID:       job.ID.String(),
		State:       job.State(),
		BytesCopied: uint64(progress.BytesCopied),
		TotalBytes:  uint64(progress.TotalBytes),
		FilesCopied: uint64(progress.FilesCopied),
		TotalFiles:  uint64(progress.TotalFiles),
		CreatedAt:   created.Unix(),
		StartedAt:   unixOrZero(started),
		CompletedAt: unixOrZero(completed),
		LogEntries:  job.Logs(),
		Error:       job.LastError(),
	}
}

func (s *Server) handleListJobs(req *wire.Request) *wire.Response {
	jobs := s.manager.List(req.IncludeCompleted)
	summaries := make([]wire.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		progress := job.Progress()
		created, started, completed := job.Timestamps()
		summaries = append(summaries, wire.JobSummary{
			JobID:       job.ID.String(),
			Sources:     job.Sources,
			Destination: job.Destination,
			State:       job.State(),
			Priority:    job.Priority,
			CreatedAt:   created.Unix(),
			StartedAt:   unixOrZero(started),
			CompletedAt: unixOrZero(completed),
			BytesCopied: uint64(progress.BytesCopied),
			TotalBytes:  uint64(progress.TotalBytes),
		})
	}
	return &wire.Response{Kind: wire.ERequestKind.ListJobs(), Jobs: summaries}
}

func (s *Server) handleCancelJob(req *wire.Request) *wire.Response {
	id, err := common.ParseJobID(req.JobID)
	if err != nil {
		return errorResponse(wire.ERequestKind.CancelJob(), err)
	}
	if err := s.manager.Cancel(id); err != nil {
		return errorResponse(wire.ERequestKind.CancelJob(), err)
	}
	return &wire.Response{Kind: wire.ERequestKind.CancelJob(), Success: true}
}

func (s *Server) handlePauseJob(req *wire.Request) *wire.Response {
	id, err := common.ParseJobID(req.JobID)
	if err != nil {
		return errorResponse(wire.ERequestKind.PauseJob(), err)
	}
	if err := s.manager.Pause(id); err != nil {
		return errorResponse(wire.ERequestKind.PauseJob(), err)
	}
	return &wire.Response{Kind: wire.ERequestKind.PauseJob(), Success: true}
}

func (s *Server) handleResumeJob(req *wire.Request) *wire.Response {
	id, err := common.ParseJobID(req.JobID)
	if err != nil {
		return errorResponse(wire.ERequestKind.ResumeJob(), err)
	}
	if err := s.manager.Resume(id); err != nil {
		return errorResponse(wire.ERequestKind.ResumeJob(), err)
	}
	return &wire.Response{Kind: wire.ERequestKind.ResumeJob(), Success: true}
}

func (s *Server) handleGetStats(req *wire.Request) *wire.Response {
	if s.sink == nil {
		return &wire.Response{Kind: wire.ERequestKind.GetStats()}
	}
	snap := s.sink.Snapshot()
	daily := make([]wire.DailyStat, 0, len(snap.DailyStats))
	for _, d := range snap.DailyStats {
		daily = append(daily, wire.DailyStat{DateUnixDay: d.DateUnixDay, BytesCopied: d.BytesCopied, FilesCopied: d.FilesCopied})
	}
	return &wire.Response{
		Kind:             wire.ERequestKind.GetStats(),
		TotalBytesCopied: snap.TotalBytesCopied,
		TotalFilesCopied: snap.TotalFilesCopied,
		TotalJobs:        snap.TotalJobs,
		DailyStats:       daily,
		SlowPaths:        snap.SlowPaths,
	}
}

func (s *Server) handleHealthCheck(req *wire.Request) *wire.Response {
	active := 0
	queued := 0
	for _, job := range s.manager.List(false) {
		if job.State() == common.EJobState.Running() {
			active++
		} else if job.State() == common.EJobState.Pending() {
			queued++
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var cpuPercent float64
	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		cpuPercent = percentages[0]
	}

	return &wire.Response{
		Kind:             wire.ERequestKind.HealthCheck(),
		Healthy:          true,
		Version:          common.DaemonVersion,
		UptimeSeconds:    uint64(time.Since(StartedAt).Seconds()),
		ActiveJobs:       uint64(active),
		QueuedJobs:       uint64(queued),
		MemoryUsageBytes: memStats.Alloc,
		CPUUsagePercent:  cpuPercent,
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
