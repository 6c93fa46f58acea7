package wire

import (
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
	"github.com/copyd/copyd/common"
	"github.com/pkg/errors"
)

// RequestKind enumerates the closed set of request variants the daemon understands.
type RequestKind uint8

var ERequestKind = RequestKind(0)

func (RequestKind) CreateJob() RequestKind  { return RequestKind(0) }
func (RequestKind) JobStatus() RequestKind  { return RequestKind(1) }
func (RequestKind) ListJobs() RequestKind   { return RequestKind(2) }
func (RequestKind) CancelJob() RequestKind  { return RequestKind(3) }
func (RequestKind) PauseJob() RequestKind   { return RequestKind(4) }
func (RequestKind) ResumeJob() RequestKind  { return RequestKind(5) }
func (RequestKind) GetStats() RequestKind   { return RequestKind(6) }
func (RequestKind) HealthCheck() RequestKind { return RequestKind(7) }

func (k RequestKind) String() string { return enum.StringInt(k, reflect.TypeOf(k)) }

// field tags shared across the request/response wire schema. Tags are stable once shipped;
// never renumber an existing one, only append.
const (
	tagKind uint8 = iota
	tagJobID
	tagSources // repeated: one field per source, newline-joined is avoided so paths with newlines survive
	tagDestination
	tagRecursive
	tagPreserveMetadata
	tagPreserveLinks
	tagPreserveSparse
	tagVerify
	tagExistsAction
	tagPriority
	tagMaxRateBps
	tagEngine
	tagDryRun
	tagRegexMatch
	tagRegexReplace
	tagBlockSize
	tagCompress
	tagEncrypt
	tagIncludeCompleted
	tagDaysBack
	tagError
	tagErrorKind
	tagSuccess
	tagBytesCopied
	tagTotalBytes
	tagFilesCopied
	tagTotalFiles
	tagThroughputMbps
	tagEtaSeconds
	tagCreatedAt
	tagStartedAt
	tagCompletedAt
	tagLogEntry
	tagJobSummary
	tagTotalJobs
	tagDailyStat
	tagSlowPath
	tagHealthy
	tagVersion
	tagUptimeSeconds
	tagActiveJobs
	tagQueuedJobs
	tagMemoryUsageBytes
	tagCPUUsagePercent
	tagState
)

// Request is the tagged union of everything a client can ask the daemon to do. Only the
// fields relevant to Kind are populated; the rest are zero.
type Request struct {
	Kind RequestKind

	// CreateJob
	Sources            []string
	Destination        string
	Recursive          bool
	PreserveMetadata   bool
	PreserveLinks      bool
	PreserveSparse     bool
	Verify             common.VerifyMode
	ExistsAction       common.ExistsAction
	Priority           uint64
	MaxRateBps         uint64
	Engine             common.Engine
	DryRun             bool
	RegexRenameMatch   string
	RegexRenameReplace string
	BlockSize          uint64
	Compress           bool
	Encrypt            bool

	// JobStatus / CancelJob / PauseJob / ResumeJob
	JobID string

	// ListJobs
	IncludeCompleted bool

	// GetStats
	DaysBack uint64
}

func (r *Request) Encode() []byte {
	w := newFieldWriter()
	w.Uint64(tagKind, uint64(r.Kind))
	switch r.Kind {
	case ERequestKind.CreateJob():
		for _, s := range r.Sources {
			w.String(tagSources, s)
		}
		w.String(tagDestination, r.Destination)
		w.Bool(tagRecursive, r.Recursive)
		w.Bool(tagPreserveMetadata, r.PreserveMetadata)
		w.Bool(tagPreserveLinks, r.PreserveLinks)
		w.Bool(tagPreserveSparse, r.PreserveSparse)
		w.Uint64(tagVerify, uint64(r.Verify))
		w.Uint64(tagExistsAction, uint64(r.ExistsAction))
		w.Uint64(tagPriority, r.Priority)
		w.Uint64(tagMaxRateBps, r.MaxRateBps)
		w.Uint64(tagEngine, uint64(r.Engine))
		w.Bool(tagDryRun, r.DryRun)
		w.String(tagRegexMatch, r.RegexRenameMatch)
		w.String(tagRegexReplace, r.RegexRenameReplace)
		w.Uint64(tagBlockSize, r.BlockSize)
		w.Bool(tagCompress, r.Compress)
		w.Bool(tagEncrypt, r.Encrypt)
	case ERequestKind.JobStatus(), ERequestKind.CancelJob(), ERequestKind.PauseJob(), ERequestKind.ResumeJob():
		w.String(tagJobID, r.JobID)
	case ERequestKind.ListJobs():
		w.Bool(tagIncludeCompleted, r.IncludeCompleted)
	case ERequestKind.GetStats():
		w.Uint64(tagDaysBack, r.DaysBack)
	case ERequestKind.HealthCheck():
		// no fields
	}
	return w.Bytes_()
}

func DecodeRequest(payload []byte) (*Request, error) {
	fields, err := readFields(payload)
	if err != nil {
		return nil, errors.Wrap(err, "wire: decoding request")
	}
	r := &Request{}
	for _, f := range fields {
		switch f.tag {
		case tagKind:
			r.Kind = RequestKind(uint64Of(f))
		case tagSources:
			r.Sources = append(r.Sources, stringOf(f))
		case tagDestination:
			r.Destination = stringOf(f)
		case tagRecursive:
			r.Recursive = boolOf(f)
		case tagPreserveMetadata:
			r.PreserveMetadata = boolOf(f)
		case tagPreserveLinks:
			r.PreserveLinks = boolOf(f)
		case tagPreserveSparse:
			r.PreserveSparse = boolOf(f)
		case tagVerify:
			r.Verify = common.VerifyMode(uint64Of(f))
		case tagExistsAction:
			r.ExistsAction = common.ExistsAction(uint64Of(f))
		case tagPriority:
			r.Priority = uint64Of(f)
		case tagMaxRateBps:
			r.MaxRateBps = uint64Of(f)
		case tagEngine:
			r.Engine = common.Engine(uint64Of(f))
		case tagDryRun:
			r.DryRun = boolOf(f)
		case tagRegexMatch:
			r.RegexRenameMatch = stringOf(f)
		case tagRegexReplace:
			r.RegexRenameReplace = stringOf(f)
		case tagBlockSize:
			r.BlockSize = uint64Of(f)
		case tagCompress:
			r.Compress = boolOf(f)
		case tagEncrypt:
			r.Encrypt = boolOf(f)
		case tagJobID:
			r.JobID = stringOf(f)
		case tagIncludeCompleted:
			r.IncludeCompleted = boolOf(f)
		case tagDaysBack:
			r.DaysBack = uint64Of(f)
		}
	}
	return r, nil
}

// JobSummary is the per-job listing shape returned by ListJobs.
type JobSummary struct {
	JobID       string
	Sources     []string
	Destination string
	State       common.JobState
	Priority    uint64
	CreatedAt   int64
	StartedAt   int64
	CompletedAt int64
	BytesCopied uint64
	TotalBytes  uint64
}

// DailyStat is one day's rollup inside StatsResponse.
type DailyStat struct {
	DateUnixDay  int64
	BytesCopied  uint64
	FilesCopied  uint64
}

// Response mirrors Request: one tagged union, only the fields for Kind populated.
type Response struct {
	Kind RequestKind

	Error     string
	ErrorKind common.ErrorKind

	// CreateJob
	JobID string

	// JobStatus
	State          common.JobState
	BytesCopied    uint64
	TotalBytes     uint64
	FilesCopied    uint64
	TotalFiles     uint64
	ThroughputMbps float64
	EtaSeconds     uint64
	CreatedAt      int64
	StartedAt      int64
	CompletedAt    int64
	LogEntries     []string

	// ListJobs
	Jobs []JobSummary

	// Cancel/Pause/Resume
	Success bool

	// GetStats
	TotalBytesCopied uint64
	TotalFilesCopied uint64
	TotalJobs        uint64
	DailyStats       []DailyStat
	SlowPaths        []string

	// HealthCheck
	Healthy           bool
	Version           string
	UptimeSeconds     uint64
	ActiveJobs        uint64
	QueuedJobs        uint64
	MemoryUsageBytes  uint64
	CPUUsagePercent   float64
}

func (r *Response) Encode() []byte {
	w := newFieldWriter()
	w.Uint64(tagKind, uint64(r.Kind))
	w.String(tagError, r.Error)
	w.Uint64(tagErrorKind, uint64(r.ErrorKind))
	switch r.Kind {
	case ERequestKind.CreateJob():
		w.String(tagJobID, r.JobID)
	case ERequestKind.JobStatus():
		w.String(tagJobID, r.JobID)
		w.Uint64(tagState, uint64(r.State))
		w.Uint64(tagBytesCopied, r.BytesCopied)
		w.Uint64(tagTotalBytes, r.TotalBytes)
		w.Uint64(tagFilesCopied, r.FilesCopied)
		w.Uint64(tagTotalFiles, r.TotalFiles)
		w.Uint64(tagThroughputMbps, uint64(r.ThroughputMbps*1000))
		w.Uint64(tagEtaSeconds, r.EtaSeconds)
		w.Int64(tagCreatedAt, r.CreatedAt)
		w.Int64(tagStartedAt, r.StartedAt)
		w.Int64(tagCompletedAt, r.CompletedAt)
		for _, l := range r.LogEntries {
			w.String(tagLogEntry, l)
		}
	case ERequestKind.ListJobs():
		for _, j := range r.Jobs {
			w.String(tagJobSummary, encodeJobSummary(j))
		}
	case ERequestKind.CancelJob(), ERequestKind.PauseJob(), ERequestKind.ResumeJob():
		w.Bool(tagSuccess, r.Success)
	case ERequestKind.GetStats():
		w.Uint64(tagBytesCopied, r.TotalBytesCopied)
		w.Uint64(tagFilesCopied, r.TotalFilesCopied)
		w.Uint64(tagTotalJobs, r.TotalJobs)
		for _, s := range r.SlowPaths {
			w.String(tagSlowPath, s)
		}
	case ERequestKind.HealthCheck():
		w.Bool(tagHealthy, r.Healthy)
		w.String(tagVersion, r.Version)
		w.Uint64(tagUptimeSeconds, r.UptimeSeconds)
		w.Uint64(tagActiveJobs, r.ActiveJobs)
		w.Uint64(tagQueuedJobs, r.QueuedJobs)
		w.Uint64(tagMemoryUsageBytes, r.MemoryUsageBytes)
		w.Uint64(tagCPUUsagePercent, uint64(r.CPUUsagePercent*1000))
	}
	return w.Bytes_()
}

func DecodeResponse(payload []byte) (*Response, error) {
	fields, err := readFields(payload)
	if err != nil {
		return nil, errors.Wrap(err, "wire: decoding response")
	}
	r := &Response{}
	for _, f := range fields {
		switch f.tag {
		case tagKind:
			r.Kind = RequestKind(uint64Of(f))
		case tagError:
			r.Error = stringOf(f)
		case tagErrorKind:
			r.ErrorKind = common.ErrorKind(uint64Of(f))
		case tagJobID:
			r.JobID = stringOf(f)
		case tagState:
			r.State = common.JobState(uint64Of(f))
		case tagBytesCopied:
			if r.Kind == ERequestKind.GetStats() {
				r.TotalBytesCopied = uint64Of(f)
			} else {
				r.BytesCopied = uint64Of(f)
			}
		case tagTotalBytes:
			r.TotalBytes = uint64Of(f)
		case tagFilesCopied:
			if r.Kind == ERequestKind.GetStats() {
				r.TotalFilesCopied = uint64Of(f)
			} else {
				r.FilesCopied = uint64Of(f)
			}
		case tagTotalFiles:
			r.TotalFiles = uint64Of(f)
		case tagThroughputMbps:
			r.ThroughputMbps = float64(uint64Of(f)) / 1000
		case tagEtaSeconds:
			r.EtaSeconds = uint64Of(f)
		case tagCreatedAt:
			r.CreatedAt = int64Of(f)
		case tagStartedAt:
			r.StartedAt = int64Of(f)
		case tagCompletedAt:
			r.CompletedAt = int64Of(f)
		case tagLogEntry:
			r.LogEntries = append(r.LogEntries, stringOf(f))
		case tagJobSummary:
			js, err := decodeJobSummary(f.value)
			if err != nil {
				return nil, err
			}
			r.Jobs = append(r.Jobs, js)
		case tagSuccess:
			r.Success = boolOf(f)
		case tagTotalJobs:
			r.TotalJobs = uint64Of(f)
		case tagSlowPath:
			r.SlowPaths = append(r.SlowPaths, stringOf(f))
		case tagHealthy:
			r.Healthy = boolOf(f)
		case tagVersion:
			r.Version = stringOf(f)
		case tagUptimeSeconds:
			r.UptimeSeconds = uint64Of(f)
		case tagActiveJobs:
			r.ActiveJobs = uint64Of(f)
		case tagQueuedJobs:
			r.QueuedJobs = uint64Of(f)
		case tagMemoryUsageBytes:
			r.MemoryUsageBytes = uint64Of(f)
		case tagCPUUsagePercent:
			r.CPUUsagePercent = float64(uint64Of(f)) / 1000
		}
	}
	return r, nil
}

// encodeJobSummary/decodeJobSummary nest a second tagged-field blob inside the
// tagJobSummary field so ListJobs can carry an arbitrary number of job records without a
// separate repeated-message mechanism.
const (
	jsTagJobID uint8 = iota
	jsTagSource
	jsTagDestination
	jsTagState
	jsTagPriority
	jsTagCreatedAt
	jsTagStartedAt
	jsTagCompletedAt
	jsTagBytesCopied
	jsTagTotalBytes
)

func encodeJobSummary(j JobSummary) string {
	w := newFieldWriter()
	w.String(jsTagJobID, j.JobID)
	for _, s := range j.Sources {
		w.String(jsTagSource, s)
	}
	w.String(jsTagDestination, j.Destination)
	w.Uint64(jsTagState, uint64(j.State))
	w.Uint64(jsTagPriority, j.Priority)
	w.Int64(jsTagCreatedAt, j.CreatedAt)
	w.Int64(jsTagStartedAt, j.StartedAt)
	w.Int64(jsTagCompletedAt, j.CompletedAt)
	w.Uint64(jsTagBytesCopied, j.BytesCopied)
	w.Uint64(jsTagTotalBytes, j.TotalBytes)
	return string(w.Bytes_())
}

func decodeJobSummary(payload []byte) (JobSummary, error) {
	fields, err := readFields(payload)
	if err != nil {
		return JobSummary{}, errors.Wrap(err, "wire: decoding job summary")
	}
	var j JobSummary
	for _, f := range fields {
		switch f.tag {
		case jsTagJobID:
			j.JobID = stringOf(f)
		case jsTagSource:
			j.Sources = append(j.Sources, stringOf(f))
		case jsTagDestination:
			j.Destination = stringOf(f)
		case jsTagState:
			j.State = common.JobState(uint64Of(f))
		case jsTagPriority:
			j.Priority = uint64Of(f)
		case jsTagCreatedAt:
			j.CreatedAt = int64Of(f)
		case jsTagStartedAt:
			j.StartedAt = int64Of(f)
		case jsTagCompletedAt:
			j.CompletedAt = int64Of(f)
		case jsTagBytesCopied:
			j.BytesCopied = uint64Of(f)
		case jsTagTotalBytes:
			j.TotalBytes = uint64Of(f)
		}
	}
	return j, nil
}
