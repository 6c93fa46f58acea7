package jobmanager

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/copyd/copyd/checkpoint"
	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/metrics"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// ErrNotFound is returned when a job id has no corresponding record in the registry.
var ErrNotFound = errors.New("jobmanager: job not found")

// queuePollInterval bounds how quickly Run notices a newly-enqueued job when the queue
// was empty; short enough that admission feels immediate, long enough not to spin.
const queuePollInterval = 20 * time.Millisecond

// Manager owns the registry, the queue, concurrency admission, and the checkpoint store.
// One Manager exists per daemon process.
type Manager struct {
	mu       sync.RWMutex
	jobs     map[string]*JobRecord
	queue    *queue
	permits  *semaphore.Weighted
	store    *checkpoint.Store
	sink     *metrics.Sink
	logger   common.ILogger
	security func(sources []string, destination string) error

	active sync.Map // common.JobID.String() -> context.CancelFunc

	wg sync.WaitGroup

	cpu common.CPUMonitor
}

// Config bundles a Manager's dependencies.
type Config struct {
	MaxConcurrentJobs int
	Store             *checkpoint.Store
	Sink              *metrics.Sink
	Logger            common.ILogger
	// CPUMonitor detects sustained CPU contention so Run can back off admitting new jobs
	// rather than pile kernel-assisted copies onto an already-saturated machine. Defaults
	// to a no-op monitor; the daemon entrypoint supplies a calibrated one.
	CPUMonitor common.CPUMonitor
}

// NewManager constructs a Manager ready to accept CreateJob calls. Call RecoverFromCheckpoints
// once at daemon startup, before serving requests, to re-enqueue unfinished jobs.
func NewManager(cfg Config) *Manager {
	maxConcurrent := cfg.MaxConcurrentJobs
	if maxConcurrent <= 0 {
		maxConcurrent = common.ComputeConcurrencyValue(runtime.NumCPU())
	}
	maxConcurrent = clampToAvailableMemory(maxConcurrent, cfg.Logger)
	cpu := cfg.CPUMonitor
	if cpu == nil {
		cpu = common.NewNullCpuMonitor()
	}
	return &Manager{
		jobs:    make(map[string]*JobRecord),
		queue:   newQueue(),
		permits: semaphore.NewWeighted(int64(maxConcurrent)),
		store:   cfg.Store,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		cpu:     cpu,
	}
}

// minBytesPerConcurrentJob budgets enough headroom per simultaneous job for a handful of
// in-flight ReadWrite-engine buffers plus planner bookkeeping, without needing to know the
// actual file sizes a job will touch ahead of time.
const minBytesPerConcurrentJob = 64 << 20

// clampToAvailableMemory caps concurrency so the daemon doesn't admit more simultaneous
// jobs than available RAM can comfortably buffer for. A failure to read /proc/meminfo
// (non-Linux, sandboxed container without procfs) leaves the configured value untouched.
func clampToAvailableMemory(maxConcurrent int, logger common.ILogger) int {
	available, err := common.GetMemAvailable()
	if err != nil || available <= 0 {
		return maxConcurrent
	}
	budget := int(available / minBytesPerConcurrentJob)
	if budget < 1 {
		budget = 1
	}
	if budget < maxConcurrent {
		if logger != nil {
			logger.Log(common.LogInfo, fmt.Sprintf("jobmanager: reducing concurrency from %d to %d based on available memory", maxConcurrent, budget))
		}
		return budget
	}
	return maxConcurrent
}

// CreateJob registers a new job and enqueues it; the executor loop (started by Run)
// eventually admits it once a concurrency permit is available.
func (m *Manager) CreateJob(sources []string, destination string, opts Options, priority uint64) *JobRecord {
	job := newJobRecord(sources, destination, opts, priority)

	m.mu.Lock()
	m.jobs[job.ID.String()] = job
	m.mu.Unlock()

	if m.sink != nil {
		m.sink.JobCreated()
	}
	m.queue.PushBack(job.ID, priority)
	return job
}

// Get returns the job record for id, or ErrNotFound.
func (m *Manager) Get(id common.JobID) (*JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// List returns every job currently known to the registry. Order is unspecified; callers
// needing a stable order should sort by CreatedAt themselves.
func (m *Manager) List(includeCompleted bool) []*JobRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*JobRecord, 0, len(m.jobs))
	for _, job := range m.jobs {
		if !includeCompleted && job.State().IsTerminal() {
			continue
		}
		out = append(out, job)
	}
	return out
}

// Cancel aborts a job's executor immediately, transitioning it to Cancelled. Cancelling a
// job with no running executor (still Pending) transitions it directly.
func (m *Manager) Cancel(id common.JobID) error {
	job, err := m.Get(id)
	if err != nil {
		return err
	}
	if job.State().IsTerminal() {
		return nil
	}
	if cancel, ok := m.active.Load(id.String()); ok {
		cancel.(context.CancelFunc)()
	}
	job.setState(common.EJobState.Cancelled())
	job.logf("cancelled by request")
	return nil
}

// Pause requests cooperative pause; the executor observes this at the next file-boundary
// yield point and transitions the job to Paused itself.
func (m *Manager) Pause(id common.JobID) error {
	job, err := m.Get(id)
	if err != nil {
		return err
	}
	if job.State() != common.EJobState.Running() {
		return errors.Errorf("jobmanager: cannot pause job in state %s", job.State())
	}
	job.setState(common.EJobState.Paused())
	job.logf("pause requested")
	return nil
}

// Resume moves a Paused job back into the queue, at the front, per the spec's "resumed
// jobs run first" admission rule.
func (m *Manager) Resume(id common.JobID) error {
	job, err := m.Get(id)
	if err != nil {
		return err
	}
	if job.State() != common.EJobState.Paused() {
		return errors.Errorf("jobmanager: cannot resume job in state %s", job.State())
	}
	job.setState(common.EJobState.Pending())
	job.logf("resumed")
	m.queue.PushFront(job.ID, job.Priority)
	return nil
}

// Run is the queue processor: it blocks (until ctx is cancelled) repeatedly popping the
// queue and spawning an executor for each job once a concurrency permit is available.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.wg.Wait()
			return
		default:
		}

		if m.cpu.CPUContentionExists() {
			// The machine is already struggling to schedule its goroutines; admitting
			// another job would just make every in-flight copy slower. Back off and
			// recheck rather than pile on.
			select {
			case <-ctx.Done():
				m.wg.Wait()
				return
			case <-time.After(queuePollInterval):
			}
			continue
		}

		id, ok := m.queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				m.wg.Wait()
				return
			case <-time.After(queuePollInterval):
			}
			continue
		}

		job, err := m.Get(id)
		if err != nil || job.State().IsTerminal() {
			continue // job was cancelled/removed between enqueue and pop
		}

		if err := m.permits.Acquire(ctx, 1); err != nil {
			m.wg.Wait()
			return
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer m.permits.Release(1)
			m.runExecutor(ctx, job)
		}()
	}
}

// RecoverFromCheckpoints re-enqueues every resumable job found in the checkpoint store,
// reconstructing enough of a JobRecord to retry. Called once at startup before Run.
func (m *Manager) RecoverFromCheckpoints() error {
	if m.store == nil {
		return nil
	}
	ids, err := m.store.ListResumable()
	if err != nil {
		return errors.Wrap(err, "jobmanager: listing resumable checkpoints")
	}
	for _, idStr := range ids {
		cp, err := m.store.Load(idStr)
		if err != nil {
			continue
		}
		jobID, err := common.ParseJobID(idStr)
		if err != nil {
			continue
		}

		opts := fromCheckpointOptions(cp.Options, operationKindFromString(cp.OperationKind))
		job := newJobRecord(cp.Sources, cp.Destination, opts, 0)
		job.ID = jobID
		job.resumeCount = cp.ResumeCount + 1

		m.mu.Lock()
		m.jobs[job.ID.String()] = job
		m.mu.Unlock()

		m.queue.PushFront(job.ID, 0)
	}
	return nil
}
