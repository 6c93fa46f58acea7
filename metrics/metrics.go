// Package metrics is the daemon's internal observer of job-manager progress events: it
// maintains the running counters GetStats reports and exposes them a second way, via a
// Prometheus registry, for operators who scrape instead of poll the socket.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SlowPathThreshold is the per-file duration above which a path is recorded in SlowPaths.
const SlowPathThreshold = 30 * time.Second

// EventKind distinguishes the three progress-event shapes the job manager emits.
type EventKind uint8

const (
	EventStatusChange EventKind = iota
	EventFileCompleted
	EventFileError
)

// Event is the internal progress notification the job manager publishes; it is never
// serialized onto the wire, only observed in-process by Sink.
type Event struct {
	Kind        EventKind
	JobID       string
	Path        string
	BytesCopied int64
	Duration    time.Duration
	Err         error
	NewState    string
}

// dailyBucket accumulates one UTC day's totals.
type dailyBucket struct {
	day         int64
	bytesCopied uint64
	filesCopied uint64
}

// Sink accumulates daemon-wide totals and exposes them both for GetStats and for
// Prometheus scraping.
type Sink struct {
	mu sync.Mutex

	totalBytesCopied uint64
	totalFilesCopied uint64
	totalJobs        uint64
	daily            map[int64]*dailyBucket
	slowPaths        []string

	bytesCounter prometheus.Counter
	filesCounter prometheus.Counter
	jobsCounter  prometheus.Counter
	errorCounter *prometheus.CounterVec
}

// NewSink constructs a Sink and registers its collectors with reg. Passing a fresh
// prometheus.NewRegistry() keeps test instances from colliding with the default
// registry's global state.
func NewSink(reg prometheus.Registerer) *Sink {
	s := &Sink{
		daily: make(map[int64]*dailyBucket),
		bytesCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "copyd",
			Name:      "bytes_copied_total",
			Help:      "Total bytes copied across all jobs since daemon start.",
		}),
		filesCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "copyd",
			Name:      "files_copied_total",
			Help:      "Total files successfully copied since daemon start.",
		}),
		jobsCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "copyd",
			Name:      "jobs_created_total",
			Help:      "Total jobs created since daemon start.",
		}),
		errorCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copyd",
			Name:      "file_errors_total",
			Help:      "Total per-file copy errors, by job id.",
		}, []string{"job_id"}),
	}
	if reg != nil {
		reg.MustRegister(s.bytesCounter, s.filesCounter, s.jobsCounter, s.errorCounter)
	}
	return s
}

// JobCreated increments the job counter; called once per CreateJob request accepted.
func (s *Sink) JobCreated() {
	s.mu.Lock()
	s.totalJobs++
	s.mu.Unlock()
	s.jobsCounter.Inc()
}

// Observe folds one progress event into the running totals.
func (s *Sink) Observe(e Event) {
	switch e.Kind {
	case EventFileCompleted:
		s.mu.Lock()
		s.totalBytesCopied += uint64(e.BytesCopied)
		s.totalFilesCopied++
		bucket := s.bucketForNow()
		bucket.bytesCopied += uint64(e.BytesCopied)
		bucket.filesCopied++
		if e.Duration >= SlowPathThreshold {
			s.slowPaths = append(s.slowPaths, e.Path)
		}
		s.mu.Unlock()

		s.bytesCounter.Add(float64(e.BytesCopied))
		s.filesCounter.Inc()

	case EventFileError:
		s.errorCounter.WithLabelValues(e.JobID).Inc()
	}
}

func (s *Sink) bucketForNow() *dailyBucket {
	day := time.Now().UTC().Truncate(24 * time.Hour).Unix()
	b, ok := s.daily[day]
	if !ok {
		b = &dailyBucket{day: day}
		s.daily[day] = b
	}
	return b
}

// Totals is the GetStats-facing snapshot of everything Sink has accumulated.
type Totals struct {
	TotalBytesCopied uint64
	TotalFilesCopied uint64
	TotalJobs        uint64
	DailyStats       []DailyStat
	SlowPaths        []string
}

// DailyStat mirrors wire.DailyStat without importing the wire package, keeping metrics
// free of any dependency on the RPC schema.
type DailyStat struct {
	DateUnixDay int64
	BytesCopied uint64
	FilesCopied uint64
}

// Snapshot returns the current totals. The slow-paths list is capped to the most recent
// 100 entries so a long-running daemon doesn't grow this response unboundedly; older
// entries are dropped, not reported as zero, so GetStats is an honest partial view, not a
// misleadingly-complete one.
func (s *Sink) Snapshot() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	daily := make([]DailyStat, 0, len(s.daily))
	for _, b := range s.daily {
		daily = append(daily, DailyStat{DateUnixDay: b.day, BytesCopied: b.bytesCopied, FilesCopied: b.filesCopied})
	}

	slow := s.slowPaths
	const maxSlowPaths = 100
	if len(slow) > maxSlowPaths {
		slow = slow[len(slow)-maxSlowPaths:]
	}

	return Totals{
		TotalBytesCopied: s.totalBytesCopied,
		TotalFilesCopied: s.totalFilesCopied,
		TotalJobs:        s.totalJobs,
		DailyStats:       daily,
		SlowPaths:        append([]string(nil), slow...),
	}
}
