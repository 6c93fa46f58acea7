package metrics_test

import (
	"testing"
	"time"

	"github.com/copyd/copyd/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func newTestSink() *metrics.Sink {
	return metrics.NewSink(prometheus.NewRegistry())
}

func TestSinkAccumulatesFileCompletions(t *testing.T) {
	s := newTestSink()
	s.Observe(metrics.Event{Kind: metrics.EventFileCompleted, BytesCopied: 100})
	s.Observe(metrics.Event{Kind: metrics.EventFileCompleted, BytesCopied: 50})

	snap := s.Snapshot()
	assert.EqualValues(t, 150, snap.TotalBytesCopied)
	assert.EqualValues(t, 2, snap.TotalFilesCopied)
}

func TestSinkTracksJobsCreated(t *testing.T) {
	s := newTestSink()
	s.JobCreated()
	s.JobCreated()

	snap := s.Snapshot()
	assert.EqualValues(t, 2, snap.TotalJobs)
}

func TestSinkRecordsSlowPaths(t *testing.T) {
	s := newTestSink()
	s.Observe(metrics.Event{Kind: metrics.EventFileCompleted, Path: "/slow/file", Duration: metrics.SlowPathThreshold + time.Second})
	s.Observe(metrics.Event{Kind: metrics.EventFileCompleted, Path: "/fast/file", Duration: time.Millisecond})

	snap := s.Snapshot()
	assert.Equal(t, []string{"/slow/file"}, snap.SlowPaths)
}

func TestSinkDoesNotCountFileErrorsAsCompletions(t *testing.T) {
	s := newTestSink()
	s.Observe(metrics.Event{Kind: metrics.EventFileError, JobID: "job-1"})

	snap := s.Snapshot()
	assert.EqualValues(t, 0, snap.TotalFilesCopied)
}
