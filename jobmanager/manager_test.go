package jobmanager_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/copyd/copyd/checkpoint"
	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/jobmanager"
	"github.com/copyd/copyd/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *jobmanager.Manager {
	t.Helper()
	store, err := checkpoint.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	sink := metrics.NewSink(prometheus.NewRegistry())
	return jobmanager.NewManager(jobmanager.Config{
		MaxConcurrentJobs: 2,
		Store:             store,
		Sink:              sink,
	})
}

func waitForTerminal(t *testing.T, job *jobmanager.JobRecord, timeout time.Duration) common.JobState {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if job.State().IsTerminal() {
			return job.State()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job did not reach a terminal state within %s (state=%s)", timeout, job.State())
	return job.State()
}

func TestCreateJobCopiesFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	job := m.CreateJob([]string{src}, dst, jobmanager.Options{
		ExistsAction: common.EExistsAction.Overwrite(),
		Engine:       common.EEngine.ReadWrite(),
	}, 0)

	state := waitForTerminal(t, job, 2*time.Second)
	require.Equal(t, common.EJobState.Completed(), state)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "payload", string(content))
}

func TestCancelTransitionsToCancelled(t *testing.T) {
	m := newTestManager(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	job := m.CreateJob([]string{src}, filepath.Join(dir, "dst.txt"), jobmanager.Options{}, 0)
	require.NoError(t, m.Cancel(job.ID))
	require.Equal(t, common.EJobState.Cancelled(), job.State())
}

func TestGetReturnsNotFoundForUnknownID(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get(common.NewJobID())
	require.ErrorIs(t, err, jobmanager.ErrNotFound)
}

func TestListFiltersCompletedByDefault(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	job := m.CreateJob([]string{src}, filepath.Join(dir, "dst.txt"), jobmanager.Options{}, 0)
	require.NoError(t, m.Cancel(job.ID))

	require.Empty(t, m.List(false))
	require.Len(t, m.List(true), 1)
}

func TestRecoverFromCheckpointsSkipsCompletedFiles(t *testing.T) {
	dir := t.TempDir()
	srcA := filepath.Join(dir, "a.txt")
	srcB := filepath.Join(dir, "b.txt")
	destDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(destDir, 0o755))
	require.NoError(t, os.WriteFile(srcA, []byte("aaaa"), 0o644))
	require.NoError(t, os.WriteFile(srcB, []byte("bbbb"), 0o644))

	destA := filepath.Join(destDir, "a.txt")
	destB := filepath.Join(destDir, "b.txt")
	// destA already has 4 bytes on disk from a prior (simulated) run. Its content
	// deliberately differs from srcA so a re-copy is observable.
	require.NoError(t, os.WriteFile(destA, []byte("ZZZZ"), 0o644))

	srcAInfo, err := os.Stat(srcA)
	require.NoError(t, err)

	storeDir := t.TempDir()
	store, err := checkpoint.NewStore(storeDir, nil)
	require.NoError(t, err)

	jobID := common.NewJobID()
	key := checkpoint.FileKey(srcA, destA)
	cp := &checkpoint.JobCheckpoint{
		JobID:       jobID.String(),
		Sources:     []string{srcA, srcB},
		Destination: destDir,
		Options: checkpoint.JobOptions{
			ExistsAction: common.EExistsAction.Overwrite(),
			Engine:       common.EEngine.ReadWrite(),
		},
		Files: map[string]checkpoint.FileCheckpoint{
			key: {
				SourcePath:         srcA,
				DestinationPath:    destA,
				BytesCopied:        4,
				TotalSize:          srcAInfo.Size(),
				SourceLastModified: srcAInfo.ModTime(),
			},
		},
		CompletedKeys: []string{key},
		TotalFiles:    2,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, store.Save(cp))

	sink := metrics.NewSink(prometheus.NewRegistry())
	m := jobmanager.NewManager(jobmanager.Config{MaxConcurrentJobs: 2, Store: store, Sink: sink})
	require.NoError(t, m.RecoverFromCheckpoints())

	job, err := m.Get(jobID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	state := waitForTerminal(t, job, 2*time.Second)
	require.Equal(t, common.EJobState.Completed(), state)

	// The already-completed file must not have been recopied.
	content, err := os.ReadFile(destA)
	require.NoError(t, err)
	require.Equal(t, "ZZZZ", string(content))

	// The remaining file still gets copied normally.
	content, err = os.ReadFile(destB)
	require.NoError(t, err)
	require.Equal(t, "bbbb", string(content))
}

func TestPauseRejectsNonRunningJob(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	job := m.CreateJob([]string{src}, filepath.Join(dir, "dst.txt"), jobmanager.Options{}, 0)
	require.Error(t, m.Pause(job.ID)) // still Pending, never started running
}
