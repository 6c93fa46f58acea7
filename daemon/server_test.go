package daemon_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/copyd/copyd/checkpoint"
	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/daemon"
	"github.com/copyd/copyd/jobmanager"
	"github.com/copyd/copyd/metrics"
	"github.com/copyd/copyd/security"
	"github.com/copyd/copyd/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (socketPath string, manager *jobmanager.Manager) {
	t.Helper()
	dir := t.TempDir()
	socketPath = filepath.Join(dir, "copyd.sock")

	store, err := checkpoint.NewStore(filepath.Join(dir, "checkpoints"), nil)
	require.NoError(t, err)
	sink := metrics.NewSink(prometheus.NewRegistry())
	manager = jobmanager.NewManager(jobmanager.Config{MaxConcurrentJobs: 2, Store: store, Sink: sink})

	server := daemon.NewServer(socketPath, manager, sink, security.Policy{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go manager.Run(ctx)
	go func() { _ = server.Serve(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	return socketPath, manager
}

func roundTrip(t *testing.T, socketPath string, req *wire.Request) *wire.Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, req.Encode()))
	payload, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(payload)
	require.NoError(t, err)
	return resp
}

func TestHealthCheckRoundTrip(t *testing.T) {
	socketPath, _ := startTestServer(t)
	resp := roundTrip(t, socketPath, &wire.Request{Kind: wire.ERequestKind.HealthCheck()})
	require.True(t, resp.Healthy)
	require.Equal(t, common.DaemonVersion, resp.Version)
}

func TestCreateJobAndJobStatusRoundTrip(t *testing.T) {
	socketPath, _ := startTestServer(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dst := filepath.Join(dir, "dst.txt")

	createResp := roundTrip(t, socketPath, &wire.Request{
		Kind:         wire.ERequestKind.CreateJob(),
		Sources:      []string{src},
		Destination:  dst,
		ExistsAction: common.EExistsAction.Overwrite(),
		Engine:       common.EEngine.ReadWrite(),
	})
	require.Empty(t, createResp.Error)
	require.NotEmpty(t, createResp.JobID)

	require.Eventually(t, func() bool {
		statusResp := roundTrip(t, socketPath, &wire.Request{Kind: wire.ERequestKind.JobStatus(), JobID: createResp.JobID})
		return statusResp.State == common.EJobState.Completed()
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCreateJobRejectsRelativeSource(t *testing.T) {
	socketPath, _ := startTestServer(t)
	resp := roundTrip(t, socketPath, &wire.Request{
		Kind:        wire.ERequestKind.CreateJob(),
		Sources:     []string{"relative/path"},
		Destination: "/tmp/dest",
	})
	require.NotEmpty(t, resp.Error)
	require.Equal(t, common.EErrorKind.Invalid(), resp.ErrorKind)
}

func TestJobStatusUnknownIDReturnsError(t *testing.T) {
	socketPath, _ := startTestServer(t)
	resp := roundTrip(t, socketPath, &wire.Request{Kind: wire.ERequestKind.JobStatus(), JobID: common.NewJobID().String()})
	require.NotEmpty(t, resp.Error)
}
