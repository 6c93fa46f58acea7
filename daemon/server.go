// Package daemon owns the listening Unix domain socket and routes each decoded request
// to the job manager, encoding the result back onto the wire.
package daemon

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/copyd/copyd/common"
	"github.com/copyd/copyd/jobmanager"
	"github.com/copyd/copyd/metrics"
	"github.com/copyd/copyd/security"
	"github.com/copyd/copyd/wire"
	"github.com/pkg/errors"
)

// StartedAt is stamped once at process start so HealthCheck can report uptime.
var StartedAt = time.Now()

// Server accepts connections on a Unix domain socket and dispatches framed requests to
// the job manager.
type Server struct {
	socketPath string
	manager    *jobmanager.Manager
	sink       *metrics.Sink
	policy     security.Policy
	logger     common.ILogger

	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer constructs a Server bound to socketPath once Serve is called.
func NewServer(socketPath string, manager *jobmanager.Manager, sink *metrics.Sink, policy security.Policy, logger common.ILogger) *Server {
	return &Server{socketPath: socketPath, manager: manager, sink: sink, policy: policy, logger: logger}
}

// Serve binds the socket (removing any stale file at the same path first) and accepts
// connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrap(err, "daemon: binding socket")
	}
	s.listener = listener

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return errors.Wrap(err, "daemon: accept")
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			if err != io.EOF {
				if s.logger != nil {
					s.logger.Log(common.LogDebug, "daemon: connection read error: "+err.Error())
				}
			}
			return
		}

		req, err := wire.DecodeRequest(payload)
		if err != nil {
			return // malformed frame: protocol error, close the connection per spec
		}

		resp := s.dispatch(ctx, req)
		if err := wire.WriteFrame(conn, resp.Encode()); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	switch req.Kind {
	case wire.ERequestKind.CreateJob():
		return s.handleCreateJob(req)
	case wire.ERequestKind.JobStatus():
		return s.handleJobStatus(req)
	case wire.ERequestKind.ListJobs():
		return s.handleListJobs(req)
	case wire.ERequestKind.CancelJob():
		return s.handleCancelJob(req)
	case wire.ERequestKind.PauseJob():
		return s.handlePauseJob(req)
	case wire.ERequestKind.ResumeJob():
		return s.handleResumeJob(req)
	case wire.ERequestKind.GetStats():
		return s.handleGetStats(req)
	case wire.ERequestKind.HealthCheck():
		return s.handleHealthCheck(req)
	default:
		return &wire.Response{Kind: wire.ERequestKind.CreateJob(), Error: "unknown request kind", ErrorKind: common.EErrorKind.Protocol()}
	}
}

func errorResponse(kind wire.RequestKind, err error) *wire.Response {
	errKind := common.EErrorKind.Internal()
	if ve, ok := err.(*security.ValidationError); ok {
		errKind = ve.Kind
	}
	return &wire.Response{Kind: kind, Error: err.Error(), ErrorKind: errKind}
}
