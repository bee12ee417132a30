// Package rpc exposes the pipeline to scheduling collaborators over JSON-RPC.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/domain"
	"github.com/Nitesh802/customerintel-sub008/internal/service"
)

// Server accepts JSON-RPC connections.
type Server struct {
	mu        sync.Mutex
	listener  net.Listener
	rpcServer *rpc.Server
	logger    *zap.Logger
	done      chan struct{}
}

// NewServer creates a new RPC server bound to the pipeline service.
func NewServer(svc *service.Service, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rpcServer := rpc.NewServer()
	handler := &Handler{service: svc}
	if err := rpcServer.RegisterName("Pipeline", handler); err != nil {
		return nil, fmt.Errorf("register rpc handler: %w", err)
	}

	return &Server{
		rpcServer: rpcServer,
		logger:    logger.Named("rpc"),
		done:      make(chan struct{}),
	}, nil
}

// Start begins accepting RPC connections on the given address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown closes it.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				close(s.done)
				return nil
			}
			s.logger.Warn("rpc accept error", zap.Error(err))
			continue
		}

		go s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Shutdown stops accepting new RPC connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}

	if err := ln.Close(); err != nil {
		return err
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler implements the Pipeline RPC methods.
type Handler struct {
	service *service.Service
}

// RunRequest identifies a run.
type RunRequest struct {
	RunID string `json:"run_id"`
}

// Enqueue creates a queued run for the scheduler to pick up.
func (h *Handler) Enqueue(req *domain.CreateRunRequest, resp *domain.RunSummary) error {
	if req == nil {
		return errors.New("enqueue request is required")
	}

	run, err := h.service.CreateRun(context.Background(), *req)
	if err != nil {
		return err
	}
	*resp = run.Summary()
	return nil
}

// Execute runs a queued run to the end and returns its final summary.
func (h *Handler) Execute(req *RunRequest, resp *domain.RunSummary) error {
	if req == nil || req.RunID == "" {
		return errors.New("run_id is required")
	}

	run, err := h.service.ExecuteRun(context.Background(), req.RunID)
	if err != nil {
		return err
	}
	*resp = run.Summary()
	return nil
}

// Cancel requests cancellation of a run.
func (h *Handler) Cancel(req *RunRequest, resp *domain.RunSummary) error {
	if req == nil || req.RunID == "" {
		return errors.New("run_id is required")
	}

	run, err := h.service.CancelRun(context.Background(), req.RunID)
	if err != nil {
		return err
	}
	*resp = run.Summary()
	return nil
}

// Resume re-enters the tail of a blocked run and waits for it.
func (h *Handler) Resume(req *RunRequest, resp *domain.RunSummary) error {
	if req == nil || req.RunID == "" {
		return errors.New("run_id is required")
	}

	run, err := h.service.ResumeRun(context.Background(), req.RunID, true)
	if err != nil {
		return err
	}
	*resp = run.Summary()
	return nil
}

// Status reports the current status of a run.
func (h *Handler) Status(req *RunRequest, resp *domain.RunSummary) error {
	if req == nil || req.RunID == "" {
		return errors.New("run_id is required")
	}

	run, err := h.service.GetRun(context.Background(), req.RunID)
	if err != nil {
		return err
	}
	if run == nil {
		return service.ErrRunNotFound
	}
	*resp = run.Summary()
	return nil
}
