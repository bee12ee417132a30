// Package service is the application layer shared by the HTTP, RPC and CLI
// surfaces.
package service

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Nitesh802/customerintel-sub008/internal/config"
	"github.com/Nitesh802/customerintel-sub008/internal/export"
	"github.com/Nitesh802/customerintel-sub008/internal/pipeline"
	"github.com/Nitesh802/customerintel-sub008/internal/repository"
)

var (
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidState is returned when an operation does not apply to the run's status.
	ErrInvalidState = errors.New("operation not allowed in current run status")
	// ErrInvalidRequest is returned for malformed input.
	ErrInvalidRequest = errors.New("invalid request")
)

type Service struct {
	store    repository.Store
	orch     *pipeline.Orchestrator
	exporter *export.Exporter
	config   *config.Config
	logger   *zap.Logger

	// background resumes
	wg sync.WaitGroup
}

func New(store repository.Store, orch *pipeline.Orchestrator, cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		orch:     orch,
		exporter: export.New(store),
		config:   cfg,
		logger:   logger.Named("service"),
	}
}

// Wait blocks until background work started by the service has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}
