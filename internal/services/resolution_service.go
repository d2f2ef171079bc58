package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NEAR-Edu/contract-registry/internal/near"
	"github.com/NEAR-Edu/contract-registry/internal/repository"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"
)

// TxSubmitter is the chain-mutating side of the relay.
type TxSubmitter interface {
	Submit(ctx context.Context, receiver string, call domain.ContractCall) (near.Outcome, error)
}

// Resolution is one queued on-chain report for a completed job.
type Resolution struct {
	JobNumber  uint64
	PipelineID string
	Call       domain.ContractCall
}

type ResolutionService interface {
	Enabled() bool
	// Resolve submits call and waits for its final outcome.
	Resolve(ctx context.Context, call domain.ContractCall) (near.Outcome, error)
	// Enqueue hands r to the background worker started by Start.
	Enqueue(ctx context.Context, r Resolution) error
	Start(ctx context.Context)
}

type resolutionService struct {
	submitter  TxSubmitter
	contractID string
	jobs       repository.JobRepository
	dispatch   repository.DispatchRepository
	logger     *slog.Logger

	// one signer key means one nonce sequence; submissions never overlap
	mu    sync.Mutex
	queue chan Resolution
}

const defaultResolutionQueue = 64

// NewResolutionService returns a service that reports outcomes to contractID.
// A nil submitter disables resolution.
func NewResolutionService(submitter TxSubmitter, contractID string, jobs repository.JobRepository, dispatch repository.DispatchRepository, logger *slog.Logger) ResolutionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &resolutionService{
		submitter:  submitter,
		contractID: contractID,
		jobs:       jobs,
		dispatch:   dispatch,
		logger:     logger.With("component", "resolution"),
		queue:      make(chan Resolution, defaultResolutionQueue),
	}
}

func (s *resolutionService) Enabled() bool { return s.submitter != nil }

func (s *resolutionService) Resolve(ctx context.Context, call domain.ContractCall) (near.Outcome, error) {
	if !s.Enabled() {
		return near.Outcome{}, ErrResolutionDisabled
	}
	if err := call.Validate(); err != nil {
		return near.Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitter.Submit(ctx, s.contractID, call)
}

func (s *resolutionService) Enqueue(ctx context.Context, r Resolution) error {
	if !s.Enabled() {
		return ErrResolutionDisabled
	}
	if r.Call == nil {
		return fmt.Errorf("%w: resolution without call", domain.ErrInvalidCall)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.queue <- r:
		return nil
	}
}

// Start drains the queue until ctx is cancelled. A cancelled submission stops
// observing its transaction; the transaction itself may still execute.
func (s *resolutionService) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-s.queue:
			s.process(ctx, r)
		}
	}
}

func (s *resolutionService) process(ctx context.Context, r Resolution) {
	logger := s.logger.With("job", r.JobNumber, "method", r.Call.Method())
	out, err := s.Resolve(ctx, r.Call)

	state := domain.ResolutionSucceeded
	var msg string
	var exec *near.ExecutionError
	switch {
	case err == nil:
		logger.Info("resolution confirmed", "tx", out.TxHash)
	case errors.As(err, &exec):
		state = domain.ResolutionFailed
		msg = exec.Message()
		out.TxHash = exec.TxHash
		logger.Warn("resolution rejected by contract", "tx", exec.TxHash, "reason", msg)
	case ctx.Err() != nil:
		logger.Warn("resolution abandoned on shutdown", "err", err)
		return
	default:
		state = domain.ResolutionError
		msg = err.Error()
		logger.Warn("resolution failed", "err", err)
	}

	if r.PipelineID != "" && state != domain.ResolutionError {
		if err := s.dispatch.Forget(ctx, r.PipelineID); err != nil {
			logger.Warn("forget pipeline link failed", "pipeline", r.PipelineID, "err", err)
		}
	}
	if r.JobNumber == 0 || s.jobs == nil {
		return
	}
	rec, err := s.jobs.GetJob(ctx, r.JobNumber)
	if err != nil {
		logger.Warn("load job record failed", "err", err)
		return
	}
	rec.Resolution = state
	rec.TxHash = out.TxHash
	rec.Error = msg
	if err := s.jobs.SaveJob(ctx, *rec); err != nil {
		logger.Warn("save job record failed", "err", err)
	}
}
