package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/metrics"
	"github.com/NEAR-Edu/contract-registry/internal/repository"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/google/uuid"
)

type RequestWatcher interface {
	Watch(ctx context.Context) <-chan domain.VerificationRequest
}

type PipelineTrigger interface {
	TriggerPipeline(ctx context.Context, branch string, params map[string]any) (domain.PipelineRef, error)
}

type DispatchService interface {
	// Start consumes newly observed pending requests until ctx is cancelled.
	Start(ctx context.Context)
	Dispatch(ctx context.Context, req domain.VerificationRequest) (*domain.DispatchRecord, error)
}

type dispatchService struct {
	watcher RequestWatcher
	trigger PipelineTrigger
	ledger  repository.DispatchRepository
	branch  string
	enabled bool
	logger  *slog.Logger
	tz      *time.Location
}

// NewDispatchService starts one CI pipeline per observed request when enabled.
// When disabled, observed requests are only logged.
func NewDispatchService(watcher RequestWatcher, trigger PipelineTrigger, ledger repository.DispatchRepository, branch string, enabled bool, logger *slog.Logger, tz *time.Location) DispatchService {
	if logger == nil {
		logger = slog.Default()
	}
	if tz == nil {
		tz = time.UTC
	}
	if branch == "" {
		branch = "main"
	}
	return &dispatchService{
		watcher: watcher,
		trigger: trigger,
		ledger:  ledger,
		branch:  branch,
		enabled: enabled && trigger != nil && ledger != nil,
		logger:  logger.With("component", "dispatch"),
		tz:      tz,
	}
}

func (s *dispatchService) Start(ctx context.Context) {
	for req := range s.watcher.Watch(ctx) {
		if !s.enabled {
			metrics.DispatchesTotal.WithLabelValues("observed").Inc()
			s.logger.Info("pending request observed", "request_id", req.ID, "repository", req.Repository)
			continue
		}
		if _, err := s.Dispatch(ctx, req); err != nil {
			s.logger.Warn("dispatch failed", "request_id", req.ID, "err", err)
		}
	}
}

// Dispatch triggers a pipeline for req unless another dispatch already claimed it,
// in which case it returns nil and no error.
func (s *dispatchService) Dispatch(ctx context.Context, req domain.VerificationRequest) (*domain.DispatchRecord, error) {
	if !s.enabled {
		return nil, nil
	}
	logger := s.logger.With("request_id", req.ID)
	claimID := uuid.NewString()
	ok, err := s.ledger.Claim(ctx, req.ID, claimID)
	if err != nil {
		metrics.DispatchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !ok {
		metrics.DispatchesTotal.WithLabelValues("skipped").Inc()
		logger.Debug("request already dispatched")
		return nil, nil
	}

	ref, err := s.trigger.TriggerPipeline(ctx, s.branch, map[string]any{
		"repository": req.Repository,
		"request_id": strconv.FormatUint(req.ID, 10),
	})
	if err != nil {
		metrics.DispatchesTotal.WithLabelValues("error").Inc()
		if rerr := s.ledger.Release(context.WithoutCancel(ctx), req.ID); rerr != nil {
			logger.Warn("release dispatch claim failed", "err", rerr)
		}
		return nil, err
	}

	rec := domain.DispatchRecord{
		ID:             claimID,
		RequestID:      req.ID,
		Repository:     req.Repository,
		PipelineID:     ref.ID,
		PipelineNumber: ref.Number,
		CreatedAt:      time.Now().In(s.tz),
	}
	if err := s.ledger.LinkPipeline(ctx, rec); err != nil {
		metrics.DispatchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.DispatchesTotal.WithLabelValues("triggered").Inc()
	logger.Info("pipeline triggered", "pipeline", ref.ID, "pipeline_number", ref.Number, "repository", req.Repository)
	return &rec, nil
}
