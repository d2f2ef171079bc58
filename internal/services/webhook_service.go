package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/circleci"
	"github.com/NEAR-Edu/contract-registry/internal/repository"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"
)

type ArtifactAssembler interface {
	Assemble(ctx context.Context, jobNumber string) (circleci.Assembly, error)
}

type CodeArchive interface {
	Store(ctx context.Context, hash domain.CodeHash, code []byte) (string, error)
}

// WebhookService turns a verified job-completed notification into a cached
// result and, for jobs started by the dispatcher, an on-chain resolution.
type WebhookService interface {
	HandleJobCompleted(ctx context.Context, payload domain.JobCompletedPayload) (domain.JobRecord, error)
	Reassemble(ctx context.Context, jobNumber uint64) (domain.JobRecord, error)
	Job(ctx context.Context, jobNumber uint64) (*domain.JobRecord, error)
	JobByHash(ctx context.Context, hash domain.CodeHash) (*domain.JobRecord, error)
}

type webhookService struct {
	assembler   ArtifactAssembler
	archive     CodeArchive
	jobs        repository.JobRepository
	dispatch    repository.DispatchRepository
	resolutions ResolutionService
	logger      *slog.Logger
	tz          *time.Location
}

func NewWebhookService(assembler ArtifactAssembler, archive CodeArchive, jobs repository.JobRepository, dispatch repository.DispatchRepository, resolutions ResolutionService, logger *slog.Logger, tz *time.Location) WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	if tz == nil {
		tz = time.UTC
	}
	return &webhookService{
		assembler:   assembler,
		archive:     archive,
		jobs:        jobs,
		dispatch:    dispatch,
		resolutions: resolutions,
		logger:      logger.With("component", "webhook"),
		tz:          tz,
	}
}

func (s *webhookService) HandleJobCompleted(ctx context.Context, payload domain.JobCompletedPayload) (domain.JobRecord, error) {
	logger := s.logger.With("job", payload.Job.Number)
	rec := domain.JobRecord{JobNumber: payload.Job.Number, CreatedAt: time.Now().In(s.tz)}

	link := s.linkedRequest(ctx, payload)
	if link != nil {
		rec.PipelineID = link.PipelineID
		id := link.RequestID
		rec.RequestID = &id
		logger = logger.With("request_id", id, "pipeline", link.PipelineID)
	}

	if !payload.Succeeded() {
		rec.Error = fmt.Sprintf("job finished with status %q", payload.Job.Status)
		s.save(ctx, logger, rec)
		if link != nil {
			s.enqueue(ctx, logger, &rec, domain.VerificationFailureCall{ID: domain.U64(link.RequestID)})
		}
		return rec, fmt.Errorf("%w: job %d status %q", ErrJobNotSuccessful, payload.Job.Number, payload.Job.Status)
	}

	assembly, err := s.assembler.Assemble(ctx, payload.JobNumber())
	if err != nil {
		rec.Error = err.Error()
		s.save(ctx, logger, rec)
		if link != nil && errors.Is(err, circleci.ErrMissingArtifact) {
			s.enqueue(ctx, logger, &rec, domain.VerificationFailureCall{ID: domain.U64(link.RequestID)})
		}
		return rec, err
	}

	result := assembly.Result
	if link != nil {
		result.RequestID = link.RequestID
	}
	rec.Result = &result
	rec.ArchiveURL = s.store(ctx, logger, result.CodeHash, assembly.Code)
	s.save(ctx, logger, rec)
	logger.Info("job assembled", "code_hash", result.CodeHash.String(), "repository", result.Repository)

	if link != nil {
		s.enqueue(ctx, logger, &rec, domain.VerificationSuccessCall{Result: result})
	}
	return rec, nil
}

// Reassemble re-runs assembly for a cached job, keeping any request link it had.
func (s *webhookService) Reassemble(ctx context.Context, jobNumber uint64) (domain.JobRecord, error) {
	payload := domain.JobCompletedPayload{Job: domain.WebhookJob{Number: jobNumber, Status: domain.JobStatusSuccess}}
	prev, err := s.jobs.GetJob(ctx, jobNumber)
	switch {
	case err == nil && prev.PipelineID != "":
		payload.Pipeline = &domain.WebhookPipeline{ID: prev.PipelineID}
	case err != nil && !errors.Is(err, ErrNotFound):
		return domain.JobRecord{}, err
	}
	return s.HandleJobCompleted(ctx, payload)
}

func (s *webhookService) Job(ctx context.Context, jobNumber uint64) (*domain.JobRecord, error) {
	return s.jobs.GetJob(ctx, jobNumber)
}

// JobByHash returns the most recent cached job whose binary hashed to hash.
func (s *webhookService) JobByHash(ctx context.Context, hash domain.CodeHash) (*domain.JobRecord, error) {
	return s.jobs.GetJobByHash(ctx, hash)
}

func (s *webhookService) linkedRequest(ctx context.Context, payload domain.JobCompletedPayload) *domain.DispatchRecord {
	if payload.Pipeline == nil || payload.Pipeline.ID == "" || s.dispatch == nil {
		return nil
	}
	link, err := s.dispatch.LookupPipeline(ctx, payload.Pipeline.ID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("pipeline lookup failed", "pipeline", payload.Pipeline.ID, "err", err)
		}
		return nil
	}
	return link
}

func (s *webhookService) enqueue(ctx context.Context, logger *slog.Logger, rec *domain.JobRecord, call domain.ContractCall) {
	if s.resolutions == nil || !s.resolutions.Enabled() {
		logger.Info("resolution skipped", "method", call.Method(), "reason", ErrResolutionDisabled.Error())
		return
	}
	// must be persisted before the worker can pick the resolution up
	rec.Resolution = domain.ResolutionSubmitted
	s.save(ctx, logger, *rec)
	err := s.resolutions.Enqueue(ctx, Resolution{JobNumber: rec.JobNumber, PipelineID: rec.PipelineID, Call: call})
	if err != nil {
		logger.Warn("enqueue resolution failed", "method", call.Method(), "err", err)
		rec.Resolution = domain.ResolutionError
		rec.Error = err.Error()
		s.save(ctx, logger, *rec)
	}
}

func (s *webhookService) store(ctx context.Context, logger *slog.Logger, hash domain.CodeHash, code []byte) string {
	if s.archive == nil {
		return ""
	}
	url, err := s.archive.Store(ctx, hash, code)
	if err != nil {
		logger.Warn("archive code failed", "err", err)
		return ""
	}
	return url
}

func (s *webhookService) save(ctx context.Context, logger *slog.Logger, rec domain.JobRecord) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.SaveJob(ctx, rec); err != nil {
		logger.Warn("cache job record failed", "err", err)
	}
}

// ParseJobNumber parses a job number path parameter.
func ParseJobNumber(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job number %q", s)
	}
	return n, nil
}
