package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/repository"
)

type JobCleanupService interface {
	Start(ctx context.Context)
}

type jobCleanupService struct {
	repo     repository.JobRepository
	logger   *slog.Logger
	interval time.Duration
}

func NewJobCleanupService(repo repository.JobRepository, logger *slog.Logger, interval time.Duration) JobCleanupService {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &jobCleanupService{repo: repo, logger: logger, interval: interval}
}

func (s *jobCleanupService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.repo.PurgeExpired(ctx, 1000)
			if err != nil {
				s.logger.Warn("job cache cleanup failed", "err", err)
				continue
			}
			if removed > 0 {
				s.logger.Info("job cache cleanup removed", "count", removed)
			}
		}
	}
}
