package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/NEAR-Edu/contract-registry/pkg/domain"

	"github.com/go-redis/redis/v8"
)

const DefaultClaimTTL = 24 * time.Hour

// DispatchRepository remembers which pending requests already have a pipeline
// and which request each pipeline belongs to.
type DispatchRepository interface {
	Claim(ctx context.Context, requestID uint64, claimID string) (bool, error)
	Release(ctx context.Context, requestID uint64) error
	LinkPipeline(ctx context.Context, rec domain.DispatchRecord) error
	LookupPipeline(ctx context.Context, pipelineID string) (*domain.DispatchRecord, error)
	Forget(ctx context.Context, pipelineID string) error
}

type dispatchRedisRepo struct {
	rdb      *redis.Client
	claimTTL time.Duration
}

func NewDispatchRepository(rdb *redis.Client, claimTTL time.Duration) DispatchRepository {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &dispatchRedisRepo{rdb: rdb, claimTTL: claimTTL}
}

func (r *dispatchRedisRepo) keyClaim(requestID uint64) string {
	return "registry:dispatch:request:" + strconv.FormatUint(requestID, 10)
}
func (r *dispatchRedisRepo) keyPipelines() string { return "registry:dispatch:pipelines" }

// Claim reports whether the caller now owns dispatching requestID.
func (r *dispatchRedisRepo) Claim(ctx context.Context, requestID uint64, claimID string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.keyClaim(requestID), claimID, r.claimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX dispatch claim: %w", err)
	}
	return ok, nil
}

func (r *dispatchRedisRepo) Release(ctx context.Context, requestID uint64) error {
	if err := r.rdb.Del(ctx, r.keyClaim(requestID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis DEL dispatch claim: %w", err)
	}
	return nil
}

func (r *dispatchRedisRepo) LinkPipeline(ctx context.Context, rec domain.DispatchRecord) error {
	if rec.PipelineID == "" {
		return fmt.Errorf("link pipeline: empty pipeline id")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dispatch: %w", err)
	}
	if err := r.rdb.HSet(ctx, r.keyPipelines(), rec.PipelineID, string(b)).Err(); err != nil {
		return fmt.Errorf("redis HSET dispatch: %w", err)
	}
	return nil
}

func (r *dispatchRedisRepo) LookupPipeline(ctx context.Context, pipelineID string) (*domain.DispatchRecord, error) {
	if pipelineID == "" {
		return nil, ErrNotFound
	}
	js, err := r.rdb.HGet(ctx, r.keyPipelines(), pipelineID).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET dispatch: %w", err)
	}
	var rec domain.DispatchRecord
	if err := json.Unmarshal([]byte(js), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal dispatch: %w", err)
	}
	return &rec, nil
}

func (r *dispatchRedisRepo) Forget(ctx context.Context, pipelineID string) error {
	if err := r.rdb.HDel(ctx, r.keyPipelines(), pipelineID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis HDEL dispatch: %w", err)
	}
	return nil
}
