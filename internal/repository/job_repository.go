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

const DefaultJobRetention = 24 * time.Hour

type JobRepository interface {
	SaveJob(ctx context.Context, rec domain.JobRecord) error
	GetJob(ctx context.Context, number uint64) (*domain.JobRecord, error)
	GetJobByHash(ctx context.Context, hash domain.CodeHash) (*domain.JobRecord, error)
	PurgeExpired(ctx context.Context, limit int64) (int, error)
}

type jobRedisRepo struct {
	rdb       *redis.Client
	tz        *time.Location
	retention time.Duration
}

func NewJobRepository(rdb *redis.Client, tz *time.Location, retention time.Duration) JobRepository {
	if tz == nil {
		tz = time.UTC
	}
	if retention <= 0 {
		retention = DefaultJobRetention
	}
	return &jobRedisRepo{rdb: rdb, tz: tz, retention: retention}
}

func (r *jobRedisRepo) keyJobsHash() string   { return "registry:results:job" }
func (r *jobRedisRepo) keyByCodeHash() string { return "registry:results:hash" }
func (r *jobRedisRepo) keyTTLIndex() string   { return "registry:results:ttl" }

func (r *jobRedisRepo) now() time.Time { return time.Now().In(r.tz) }

// SaveJob upserts the record, indexes it by code hash when a result is present
// and pushes its expiry forward.
func (r *jobRedisRepo) SaveJob(ctx context.Context, rec domain.JobRecord) error {
	now := r.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	member := strconv.FormatUint(rec.JobNumber, 10)

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.keyJobsHash(), member, string(b))
	if rec.Result != nil && len(rec.Result.CodeHash) > 0 {
		pipe.HSet(ctx, r.keyByCodeHash(), rec.Result.CodeHash.String(), member)
	}
	pipe.ZAdd(ctx, r.keyTTLIndex(), &redis.Z{Score: float64(now.Add(r.retention).UTC().Unix()), Member: member})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save job %d: %w", rec.JobNumber, err)
	}
	return nil
}

func (r *jobRedisRepo) GetJob(ctx context.Context, number uint64) (*domain.JobRecord, error) {
	js, err := r.rdb.HGet(ctx, r.keyJobsHash(), strconv.FormatUint(number, 10)).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET job: %w", err)
	}
	var rec domain.JobRecord
	if err := json.Unmarshal([]byte(js), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &rec, nil
}

func (r *jobRedisRepo) GetJobByHash(ctx context.Context, hash domain.CodeHash) (*domain.JobRecord, error) {
	member, err := r.rdb.HGet(ctx, r.keyByCodeHash(), hash.String()).Result()
	if err == redis.Nil || (err == nil && member == "") {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET job by hash: %w", err)
	}
	number, err := strconv.ParseUint(member, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt job index for %s: %w", hash, err)
	}
	return r.GetJob(ctx, number)
}

// purgeJobScript removes one expired job. The code-hash index entry is only
// dropped while it still points at this job, since a later job that produced
// the same binary takes the entry over. A job re-saved after the scan is kept.
//
// KEYS[1] = jobs hash
// KEYS[2] = code hash index
// KEYS[3] = ttl zset
// ARGV[1] = job member
// ARGV[2] = code hash, or "" when the job has no result
// ARGV[3] = cutoff (unix seconds)
var purgeJobScript = redis.NewScript(`
local score = redis.call("ZSCORE", KEYS[3], ARGV[1])
if not score or tonumber(score) > tonumber(ARGV[3]) then
  return 0
end
redis.call("HDEL", KEYS[1], ARGV[1])
if ARGV[2] ~= "" and redis.call("HGET", KEYS[2], ARGV[2]) == ARGV[1] then
  redis.call("HDEL", KEYS[2], ARGV[2])
end
redis.call("ZREM", KEYS[3], ARGV[1])
return 1
`)

// PurgeExpired drops up to limit records whose retention elapsed and returns
// how many were removed.
func (r *jobRedisRepo) PurgeExpired(ctx context.Context, limit int64) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	cutoff := strconv.FormatInt(r.now().UTC().Unix(), 10)
	members, err := r.rdb.ZRangeByScore(ctx, r.keyTTLIndex(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   cutoff,
		Count: limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ZRANGEBYSCORE job ttl: %w", err)
	}
	removed := 0
	for _, member := range members {
		number, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			if err := r.rdb.ZRem(ctx, r.keyTTLIndex(), member).Err(); err != nil {
				return removed, fmt.Errorf("redis ZREM job ttl %q: %w", member, err)
			}
			continue
		}
		rec, err := r.GetJob(ctx, number)
		if err != nil && err != ErrNotFound {
			return removed, err
		}
		codeHash := ""
		if rec != nil && rec.Result != nil && len(rec.Result.CodeHash) > 0 {
			codeHash = rec.Result.CodeHash.String()
		}
		n, err := purgeJobScript.Run(ctx, r.rdb,
			[]string{r.keyJobsHash(), r.keyByCodeHash(), r.keyTTLIndex()},
			member, codeHash, cutoff,
		).Int()
		if err != nil {
			return removed, fmt.Errorf("redis purge job %s: %w", member, err)
		}
		removed += n
	}
	return removed, nil
}
