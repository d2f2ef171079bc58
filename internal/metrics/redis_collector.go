package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

type redisCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	cachedResultsDesc *prometheus.Desc
	dispatchedDesc    *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:    rdb,
		logger: logger,
		cachedResultsDesc: prometheus.NewDesc(
			"registry_cached_results",
			"Assembled verification results currently cached, by index.",
			[]string{"index"},
			nil,
		),
		dispatchedDesc: prometheus.NewDesc(
			"registry_dispatched_pipelines",
			"Pipelines currently linked to a verification request.",
			nil,
			nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cachedResultsDesc
	ch <- c.dispatchedDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := c.rdb.Pipeline()
	byJob := pipe.HLen(ctx, "registry:results:job")
	byHash := pipe.HLen(ctx, "registry:results:hash")
	pipelines := pipe.HLen(ctx, "registry:dispatch:pipelines")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}

	emitGauge(ch, c.cachedResultsDesc, float64(byJob.Val()), "job")
	emitGauge(ch, c.cachedResultsDesc, float64(byHash.Val()), "code_hash")
	emitGauge(ch, c.dispatchedDesc, float64(pipelines.Val()))
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, logger))
	})
}
