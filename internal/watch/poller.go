package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/NEAR-Edu/contract-registry/internal/metrics"
	"github.com/NEAR-Edu/contract-registry/pkg/domain"
)

// Viewer runs read-only contract calls.
type Viewer interface {
	View(ctx context.Context, contractID string, view domain.ContractView) (json.RawMessage, error)
}

// Watermark is the highest request id delivered so far. The zero value is
// "unknown" and admits every id. It lives only in memory, so a restarted poller
// re-delivers pending requests (at-least-once).
type Watermark struct {
	id    uint64
	known bool
}

func (w Watermark) Admits(id uint64) bool { return !w.known || id > w.id }

func (w Watermark) Advance(id uint64) Watermark {
	if w.Admits(id) {
		return Watermark{id: id, known: true}
	}
	return w
}

func (w Watermark) Value() (uint64, bool) { return w.id, w.known }

func (w Watermark) String() string {
	if !w.known {
		return "unknown"
	}
	return fmt.Sprintf("%d", w.id)
}

// Filter keeps the items admitted by wm, in order, and returns the watermark to
// use once they are delivered. Every item is checked against wm, not against
// siblings in the same slice.
func Filter(items []domain.VerificationRequest, wm Watermark) ([]domain.VerificationRequest, Watermark) {
	var out []domain.VerificationRequest
	next := wm
	for _, it := range items {
		if !wm.Admits(it.ID) {
			continue
		}
		out = append(out, it)
		next = next.Advance(it.ID)
	}
	return out, next
}

const (
	defaultInterval = 5 * time.Second
	defaultBuffer   = 16
)

type Poller struct {
	viewer     Viewer
	contractID string
	interval   time.Duration
	buffer     int
	logger     *slog.Logger
}

func NewPoller(viewer Viewer, contractID string, interval time.Duration, buffer int, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	if buffer < 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		viewer:     viewer,
		contractID: contractID,
		interval:   interval,
		buffer:     buffer,
		logger:     logger.With("component", "poller"),
	}
}

// Round fetches the pending list once and returns the items admitted by wm together
// with the watermark that applies after they are delivered. Unparseable items are
// logged and skipped.
func (p *Poller) Round(ctx context.Context, wm Watermark) ([]domain.VerificationRequest, Watermark, error) {
	raw, err := p.viewer.View(ctx, p.contractID, domain.GetPendingRequests{})
	if err != nil {
		return nil, wm, err
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, wm, fmt.Errorf("decode pending requests: %w", err)
	}
	items := make([]domain.VerificationRequest, 0, len(elems))
	for _, el := range elems {
		req, err := domain.ParseVerificationRequest(el)
		if err != nil {
			p.logger.Warn("skipping malformed pending request", "err", err)
			continue
		}
		items = append(items, req)
	}
	eligible, next := Filter(items, wm)
	return eligible, next, nil
}

// Watch polls immediately and then on every interval, sending newly observed
// requests on the returned channel. Sends block when the consumer falls behind.
// The channel is closed once ctx is done. Each call starts from an unknown watermark.
func (p *Poller) Watch(ctx context.Context) <-chan domain.VerificationRequest {
	ch := make(chan domain.VerificationRequest, p.buffer)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var wm Watermark
		for {
			var ok bool
			if wm, ok = p.tick(ctx, wm, ch); !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}

func (p *Poller) tick(ctx context.Context, wm Watermark, ch chan<- domain.VerificationRequest) (Watermark, bool) {
	items, next, err := p.Round(ctx, wm)
	if err != nil {
		if ctx.Err() != nil {
			return wm, false
		}
		metrics.PollRoundsTotal.WithLabelValues("error").Inc()
		p.logger.Warn("poll pending requests failed", "err", err)
		return wm, true
	}
	metrics.PollRoundsTotal.WithLabelValues("ok").Inc()
	for _, it := range items {
		select {
		case <-ctx.Done():
			return wm, false
		case ch <- it:
			metrics.RequestsObservedTotal.Inc()
		}
	}
	if len(items) > 0 {
		id, _ := next.Value()
		metrics.PollWatermark.Set(float64(id))
		p.logger.Debug("watermark advanced", "from", wm.String(), "to", next.String(), "emitted", len(items))
	}
	return next, true
}
