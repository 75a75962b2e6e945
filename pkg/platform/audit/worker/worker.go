// Package worker relays committed events from the outbox to the broker.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "fxsettle/pkg/platform/audit"
	"fxsettle/pkg/platform/circuit"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Sink publishes a batch of events. Implementations must be all-or-error:
// a nil return means every event in the batch was acknowledged.
type Sink interface {
	Publish(ctx context.Context, events []audit.Event) error
}

// Relay polls the outbox and hands unpublished events to the sink. Delivery
// is at-least-once; consumers deduplicate on event ID.
type Relay struct {
	outbox    audit.Outbox
	sink      Sink
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) { r.breaker = b }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRelay(outbox audit.Outbox, sink Sink, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		sink:      sink,
		logger:    slog.Default(),
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = circuit.New("outbox-relay")
	}
	return r
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
			}
		}
	}
}

// RunOnce publishes at most one batch and returns how many events were
// marked published. An open breaker skips the pass.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		if r.metrics != nil {
			r.metrics.IncSkipped()
		}
		return 0, nil
	}

	batch, err := r.outbox.ListUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := r.sink.Publish(ctx, batch); err != nil {
		_, change := r.breaker.RecordFailure()
		if change.Opened {
			r.logger.ErrorContext(ctx, "outbox relay circuit opened", "breaker", r.breaker.Name(), "error", err)
		}
		if r.metrics != nil {
			r.metrics.IncPublishFailures()
			r.metrics.SetBreakerState(r.breaker.IsOpen())
		}
		return 0, err
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "outbox relay circuit closed", "breaker", r.breaker.Name())
	}

	ids := make([]uuid.UUID, len(batch))
	for i, e := range batch {
		ids[i] = e.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.AddPublished(len(batch))
		r.metrics.SetBreakerState(false)
	}
	return len(batch), nil
}
