// Package compliance writes value-moving payment events fail-closed: the
// event is appended inside the caller's unit of work and a failed append
// fails the operation that produced it.
package compliance

import (
	"context"
	"log/slog"
	"time"

	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	audit "fxsettle/pkg/platform/audit"
)

// Publisher appends compliance events to a transaction-scoped store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithClock sets the fallback timestamp source for events emitted without one.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// New binds a publisher to store. Pass the store handed out by the unit of
// work so the event commits or rolls back with the payment change.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and appends event. Only actions in the compliance category
// are accepted; operational events belong in the log, not here.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()
	if err := validate(event); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	event.Category = audit.CategoryCompliance

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "compliance event not persisted",
				"action", event.Action,
				"payment_id", event.PaymentID.String(),
				"error", err,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "compliance event not persisted")
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted()
	}
	return nil
}

func validate(event audit.Event) error {
	if event.PaymentID == id.PaymentID("") {
		return dErrors.New(dErrors.CodeInvariantViolation, "compliance event requires a payment id")
	}
	if audit.AuditEvent(event.Action).Category() != audit.CategoryCompliance {
		return dErrors.New(dErrors.CodeInvariantViolation, "not a compliance action: "+event.Action)
	}
	return nil
}
