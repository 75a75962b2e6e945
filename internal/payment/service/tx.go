package service

import (
	"context"
	"time"

	"fxsettle/internal/payment/ledger"
	"fxsettle/internal/payment/models"
	"fxsettle/internal/payment/store"
	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	audit "fxsettle/pkg/platform/audit"
	auditmemory "fxsettle/pkg/platform/audit/store/memory"
)

// PaymentStore is the payment persistence seen inside a unit of work.
type PaymentStore interface {
	FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	Save(ctx context.Context, p *models.Payment) error
}

// Stores groups the stores a unit of work mutates together.
type Stores struct {
	Payments PaymentStore
	Ledger   ledger.Ledger
	Events   audit.Store
}

// TxRunner provides the transactional boundary for every mutating call.
// Implementations hand fn a context and stores bound to one unit of work and
// commit only when fn returns nil. A call to RunInTx with a context that is
// already inside a unit of work is rejected with CodeReentrancy.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// defaultTxTimeout is the maximum duration of a unit of work whose context
// carries no deadline.
const defaultTxTimeout = 5 * time.Second

type inTxKey struct{}

// InTx reports whether ctx belongs to a running unit of work.
func InTx(ctx context.Context) bool {
	v, _ := ctx.Value(inTxKey{}).(bool)
	return v
}

// MarkInTx tags ctx as belonging to a unit of work. TxRunner implementations
// call it before handing ctx to the callback.
func MarkInTx(ctx context.Context) context.Context {
	return context.WithValue(ctx, inTxKey{}, true)
}

// InMemoryTx is a single-holder unit of work over the in-memory stores. The
// callback mutates staged views; nothing reaches the committed stores unless
// it returns nil.
type InMemoryTx struct {
	sem      chan struct{}
	payments *store.InMemoryStore
	ledger   *ledger.InMemoryLedger
	events   *auditmemory.InMemoryStore
	timeout  time.Duration
}

func NewInMemoryTx(payments *store.InMemoryStore, l *ledger.InMemoryLedger, events *auditmemory.InMemoryStore) *InMemoryTx {
	return &InMemoryTx{
		sem:      make(chan struct{}, 1),
		payments: payments,
		ledger:   l,
		events:   events,
		timeout:  defaultTxTimeout,
	}
}

// WithTimeout overrides the default unit-of-work timeout.
func (t *InMemoryTx) WithTimeout(d time.Duration) *InMemoryTx {
	if d > 0 {
		t.timeout = d
	}
	return t
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	if InTx(ctx) {
		return dErrors.New(dErrors.CodeReentrancy, "nested transaction rejected")
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: timed out waiting for lock")
	}
	defer func() { <-t.sem }()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	payments := t.payments.Begin()
	balances := t.ledger.Begin()
	events := &bufferedEvents{base: t.events}
	if err := fn(MarkInTx(ctx), Stores{Payments: payments, Ledger: balances, Events: events}); err != nil {
		return err
	}

	// Commit order is events, payments, balances. The memory stores cannot
	// fail once staged, so the three land together.
	if err := events.flush(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit events")
	}
	payments.Commit()
	balances.Commit()
	return nil
}

// bufferedEvents holds appended events until the unit of work commits.
type bufferedEvents struct {
	base    *auditmemory.InMemoryStore
	pending []audit.Event
}

func (b *bufferedEvents) Append(_ context.Context, event audit.Event) error {
	b.pending = append(b.pending, event)
	return nil
}

func (b *bufferedEvents) ListByPayment(ctx context.Context, paymentID id.PaymentID) ([]audit.Event, error) {
	out, err := b.base.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	for _, e := range b.pending {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *bufferedEvents) flush(ctx context.Context) error {
	for _, e := range b.pending {
		if err := b.base.Append(ctx, e); err != nil {
			return err
		}
	}
	b.pending = nil
	return nil
}
