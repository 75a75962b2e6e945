package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "fxsettle/pkg/domain"
)

// Store persists events. Append must join the caller's unit of work when one
// is active so that events commit or vanish with the state they describe.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByPayment(ctx context.Context, paymentID id.PaymentID) ([]Event, error)
}

// Outbox is the relay's view of a store: events not yet handed to the broker.
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}
