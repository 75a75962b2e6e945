package audit

import (
	"time"

	"github.com/google/uuid"

	id "fxsettle/pkg/domain"
)

// EventCategory classifies events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: value
	// moved or was committed to move. These are persisted fail-closed.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It stays
// transport-agnostic so stores and sinks can fan out. Amounts are decimal
// strings of base units; Rate is the 10^18-scaled integer.
type Event struct {
	ID        uuid.UUID
	Sequence  int64
	Category  EventCategory
	Timestamp time.Time
	Action    string

	PaymentID id.PaymentID
	Payer     id.AccountID
	Payee     id.AccountID

	SettledAmount string
	Rate          string
	Remainder     string

	RequestID string
	// ActorID is the caller whose call produced the event.
	ActorID id.AccountID
}

type AuditEvent string

const (
	EventPaymentInitiated AuditEvent = "payment_initiated"
	EventPaymentSettled   AuditEvent = "payment_settled"
	EventRateSubmitted    AuditEvent = "rate_submitted"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPaymentInitiated: CategoryCompliance,
	EventPaymentSettled:   CategoryCompliance,
	EventRateSubmitted:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
