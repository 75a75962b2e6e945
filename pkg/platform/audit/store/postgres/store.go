package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "fxsettle/pkg/domain"
	audit "fxsettle/pkg/platform/audit"
	txcontext "fxsettle/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to payment_events inside the caller's transaction and
// published to Kafka by the outbox relay, which sets published_at.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL event store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const eventColumns = `id, seq, category, occurred_at, action, payment_id, payer, payee,
	COALESCE(settled_amount::text, ''), COALESCE(rate::text, ''), COALESCE(remainder::text, ''),
	request_id, actor_id`

// Append writes an event row. Numeric detail fields are stored as NULL when empty.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	// Category follows the action, whatever the caller set.
	category := audit.AuditEvent(event.Action).Category()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	query := `
		INSERT INTO payment_events (
			id, category, occurred_at, action, payment_id, payer, payee,
			settled_amount, rate, remainder, request_id, actor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			NULLIF($8, '')::numeric, NULLIF($9, '')::numeric, NULLIF($10, '')::numeric, $11, $12)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		string(category),
		event.Timestamp,
		event.Action,
		string(event.PaymentID),
		string(event.Payer),
		string(event.Payee),
		event.SettledAmount,
		event.Rate,
		event.Remainder,
		event.RequestID,
		string(event.ActorID),
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// ListByPayment returns a payment's events in commit order.
func (s *Store) ListByPayment(ctx context.Context, paymentID id.PaymentID) ([]audit.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM payment_events
		WHERE payment_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(paymentID))
	if err != nil {
		return nil, fmt.Errorf("query payment events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListUnpublished returns the oldest events the relay has not yet published.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `SELECT ` + eventColumns + `
		FROM payment_events
		WHERE published_at IS NULL
		ORDER BY seq ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkPublished stamps published_at on the given events.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, eventID := range ids {
		raw[i] = eventID.String()
	}
	query := `
		UPDATE payment_events
		SET published_at = $2
		WHERE id = ANY($1::uuid[]) AND published_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(raw), at); err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event                    audit.Event
			category, paymentID      string
			payer, payee, actorID    string
			settled, rate, remainder string
		)
		err := rows.Scan(
			&event.ID,
			&event.Sequence,
			&category,
			&event.Timestamp,
			&event.Action,
			&paymentID,
			&payer,
			&payee,
			&settled,
			&rate,
			&remainder,
			&event.RequestID,
			&actorID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.PaymentID = id.PaymentID(paymentID)
		event.Payer = id.AccountID(payer)
		event.Payee = id.AccountID(payee)
		event.ActorID = id.AccountID(actorID)
		event.SettledAmount = settled
		event.Rate = rate
		event.Remainder = remainder
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment events: %w", err)
	}
	return events, nil
}
