package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/lib/pq"

	"fxsettle/internal/payment/models"
	"fxsettle/internal/platform/postgres"
	id "fxsettle/pkg/domain"
	"fxsettle/pkg/platform/sentinel"
	txcontext "fxsettle/pkg/platform/tx"
)

// PostgresStore persists payments in payments and payment_rates. Inside a
// transaction, FindByID locks the payment row until commit.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) (dbExecutor, bool) {
	if tx, ok := txcontext.From(ctx); ok {
		return tx, true
	}
	return s.db, false
}

const selectPayment = `
	SELECT id, payer, payee, amount::text, instrument,
		COALESCE(aggregated_rate::text, ''), settled,
		COALESCE(settled_amount::text, ''), COALESCE(remainder::text, ''),
		created_at, settled_at
	FROM payments
	WHERE id = $1
`

func (s *PostgresStore) FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	exec, inTx := s.execer(ctx)
	query := selectPayment
	if inTx {
		query += " FOR UPDATE"
	}

	var (
		p                                   models.Payment
		rawID, payer, payee, instrument     string
		amount, aggRate, settled, remainder string
		settledAt                           sql.NullTime
	)
	err := exec.QueryRowContext(ctx, query, string(paymentID)).Scan(
		&rawID, &payer, &payee, &amount, &instrument,
		&aggRate, &p.Settled, &settled, &remainder,
		&p.CreatedAt, &settledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", postgres.Classify(err))
	}

	p.ID = id.PaymentID(rawID)
	p.Payer = id.AccountID(payer)
	p.Payee = id.AccountID(payee)
	p.Instrument = id.InstrumentTag(instrument)
	if p.Amount, err = parseNumeric(amount); err != nil {
		return nil, err
	}
	if p.AggregatedRate, err = parseNumeric(aggRate); err != nil {
		return nil, err
	}
	if p.SettledAmount, err = parseNumeric(settled); err != nil {
		return nil, err
	}
	if p.Remainder, err = parseNumeric(remainder); err != nil {
		return nil, err
	}
	if settledAt.Valid {
		t := settledAt.Time
		p.SettledAt = &t
	}

	rates, err := s.loadRates(ctx, exec, p.ID)
	if err != nil {
		return nil, err
	}
	p.Rates = rates
	return &p, nil
}

func (s *PostgresStore) loadRates(ctx context.Context, exec dbExecutor, paymentID id.PaymentID) (map[id.AccountID]*big.Int, error) {
	rows, err := exec.QueryContext(ctx,
		`SELECT oracle, rate::text FROM payment_rates WHERE payment_id = $1`,
		string(paymentID),
	)
	if err != nil {
		return nil, fmt.Errorf("query payment rates: %w", postgres.Classify(err))
	}
	defer rows.Close()

	rates := make(map[id.AccountID]*big.Int)
	for rows.Next() {
		var oracle, raw string
		if err := rows.Scan(&oracle, &raw); err != nil {
			return nil, fmt.Errorf("scan payment rate: %w", err)
		}
		r, err := parseNumeric(raw)
		if err != nil {
			return nil, err
		}
		rates[id.AccountID(oracle)] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rates: %w", err)
	}
	return rates, nil
}

// Save upserts the payment row and replaces its rate set.
func (s *PostgresStore) Save(ctx context.Context, p *models.Payment) error {
	exec, _ := s.execer(ctx)

	_, err := exec.ExecContext(ctx, `
		INSERT INTO payments (
			id, payer, payee, amount, instrument,
			aggregated_rate, settled, settled_amount, remainder,
			created_at, settled_at
		)
		VALUES ($1, $2, $3, $4::numeric, $5,
			NULLIF($6, '')::numeric, $7, NULLIF($8, '')::numeric, NULLIF($9, '')::numeric,
			$10, $11)
		ON CONFLICT (id) DO UPDATE SET
			payer = EXCLUDED.payer,
			payee = EXCLUDED.payee,
			amount = EXCLUDED.amount,
			instrument = EXCLUDED.instrument,
			aggregated_rate = EXCLUDED.aggregated_rate,
			settled = EXCLUDED.settled,
			settled_amount = EXCLUDED.settled_amount,
			remainder = EXCLUDED.remainder,
			created_at = EXCLUDED.created_at,
			settled_at = EXCLUDED.settled_at
	`,
		string(p.ID), string(p.Payer), string(p.Payee), p.Amount.String(), string(p.Instrument),
		numericString(p.AggregatedRate), p.Settled, numericString(p.SettledAmount), numericString(p.Remainder),
		p.CreatedAt, nullTime(p.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", postgres.Classify(err))
	}

	oracles := make([]string, 0, len(p.Rates))
	rates := make([]string, 0, len(p.Rates))
	for oracle, r := range p.Rates {
		oracles = append(oracles, string(oracle))
		rates = append(rates, r.String())
	}

	if _, err := exec.ExecContext(ctx,
		`DELETE FROM payment_rates WHERE payment_id = $1 AND NOT (oracle = ANY($2::text[]))`,
		string(p.ID), pq.Array(oracles),
	); err != nil {
		return fmt.Errorf("prune payment rates: %w", postgres.Classify(err))
	}
	if len(oracles) == 0 {
		return nil
	}
	if _, err := exec.ExecContext(ctx, `
		INSERT INTO payment_rates (payment_id, oracle, rate, submitted_at)
		SELECT $1, o, r::numeric, $4
		FROM unnest($2::text[], $3::text[]) AS t(o, r)
		ON CONFLICT (payment_id, oracle) DO UPDATE
		SET rate = EXCLUDED.rate, submitted_at = EXCLUDED.submitted_at
		WHERE payment_rates.rate <> EXCLUDED.rate
	`,
		string(p.ID), pq.Array(oracles), pq.Array(rates), time.Now(),
	); err != nil {
		return fmt.Errorf("upsert payment rates: %w", postgres.Classify(err))
	}
	return nil
}

func parseNumeric(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("parse numeric %q", raw)
	}
	return v, nil
}

func numericString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
