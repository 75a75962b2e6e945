package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fxsettle/internal/payment/ledger"
	"fxsettle/internal/payment/store"
	"fxsettle/internal/platform/postgres"
	dErrors "fxsettle/pkg/domain-errors"
	auditpostgres "fxsettle/pkg/platform/audit/store/postgres"
	"fxsettle/pkg/platform/sentinel"
	txcontext "fxsettle/pkg/platform/tx"
)

// PostgresTx runs each unit of work in one READ COMMITTED transaction. Row
// locks taken by the stores (payment FOR UPDATE, pool FOR UPDATE) serialize
// competing settlements of the same payment across instances.
type PostgresTx struct {
	db      *sql.DB
	stores  Stores
	timeout time.Duration
}

func NewPostgresTx(db *sql.DB) *PostgresTx {
	return &PostgresTx{
		db: db,
		stores: Stores{
			Payments: store.NewPostgres(db),
			Ledger:   ledger.NewPostgres(db),
			Events:   auditpostgres.New(db),
		},
		timeout: defaultTxTimeout,
	}
}

// WithTimeout overrides the default unit-of-work timeout.
func (t *PostgresTx) WithTimeout(d time.Duration) *PostgresTx {
	if d > 0 {
		t.timeout = d
	}
	return t
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
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

	err := txcontext.Run(ctx, t.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(txCtx context.Context) error {
		return fn(MarkInTx(txCtx), t.stores)
	})
	if err == nil {
		return nil
	}

	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
	}
	if errors.Is(postgres.Classify(err), sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: lock contention")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "transaction failed")
}
