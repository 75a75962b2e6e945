package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	id "fxsettle/pkg/domain"
	"fxsettle/pkg/platform/sentinel"
	txcontext "fxsettle/pkg/platform/tx"
)

// PostgresLedger stores balances in ledger_accounts as numeric(78,0). Within
// a unit of work the pool row is locked with SELECT ... FOR UPDATE before it
// is debited.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *PostgresLedger) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return l.db
}

const creditQuery = `
	INSERT INTO ledger_accounts (account_id, balance)
	VALUES ($1, $2::numeric)
	ON CONFLICT (account_id) DO UPDATE
	SET balance = ledger_accounts.balance + EXCLUDED.balance
`

func (l *PostgresLedger) Escrow(ctx context.Context, amount *big.Int) error {
	return l.credit(ctx, PoolAccount, amount)
}

func (l *PostgresLedger) Fund(ctx context.Context, amount *big.Int) error {
	return l.credit(ctx, PoolAccount, amount)
}

// Transfer must run inside a transaction so the pool lock is held until commit.
func (l *PostgresLedger) Transfer(ctx context.Context, to id.AccountID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if _, ok := txcontext.From(ctx); !ok {
		return fmt.Errorf("ledger transfer requires a transaction")
	}
	exec := l.execer(ctx)

	var raw string
	err := exec.QueryRowContext(ctx,
		`SELECT balance::text FROM ledger_accounts WHERE account_id = $1 FOR UPDATE`,
		string(PoolAccount),
	).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lock pool account: %w", err)
	}
	pool := new(big.Int)
	if raw != "" {
		if _, ok := pool.SetString(raw, 10); !ok {
			return fmt.Errorf("parse pool balance %q", raw)
		}
	}
	if pool.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s to %s: %w", amount, to, sentinel.ErrInsufficientFunds)
	}

	if _, err := exec.ExecContext(ctx,
		`UPDATE ledger_accounts SET balance = balance - $2::numeric WHERE account_id = $1`,
		string(PoolAccount), amount.String(),
	); err != nil {
		return fmt.Errorf("debit pool: %w", err)
	}
	return l.credit(ctx, to, amount)
}

func (l *PostgresLedger) Balance(ctx context.Context, account id.AccountID) (*big.Int, error) {
	var raw string
	err := l.execer(ctx).QueryRowContext(ctx,
		`SELECT balance::text FROM ledger_accounts WHERE account_id = $1`,
		string(account),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	b, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("parse balance %q", raw)
	}
	return b, nil
}

func (l *PostgresLedger) credit(ctx context.Context, account id.AccountID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if _, err := l.execer(ctx).ExecContext(ctx, creditQuery, string(account), amount.String()); err != nil {
		return fmt.Errorf("credit %s: %w", account, err)
	}
	return nil
}
