package ledger

import (
	"context"
	"database/sql"
	"math/big"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxsettle/pkg/platform/sentinel"
	txcontext "fxsettle/pkg/platform/tx"
)

func beginTx(t *testing.T, db *sql.DB) (context.Context, *sql.Tx) {
	t.Helper()
	sqlTx, err := db.Begin()
	require.NoError(t, err)
	return txcontext.WithTx(context.Background(), sqlTx), sqlTx
}

func TestPostgresLedger_EscrowCreditsPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO ledger_accounts").
		WithArgs("escrow", "1000").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgres(db).Escrow(context.Background(), big.NewInt(1000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_TransferLocksDebitsAndCredits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM ledger_accounts WHERE account_id = \\$1 FOR UPDATE").
		WithArgs("escrow").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("1500"))
	mock.ExpectExec("UPDATE ledger_accounts SET balance = balance -").
		WithArgs("escrow", "1100").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_accounts").
		WithArgs("Q", "1100").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx, sqlTx := beginTx(t, db)
	require.NoError(t, NewPostgres(db).Transfer(ctx, "Q", big.NewInt(1100)))
	require.NoError(t, sqlTx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_TransferInsufficientFunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("escrow").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("1000"))
	mock.ExpectRollback()

	ctx, sqlTx := beginTx(t, db)
	err = NewPostgres(db).Transfer(ctx, "Q", big.NewInt(1100))
	assert.ErrorIs(t, err, sentinel.ErrInsufficientFunds)
	require.NoError(t, sqlTx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_TransferRequiresTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewPostgres(db).Transfer(context.Background(), "Q", big.NewInt(1))
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_BalanceOfUnknownAccountIsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT balance::text FROM ledger_accounts").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectQuery("SELECT balance::text FROM ledger_accounts").
		WithArgs("Q").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("340282366920938463463374607431768211456"))

	l := NewPostgres(db)
	b, err := l.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "0", b.String())

	b, err = l.Balance(context.Background(), "Q")
	require.NoError(t, err)
	assert.Equal(t, "340282366920938463463374607431768211456", b.String())
}
