// Package ledger holds account balances and the escrow pool that backs
// settlements.
package ledger

import (
	"context"
	"math/big"

	id "fxsettle/pkg/domain"
)

// PoolAccount holds escrowed value and provider liquidity until settlement.
const PoolAccount id.AccountID = "escrow"

// Ledger moves value between the pool and accounts. Implementations join the
// caller's unit of work when one is active.
type Ledger interface {
	// Escrow credits value attached to a call to the pool.
	Escrow(ctx context.Context, amount *big.Int) error
	// Fund credits provider liquidity to the pool.
	Fund(ctx context.Context, amount *big.Int) error
	// Transfer debits the pool and credits to. It returns
	// sentinel.ErrInsufficientFunds or sentinel.ErrTransferRejected.
	Transfer(ctx context.Context, to id.AccountID, amount *big.Int) error
	Balance(ctx context.Context, account id.AccountID) (*big.Int, error)
}

// ReceiveHook runs when an account is credited by Transfer. Returning an
// error rejects the value.
type ReceiveHook func(ctx context.Context, from id.AccountID, amount *big.Int) error
