// Package settlement finalizes a payment once quorum is reached and moves the
// settled value to the payee.
package settlement

import (
	"context"
	"math/big"
	"time"

	"fxsettle/internal/payment/models"
	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	"fxsettle/pkg/fixedpoint"
)

// PaymentSaver persists the staged payment inside the current unit of work.
type PaymentSaver interface {
	Save(ctx context.Context, p *models.Payment) error
}

// Transferer moves value out of the escrow pool.
type Transferer interface {
	Transfer(ctx context.Context, to id.AccountID, amount *big.Int) error
}

// Outcome describes a completed settlement.
type Outcome struct {
	Rate          *big.Int
	SettledAmount *big.Int
	Remainder     *big.Int
}

// Settle marks p settled at rate and saves it, then transfers the settled
// amount to the payee. The payment is terminal before any value leaves the
// pool. A failed transfer returns CodeTransferFailed and the caller must
// discard the whole unit of work.
func Settle(ctx context.Context, p *models.Payment, rate *big.Int, store PaymentSaver, ledger Transferer, now time.Time) (*Outcome, error) {
	if err := p.CanSettle(); err != nil {
		return nil, err
	}
	if rate == nil || rate.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "settlement rate must be positive")
	}

	settled, remainder := fixedpoint.ApplyRate(p.Amount, rate)
	p.ApplySettlement(rate, settled, remainder, now)
	if err := store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save settled payment")
	}

	if err := ledger.Transfer(ctx, p.Payee, settled); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransferFailed, "transfer to payee failed")
	}

	return &Outcome{Rate: rate, SettledAmount: settled, Remainder: remainder}, nil
}
