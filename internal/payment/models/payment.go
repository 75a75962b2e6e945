package models

import (
	"math/big"
	"time"

	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
)

// Payment is the aggregate root of a cross-border payment.
//
// Invariants:
//   - Amount is strictly positive
//   - Payer, Payee, Amount, Instrument and CreatedAt change only through
//     Reinitiate, which keeps submissions and is refused once settled
//   - Rates holds only roster members with non-zero rates; an oracle's entry
//     is overwritten by its later submissions
//   - AggregatedRate is set at most once, and is non-nil iff Settled
//   - Settled transitions false -> true exactly once; a settled payment is
//     never mutated again
type Payment struct {
	ID             id.PaymentID
	Payer          id.AccountID
	Payee          id.AccountID
	Amount         *big.Int
	Instrument     id.InstrumentTag
	Rates          map[id.AccountID]*big.Int
	AggregatedRate *big.Int
	Settled        bool
	SettledAmount  *big.Int
	Remainder      *big.Int
	CreatedAt      time.Time
	SettledAt      *time.Time
}

// NewPayment constructs an unsettled payment with no submissions.
func NewPayment(paymentID id.PaymentID, payer, payee id.AccountID, instrument id.InstrumentTag, amount *big.Int, now time.Time) (*Payment, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "escrowed amount must be greater than zero")
	}
	if paymentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "payment id is required")
	}
	if payer.IsNil() || payee.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "payer and payee are required")
	}
	return &Payment{
		ID:         paymentID,
		Payer:      payer,
		Payee:      payee,
		Amount:     new(big.Int).Set(amount),
		Instrument: instrument,
		Rates:      make(map[id.AccountID]*big.Int),
		CreatedAt:  now,
	}, nil
}

// Reinitiate overwrites the initiation details (payer, payee, amount,
// instrument, creation time) with those of next. Recorded rates carry over.
// A settled payment is terminal and is never reopened.
func (p *Payment) Reinitiate(next *Payment) error {
	if p.Settled || p.AggregatedRate != nil {
		return dErrors.New(dErrors.CodeInvalidState, "payment already settled")
	}
	p.Payer = next.Payer
	p.Payee = next.Payee
	p.Amount = cloneInt(next.Amount)
	p.Instrument = next.Instrument
	p.CreatedAt = next.CreatedAt
	return nil
}

// CanSubmitRate checks that the payment still accepts submissions.
func (p *Payment) CanSubmitRate() error {
	if p.Settled {
		return dErrors.New(dErrors.CodeInvalidState, "payment already settled")
	}
	return nil
}

// RecordRate stores oracle's latest rate, replacing any earlier one.
// Call CanSubmitRate first; roster membership is the caller's concern.
func (p *Payment) RecordRate(oracle id.AccountID, rate *big.Int) {
	if p.Rates == nil {
		p.Rates = make(map[id.AccountID]*big.Int)
	}
	p.Rates[oracle] = new(big.Int).Set(rate)
}

// RateOf returns oracle's recorded rate, or nil when it has not submitted.
func (p *Payment) RateOf(oracle id.AccountID) *big.Int {
	r, ok := p.Rates[oracle]
	if !ok || r.Sign() == 0 {
		return nil
	}
	return r
}

// SubmissionCount counts distinct non-zero submissions.
func (p *Payment) SubmissionCount() int {
	n := 0
	for _, r := range p.Rates {
		if r != nil && r.Sign() > 0 {
			n++
		}
	}
	return n
}

// CanSettle checks that the payment has not been settled yet.
func (p *Payment) CanSettle() error {
	if p.Settled || p.AggregatedRate != nil {
		return dErrors.New(dErrors.CodeInvalidState, "payment already settled")
	}
	return nil
}

// ApplySettlement writes the aggregate and terminal state in one step.
// Call CanSettle first.
func (p *Payment) ApplySettlement(rate, settledAmount, remainder *big.Int, now time.Time) {
	p.AggregatedRate = new(big.Int).Set(rate)
	p.SettledAmount = new(big.Int).Set(settledAmount)
	p.Remainder = new(big.Int).Set(remainder)
	p.Settled = true
	settledAt := now
	p.SettledAt = &settledAt
}

// Clone returns a deep copy so staged mutations never leak into stored state.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	c.Amount = cloneInt(p.Amount)
	c.AggregatedRate = cloneInt(p.AggregatedRate)
	c.SettledAmount = cloneInt(p.SettledAmount)
	c.Remainder = cloneInt(p.Remainder)
	c.Rates = make(map[id.AccountID]*big.Int, len(p.Rates))
	for k, v := range p.Rates {
		c.Rates[k] = cloneInt(v)
	}
	if p.SettledAt != nil {
		t := *p.SettledAt
		c.SettledAt = &t
	}
	return &c
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
