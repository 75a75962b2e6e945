package models

import (
	"math/big"

	id "fxsettle/pkg/domain"
)

// InitiateRequest opens a payment. The payer is the caller on the context.
type InitiateRequest struct {
	PaymentID  id.PaymentID
	Payee      id.AccountID
	Instrument id.InstrumentTag
	Amount     *big.Int
}

// SubmitRateRequest records the calling oracle's rate for a payment.
type SubmitRateRequest struct {
	PaymentID id.PaymentID
	Rate      *big.Int
}
