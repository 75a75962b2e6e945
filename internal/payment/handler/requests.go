package handler

import (
	"math/big"

	"fxsettle/internal/payment/models"
	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	"fxsettle/pkg/fixedpoint"
)

// InitiatePaymentRequest is the body of POST /v1/payments. Amount is the
// value attached to the call, in base units.
type InitiatePaymentRequest struct {
	PaymentID  string `json:"payment_id"`
	Payee      string `json:"payee"`
	Instrument string `json:"instrument"`
	Amount     string `json:"amount"`

	paymentID  id.PaymentID
	payee      id.AccountID
	instrument id.InstrumentTag
	amount     *big.Int
}

// Validate parses every field; the first failure is returned.
func (r *InitiatePaymentRequest) Validate() error {
	var err error
	if r.paymentID, err = id.ParsePaymentID(r.PaymentID); err != nil {
		return err
	}
	if r.payee, err = id.ParseAccountID(r.Payee); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid payee")
	}
	if r.instrument, err = id.ParseInstrumentTag(r.Instrument); err != nil {
		return err
	}
	if r.amount, err = fixedpoint.ParseAmount(r.Amount); err != nil {
		return err
	}
	return nil
}

func (r *InitiatePaymentRequest) ToModel() models.InitiateRequest {
	return models.InitiateRequest{
		PaymentID:  r.paymentID,
		Payee:      r.payee,
		Instrument: r.instrument,
		Amount:     r.amount,
	}
}

// SubmitRateRequest is the body of POST /v1/payments/{id}/rates. Rate is a
// scaled integer ("3000000000000000000") or a decimal ("3.0").
type SubmitRateRequest struct {
	Rate string `json:"rate"`

	rate *big.Int
}

func (r *SubmitRateRequest) Validate() error {
	var err error
	r.rate, err = fixedpoint.ParseRate(r.Rate)
	return err
}

func (r *SubmitRateRequest) ToModel(paymentID id.PaymentID) models.SubmitRateRequest {
	return models.SubmitRateRequest{PaymentID: paymentID, Rate: r.rate}
}

// FundPoolRequest is the body of POST /v1/admin/liquidity.
type FundPoolRequest struct {
	Amount string `json:"amount"`

	amount *big.Int
}

func (r *FundPoolRequest) Validate() error {
	var err error
	r.amount, err = fixedpoint.ParseAmount(r.Amount)
	return err
}
