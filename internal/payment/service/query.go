package service

import (
	"context"
	"errors"
	"math/big"

	"fxsettle/internal/payment/models"
	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	audit "fxsettle/pkg/platform/audit"
	"fxsettle/pkg/platform/sentinel"
)

// GetPayment returns the committed state of a payment.
func (s *Service) GetPayment(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	p, err := s.readers.Payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load payment")
	}
	return p, nil
}

// ListEvents returns the committed events of a payment in emission order.
func (s *Service) ListEvents(ctx context.Context, paymentID id.PaymentID) ([]audit.Event, error) {
	if _, err := s.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	events, err := s.readers.Events.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list payment events")
	}
	return events, nil
}

// Balance returns the committed balance of a ledger account. Unknown
// accounts have a zero balance.
func (s *Service) Balance(ctx context.Context, account id.AccountID) (*big.Int, error) {
	b, err := s.readers.Balances.Balance(ctx, account)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return b, nil
}
