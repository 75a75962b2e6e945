package service

import (
	"context"
	"errors"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fxsettle/internal/payment/models"
	dErrors "fxsettle/pkg/domain-errors"
	audit "fxsettle/pkg/platform/audit"
	"fxsettle/pkg/platform/sentinel"
	"fxsettle/pkg/requestcontext"
)

// InitiatePayment opens a payment paid for by the caller. The attached value
// (req.Amount) is escrowed in the pool, the record is stored and
// payment_initiated is emitted, all in one unit of work.
//
// A reused payment id overwrites the initiation details of the existing
// record and keeps its rate submissions, unless the service was built with
// WithRejectDuplicateIDs(true). A settled id is refused with CodeInvalidState
// in either mode.
func (s *Service) InitiatePayment(ctx context.Context, req models.InitiateRequest) (_ *models.Payment, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.initiate",
		trace.WithAttributes(attribute.String("payment_id", req.PaymentID.String())))
	defer func() { endSpan(span, err) }()

	payer := requestcontext.Caller(ctx)
	if payer.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "caller identity is required")
	}
	now := s.clock(ctx)
	p, err := models.NewPayment(req.PaymentID, payer, req.Payee, req.Instrument, req.Amount, now)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		existing, findErr := stores.Payments.FindByID(ctx, p.ID)
		switch {
		case findErr == nil && s.rejectDuplicates:
			return dErrors.New(dErrors.CodeInvalidState, "payment id already in use")
		case findErr == nil:
			if err := existing.Reinitiate(p); err != nil {
				return err
			}
			p = existing
		case !errors.Is(findErr, sentinel.ErrNotFound):
			return dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to check payment id")
		}
		if err := stores.Payments.Save(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save payment")
		}
		if err := stores.Ledger.Escrow(ctx, p.Amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to escrow payment amount")
		}
		if err := s.publisher(stores.Events).Emit(ctx, audit.Event{
			Timestamp: now,
			Action:    string(audit.EventPaymentInitiated),
			PaymentID: p.ID,
			Payer:     p.Payer,
			Payee:     p.Payee,
			RequestID: requestcontext.RequestID(ctx),
			ActorID:   payer,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment event")
		}
		return nil
	})
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			s.logger.ErrorContext(ctx, "payment initiation failed", "payment_id", p.ID, "error", err)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementInitiated()
	}
	s.logAudit(ctx, string(audit.EventPaymentInitiated),
		"payment_id", p.ID.String(),
		"payer", p.Payer.String(),
		"payee", p.Payee.String(),
		"amount", p.Amount.String(),
		"instrument", p.Instrument.String(),
	)
	return p, nil
}

// FundPool deposits provider liquidity into the escrow pool so settlements at
// rates above one can be paid out.
func (s *Service) FundPool(ctx context.Context, amount *big.Int) (err error) {
	ctx, span := s.tracer.Start(ctx, "payment.fund_pool")
	defer func() { endSpan(span, err) }()

	if amount == nil || amount.Sign() <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "funding amount must be greater than zero")
	}
	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		if err := stores.Ledger.Fund(ctx, amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to fund pool")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "pool_funded",
		"amount", amount.String(),
		"actor", requestcontext.Caller(ctx).String(),
	)
	return nil
}
