package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fxsettle/internal/payment/metrics"
	"fxsettle/internal/payment/models"
	"fxsettle/internal/payment/settlement"
	dErrors "fxsettle/pkg/domain-errors"
	audit "fxsettle/pkg/platform/audit"
	"fxsettle/pkg/requestcontext"
)

// SubmitRate records the calling oracle's rate for a payment, replacing its
// earlier submission, then settles the payment in the same unit of work once
// the quorum is reached.
//
// Checks run in order: re-entrancy (CodeReentrancy), roster membership
// (CodeUnauthorized), rate > 0 (CodeInvalidInput), payment exists and is not
// settled (CodeInvalidState). A failed payee transfer returns
// CodeTransferFailed and discards the submission together with the
// settlement.
func (s *Service) SubmitRate(ctx context.Context, req models.SubmitRateRequest) (_ *models.Payment, err error) {
	ctx, span := s.tracer.Start(ctx, "payment.submit_rate",
		trace.WithAttributes(attribute.String("payment_id", req.PaymentID.String())))
	var settled bool
	defer func() {
		s.observeSubmission(err, settled)
		endSpan(span, err)
	}()

	ctx, cancel := s.withDeadline(ctx)
	defer cancel()

	ctx, release, err := s.guard.Enter(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeReentrancy) {
			s.logger.WarnContext(ctx, "re-entrant rate submission rejected",
				"payment_id", req.PaymentID,
				"caller", requestcontext.Caller(ctx),
			)
		}
		return nil, err
	}
	defer release()

	oracle := requestcontext.Caller(ctx)
	if !s.roster.Contains(oracle) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller is not a registered oracle")
	}
	if req.Rate == nil || req.Rate.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rate must be greater than zero")
	}

	now := s.clock(ctx)
	var (
		result  *models.Payment
		outcome *settlement.Outcome
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores Stores) error {
		p, err := loadForUpdate(ctx, stores.Payments, req.PaymentID)
		if err != nil {
			return err
		}
		if err := p.CanSubmitRate(); err != nil {
			return err
		}
		p.RecordRate(oracle, req.Rate)

		q := s.quorum.Evaluate(p)
		if !q.Reached {
			if err := stores.Payments.Save(ctx, p); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save rate submission")
			}
			result = p
			return nil
		}

		start := time.Now()
		outcome, err = settlement.Settle(ctx, p, q.Rate, stores.Payments, stores.Ledger, now)
		if s.metrics != nil {
			s.metrics.ObserveSettlement(start)
		}
		if err != nil {
			return err
		}
		if err := s.publisher(stores.Events).Emit(ctx, audit.Event{
			Timestamp:     now,
			Action:        string(audit.EventPaymentSettled),
			PaymentID:     p.ID,
			Payer:         p.Payer,
			Payee:         p.Payee,
			SettledAmount: outcome.SettledAmount.String(),
			Rate:          outcome.Rate.String(),
			Remainder:     outcome.Remainder.String(),
			RequestID:     requestcontext.RequestID(ctx),
			ActorID:       oracle,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record settlement event")
		}
		result = p
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTransferFailed) {
			s.logger.WarnContext(ctx, "settlement transfer failed, submission discarded",
				"payment_id", req.PaymentID,
				"oracle", oracle,
				"error", err,
			)
		}
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventRateSubmitted),
		"payment_id", req.PaymentID.String(),
		"oracle", oracle.String(),
		"rate", req.Rate.String(),
	)
	if outcome != nil {
		settled = true
		s.logAudit(ctx, string(audit.EventPaymentSettled),
			"payment_id", result.ID.String(),
			"payee", result.Payee.String(),
			"settled_amount", outcome.SettledAmount.String(),
			"rate", outcome.Rate.String(),
			"remainder", outcome.Remainder.String(),
		)
	}
	return result, nil
}

func (s *Service) observeSubmission(err error, settled bool) {
	if s.metrics == nil {
		return
	}
	if err == nil {
		if settled {
			s.metrics.IncrementSettled()
			s.metrics.IncrementSubmission(metrics.OutcomeSettled)
			return
		}
		s.metrics.IncrementSubmission(metrics.OutcomeAccepted)
		return
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnauthorized:
		s.metrics.IncrementSubmission(metrics.OutcomeUnauthorized)
	case dErrors.CodeInvalidInput:
		s.metrics.IncrementSubmission(metrics.OutcomeInvalidInput)
	case dErrors.CodeInvalidState:
		s.metrics.IncrementSubmission(metrics.OutcomeInvalidState)
	case dErrors.CodeReentrancy:
		s.metrics.IncrementReentrancy()
		s.metrics.IncrementSubmission(metrics.OutcomeReentrant)
	case dErrors.CodeTransferFailed:
		s.metrics.IncrementSubmission(metrics.OutcomeTransferFailed)
	case dErrors.CodeTimeout:
		s.metrics.IncrementSubmission(metrics.OutcomeTimeout)
	default:
		s.metrics.IncrementSubmission(metrics.OutcomeError)
	}
}
