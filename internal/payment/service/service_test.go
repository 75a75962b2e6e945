package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"fxsettle/internal/payment/ledger"
	"fxsettle/internal/payment/metrics"
	"fxsettle/internal/payment/models"
	"fxsettle/internal/payment/roster"
	"fxsettle/internal/payment/store"
	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	"fxsettle/pkg/fixedpoint"
	audit "fxsettle/pkg/platform/audit"
	auditmemory "fxsettle/pkg/platform/audit/store/memory"
	"fxsettle/pkg/requestcontext"
)

// =============================================================================
// Payment Service Test Suite
// =============================================================================
// Justification for unit tests: settlement atomicity (rollback of the
// triggering submission, ledger movements and events on transfer failure) and
// re-entrancy rejection can only be observed precisely against the staged
// in-memory stores.

const (
	liquidity = 1_000_000
	payer     = id.AccountID("alice")
	payee     = id.AccountID("bob")
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

type ServiceSuite struct {
	suite.Suite
	payments *store.InMemoryStore
	ledger   *ledger.InMemoryLedger
	events   *auditmemory.InMemoryStore
	metrics  *metrics.Metrics
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.payments = store.NewInMemory()
	s.ledger = ledger.NewInMemory()
	s.events = auditmemory.NewInMemoryStore()
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.service = s.newService()
	s.Require().NoError(s.service.FundPool(s.as("operator"), big.NewInt(liquidity)))
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	tx := NewInMemoryTx(s.payments, s.ledger, s.events)
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return fixedNow }),
	}
	return New(tx,
		Readers{Payments: s.payments, Balances: s.ledger, Events: s.events},
		roster.MustNew("O1", "O2", "O3", "O4"),
		append(base, opts...)...,
	)
}

// =============================================================================
// Helpers
// =============================================================================

func (s *ServiceSuite) as(caller id.AccountID) context.Context {
	return requestcontext.WithCaller(context.Background(), caller)
}

func scaled(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fixedpoint.Scale())
}

func (s *ServiceSuite) initiate(paymentID id.PaymentID, amount int64) *models.Payment {
	p, err := s.service.InitiatePayment(s.as(payer), models.InitiateRequest{
		PaymentID:  paymentID,
		Payee:      payee,
		Instrument: "USD/EUR",
		Amount:     big.NewInt(amount),
	})
	s.Require().NoError(err)
	return p
}

func (s *ServiceSuite) submit(oracle id.AccountID, paymentID id.PaymentID, rate *big.Int) (*models.Payment, error) {
	return s.service.SubmitRate(s.as(oracle), models.SubmitRateRequest{PaymentID: paymentID, Rate: rate})
}

func (s *ServiceSuite) stored(paymentID id.PaymentID) *models.Payment {
	p, err := s.service.GetPayment(context.Background(), paymentID)
	s.Require().NoError(err)
	return p
}

func (s *ServiceSuite) balance(account id.AccountID) int64 {
	b, err := s.service.Balance(context.Background(), account)
	s.Require().NoError(err)
	return b.Int64()
}

func (s *ServiceSuite) actions(paymentID id.PaymentID) []string {
	events, err := s.service.ListEvents(context.Background(), paymentID)
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

// =============================================================================
// InitiatePayment
// =============================================================================

func (s *ServiceSuite) TestInitiatePayment() {
	s.Run("stores record, escrows value and emits payment_initiated", func() {
		p := s.initiate("p-init", 1000)

		s.Equal(payer, p.Payer)
		s.False(p.Settled)
		s.Nil(p.AggregatedRate)
		s.Empty(p.Rates)
		s.Equal(fixedNow, p.CreatedAt)

		got := s.stored("p-init")
		s.Equal(int64(1000), got.Amount.Int64())
		s.Equal(id.InstrumentTag("USD/EUR"), got.Instrument)
		s.Equal(int64(liquidity+1000), s.balance(ledger.PoolAccount))

		events, err := s.service.ListEvents(context.Background(), "p-init")
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventPaymentInitiated), events[0].Action)
		s.Equal(payer, events[0].Payer)
		s.Equal(payee, events[0].Payee)
		s.Equal(audit.CategoryCompliance, events[0].Category)
	})

	s.Run("zero amount is rejected and nothing is stored", func() {
		_, err := s.service.InitiatePayment(s.as(payer), models.InitiateRequest{
			PaymentID: "p-zero", Payee: payee, Amount: big.NewInt(0),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = s.service.GetPayment(context.Background(), "p-zero")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("missing caller is rejected", func() {
		_, err := s.service.InitiatePayment(context.Background(), models.InitiateRequest{
			PaymentID: "p-anon", Payee: payee, Amount: big.NewInt(5),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("reused id overwrites details and keeps submissions", func() {
		s.initiate("p-dup", 100)
		_, err := s.submit("O1", "p-dup", scaled(1))
		s.Require().NoError(err)
		poolBefore := s.balance(ledger.PoolAccount)

		p, err := s.service.InitiatePayment(s.as("carol"), models.InitiateRequest{
			PaymentID: "p-dup", Payee: "dave", Amount: big.NewInt(50),
		})
		s.Require().NoError(err)
		s.Equal(id.AccountID("carol"), p.Payer)
		s.Require().NotNil(p.RateOf("O1"))
		s.Zero(scaled(1).Cmp(p.RateOf("O1")))

		got := s.stored("p-dup")
		s.Equal(id.AccountID("dave"), got.Payee)
		s.Equal(int64(50), got.Amount.Int64())
		s.Equal(1, got.SubmissionCount())
		s.False(got.Settled)
		s.Equal(poolBefore+50, s.balance(ledger.PoolAccount))

		for _, oracle := range []id.AccountID{"O2", "O3"} {
			p, err = s.submit(oracle, "p-dup", scaled(1))
			s.Require().NoError(err)
		}
		s.True(p.Settled, "earlier submission still counts towards quorum")
		s.Equal(int64(50), p.SettledAmount.Int64())
		s.Equal(int64(50), s.balance("dave"))
	})

	s.Run("settled id cannot be reopened", func() {
		s.initiate("p-done", 1000)
		for _, oracle := range []id.AccountID{"O1", "O2", "O3"} {
			_, err := s.submit(oracle, "p-done", scaled(2))
			s.Require().NoError(err)
		}
		before := s.stored("p-done")
		poolBefore := s.balance(ledger.PoolAccount)

		_, err := s.service.InitiatePayment(s.as(payer), models.InitiateRequest{
			PaymentID: "p-done", Payee: payee, Amount: big.NewInt(1000),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		after := s.stored("p-done")
		s.True(after.Settled)
		s.Equal(before.AggregatedRate, after.AggregatedRate)
		s.Equal(before.SettledAmount, after.SettledAmount)
		s.Equal(poolBefore, s.balance(ledger.PoolAccount), "refused initiation escrows nothing")

		for _, oracle := range []id.AccountID{"O1", "O2", "O3"} {
			_, err := s.submit(oracle, "p-done", scaled(3))
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		}
		s.Equal([]string{
			string(audit.EventPaymentInitiated),
			string(audit.EventPaymentSettled),
		}, s.actions("p-done"))
	})
}

func (s *ServiceSuite) TestInitiatePayment_RejectDuplicateIDs() {
	svc := s.newService(WithRejectDuplicateIDs(true))
	_, err := svc.InitiatePayment(s.as(payer), models.InitiateRequest{
		PaymentID: "p-once", Payee: payee, Amount: big.NewInt(10),
	})
	s.Require().NoError(err)
	poolBefore := s.balance(ledger.PoolAccount)

	_, err = svc.InitiatePayment(s.as(payer), models.InitiateRequest{
		PaymentID: "p-once", Payee: "mallory", Amount: big.NewInt(99),
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Equal(payee, s.stored("p-once").Payee)
	s.Equal(poolBefore, s.balance(ledger.PoolAccount), "rejected initiation escrows nothing")
	s.Len(s.actions("p-once"), 1)
}

// =============================================================================
// SubmitRate and settlement
// =============================================================================

// Three distinct roster submissions reach quorum and settle at their mean.
func (s *ServiceSuite) TestQuorumSettlesAtMeanRate() {
	s.initiate("p-a", 1000)

	p, err := s.submit("O1", "p-a", scaled(2))
	s.Require().NoError(err)
	s.False(p.Settled)
	p, err = s.submit("O2", "p-a", scaled(3))
	s.Require().NoError(err)
	s.False(p.Settled)
	s.Nil(p.AggregatedRate)

	p, err = s.submit("O3", "p-a", scaled(4))
	s.Require().NoError(err)
	s.True(p.Settled)
	s.Equal(scaled(3), p.AggregatedRate)
	s.Equal(int64(3000), p.SettledAmount.Int64())
	s.Equal(int64(0), p.Remainder.Int64())
	s.Require().NotNil(p.SettledAt)
	s.Equal(fixedNow, *p.SettledAt)

	s.Equal(int64(3000), s.balance(payee))
	s.Equal(int64(liquidity+1000-3000), s.balance(ledger.PoolAccount))

	events, err := s.service.ListEvents(context.Background(), "p-a")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventPaymentSettled), events[1].Action)
	s.Equal("3000", events[1].SettledAmount)
	s.Equal(scaled(3).String(), events[1].Rate)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.PaymentsSettled))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Submissions.WithLabelValues(metrics.OutcomeAccepted)))
}

// Identities outside the roster never enter the submission set.
func (s *ServiceSuite) TestNonRosterSubmissionIsUnauthorized() {
	s.initiate("p-c", 1000)
	_, err := s.submit("O1", "p-c", scaled(2))
	s.Require().NoError(err)

	_, err = s.submit("eve", "p-c", scaled(9))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	got := s.stored("p-c")
	s.Len(got.Rates, 1)
	s.Nil(got.RateOf("eve"))

	s.Run("membership is checked before the rate", func() {
		_, err := s.submit("eve", "p-c", big.NewInt(0))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
	s.Run("case-variant identity is not a member", func() {
		_, err := s.submit("o1", "p-c", scaled(2))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

// A settled payment is terminal: later submissions change nothing.
func (s *ServiceSuite) TestSubmissionAfterSettlementIsInvalidState() {
	s.initiate("p-d", 1000)
	for i, oracle := range []id.AccountID{"O1", "O2", "O3"} {
		_, err := s.submit(oracle, "p-d", scaled(int64(i+2)))
		s.Require().NoError(err)
	}
	before := s.stored("p-d")
	poolBefore := s.balance(ledger.PoolAccount)

	_, err := s.submit("O4", "p-d", scaled(100))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = s.submit("O1", "p-d", scaled(100))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "resubmission does not settle twice")

	after := s.stored("p-d")
	s.Equal(before.AggregatedRate, after.AggregatedRate)
	s.Equal(before.SettledAmount, after.SettledAmount)
	s.Nil(after.RateOf("O4"))
	s.Equal(poolBefore, s.balance(ledger.PoolAccount))
	s.Len(s.actions("p-d"), 2)
}

// A payee that refuses value discards the whole settlement call.
func (s *ServiceSuite) TestFailingPayeeRollsBackEverything() {
	s.initiate("p-e", 1000)
	for _, oracle := range []id.AccountID{"O1", "O2"} {
		_, err := s.submit(oracle, "p-e", scaled(2))
		s.Require().NoError(err)
	}
	poolBefore := s.balance(ledger.PoolAccount)

	s.ledger.SetReceiveHook(payee, func(context.Context, id.AccountID, *big.Int) error {
		return io.ErrUnexpectedEOF
	})
	defer s.ledger.SetReceiveHook(payee, nil)

	_, err := s.submit("O3", "p-e", scaled(2))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTransferFailed))

	got := s.stored("p-e")
	s.False(got.Settled)
	s.Nil(got.AggregatedRate)
	s.Nil(got.RateOf("O3"), "the triggering submission is discarded")
	s.Len(got.Rates, 2)
	s.Equal(poolBefore, s.balance(ledger.PoolAccount))
	s.Equal(int64(0), s.balance(payee))
	s.Equal([]string{string(audit.EventPaymentInitiated)}, s.actions("p-e"))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Submissions.WithLabelValues(metrics.OutcomeTransferFailed)))

	s.Run("payment still settles once the payee accepts", func() {
		s.ledger.SetReceiveHook(payee, nil)
		p, err := s.submit("O3", "p-e", scaled(2))
		s.Require().NoError(err)
		s.True(p.Settled)
		s.Equal(int64(2000), s.balance(payee))
	})
}

func (s *ServiceSuite) TestInsufficientPoolLiquidityFailsTransfer() {
	empty := ledger.NewInMemory()
	svc := New(NewInMemoryTx(s.payments, empty, s.events),
		Readers{Payments: s.payments, Balances: empty, Events: s.events},
		roster.MustNew("O1", "O2", "O3"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	_, err := svc.InitiatePayment(s.as(payer), models.InitiateRequest{PaymentID: "p-dry", Payee: payee, Amount: big.NewInt(10)})
	s.Require().NoError(err)
	for _, oracle := range []id.AccountID{"O1", "O2"} {
		_, err := svc.SubmitRate(s.as(oracle), models.SubmitRateRequest{PaymentID: "p-dry", Rate: scaled(5)})
		s.Require().NoError(err)
	}

	_, err = svc.SubmitRate(s.as("O3"), models.SubmitRateRequest{PaymentID: "p-dry", Rate: scaled(5)})
	s.True(dErrors.HasCode(err, dErrors.CodeTransferFailed))
	s.False(s.stored("p-dry").Settled)
}

func (s *ServiceSuite) TestSubmitRateValidation() {
	s.initiate("p-v", 1000)

	s.Run("zero rate is invalid input", func() {
		_, err := s.submit("O1", "p-v", big.NewInt(0))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Empty(s.stored("p-v").Rates)
	})

	s.Run("missing rate is invalid input", func() {
		_, err := s.submit("O1", "p-v", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown payment is invalid state", func() {
		_, err := s.submit("O1", "p-missing", scaled(1))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("cancelled context times out", func() {
		ctx, cancel := context.WithCancel(s.as("O1"))
		cancel()
		_, err := s.service.SubmitRate(ctx, models.SubmitRateRequest{PaymentID: "p-v", Rate: scaled(1)})
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func (s *ServiceSuite) TestRemainderIsRecorded() {
	s.initiate("p-r", 7)
	rates := []*big.Int{scaled(1), scaled(1), scaled(2)}
	var p *models.Payment
	var err error
	for i, oracle := range []id.AccountID{"O1", "O2", "O3"} {
		p, err = s.submit(oracle, "p-r", rates[i])
		s.Require().NoError(err)
	}

	s.Equal("1333333333333333333", p.AggregatedRate.String())
	s.Equal(int64(9), p.SettledAmount.Int64())
	s.Equal("333333333333333331", p.Remainder.String())

	events, err := s.service.ListEvents(context.Background(), "p-r")
	s.Require().NoError(err)
	s.Equal("333333333333333331", events[1].Remainder)
}

func (s *ServiceSuite) TestZeroSettledAmountStillSettles() {
	s.initiate("p-tiny", 1)
	var p *models.Payment
	var err error
	for _, oracle := range []id.AccountID{"O1", "O2", "O3"} {
		p, err = s.submit(oracle, "p-tiny", big.NewInt(1))
		s.Require().NoError(err)
	}
	s.True(p.Settled)
	s.Equal(int64(0), p.SettledAmount.Int64())
	s.Equal(int64(1), p.Remainder.Int64())
}

// =============================================================================
// Re-entrancy
// =============================================================================

func (s *ServiceSuite) TestReentrantPayeeIsRejected() {
	s.initiate("p-re", 1000)
	s.initiate("p-other", 1000)
	for _, oracle := range []id.AccountID{"O1", "O2"} {
		_, err := s.submit(oracle, "p-re", scaled(1))
		s.Require().NoError(err)
	}

	s.Run("nested submission fails the outer call", func() {
		var nested error
		s.ledger.SetReceiveHook(payee, func(ctx context.Context, _ id.AccountID, _ *big.Int) error {
			_, nested = s.service.SubmitRate(ctx, models.SubmitRateRequest{PaymentID: "p-other", Rate: scaled(1)})
			return nested
		})
		defer s.ledger.SetReceiveHook(payee, nil)

		_, err := s.submit("O3", "p-re", scaled(1))
		s.True(dErrors.HasCode(err, dErrors.CodeTransferFailed))
		s.True(dErrors.HasCode(nested, dErrors.CodeReentrancy))
		s.False(s.stored("p-re").Settled)
		s.Empty(s.stored("p-other").Rates)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.ReentrancyRejections))
	})

	s.Run("nested initiation is rejected by the unit of work", func() {
		var nested error
		s.ledger.SetReceiveHook(payee, func(ctx context.Context, _ id.AccountID, _ *big.Int) error {
			_, nested = s.service.InitiatePayment(ctx, models.InitiateRequest{PaymentID: "p-nested", Payee: payee, Amount: big.NewInt(1)})
			return nil
		})
		defer s.ledger.SetReceiveHook(payee, nil)

		p, err := s.submit("O3", "p-re", scaled(1))
		s.Require().NoError(err, "payee swallowed the rejection and accepted the value")
		s.True(p.Settled)
		s.True(dErrors.HasCode(nested, dErrors.CodeReentrancy))

		_, err = s.service.GetPayment(context.Background(), "p-nested")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestIndependentCallDuringSettlementNeverSeesPartialState() {
	s.initiate("p-iso", 1000)
	for _, oracle := range []id.AccountID{"O1", "O2"} {
		_, err := s.submit(oracle, "p-iso", scaled(1))
		s.Require().NoError(err)
	}

	var (
		seen    *models.Payment
		blocked error
	)
	s.ledger.SetReceiveHook(payee, func(context.Context, id.AccountID, *big.Int) error {
		fresh, cancel := context.WithTimeout(s.as("O4"), 50*time.Millisecond)
		defer cancel()
		_, blocked = s.service.SubmitRate(fresh, models.SubmitRateRequest{PaymentID: "p-iso", Rate: scaled(1)})
		seen, _ = s.service.GetPayment(context.Background(), "p-iso")
		return nil
	})
	defer s.ledger.SetReceiveHook(payee, nil)

	p, err := s.submit("O3", "p-iso", scaled(1))
	s.Require().NoError(err)
	s.True(p.Settled)

	s.True(dErrors.HasCode(blocked, dErrors.CodeTimeout))
	s.Require().NotNil(seen)
	s.False(seen.Settled, "committed state is the pre-call state until commit")
	s.Nil(seen.AggregatedRate)
	s.Nil(s.stored("p-iso").RateOf("O4"))
}

// =============================================================================
// Properties
// =============================================================================

func (s *ServiceSuite) TestAggregateSetIffSettled() {
	s.initiate("p-iff", 500)
	check := func() {
		p := s.stored("p-iff")
		s.Equal(p.Settled, p.AggregatedRate != nil)
	}
	check()
	for _, oracle := range []id.AccountID{"O1", "O2", "O3", "O4"} {
		_, _ = s.submit(oracle, "p-iff", scaled(2))
		check()
	}
}

func (s *ServiceSuite) TestSubmissionCountNeverDecreases() {
	s.initiate("p-mono", 500)
	last := 0
	steps := []struct {
		oracle id.AccountID
		rate   *big.Int
	}{
		{"O1", scaled(1)},
		{"O1", scaled(2)},
		{"eve", scaled(3)},
		{"O2", big.NewInt(0)},
		{"O2", scaled(2)},
		{"O3", scaled(2)},
		{"O4", scaled(2)},
	}
	for _, step := range steps {
		_, _ = s.submit(step.oracle, "p-mono", step.rate)
		n := s.stored("p-mono").SubmissionCount()
		s.GreaterOrEqual(n, last)
		last = n
	}
	s.Equal(3, last)
}

func (s *ServiceSuite) TestMeanIsOrderIndependent() {
	rates := map[id.AccountID]*big.Int{
		"O1": big.NewInt(1_100_000_000_000_000_007),
		"O2": big.NewInt(900_000_000_000_000_001),
		"O3": big.NewInt(1_000_000_000_000_000_003),
	}
	orders := [][]id.AccountID{
		{"O1", "O2", "O3"}, {"O1", "O3", "O2"},
		{"O2", "O1", "O3"}, {"O2", "O3", "O1"},
		{"O3", "O1", "O2"}, {"O3", "O2", "O1"},
	}
	var want *big.Int
	for i, order := range orders {
		paymentID := id.PaymentID("p-perm-" + string(rune('a'+i)))
		s.initiate(paymentID, 1000)
		var p *models.Payment
		for _, oracle := range order {
			var err error
			p, err = s.submit(oracle, paymentID, rates[oracle])
			s.Require().NoError(err)
		}
		if want == nil {
			want = p.AggregatedRate
		}
		s.Equal(want, p.AggregatedRate, "order %v", order)
	}
	s.Equal("1000000000000000003", want.String())
}

// =============================================================================
// Reads
// =============================================================================

func (s *ServiceSuite) TestReads() {
	s.Equal([]id.AccountID{"O1", "O2", "O3", "O4"}, s.service.Roster())
	s.Equal(ledger.PoolAccount, s.service.PoolAccount())

	_, err := s.service.ListEvents(context.Background(), "nope")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Equal(int64(0), s.balance("nobody"))
}

func (s *ServiceSuite) TestFundPoolRejectsNonPositive() {
	err := s.service.FundPool(s.as("operator"), big.NewInt(0))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Equal(int64(liquidity), s.balance(ledger.PoolAccount))
}
