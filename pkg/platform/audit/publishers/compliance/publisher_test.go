package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	audit "fxsettle/pkg/platform/audit"
	"fxsettle/pkg/platform/audit/store/memory"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }

func (failingStore) ListByPayment(context.Context, id.PaymentID) ([]audit.Event, error) {
	return nil, nil
}

func TestPublisher_Emit(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("stamps category and fallback timestamp", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		m := NewMetricsWith(prometheus.NewRegistry())
		pub := New(store, WithMetrics(m), WithClock(func() time.Time { return fixed }))

		err := pub.Emit(ctx, audit.Event{
			PaymentID: "p1",
			Action:    string(audit.EventPaymentInitiated),
			Category:  audit.CategoryOperations,
		})
		require.NoError(t, err)

		events, err := store.ListByPayment(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.CategoryCompliance, events[0].Category)
		assert.True(t, fixed.Equal(events[0].Timestamp))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsEmitted))
	})

	t.Run("keeps the caller's timestamp", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := New(store, WithClock(func() time.Time { return fixed }))
		at := fixed.Add(-time.Hour)

		require.NoError(t, pub.Emit(ctx, audit.Event{
			PaymentID: "p1",
			Action:    string(audit.EventPaymentSettled),
			Timestamp: at,
		}))

		events, err := store.ListByPayment(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.True(t, at.Equal(events[0].Timestamp))
	})

	t.Run("rejects malformed events", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		pub := New(store)

		tests := []struct {
			name  string
			event audit.Event
		}{
			{"missing payment", audit.Event{Action: string(audit.EventPaymentSettled)}},
			{"operational action", audit.Event{PaymentID: "p1", Action: string(audit.EventRateSubmitted)}},
			{"unknown action", audit.Event{PaymentID: "p1", Action: "refund_issued"}},
		}
		for _, tt := range tests {
			err := pub.Emit(ctx, tt.event)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation), tt.name)
		}

		events, err := store.ListByPayment(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("fails closed when the store fails", func(t *testing.T) {
		m := NewMetricsWith(prometheus.NewRegistry())
		pub := New(failingStore{}, WithMetrics(m))

		err := pub.Emit(ctx, audit.Event{PaymentID: "p1", Action: string(audit.EventPaymentSettled)})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistFailures))
		assert.Equal(t, float64(0), testutil.ToFloat64(m.EventsEmitted))
	})
}
