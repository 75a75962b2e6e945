package producer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "fxsettle/pkg/platform/audit"
)

func TestEncode(t *testing.T) {
	eventID := uuid.New()
	raw, err := Encode(audit.Event{
		ID:            eventID,
		Sequence:      7,
		Category:      audit.CategoryCompliance,
		Timestamp:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Action:        string(audit.EventPaymentSettled),
		PaymentID:     "p1",
		SettledAmount: "3000",
		Rate:          "3000000000000000000",
		Remainder:     "0",
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, eventID.String(), got["id"])
	assert.Equal(t, "payment_settled", got["type"])
	assert.Equal(t, "3000", got["settled_amount"])
	assert.Equal(t, "2025-01-02T03:04:05Z", got["occurred_at"])
	assert.NotContains(t, got, "payer", "empty fields are omitted")
}

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := New(nil, "topic")
	require.Error(t, err)
}
