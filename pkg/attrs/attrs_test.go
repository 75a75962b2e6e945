package attrs

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestExtractString(t *testing.T) {
	kv := []any{"oracle", "O1", "count", 3, "payment_id", "pay-1", "dangling"}

	assert.Equal(t, "pay-1", ExtractString(kv, "payment_id"))
	assert.Equal(t, "", ExtractString(kv, "count"), "non-string values are ignored")
	assert.Equal(t, "", ExtractString(kv, "dangling"), "a key without a value is ignored")
	assert.Equal(t, "", ExtractString(nil, "payment_id"))
}

func TestSpanAttributes(t *testing.T) {
	got := SpanAttributes([]any{
		"payment_id", "pay-1",
		"count", 3,
		"settled", true,
		"amount", big.NewInt(3000),
		"skipped", []string{"x"},
		42, "bad key",
	})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("payment_id", "pay-1"),
		attribute.Int("count", 3),
		attribute.Bool("settled", true),
		attribute.String("amount", "3000"),
	}, got)
}
