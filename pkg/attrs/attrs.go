// Package attrs reads the alternating key/value slices accepted by slog.
package attrs

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// ExtractString returns the first string stored under key, or "" when the
// key is absent or holds another type.
func ExtractString(kv []any, key string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok && k == key {
			s, _ := kv[i+1].(string)
			return s
		}
	}
	return ""
}

// SpanAttributes converts kv into trace attributes. Strings, integers and
// booleans keep their type; Stringers are rendered; other values are dropped.
func SpanAttributes(kv []any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			out = append(out, attribute.String(k, v))
		case int:
			out = append(out, attribute.Int(k, v))
		case int64:
			out = append(out, attribute.Int64(k, v))
		case bool:
			out = append(out, attribute.Bool(k, v))
		case fmt.Stringer:
			out = append(out, attribute.String(k, v.String()))
		}
	}
	return out
}
