package testutil

import (
	"context"
	"time"

	id "fxsettle/pkg/domain"
	"fxsettle/pkg/requestcontext"
)

// AsCaller returns a background context carrying caller, as the caller
// middleware would set it.
func AsCaller(caller string) context.Context {
	return requestcontext.WithCaller(context.Background(), id.AccountID(caller))
}

// AsCallerAt is AsCaller with the request clock pinned to now.
func AsCallerAt(caller string, now time.Time) context.Context {
	return requestcontext.WithTime(AsCaller(caller), now)
}
