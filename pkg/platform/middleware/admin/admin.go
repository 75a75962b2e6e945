// Package admin guards operator-only routes such as pool funding.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	"fxsettle/pkg/platform/httputil"
	"fxsettle/pkg/requestcontext"
)

// HeaderAdminToken carries the operator token.
const HeaderAdminToken = "X-Admin-Token"

// OperatorAccount is the caller recorded for admitted admin requests.
const OperatorAccount id.AccountID = "operator"

// RequireAdminToken admits requests whose X-Admin-Token equals expectedToken
// and records them as OperatorAccount. An empty expectedToken admits nobody.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get(HeaderAdminToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"path", r.URL.Path,
					"token_present", token != "",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "admin token required"))
				return
			}

			ctx = requestcontext.WithCaller(ctx, OperatorAccount)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
