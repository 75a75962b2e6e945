// Package caller authenticates the party behind a request.
//
// The engine does not verify credentials itself; a gateway in front of it
// terminates mTLS or token auth and forwards the verified identity in
// X-Caller-ID. This middleware only parses that header into the context.
package caller

import (
	"fmt"
	"log/slog"
	"net/http"

	id "fxsettle/pkg/domain"
	request "fxsettle/pkg/platform/middleware/request"
	"fxsettle/pkg/requestcontext"
)

// HeaderCallerID carries the authenticated caller's account id.
const HeaderCallerID = "X-Caller-ID"

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireCaller rejects requests without a well-formed caller identity and
// stores the parsed AccountID for the services.
func RequireCaller(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := r.Header.Get(HeaderCallerID)
			if raw == "" {
				logger.WarnContext(ctx, "unauthenticated request - missing caller",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthenticated", "Missing "+HeaderCallerID+" header")
				return
			}

			callerID, err := id.ParseAccountID(raw)
			if err != nil {
				logger.WarnContext(ctx, "malformed caller identity",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusBadRequest, "bad_request", "Malformed "+HeaderCallerID+" header")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, callerID)))
		})
	}
}
