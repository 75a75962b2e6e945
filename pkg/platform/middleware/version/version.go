// Package version provides middleware for API version extraction and validation.
package version

import (
	"log/slog"
	"net/http"

	id "fxsettle/pkg/domain"
	dErrors "fxsettle/pkg/domain-errors"
	"fxsettle/pkg/platform/httputil"
	"fxsettle/pkg/requestcontext"
)

// HeaderAPIVersion lets a client pin the API version it was built against.
const HeaderAPIVersion = "X-API-Version"

// ExtractVersion creates middleware that records the API version of a Chi subrouter.
// When using Chi's r.Route("/v1", ...), the version is already determined by the route match.
//
// Usage:
//
//	r.Route("/v1", func(v1 chi.Router) {
//	    v1.Use(version.ExtractVersion(id.APIVersionV1))
//	    // ... routes
//	})
func ExtractVersion(version id.APIVersion) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithAPIVersion(r.Context(), version)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RejectNewerClients rejects requests whose X-API-Version is unknown or newer
// than the route version. A missing header is treated as the default version.
//
// Must run after ExtractVersion.
func RejectNewerClients(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			routeVersion := requestcontext.APIVersion(ctx)
			if routeVersion.IsNil() {
				logger.ErrorContext(ctx, "version validation failed: route version not set",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "route version not configured"))
				return
			}

			raw := r.Header.Get(HeaderAPIVersion)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			clientVersion, err := id.ParseAPIVersion(raw)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if !routeVersion.IsAtLeast(clientVersion) {
				logger.WarnContext(ctx, "client API version newer than route",
					"client_version", clientVersion.String(),
					"route_version", routeVersion.String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest,
					"client API version not supported by this endpoint"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
