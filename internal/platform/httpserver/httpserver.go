// Package httpserver builds the HTTP server and root router.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// New builds an HTTP server that logs its own errors at warn level.
// WriteTimeout must stay above the unit-of-work timeout.
func New(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    64 << 10,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}
