package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"photobox/internal/box"
)

// DefaultMaxUploadBytes caps a multipart request body when no limit is configured.
const DefaultMaxUploadBytes int64 = 32 << 20

// Submitter runs one submission through the intake pipeline.
type Submitter interface {
	Submit(ctx context.Context, sub *box.Submission) (*box.Result, error)
}

// NewRouter builds the HTTP surface of the service:
//
//	POST /api/box   multipart submission
//	POST /api/user  user registration acknowledgement
//	GET  /health    liveness check
func NewRouter(svc Submitter, logger box.Logger, maxUploadBytes int64) http.Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	h := &handler{svc: svc, logger: logger, maxUploadBytes: maxUploadBytes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/box", h.submitBox)
		r.Post("/user", h.addUser)
	})
	return r
}

// requestLogger echoes the request id back to the client and writes one
// access line per request once the handler returns.
func requestLogger(logger box.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			w.Header().Set(middleware.RequestIDHeader, reqID)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Info("request",
					"id", reqID,
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String())
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
