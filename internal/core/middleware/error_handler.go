package middleware

import (
	"net/http"
	"time"

	"github.com/rahil234/SnapCart-sub000/internal/core/logger"
)

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type ErrorHandler struct {
	handler http.Handler
	log     logger.Logger
}

// WithErrorHandler logs every response with a 5xx status.
func WithErrorHandler(log logger.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return &ErrorHandler{handler: h, log: log}
	}
}

func (eh *ErrorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	eh.handler.ServeHTTP(rec, r)

	if rec.status >= http.StatusInternalServerError {
		eh.log.Error("request processing failed",
			logger.StringField("method", r.Method),
			logger.StringField("path", r.URL.Path),
			logger.IntField("status", rec.status),
			logger.DurationField("duration", time.Since(start)),
		)
	}
}
