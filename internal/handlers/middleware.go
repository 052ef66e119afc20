package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"health-telemetry/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a request-scoped logger to the context, reusing the
// caller's X-Request-ID when present.
func RequestID(base *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		l := logger.WithRequestID(base, id)
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), l)))
	})
}

// Recover turns a panic in next into a 500 so one bad request cannot take
// down the process. Details go to the log, never to the client.
func Recover(base *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.FromContext(r.Context(), base).Error("handler panic",
					zap.Any("panic", v),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
				)
				writeInternalError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
