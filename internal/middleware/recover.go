package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/no-end-to-learning/notify/internal/httputil"
)

// Recoverer turns a panicking handler into a 500 INTERNAL_ERROR response.
func Recoverer(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic in handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Stack("stack"),
				)
				httputil.WriteInternalError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
