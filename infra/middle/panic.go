package middle

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/mstgnz/kazapay/infra/response"
)

// PanicRecoveryMiddleware handles panics and converts them to HTTP 500 errors
func PanicRecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					requestID := middleware.GetReqID(r.Context())
					if requestID == "" {
						requestID = "unknown"
					}

					logger.Error("Panic recovered", fmt.Errorf("%v", err), logger.LogContext{
						RequestID: requestID,
						Fields: map[string]any{
							"method": r.Method,
							"url":    r.URL.String(),
							"stack":  string(debug.Stack()),
						},
					})

					w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
					response.Text(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
