package middle

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
	}{
		{
			name: "Normal request - no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Handler panics with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name: "Handler panics with nil map write",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var m map[string]int
				m["boom"] = 1
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := PanicRecoveryMiddleware()(tt.handler)

			rr := httptest.NewRecorder()
			assert.NotPanics(t, func() {
				handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/callback/kazawallet", nil))
			})
			assert.Equal(t, tt.expectedStatus, rr.Code)

			if tt.expectedStatus == http.StatusInternalServerError {
				assert.Equal(t, "Internal server error", rr.Body.String())
				assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestPanicRecoveryMiddleware_AbortHandlerPropagates(t *testing.T) {
	handler := PanicRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
