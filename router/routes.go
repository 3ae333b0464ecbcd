package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mstgnz/kazapay/handler"
	"github.com/mstgnz/kazapay/infra/metrics"
	"github.com/mstgnz/kazapay/infra/middle"
	"github.com/mstgnz/kazapay/infra/response"
)

// Dependencies are the handlers and settings the router mounts
type Dependencies struct {
	Webhook           *handler.WebhookHandler
	Status            *handler.StatusHandler
	Payment           *handler.PaymentHandler
	Health            *handler.HealthHandler
	AdminAPIKey       string
	APILimiter        *middle.RateLimiter
	TrustProxyHeaders bool
	AllowedOrigins    []string
}

// New builds the HTTP router
func New(d Dependencies) chi.Router {
	r := chi.NewRouter()

	// RemoteAddr is left untouched, the rate limit key is derived per request
	// by middle.ClientAddress
	r.Use(middleware.RequestID)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))

	// Callback routes accept every method, the handler answers 405 itself
	r.Handle("/callback/kazawallet", d.Webhook)
	r.Handle("/webhooks/kazawallet", d.Webhook)

	if d.Health != nil {
		r.Get("/health", d.Health.CheckHealth)
	}
	r.Handle("/metrics", metrics.Handler())

	// Return flow, read by the billing site's pages
	if d.Status != nil {
		origins := d.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: origins,
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type", "Origin", "X-Requested-With"},
				MaxAge:         300,
			}))
			r.Get("/invoices/{invoiceID}/status", d.Status.InvoiceStatus)
			r.Get("/return/{invoiceID}", d.Status.InvoiceStatus)
		})
	}

	if d.Payment != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Use(middle.AuthMiddleware(d.AdminAPIKey))
			r.Use(middle.JSONContentTypeMiddleware())
			if d.APILimiter != nil {
				r.Use(middle.RateLimitMiddleware(d.APILimiter, d.TrustProxyHeaders))
			}

			r.Post("/invoices/{invoiceID}/payment-link", d.Payment.CreatePaymentLink)
			r.Post("/refunds", d.Payment.RefundPayment)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})

	return r
}
