// Package handler provides the HTTP handlers of the KazaPay gateway.
//
// # Webhook
//
// WebhookHandler receives the wallet's payment callbacks. It is mounted on a
// route that accepts every method so that anything other than POST can be
// answered with 405 and an Allow header:
//
//	webhook := handler.NewWebhookHandler(service, limiter)
//	r.Handle("/callback/kazawallet", webhook)
//
// Each callback runs through the same ordered stages:
//
//   - transport guard: POST only, body at most 10 KiB, per address rate limit
//   - payload normalizer: JSON object, form encoded fallback
//   - field validation and signature verification
//   - duplicate check
//   - settlement: reconciliation and payment posting, or status recording
//
// Responses are short plain text bodies. The wallet only looks at the status
// code:
//
//   - 200 Payment processed successfully, Payment status: {status},
//     Payment amount mismatch
//   - 400 malformed payload or invalid field
//   - 401 signature mismatch
//   - 405 method not allowed
//   - 409 duplicate transaction
//   - 429 rate limited
//   - 503 gateway not configured or host unavailable
//
// With AckBeforeSettle enabled the 200 acknowledgement is flushed after the
// duplicate check and settlement runs afterwards in the same call.
//
// # Return flow
//
// StatusHandler reports whether an invoice is paid for customers coming back
// from the wallet. Unpaid invoices are pending, never an error.
//
// # Outbound API
//
// PaymentHandler creates payment links and refunds through the wallet API.
// Its routes live under /v1 and require the admin API key:
//
//	POST /v1/invoices/{invoiceID}/payment-link
//	POST /v1/refunds
package handler
