// Package kazapay is a KazaWallet payment gateway for billing platforms. It
// receives the wallet's payment callbacks, verifies them and settles the
// matching invoices on the billing host.
//
// # Overview
//
// The wallet notifies the gateway after a customer pays an invoice through a
// payment link. Every callback passes the same pipeline before any money is
// posted:
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│   KazaWallet    │───►│     KazaPay     │───►│  Billing Host   │
//	│   (callbacks)   │    │   (settlement)  │    │   (invoices)    │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
//  1. method guard, body size limit and per client rate limit
//  2. payload normalization, JSON first with a form data fallback
//  3. field validation
//  4. HMAC-SHA512 signature verification
//  5. duplicate transaction check
//  6. invoice lookup, amount and currency reconciliation, payment posting
//
// Every callback ends in exactly one plain text response and at least one
// audit entry on the host.
//
// # Signature
//
// The wallet signs the amount and order id with the merchant credentials:
//
//	secret = base64(HMAC-SHA512(apiSecret, hex(SHA256(amount + ":::" + order_id + ":::" + apiKey))))
//
// The amount is always formatted with two decimals. The comparison runs in
// constant time.
//
// # HTTP API
//
//	# Wallet callbacks
//	POST /callback/kazawallet
//	POST /webhooks/kazawallet
//
//	# Return flow, used by the customer facing pages
//	GET  /invoices/{invoiceID}/status
//	GET  /return/{invoiceID}
//
//	# Admin API, Authorization: Bearer {API_KEY}
//	POST /v1/invoices/{invoiceID}/payment-link
//	POST /v1/refunds
//
//	# Operations
//	GET  /health
//	GET  /metrics
//
// # Commands
//
//	kazapay serve                                  run the HTTP server
//	kazapay migrate                                create the ledger schema
//	kazapay invoice --id 4521 --total 25.00        create a test invoice
//	kazapay sign --amount 25.00 --order-id abc123  compute a callback signature
//	kazapay audit --limit 20                       show recent gateway log entries
//
// # Configuration
//
// Configuration is read from the environment, optionally seeded from a
// dotenv file:
//
//	KAZAWALLET_API_KEY=your-api-key
//	KAZAWALLET_API_SECRET=your-api-secret
//	STORAGE_DRIVER=sqlite            # sqlite, postgres or memory
//	POSTGRES_DSN=postgres://...
//	WEBHOOK_RATE_LIMIT=10
//	WEBHOOK_RATE_WINDOW=60s
//	ACK_BEFORE_SETTLE=false
//	ENABLE_OPENSEARCH_LOGGING=false
//	KAFKA_BROKERS=
//
// Without wallet credentials the server still starts and answers every
// callback with 503 until they are configured.
package kazapay
