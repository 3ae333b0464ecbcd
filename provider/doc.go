// Package provider implements the settlement core behind the wallet callback:
// payload normalization, field validation, signature verification and the
// settlement state machine that posts payments to the billing host.
//
// # Core Concepts
//
//   - Platform: the billing host, split into InvoiceStore, PaymentPoster,
//     TransactionRegistry and AuditLogger
//   - AtomicSettler: optional host capability that claims a transaction id and
//     posts its payment in one step
//   - SignatureComputer: computes the signature the wallet is expected to send
//   - SettlementService: drives one callback through the pipeline
//
// # Settlement States
//
// A settlement only moves forward:
//
//	Received ──► Validated ──► SignatureChecked ──► DuplicateChecked ──► Settled
//	    │            │                │                    │           ├─► Recorded
//	    └────────────┴────────────────┴────────────────────┴───────────┴─► Rejected
//
// Settled means a payment was posted. Recorded means the callback was accepted
// and audited without posting, e.g. a pending status or an amount mismatch.
//
// # Basic Usage
//
//	platform := provider.NewMemoryPlatform()
//	platform.AddInvoice(provider.Invoice{
//	    ID:       "4521",
//	    TotalDue: decimal.RequireFromString("25.00"),
//	    Currency: "USD",
//	    Status:   provider.InvoiceUnpaid,
//	})
//
//	signer := kazawallet.NewSigner(cfg.APIKey, cfg.APISecret)
//	service := provider.NewSettlementService(cfg, platform, signer)
//
//	fields, err := provider.NormalizePayload(body)
//	if err != nil {
//	    return err
//	}
//	st, err := service.Process(ctx, requestID, fields)
//	// provider.StatusCode(err) maps the outcome to an HTTP status
//
// # Errors
//
// Every rejection wraps one of the sentinel errors in this package, so callers
// can branch with errors.Is. StatusCode and Kind map them to the HTTP status
// and the metrics label. Host failures are wrapped in ErrHostUnavailable and
// answered with 503, so the wallet retries.
package provider
