package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/mstgnz/kazapay/infra/metrics"
	"github.com/shopspring/decimal"
)

// SettlementState is a step of the settlement state machine
type SettlementState string

const (
	StateReceived         SettlementState = "received"
	StateValidated        SettlementState = "validated"
	StateSignatureChecked SettlementState = "signature_checked"
	StateDuplicateChecked SettlementState = "duplicate_checked"
	StateSettled          SettlementState = "settled"
	StateRecorded         SettlementState = "recorded"
	StateRejected         SettlementState = "rejected"
)

// Terminal reports whether no further transition is possible
func (s SettlementState) Terminal() bool {
	return s == StateSettled || s == StateRecorded || s == StateRejected
}

// Settlement tracks one callback through the state machine
type Settlement struct {
	RequestID string
	State     SettlementState
	Envelope  *Envelope
	Outcome   *Outcome
	Err       error
	StartedAt time.Time
}

// SettlementService validates callbacks and settles them against the host.
// Admit and Dispatch are split so a handler can acknowledge the wallet
// between them.
type SettlementService struct {
	cfg       config.GatewayConfig
	platform  Platform
	signer    SignatureComputer
	validator *FieldValidator
	now       func() time.Time
}

// NewSettlementService creates a new settlement service
func NewSettlementService(cfg config.GatewayConfig, platform Platform, signer SignatureComputer) *SettlementService {
	return &SettlementService{
		cfg:       cfg,
		platform:  platform,
		signer:    signer,
		validator: NewFieldValidator(cfg),
		now:       time.Now,
	}
}

// Config returns the gateway configuration the service was built with
func (s *SettlementService) Config() config.GatewayConfig {
	return s.cfg
}

// Begin starts a settlement in the Received state
func (s *SettlementService) Begin(requestID string) *Settlement {
	return &Settlement{
		RequestID: requestID,
		State:     StateReceived,
		StartedAt: s.now(),
	}
}

// Process runs Admit and Dispatch back to back
func (s *SettlementService) Process(ctx context.Context, requestID string, fields map[string]string) (*Settlement, error) {
	st := s.Begin(requestID)
	if err := s.Admit(ctx, st, fields); err != nil {
		return st, err
	}
	return st, s.Dispatch(ctx, st)
}

// Admit validates the fields, verifies the signature and consults the
// duplicate registry. On success st is DuplicateChecked.
func (s *SettlementService) Admit(ctx context.Context, st *Settlement, fields map[string]string) error {
	if st.State != StateReceived {
		return fmt.Errorf("settlement: admit from state %s", st.State)
	}
	log := s.log(st)

	if err := s.cfg.Validate(); err != nil {
		log.Error("Gateway credentials are not configured", err)
		return s.reject(st, err)
	}

	env, err := s.validator.Validate(fields)
	if err != nil {
		log.Warn("Callback rejected: " + err.Error())
		return s.reject(st, err)
	}
	st.Envelope = env
	st.State = StateValidated

	expected, err := VerifySignature(s.signer, env)
	if err != nil {
		if errors.Is(err, ErrSignatureInvalid) {
			data := envelopeData(env)
			data["error"] = "Signature verification failed"
			data["expected"] = expected
			data["received"] = env.Secret
			s.audit(ctx, st, data, "Signature Verification Failed")
			log.Warn("Signature verification failed")
		} else {
			log.Error("Signature could not be computed", err)
		}
		return s.reject(st, err)
	}
	st.State = StateSignatureChecked

	hctx, cancel := s.hostContext(ctx)
	duplicate, err := s.platform.CheckDuplicateTransaction(hctx, env.OrderID)
	cancel()
	if err != nil {
		log.Error("Duplicate check failed", err)
		return s.reject(st, hostError(err))
	}
	if duplicate {
		s.audit(ctx, st, envelopeData(env), "Duplicate Transaction")
		log.Info("Duplicate transaction ignored")
		st.Outcome = &Outcome{Kind: OutcomeDuplicate, TransactionID: env.OrderID, Reason: ErrDuplicateTransaction.Error()}
		return s.reject(st, ErrDuplicateTransaction)
	}
	st.State = StateDuplicateChecked
	return nil
}

// Dispatch settles an admitted callback. Fulfilled callbacks are reconciled
// against the invoice and posted, other statuses are only recorded.
func (s *SettlementService) Dispatch(ctx context.Context, st *Settlement) error {
	if st.State != StateDuplicateChecked || st.Envelope == nil {
		return fmt.Errorf("settlement: dispatch from state %s", st.State)
	}
	env := st.Envelope
	log := s.log(st)

	if env.Status != StatusFulfilled {
		s.audit(ctx, st, envelopeData(env), StatusMessage(env.Status))
		st.State = StateRecorded
		st.Outcome = &Outcome{Kind: OutcomeStatusRecorded, InvoiceID: env.InvoiceID, TransactionID: env.OrderID, Status: env.Status}
		metrics.RecordSettlement(string(StateRecorded))
		log.Info("Payment status recorded: " + string(env.Status))
		return nil
	}

	hctx, cancel := s.hostContext(ctx)
	invoice, err := s.platform.LookupInvoice(hctx, env.InvoiceID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			s.audit(ctx, st, envelopeData(env), "Invoice Not Found")
			log.Warn("Callback references unknown invoice")
			return s.reject(st, fmt.Errorf("invoice %s: %w", env.InvoiceID, ErrInvoiceNotFound))
		}
		log.Error("Invoice lookup failed", err)
		return s.reject(st, hostError(err))
	}

	if invoice.Currency != "" && invoice.Currency != env.Currency {
		data := envelopeData(env)
		data["invoice_currency"] = invoice.Currency
		s.audit(ctx, st, data, "Payment Currency Mismatch")
		log.Warn("Payment currency mismatch, payment withheld")
		return s.reject(st, ErrCurrencyMismatch)
	}

	if err := Reconcile(env.Amount, invoice.TotalDue, s.cfg.Tolerance); err != nil {
		data := envelopeData(env)
		data["expected_amount"] = invoice.TotalDue.StringFixed(2)
		data["received_amount"] = env.Amount.StringFixed(2)
		s.audit(ctx, st, data, "Payment Amount Mismatch")
		log.Warn("Payment amount mismatch, payment withheld")
		return s.reject(st, err)
	}

	posting := PaymentPosting{
		InvoiceID:     invoice.ID,
		TransactionID: env.OrderID,
		Amount:        env.Amount,
		Fee:           decimal.Zero,
		Gateway:       s.cfg.Name,
	}

	hctx, cancel = s.hostContext(ctx)
	if settler, ok := s.platform.(AtomicSettler); ok {
		err = settler.ClaimAndPostPayment(hctx, posting)
	} else {
		err = s.platform.PostPayment(hctx, posting)
	}
	cancel()
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			log.Info("Transaction claimed by a concurrent delivery")
			st.Outcome = &Outcome{Kind: OutcomeDuplicate, TransactionID: env.OrderID, Reason: ErrDuplicateTransaction.Error()}
			return s.reject(st, ErrDuplicateTransaction)
		}
		log.Error("Payment posting failed", err)
		return s.reject(st, hostError(err))
	}

	s.audit(ctx, st, envelopeData(env), "Successful")
	st.State = StateSettled
	st.Outcome = &Outcome{
		Kind:          OutcomeAccepted,
		InvoiceID:     invoice.ID,
		TransactionID: env.OrderID,
		Amount:        env.Amount,
		Status:        env.Status,
	}
	metrics.RecordSettlement(string(StateSettled))
	log.Info("Payment processed successfully")
	return nil
}

// DeferredFailureDescription is the audit description of a settlement that
// failed after the acknowledgement was sent
const DeferredFailureDescription = "Deferred Settlement Failed"

// Reconcile accepts paid when it is within tolerance of due, or when nothing
// is due anymore.
func Reconcile(paid, due, tolerance decimal.Decimal) error {
	if due.IsZero() {
		return nil
	}
	if paid.Sub(due).Abs().GreaterThan(tolerance) {
		return ErrAmountMismatch
	}
	return nil
}

// StatusMessage describes a callback status for people
func StatusMessage(status PaymentStatus) string {
	switch status {
	case StatusFulfilled:
		return "Payment completed successfully"
	case StatusPending:
		return "Payment is being processed"
	case StatusFailed:
		return "Payment failed"
	case StatusCancelled:
		return "Payment was cancelled"
	default:
		return "Unknown payment status"
	}
}

func (s *SettlementService) reject(st *Settlement, err error) error {
	st.State = StateRejected
	st.Err = err
	if st.Outcome == nil {
		st.Outcome = &Outcome{Kind: OutcomeRejected, Reason: err.Error()}
		if st.Envelope != nil {
			st.Outcome.InvoiceID = st.Envelope.InvoiceID
			st.Outcome.TransactionID = st.Envelope.OrderID
		}
	}
	metrics.RecordSettlement(Kind(err))
	return err
}

// RecordDeferredFailure audits a settlement that failed after the wallet was
// already acknowledged. The wallet will not redeliver, so the entry is what
// operators reconcile from.
func (s *SettlementService) RecordDeferredFailure(ctx context.Context, st *Settlement, err error) {
	data := map[string]any{"error": err.Error()}
	if st.Envelope != nil {
		data = envelopeData(st.Envelope)
		data["error"] = err.Error()
	}
	s.audit(ctx, st, data, DeferredFailureDescription)
	s.log(st).Error("Settlement failed after acknowledgement, manual reconciliation required", err)
}

// audit is best-effort, a failing audit sink never blocks settlement
func (s *SettlementService) audit(ctx context.Context, st *Settlement, data map[string]any, description string) {
	data["request_id"] = st.RequestID
	hctx, cancel := s.hostContext(ctx)
	defer cancel()

	if err := s.platform.AuditLog(hctx, s.cfg.Name, data, description); err != nil {
		metrics.RecordAuditFailure("host")
		s.log(st).Warn("Audit log failed: " + err.Error())
	}
}

func (s *SettlementService) hostContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.HostTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.HostTimeout)
}

func (s *SettlementService) log(st *Settlement) *logger.ContextLogger {
	cl := logger.WithRequest(s.cfg.Name, st.RequestID)
	if st.Envelope != nil {
		cl.AddField("order_id", st.Envelope.OrderID).AddField("invoice_id", st.Envelope.InvoiceID)
	}
	return cl
}

func hostError(err error) error {
	if errors.Is(err, ErrHostUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrHostUnavailable, err)
}

func envelopeData(env *Envelope) map[string]any {
	return map[string]any{
		"order_id":   env.OrderID,
		"amount":     env.Amount.StringFixed(2),
		"ref":        env.InvoiceID,
		"invoice_id": env.InvoiceID,
		"status":     string(env.Status),
		"currency":   env.Currency,
	}
}
