package kazawallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/provider"
	"github.com/shopspring/decimal"
)

const (
	endpointPaymentLink = "/wallet/createPaymentLink"
	endpointWithdrawal  = "/wallet/createWithdrawalRequest"

	// DefaultPaymentMethod is the withdrawal method used for refunds
	DefaultPaymentMethod = "37"

	defaultTimeout = 30 * time.Second
)

var (
	ErrRequestFailed   = errors.New("kazawallet: request was not successful")
	ErrMissingResponse = errors.New("kazawallet: response is missing the expected field")
)

// zero decimal currencies are sent without fractional digits
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
	"CLP": true,
}

// PaymentLinkRequest creates a hosted payment page for an invoice
type PaymentLinkRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Email       string
	Ref         string
	RedirectURL string
}

// WithdrawalRequest moves funds back to a customer, used for refunds
type WithdrawalRequest struct {
	Email         string
	Currency      string
	Amount        decimal.Decimal
	Note          string
	PaymentMethod string
	Fields        map[string]string
}

type paymentLinkPayload struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	Ref         string `json:"ref"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

type withdrawalPayload struct {
	Email         string            `json:"email"`
	Currency      string            `json:"currency"`
	Amount        string            `json:"amount"`
	Note          string            `json:"note,omitempty"`
	PaymentMethod string            `json:"paymentMethod"`
	Fields        map[string]string `json:"fields,omitempty"`
}

type walletResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	PaymentURL   string `json:"payment_url,omitempty"`
	WithdrawalID any    `json:"withdrawal_id,omitempty"`
}

// Client calls the wallet REST API
type Client struct {
	http      *provider.ProviderHTTPClient
	apiKey    string
	apiSecret string
}

// NewClient creates a client for the configured gateway. httpClient may be
// nil.
func NewClient(cfg config.GatewayConfig, httpClient *http.Client) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc, err := provider.NewProviderHTTPClient(&provider.HTTPClientConfig{
		BaseURL: cfg.BaseURL,
		Timeout: defaultTimeout,
		DefaultHeaders: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "KazaPay/1.0",
		},
		Client: httpClient,
	})
	if err != nil {
		return nil, err
	}

	return &Client{http: hc, apiKey: cfg.APIKey, apiSecret: cfg.APISecret}, nil
}

// CreatePaymentLink returns the url the customer is redirected to
func (c *Client) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (string, error) {
	var resp walletResponse
	err := c.post(ctx, endpointPaymentLink, paymentLinkPayload{
		Amount:      FormatAmount(req.Amount, req.Currency),
		Currency:    strings.ToUpper(req.Currency),
		Email:       req.Email,
		Ref:         req.Ref,
		RedirectURL: req.RedirectURL,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.PaymentURL == "" {
		return "", fmt.Errorf("%w: payment_url", ErrMissingResponse)
	}
	return resp.PaymentURL, nil
}

// CreateWithdrawal returns the wallet's withdrawal id
func (c *Client) CreateWithdrawal(ctx context.Context, req WithdrawalRequest) (string, error) {
	method := req.PaymentMethod
	if method == "" {
		method = DefaultPaymentMethod
	}

	var resp walletResponse
	err := c.post(ctx, endpointWithdrawal, withdrawalPayload{
		Email:         req.Email,
		Currency:      strings.ToUpper(req.Currency),
		Amount:        FormatAmount(req.Amount, req.Currency),
		Note:          req.Note,
		PaymentMethod: method,
		Fields:        req.Fields,
	}, &resp)
	if err != nil {
		return "", err
	}

	switch id := resp.WithdrawalID.(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("%w: withdrawal_id", ErrMissingResponse)
}

func (c *Client) post(ctx context.Context, endpoint string, body any, target *walletResponse) error {
	resp, err := c.http.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpoint,
		Headers: map[string]string{
			"x-api-key":    c.apiKey,
			"x-api-secret": c.apiSecret,
		},
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("kazawallet %s: %w", endpoint, err)
	}

	if err := c.http.ParseJSONResponse(resp, target); err != nil {
		return fmt.Errorf("kazawallet %s: invalid response: %w", endpoint, err)
	}
	if !target.Success {
		if target.Message != "" {
			return fmt.Errorf("%w: %s", ErrRequestFailed, target.Message)
		}
		return ErrRequestFailed
	}
	return nil
}

// FormatAmount renders an outbound amount, without decimals for zero decimal
// currencies
func FormatAmount(amount decimal.Decimal, currency string) string {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return amount.StringFixed(0)
	}
	return amount.StringFixed(2)
}

// GenerateReference builds a unique reference for an invoice
func GenerateReference(invoiceID string, now time.Time) string {
	return fmt.Sprintf("WHMCS-%s-%d", invoiceID, now.Unix())
}

// IsSupportedCurrency reports whether currency is in the allow-list
func IsSupportedCurrency(currency string, allowed []string) bool {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	for _, c := range allowed {
		if c == currency {
			return true
		}
	}
	return false
}
