package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMissingCredentials is returned when the wallet API key or secret is not configured.
var ErrMissingCredentials = errors.New("gateway api credentials are not configured")

// DefaultCurrencies is the currency allow-list accepted by the wallet.
var DefaultCurrencies = []string{
	"USD", "EUR", "GBP", "CAD", "AUD", "JPY", "CHF", "CNY", "INR", "BRL",
	"MXN", "SGD", "HKD", "NOK", "SEK", "DKK", "PLN", "CZK", "HUF", "ILS",
	"NZD", "PHP", "THB", "MYR", "KRW", "TWD", "RUB", "TRY", "ZAR", "AED",
}

// AppConfig represents the process level configuration
type AppConfig struct {
	Port             string
	Environment      string
	StorageDriver    string
	SQLitePath       string
	PostgresDSN      string
	OpenSearchURL    string
	OpenSearchUser   string
	OpenSearchPass   string
	EnableOpenSearch bool
	KafkaBrokers     []string
	KafkaTopic       string
	AdminAPIKey      string
	LoggingLevel     string
}

// GatewayConfig holds everything the webhook core needs. It is built once and
// passed explicitly to the handler and settlement service.
type GatewayConfig struct {
	Name                     string
	APIKey                   string
	APISecret                string
	BaseURL                  string
	MaxAmount                decimal.Decimal
	Tolerance                decimal.Decimal
	Currencies               []string
	EnforceCurrencyAllowList bool
	MaxBodyBytes             int64
	RateLimit                int
	RateWindow               time.Duration
	HostTimeout              time.Duration
	AckBeforeSettle          bool
	TrustProxyHeaders        bool
}

var appConfigInstance *AppConfig

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:             GetEnv("APP_PORT", "9999"),
			Environment:      GetEnv("ENVIRONMENT", "development"),
			StorageDriver:    strings.ToLower(GetEnv("STORAGE_DRIVER", "sqlite")),
			SQLitePath:       GetEnv("SQLITE_PATH", "./data/kazapay.db"),
			PostgresDSN:      GetEnv("POSTGRES_DSN", ""),
			OpenSearchURL:    GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:   GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:   GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableOpenSearch: GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			KafkaBrokers:     GetListEnv("KAFKA_BROKERS", nil),
			KafkaTopic:       GetEnv("KAFKA_TOPIC", "kazapay.settlements"),
			AdminAPIKey:      GetEnv("API_KEY", ""),
			LoggingLevel:     GetEnv("LOGGING_LEVEL", "info"),
		}
	}
	return appConfigInstance
}

// DefaultGatewayConfig returns the gateway defaults without credentials.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Name:         "kazawallet",
		BaseURL:      "https://outdoor.kasroad.com",
		MaxAmount:    decimal.RequireFromString("999999.99"),
		Tolerance:    decimal.RequireFromString("0.01"),
		Currencies:   append([]string(nil), DefaultCurrencies...),
		MaxBodyBytes: 10 * 1024,
		RateLimit:    10,
		RateWindow:   time.Minute,
		HostTimeout:  15 * time.Second,
	}
}

// LoadGatewayConfig reads the gateway configuration from the environment.
func LoadGatewayConfig() (GatewayConfig, error) {
	cfg := DefaultGatewayConfig()
	cfg.Name = GetEnv("GATEWAY_NAME", cfg.Name)
	cfg.APIKey = strings.TrimSpace(GetEnv("KAZAWALLET_API_KEY", ""))
	cfg.APISecret = strings.TrimSpace(GetEnv("KAZAWALLET_API_SECRET", ""))
	cfg.BaseURL = GetEnv("KAZAWALLET_BASE_URL", cfg.BaseURL)
	cfg.EnforceCurrencyAllowList = GetBoolEnv("ENFORCE_CURRENCY_ALLOWLIST", false)
	cfg.MaxBodyBytes = int64(GetIntEnv("WEBHOOK_MAX_BODY_BYTES", int(cfg.MaxBodyBytes)))
	cfg.RateLimit = GetIntEnv("WEBHOOK_RATE_LIMIT", cfg.RateLimit)
	cfg.RateWindow = GetDurationEnv("WEBHOOK_RATE_WINDOW", cfg.RateWindow)
	cfg.HostTimeout = GetDurationEnv("HOST_TIMEOUT", cfg.HostTimeout)
	cfg.AckBeforeSettle = GetBoolEnv("ACK_BEFORE_SETTLE", false)
	cfg.TrustProxyHeaders = GetBoolEnv("TRUST_PROXY_HEADERS", false)

	if currencies := GetListEnv("CURRENCY_ALLOWLIST", nil); len(currencies) > 0 {
		cfg.Currencies = currencies
	}
	for i, c := range cfg.Currencies {
		cfg.Currencies[i] = strings.ToUpper(c)
	}

	var err error
	if cfg.MaxAmount, err = GetDecimalEnv("WEBHOOK_MAX_AMOUNT", cfg.MaxAmount); err != nil {
		return cfg, err
	}
	if cfg.Tolerance, err = GetDecimalEnv("SETTLEMENT_TOLERANCE", cfg.Tolerance); err != nil {
		return cfg, err
	}

	if err := cfg.checkLimits(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports missing credentials. The server still starts without them,
// every webhook is then answered with 503 until they are configured.
func (c GatewayConfig) Validate() error {
	if c.APIKey == "" || c.APISecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c GatewayConfig) checkLimits() error {
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("config: WEBHOOK_MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("config: WEBHOOK_RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("config: WEBHOOK_RATE_WINDOW must be positive, got %s", c.RateWindow)
	}
	if !c.MaxAmount.IsPositive() {
		return fmt.Errorf("config: WEBHOOK_MAX_AMOUNT must be positive, got %s", c.MaxAmount)
	}
	if c.Tolerance.IsNegative() {
		return fmt.Errorf("config: SETTLEMENT_TOLERANCE must not be negative, got %s", c.Tolerance)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("config: KAZAWALLET_BASE_URL must be an https url, got %q", c.BaseURL)
	}
	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetDurationEnv accepts Go durations ("90s") or plain seconds ("90").
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// GetListEnv splits a comma separated variable, dropping blanks.
func GetListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetDecimalEnv parses a decimal variable. Unlike the other helpers a malformed
// value is an error, money limits must not silently fall back.
func GetDecimalEnv(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return defaultValue, fmt.Errorf("config: %s is not a decimal: %w", key, err)
	}
	return parsed, nil
}
