package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mstgnz/kazapay/handler"
	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/mstgnz/kazapay/infra/middle"
	"github.com/mstgnz/kazapay/infra/opensearch"
	"github.com/mstgnz/kazapay/infra/queue"
	"github.com/mstgnz/kazapay/infra/validate"
	"github.com/mstgnz/kazapay/provider"
	"github.com/mstgnz/kazapay/provider/kazawallet"
	"github.com/mstgnz/kazapay/router"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP server with the callback, return flow, admin API, health and
metrics routes. The server starts without wallet credentials and answers
callbacks with 503 until they are configured.`,
	RunE: runServe,
}

type counterSweeper interface {
	Sweep(ctx context.Context, window time.Duration) (int64, error)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := config.GetAppConfig()
	gateway, err := config.LoadGatewayConfig()
	if err != nil {
		return err
	}

	// OpenSearch receives both system logs and audit entries
	var (
		sink  logger.Sink
		audit []provider.AuditLogger
	)
	if app.EnableOpenSearch {
		osClient, err := opensearch.NewClient(ctx, app, gateway.Name)
		if err != nil {
			logger.Warn("Failed to initialize OpenSearch client, continuing without it: " + err.Error())
		} else {
			osLogger := opensearch.NewLogger(osClient)
			sink = osLogger
			audit = append(audit, osLogger)
		}
	}
	logger.InitGlobalLogger(sink)

	if len(app.KafkaBrokers) > 0 {
		publisher := queue.NewPublisher(app.KafkaBrokers, app.KafkaTopic)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("Kafka publisher close failed: " + err.Error())
			}
		}()
		audit = append(audit, publisher)
		logger.Info("Publishing settlement events to Kafka topic " + app.KafkaTopic)
	}

	store, err := openStorage(ctx, app)
	if err != nil {
		return err
	}
	defer store.close()
	if err := store.migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s ledger: %w", app.StorageDriver, err)
	}

	if err := gateway.Validate(); err != nil {
		logger.Warn("Wallet credentials missing, callbacks will be answered with 503")
	}

	platform := provider.WithAudit(store.ledger, audit...)
	service := provider.NewSettlementService(gateway, platform, kazawallet.NewSigner(gateway.APIKey, gateway.APISecret))
	limiter := middle.NewRateLimiter(store.counters, gateway.RateLimit, gateway.RateWindow)

	var wallet handler.WalletClient
	if client, err := kazawallet.NewClient(gateway, nil); err == nil {
		wallet = client
	}

	r := router.New(router.Dependencies{
		Webhook:           handler.NewWebhookHandler(service, limiter),
		Status:            handler.NewStatusHandler(store.ledger, gateway.HostTimeout),
		Payment:           handler.NewPaymentHandler(wallet, store.ledger, gateway, validate.Validator()),
		Health:            handler.NewHealthHandler(gateway, app.Environment, map[string]handler.Pinger{"ledger": store.ledger}),
		AdminAPIKey:       app.AdminAPIKey,
		APILimiter:        middle.NewRateLimiter(nil, 100, time.Minute),
		TrustProxyHeaders: gateway.TrustProxyHeaders,
		AllowedOrigins:    config.GetListEnv("CORS_ALLOWED_ORIGINS", nil),
	})

	if sweeper, ok := store.counters.(counterSweeper); ok {
		go sweepCounters(ctx, sweeper, gateway.RateWindow)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", app.Port),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("API is running on "+app.Port, logger.LogContext{
		Fields: map[string]any{"storage": app.StorageDriver, "gateway": gateway.Name},
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func sweepCounters(ctx context.Context, sweeper counterSweeper, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.Sweep(ctx, window); err != nil && ctx.Err() == nil {
				logger.Warn("Rate limit sweep failed: " + err.Error())
			}
		}
	}
}
