package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/mstgnz/kazapay/provider"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the reference ledger schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := config.GetAppConfig()
		store, err := openStorage(cmd.Context(), app)
		if err != nil {
			return err
		}
		defer store.close()

		if err := store.migrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate %s ledger: %w", app.StorageDriver, err)
		}
		logger.Info("Ledger schema is up to date", logger.LogContext{
			Fields: map[string]any{"storage": app.StorageDriver},
		})
		return nil
	},
}

// invoiceCreator is implemented by the persistent reference ledgers
type invoiceCreator interface {
	CreateInvoice(ctx context.Context, inv provider.Invoice) error
}

var (
	invoiceID       string
	invoiceTotal    string
	invoiceCurrency string
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Create or replace an invoice on the reference ledger",
	Long: `Create or replace an unpaid invoice on the reference ledger, so callbacks
for it can be tested end to end.

  kazapay invoice --id 4521 --total 25.00 --currency USD`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id := provider.NormalizeDigits(invoiceID)
		if id == "" {
			return fmt.Errorf("invoice id %q must contain digits", invoiceID)
		}
		total, err := decimal.NewFromString(strings.TrimSpace(invoiceTotal))
		if err != nil || total.IsNegative() {
			return fmt.Errorf("invalid total %q", invoiceTotal)
		}

		app := config.GetAppConfig()
		store, err := openStorage(cmd.Context(), app)
		if err != nil {
			return err
		}
		defer store.close()

		creator, ok := store.ledger.(invoiceCreator)
		if !ok {
			return fmt.Errorf("storage driver %q cannot create invoices", app.StorageDriver)
		}
		if err := store.migrate(cmd.Context()); err != nil {
			return err
		}

		inv := provider.Invoice{
			ID:       id,
			TotalDue: total.Round(2),
			Currency: provider.NormalizeCurrency(invoiceCurrency),
			Status:   provider.InvoiceUnpaid,
		}
		if err := creator.CreateInvoice(cmd.Context(), inv); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "invoice %s: %s %s due\n", inv.ID, inv.TotalDue.StringFixed(2), inv.Currency)
		return nil
	},
}

func init() {
	invoiceCmd.Flags().StringVar(&invoiceID, "id", "", "invoice id")
	invoiceCmd.Flags().StringVar(&invoiceTotal, "total", "", "total due")
	invoiceCmd.Flags().StringVar(&invoiceCurrency, "currency", "USD", "invoice currency")
	_ = invoiceCmd.MarkFlagRequired("id")
	_ = invoiceCmd.MarkFlagRequired("total")
}
