package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "kazapay",
	Short: "KazaWallet payment gateway for billing platforms",
	Long: `KazaPay receives KazaWallet payment callbacks, verifies them and settles
the matching invoices on the billing host.

Start the server:
  kazapay serve

Create the reference ledger schema and a test invoice:
  kazapay migrate
  kazapay invoice --id 4521 --total 25.00

Compute the signature the wallet sends for a callback:
  kazapay sign --amount 25.00 --order-id abc123`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(invoiceCmd)
}

// loadEnv reads path into the environment. A missing file is fine, variables
// may come from the process environment alone.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("No %s file, using process environment", path)
			return nil
		}
		return err
	}
	return nil
}
