package main

import (
	"encoding/json"
	"fmt"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/provider"
	"github.com/mstgnz/kazapay/provider/kazawallet"
	"github.com/spf13/cobra"
)

var (
	signAmount   string
	signOrderID  string
	signRef      string
	signStatus   string
	signCurrency string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Compute the callback signature for an amount and order id",
	Long: `Compute the signature the wallet sends in the secret field of a callback,
using the configured API key and secret.

With --ref the complete JSON callback body is printed instead, ready to be
posted to /callback/kazawallet.`,
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&signAmount, "amount", "", "payment amount, at most two decimals")
	signCmd.Flags().StringVar(&signOrderID, "order-id", "", "wallet order id")
	signCmd.Flags().StringVar(&signRef, "ref", "", "invoice id, prints a full callback body")
	signCmd.Flags().StringVar(&signStatus, "status", "fulfilled", "callback status")
	signCmd.Flags().StringVar(&signCurrency, "currency", "USD", "callback currency")
	_ = signCmd.MarkFlagRequired("amount")
	_ = signCmd.MarkFlagRequired("order-id")
}

func runSign(cmd *cobra.Command, args []string) error {
	gateway, err := config.LoadGatewayConfig()
	if err != nil {
		return err
	}

	amount, err := provider.ParseAmount(signAmount, gateway.MaxAmount)
	if err != nil {
		return err
	}
	orderID := provider.NormalizeOrderID(signOrderID)
	if orderID == "" {
		return fmt.Errorf("order id %q has no valid characters", signOrderID)
	}

	signature, err := kazawallet.NewSigner(gateway.APIKey, gateway.APISecret).ExpectedSignature(amount, orderID)
	if err != nil {
		return err
	}

	if signRef == "" {
		fmt.Fprintln(cmd.OutOrStdout(), signature)
		return nil
	}

	body, err := json.MarshalIndent(map[string]string{
		provider.FieldOrderID:  orderID,
		provider.FieldSecret:   signature,
		provider.FieldAmount:   kazawallet.CanonicalAmount(amount),
		provider.FieldRef:      signRef,
		provider.FieldStatus:   signStatus,
		provider.FieldCurrency: signCurrency,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
