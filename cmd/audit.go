package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/spf13/cobra"
)

var (
	auditLimit int
	auditJSON  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the most recent gateway log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := config.GetAppConfig()
		store, err := openStorage(cmd.Context(), app)
		if err != nil {
			return err
		}
		defer store.close()

		if auditLimit <= 0 || auditLimit > 1000 {
			return fmt.Errorf("--limit must be between 1 and 1000, got %d", auditLimit)
		}
		entries, err := store.ledger.RecentGatewayLog(cmd.Context(), auditLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if auditJSON {
			enc := json.NewEncoder(out)
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tGATEWAY\tDESCRIPTION\tORDER\tINVOICE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%v\n",
				e.CreatedAt.Format(time.RFC3339), e.Gateway, e.Description,
				valueOr(e.Data["order_id"]), valueOr(e.Data["ref"]))
		}
		return tw.Flush()
	},
}

func valueOr(v any) any {
	if v == nil {
		return "-"
	}
	return v
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "number of entries")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "print one JSON object per line")
}
