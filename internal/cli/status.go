package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/vietddude/costwatch/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recommendation counts and realized savings per tenant",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	env := openAdmin(ctx, cfg)
	defer env.close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TENANT\tPENDING\tAPPROVED\tEXECUTED\tREJECTED\tFAILED\tSAVED/MO")

	for _, tenantID := range cfg.Agent.Tenants {
		counts, err := env.recs.CountByStatus(ctx, tenantID)
		if err != nil {
			fmt.Printf("Failed to count recommendations for %s: %v\n", tenantID, err)
			os.Exit(1)
		}
		saved, err := env.history.TotalActualSavings(ctx, tenantID)
		if err != nil {
			fmt.Printf("Failed to sum savings for %s: %v\n", tenantID, err)
			os.Exit(1)
		}

		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t$%.2f\n",
			tenantID,
			counts[domain.StatusPending],
			counts[domain.StatusApproved],
			counts[domain.StatusExecuted],
			counts[domain.StatusRejected],
			counts[domain.StatusFailed],
			saved,
		)
	}
	_ = w.Flush()
}
