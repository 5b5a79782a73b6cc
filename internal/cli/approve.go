package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var actor string

var approveCmd = &cobra.Command{
	Use:   "approve [recommendation_id]",
	Short: "Approve a pending recommendation for execution on the next cycle",
	Args:  cobra.ExactArgs(1),
	Run:   runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject [recommendation_id]",
	Short: "Reject a pending recommendation",
	Args:  cobra.ExactArgs(1),
	Run:   runReject,
}

func init() {
	approveCmd.Flags().StringVar(&actor, "actor", "cli", "who is approving")
	rejectCmd.Flags().StringVar(&actor, "actor", "cli", "who is rejecting")
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
}

func runApprove(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	env := openAdmin(ctx, cfg)
	defer env.close()

	rec, err := env.machine.Approve(ctx, args[0], actor)
	if err != nil {
		fmt.Printf("Failed to approve: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Approved %s (%s on %s, est. $%.2f/mo). The agent executes it on its next cycle.\n",
		rec.ID, rec.Type, rec.ResourceID, rec.ProjectedMonthlySavings)
}

func runReject(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	env := openAdmin(ctx, cfg)
	defer env.close()

	rec, err := env.machine.Reject(ctx, args[0], actor)
	if err != nil {
		fmt.Printf("Failed to reject: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Rejected %s (%s on %s)\n", rec.ID, rec.Type, rec.ResourceID)
}
