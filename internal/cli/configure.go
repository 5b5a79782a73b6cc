package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/costwatch/internal/core/domain"
)

var (
	cfgTenant     string
	cfgAutonomous bool
	cfgMaxRisk    int
	cfgCeiling    float64
	cfgAllow      []string
)

var configCmd = &cobra.Command{
	Use:   "configure",
	Short: "Update a tenant's autonomy policy",
	Long: `Update the policy governing autonomous execution for a tenant.
Running agents reload the policy through the invalidation channel; no restart is needed.`,
	Run: runConfigure,
}

func init() {
	configCmd.Flags().StringVar(&cfgTenant, "tenant", "default", "tenant to configure")
	configCmd.Flags().BoolVar(&cfgAutonomous, "autonomous", false, "enable autonomous execution")
	configCmd.Flags().IntVar(&cfgMaxRisk, "max-risk", 3, "maximum risk level executed without approval (0-10)")
	configCmd.Flags().Float64Var(&cfgCeiling, "ceiling", 10000, "annual savings above which approval is always required")
	configCmd.Flags().StringSliceVar(&cfgAllow, "allow", nil, "recommendation types allowed to run autonomously")
	rootCmd.AddCommand(configCmd)
}

func runConfigure(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	if cfgMaxRisk < 0 || cfgMaxRisk > 10 {
		fmt.Printf("Invalid max-risk %d: must be within [0, 10]\n", cfgMaxRisk)
		os.Exit(1)
	}

	ctx := context.Background()
	env := openAdmin(ctx, cfg)
	defer env.close()

	allowed := make([]domain.RecommendationType, 0, len(cfgAllow))
	for _, t := range cfgAllow {
		allowed = append(allowed, domain.RecommendationType(t))
	}

	policy := &domain.AgentConfiguration{
		TenantID:          cfgTenant,
		AutonomousEnabled: cfgAutonomous,
		MaxAutonomousRisk: cfgMaxRisk,
		ApprovalCeiling:   cfgCeiling,
		AllowedTypes:      allowed,
	}

	if err := env.configs.SaveAgentConfig(ctx, policy); err != nil {
		fmt.Printf("Failed to save configuration: %v\n", err)
		os.Exit(1)
	}

	// Signal running agents to drop their cached policy.
	event := domain.TransitionEvent{
		Type:      domain.EventConfigUpdated,
		TenantID:  cfgTenant,
		EmittedAt: time.Now(),
	}
	if err := env.publisher.Publish(ctx, event); err != nil {
		fmt.Printf("Saved, but failed to signal running agents: %v\n", err)
		fmt.Println("Agents pick up the change after a restart.")
		return
	}

	fmt.Printf("Updated policy for %s: autonomous=%t max-risk=%d ceiling=$%.0f allowed=%v\n",
		cfgTenant, cfgAutonomous, cfgMaxRisk, cfgCeiling, cfgAllow)
}
