package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackctl-io/stackctl/internal/config"
	"github.com/stackctl-io/stackctl/internal/engine"
)

var (
	statusEnv    string
	statusConfig string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the live health of an environment's resources",
	Long: `Queries the provider for every resource tracked in the state database
and reports its health. Nothing is mutated. The command exits non-zero when
any resource cannot be confirmed healthy.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusEnv, "env", "", "Environment name")
	statusCmd.Flags().StringVar(&statusConfig, "config", "config.yaml", "Path to the environment configuration file")
	statusCmd.MarkFlagRequired("env")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	cfg, err := config.Load(statusConfig)
	if err != nil {
		return err
	}

	eng, release, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	report, err := eng.Status(ctx, statusEnv)
	if err != nil {
		return err
	}
	if len(report.Resources) == 0 {
		fmt.Printf("Environment %q has no tracked resources.\n", statusEnv)
		return nil
	}

	fmt.Printf("Environment %q:\n", statusEnv)
	for _, res := range report.Resources {
		line := fmt.Sprintf("  %-8s %-22s %s", res.Health, res.Kind, res.ProviderID)
		if res.Detail != "" {
			line += "  " + res.Detail
		}
		fmt.Println(line)
	}

	if !report.Healthy {
		return fmt.Errorf("environment %q has resources in state %s", statusEnv, engine.HealthUnknown)
	}
	fmt.Println("\nAll resources healthy.")
	return nil
}
