package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackctl-io/stackctl/internal/config"
)

var (
	deployEnv    string
	deployConfig string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the full topology for an environment",
	Long: `Creates every resource the environment needs, in dependency order.

Resources that already exist in the state database are skipped, so re-running
deploy after a partial failure resumes where the previous run stopped.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployEnv, "env", "", "Environment name")
	deployCmd.Flags().StringVar(&deployConfig, "config", "config.yaml", "Path to the environment configuration file")
	deployCmd.MarkFlagRequired("env")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	cfg, err := config.Load(deployConfig)
	if err != nil {
		return err
	}

	eng, release, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	fmt.Printf("Deploying environment %q in %s...\n", deployEnv, cfg.Region)

	result, err := eng.Deploy(ctx, deployEnv, cfg)
	if result != nil {
		for _, rec := range result.Created {
			fmt.Printf("  created %-22s %s\n", rec.Kind, rec.ProviderID)
		}
		if result.Skipped > 0 {
			fmt.Printf("  %d resource(s) already present, skipped\n", result.Skipped)
		}
	}
	if err != nil {
		return fmt.Errorf("deploy failed: %w", err)
	}

	fmt.Printf("\nEnvironment %q is deployed.\n", deployEnv)
	return nil
}
