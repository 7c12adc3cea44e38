package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackctl-io/stackctl/internal/config"
)

var (
	destroyEnv         string
	destroyConfig      string
	destroyAutoApprove bool
)

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Tear down every resource in an environment",
	Long: `Deletes every resource tracked for the environment, in reverse
creation order, then forgets the environment.

Resources already deleted out-of-band are treated as gone. A failure partway
leaves the remaining records in the state database so the command can be
re-run.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().StringVar(&destroyEnv, "env", "", "Environment name")
	destroyCmd.Flags().StringVar(&destroyConfig, "config", "config.yaml", "Path to the environment configuration file")
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
	destroyCmd.MarkFlagRequired("env")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)

	cfg, err := config.Load(destroyConfig)
	if err != nil {
		return err
	}

	if !destroyAutoApprove {
		fmt.Printf("Destroy all resources of environment %q? (y/n): ", destroyEnv)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	eng, release, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	fmt.Printf("Destroying environment %q...\n", destroyEnv)

	result, err := eng.Destroy(ctx, destroyEnv)
	if result != nil && result.Removed > 0 {
		fmt.Printf("  removed %d resource(s)\n", result.Removed)
	}
	if err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}

	fmt.Printf("\nEnvironment %q is destroyed.\n", destroyEnv)
	return nil
}
