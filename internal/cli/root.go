package cli

import (
	"github.com/spf13/cobra"

	"github.com/stackctl-io/stackctl/internal/logging"
)

var (
	statePath string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "stackctl",
	Short: "Provision and tear down web application environments on AWS",
	Long: `Stackctl manages named environments, each a complete topology for a
load-balanced web application: VPC networking, security groups, an IAM
instance role, an application load balancer, and an auto scaling group
with a target tracking scaling policy.

Every resource it creates is tracked in a local state database, so a
partially failed deploy can be re-run and a destroy removes exactly what
was created.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&statePath, "state", "state.db", "Path to the state database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(envsCmd)
	rootCmd.AddCommand(versionCmd)
}
