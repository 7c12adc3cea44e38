package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var envsCmd = &cobra.Command{
	Use:   "envs",
	Short: "List known environments",
	RunE:  runEnvs,
}

func runEnvs(cmd *cobra.Command, args []string) error {
	store, release, err := openStore()
	if err != nil {
		return err
	}
	defer release()

	deployments, err := store.Environments(cmdContext(cmd))
	if err != nil {
		return err
	}
	if len(deployments) == 0 {
		fmt.Println("No environments found.")
		return nil
	}

	for _, dep := range deployments {
		fmt.Printf("%-20s %-12s created %s\n", dep.Environment, dep.Status, dep.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
