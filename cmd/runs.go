package main

import (
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect import runs",
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run's state and counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initImportEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Imports.GetRun(ctx, tenantID(cmd), args[0])
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), run)
		}
		formatRunSummary(cmd.OutOrStdout(), run)
		return nil
	},
}

func init() {
	runsShowCmd.Flags().Bool("json", false, "print the full run as JSON")

	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
