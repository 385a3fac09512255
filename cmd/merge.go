package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-import/internal/merge"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge one lead into another",
	Long: "Copies the chosen fields from the merged lead onto the primary, moves its " +
		"activities and tasks, and tombstones it. Fields not chosen keep the primary's value.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		primary, _ := cmd.Flags().GetString("primary")
		merged, _ := cmd.Flags().GetString("merged")
		choose, _ := cmd.Flags().GetStringArray("choose")

		chosen, err := parseChoices(choose)
		if err != nil {
			return err
		}

		env, err := initImportEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Merges.MergeLeadRecords(ctx, merge.Input{
			TenantID:      tenantID(cmd),
			PrimaryLeadID: primary,
			MergedLeadID:  merged,
			ChosenFields:  chosen,
			Reason:        reasonFlag(cmd),
			ActorID:       actorID(cmd),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		formatLead(out, res.Primary)
		formatMergeLog(out, res.Log)
		_, _ = fmt.Fprintf(out, "moved %d activities, %d tasks; repointed %d tombstones\n",
			res.ActivitiesMoved, res.TasksMoved, res.TombstonesRepointed)
		return nil
	},
}

func init() {
	mergeCmd.Flags().String("primary", "", "lead that survives (required)")
	mergeCmd.Flags().String("merged", "", "lead folded into the primary (required)")
	mergeCmd.Flags().StringArray("choose", nil, "field=existing|incoming (repeatable)")
	mergeCmd.Flags().String("reason", "", "note recorded in the merge log")
	_ = mergeCmd.MarkFlagRequired("primary")
	_ = mergeCmd.MarkFlagRequired("merged")
	rootCmd.AddCommand(mergeCmd)
}
