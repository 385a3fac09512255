package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-import/internal/leadimport"
	"github.com/sells-group/lead-import/internal/model"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a soft duplicate row by merge, create or skip",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		runID, _ := cmd.Flags().GetString("run")
		rowID, _ := cmd.Flags().GetString("row")
		actionFlag, _ := cmd.Flags().GetString("action")
		leadID, _ := cmd.Flags().GetString("lead")
		choose, _ := cmd.Flags().GetStringArray("choose")

		action, err := leadimport.ParseAction(actionFlag)
		if err != nil {
			return err
		}
		var chosen map[string]model.FieldChoice
		if action == leadimport.ActionMerge {
			if chosen, err = parseChoices(choose); err != nil {
				return err
			}
		}

		env, err := initImportEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Imports.Resolve(ctx, leadimport.ResolveInput{
			TenantID:      tenantID(cmd),
			RunID:         runID,
			RowID:         rowID,
			Action:        action,
			MatchedLeadID: leadID,
			ChosenFields:  chosen,
			Reason:        reasonFlag(cmd),
			ActorID:       actorID(cmd),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "row %d is now %s\n", res.Row.RowNumber, res.Row.Status)
		if res.Lead != nil {
			formatLead(out, res.Lead)
		}
		if res.MergeLog != nil {
			formatMergeLog(out, res.MergeLog)
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().String("run", "", "run id (required)")
	resolveCmd.Flags().String("row", "", "row id (required)")
	resolveCmd.Flags().String("action", "", "merge, create or skip (required)")
	resolveCmd.Flags().String("lead", "", "lead to merge into (merge only)")
	resolveCmd.Flags().StringArray("choose", nil, "field=existing|incoming (merge only, repeatable)")
	resolveCmd.Flags().String("reason", "", "note recorded with the resolution")
	for _, f := range []string{"run", "row", "action"} {
		_ = resolveCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(resolveCmd)
}

// reasonFlag returns --reason, or nil when it was not given.
func reasonFlag(cmd *cobra.Command) *string {
	if !cmd.Flags().Changed("reason") {
		return nil
	}
	v, _ := cmd.Flags().GetString("reason")
	return &v
}
