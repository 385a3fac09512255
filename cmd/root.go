package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "leadimport",
	Short: "Lead import and deduplication engine",
	Long: "Ingests CSV, TSV and XLSX lead files, maps their columns to lead fields, " +
		"classifies every row as new, hard duplicate or soft duplicate, and resolves " +
		"soft duplicates by merging, creating or skipping.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("tenant", "", "tenant id (defaults to tenant.id)")
	rootCmd.PersistentFlags().String("actor", "", "acting user id (defaults to tenant.actor_id)")
}

// tenantID returns the --tenant flag or the configured tenant.
func tenantID(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("tenant"); v != "" {
		return v
	}
	return cfg.Tenant.ID
}

func actorID(cmd *cobra.Command) string {
	if v, _ := cmd.Flags().GetString("actor"); v != "" {
		return v
	}
	return cfg.Tenant.ActorID
}

// exitCode maps an error kind to the process exit status.
func exitCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return 2
	case apperr.KindNotFound:
		return 3
	case apperr.KindConflict:
		return 4
	default:
		return 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
