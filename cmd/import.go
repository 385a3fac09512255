package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-import/internal/leadimport"
	"github.com/sells-group/lead-import/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Create, map, execute and inspect import runs",
}

// -- import create --

var importCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Upload a CSV, TSV or XLSX file as a new import run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("file")
		key, _ := cmd.Flags().GetString("key")
		uploader, _ := cmd.Flags().GetString("uploader")
		if uploader == "" {
			uploader = actorID(cmd)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "import create: read %s", path)
		}

		env, err := initImportEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Imports.CreateFromFile(ctx, leadimport.CreateRunInput{
			TenantID:       tenantID(cmd),
			UploaderID:     uploader,
			Filename:       filepath.Base(path),
			Data:           data,
			IdempotencyKey: key,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		formatRunSummary(out, run)
		if run.Status == model.RunStatusPendingMapping {
			_, _ = fmt.Fprintln(out, "\nSuggested mapping:")
			formatMapping(out, leadimport.SuggestMapping(run.Headers))
		}
		return nil
	},
}

// -- import map --

var importMapCmd = &cobra.Command{
	Use:   "map",
	Short: "Set the column mapping of a run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		runID, _ := cmd.Flags().GetString("run")

		env, err := initImportEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Imports.GetRun(ctx, tenantID(cmd), runID)
		if err != nil {
			return err
		}
		mapping, err := mappingFromFlags(cmd, run.Headers)
		if err != nil {
			return err
		}

		run, err = env.Imports.SetMapping(ctx, tenantID(cmd), runID, mapping)
		if err != nil {
			return err
		}
		formatMapping(cmd.OutOrStdout(), run.Mapping)
		return nil
	},
}

// -- import preview --

var importPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the first rows of a run as uploaded",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		runID, _ := cmd.Flags().GetString("run")
		limit, _ := cmd.Flags().GetInt("limit")
		if limit == 0 {
			limit = cfg.Import.PreviewDefault
		}

		env, err := initImportEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Imports.GetRun(ctx, tenantID(cmd), runID)
		if err != nil {
			return err
		}
		rows, err := env.Imports.Preview(ctx, tenantID(cmd), runID, limit)
		if err != nil {
			return err
		}
		formatPreview(cmd.OutOrStdout(), run.Headers, rows)
		return nil
	},
}

// -- import execute --

var importExecuteCmd = &cobra.Command{
	Use:   "execute",
	Short: "Classify every pending row of a mapped run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		runID, _ := cmd.Flags().GetString("run")

		env, err := initImportEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Imports.Execute(ctx, tenantID(cmd), runID, actorID(cmd))
		if err != nil {
			return err
		}
		formatRunSummary(cmd.OutOrStdout(), run)
		return nil
	},
}

// -- import rows --

var importRowsCmd = &cobra.Command{
	Use:   "rows",
	Short: "List the classified rows of a run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		runID, _ := cmd.Flags().GetString("run")
		bucket, _ := cmd.Flags().GetString("bucket")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		env, err := initImportEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Imports.ListRows(ctx, leadimport.RowQuery{
			TenantID: tenantID(cmd),
			RunID:    runID,
			Bucket:   model.RowBucket(bucket),
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			return err
		}
		formatRowPage(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	importCreateCmd.Flags().String("file", "", "path to the CSV, TSV or XLSX file (required)")
	importCreateCmd.Flags().String("uploader", "", "uploader id (defaults to --actor)")
	importCreateCmd.Flags().String("key", "", "idempotency key; repeating it returns the existing run")
	_ = importCreateCmd.MarkFlagRequired("file")

	importMapCmd.Flags().String("run", "", "run id (required)")
	_ = importMapCmd.MarkFlagRequired("run")
	addMappingFlags(importMapCmd)

	importPreviewCmd.Flags().String("run", "", "run id (required)")
	importPreviewCmd.Flags().Int("limit", 0, "number of rows (defaults to import.preview_default)")
	_ = importPreviewCmd.MarkFlagRequired("run")

	importExecuteCmd.Flags().String("run", "", "run id (required)")
	_ = importExecuteCmd.MarkFlagRequired("run")

	importRowsCmd.Flags().String("run", "", "run id (required)")
	importRowsCmd.Flags().String("bucket", "", "created, hard, soft, errors, skipped or pending")
	importRowsCmd.Flags().Int("page", 1, "page number, starting at 1")
	importRowsCmd.Flags().Int("page-size", 0, "rows per page (defaults to import.page_size_default)")
	_ = importRowsCmd.MarkFlagRequired("run")

	importCmd.AddCommand(importCreateCmd)
	importCmd.AddCommand(importMapCmd)
	importCmd.AddCommand(importPreviewCmd)
	importCmd.AddCommand(importExecuteCmd)
	importCmd.AddCommand(importRowsCmd)
	rootCmd.AddCommand(importCmd)
}
