package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-import/internal/leadimport"
	"github.com/sells-group/lead-import/internal/model"
)

var importBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Create, map and execute several files concurrently",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		files, _ := cmd.Flags().GetStringArray("file")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency <= 0 {
			concurrency = cfg.Import.BatchConcurrency
		}

		env, err := initImportEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := processBatch(ctx, files, concurrency, func(ctx context.Context, path string) (*model.ImportRun, error) {
			return importFile(ctx, cmd, env.Imports, path)
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		var failed int
		for _, r := range results {
			if r.Err != nil {
				failed++
				_, _ = fmt.Fprintf(out, "%s: %v\n", r.File, r.Err)
				continue
			}
			formatRunSummary(out, r.Run)
		}
		if failed > 0 {
			return eris.Errorf("batch: %d of %d files failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	importBatchCmd.Flags().StringArray("file", nil, "file to import (repeatable, required)")
	importBatchCmd.Flags().Int("concurrency", 0, "files processed at once (defaults to import.batch_concurrency)")
	_ = importBatchCmd.MarkFlagRequired("file")
	addMappingFlags(importBatchCmd)
	importCmd.AddCommand(importBatchCmd)
}

// importFunc takes one file through create, map and execute.
type importFunc func(ctx context.Context, path string) (*model.ImportRun, error)

// batchResult is the outcome of one file in a batch.
type batchResult struct {
	File string
	Run  *model.ImportRun
	Err  error
}

// processBatch imports files concurrently. A failed file does not stop the
// others; results keep the order of files.
func processBatch(ctx context.Context, files []string, concurrency int, run importFunc) ([]batchResult, error) {
	results := make([]batchResult, len(files))
	if len(files) == 0 {
		return results, nil
	}

	zap.L().Info("processing batch",
		zap.Int("files", len(files)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for i, path := range files {
		g.Go(func() error {
			log := zap.L().With(zap.String("file", path))

			res, err := run(gctx, path)
			results[i] = batchResult{File: path, Run: res, Err: err}
			if err != nil {
				failed.Add(1)
				log.Error("import failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("import complete",
				zap.String("run_id", res.ID),
				zap.Int("created", res.Counts.Created),
				zap.Int("soft_duplicates", res.Counts.SoftDuplicate),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}

// importFile runs the whole lifecycle for one file. The file path is the
// idempotency key, so rerunning a batch resumes rather than duplicates.
func importFile(ctx context.Context, cmd *cobra.Command, svc *leadimport.Service, path string) (*model.ImportRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	tenant := tenantID(cmd)
	run, err := svc.CreateFromFile(ctx, leadimport.CreateRunInput{
		TenantID:       tenant,
		UploaderID:     actorID(cmd),
		Filename:       filepath.Base(path),
		Data:           data,
		IdempotencyKey: "batch:" + abs,
	})
	if err != nil {
		return nil, err
	}

	if run.Status.Mappable() {
		mapping, err := mappingFromFlags(cmd, run.Headers)
		if err != nil {
			return nil, err
		}
		if run, err = svc.SetMapping(ctx, tenant, run.ID, mapping); err != nil {
			return nil, err
		}
	}
	return svc.Execute(ctx, tenant, run.ID, actorID(cmd))
}
