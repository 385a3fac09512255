package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-import/internal/dedupe"
	"github.com/sells-group/lead-import/internal/leadimport"
	"github.com/sells-group/lead-import/internal/merge"
	"github.com/sells-group/lead-import/internal/resilience"
	"github.com/sells-group/lead-import/internal/store"
)

type retryingStore interface {
	store.Store
	SetRetryConfig(cfg resilience.RetryConfig)
}

func initStore(ctx context.Context) (store.Store, error) {
	var st retryingStore
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		s, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	st.SetRetryConfig(cfg.Retry.Policy())
	return st, nil
}

// importEnv holds the services a command works with.
type importEnv struct {
	Store   store.Store
	Imports *leadimport.Service
	Merges  *merge.Engine
}

// initImportEnv validates the config for mode, opens and migrates the store,
// and builds the services on top of it.
func initImportEnv(ctx context.Context, mode string) (*importEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	svc := leadimport.NewService(st, dedupe.NewMatcher(cfg.Dedupe), leadimport.Options{
		MaxFileBytes:    cfg.Import.MaxFileBytes,
		DefaultPageSize: cfg.Import.PageSizeDefault,
	})
	return &importEnv{Store: st, Imports: svc, Merges: merge.NewEngine(st)}, nil
}

// Close releases the store.
func (e *importEnv) Close() {
	_ = e.Store.Close()
}
