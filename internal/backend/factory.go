package backend

import (
	"context"
	"fmt"
	"log/slog"

	"billbuddy/internal/store/memory"
	"billbuddy/internal/store/sqlstore"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLBackend(ctx, sqlstore.SQLite, config.SQLiteDBPath, "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		// The DSN may carry a password, never log it.
		return f.createSQLBackend(ctx, sqlstore.Postgres, config.PostgresDSN)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLBackend(ctx context.Context, dialect sqlstore.Dialect, dsn string, logArgs ...any) (*BackendResult, error) {
	repo, err := sqlstore.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", dialect, err)
	}

	f.logger.Info("Initialized SQL backend", append([]any{"dialect", string(dialect)}, logArgs...)...)

	return &BackendResult{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	if config.MemoryStateFile == "" {
		f.logger.Info("Initialized memory backend", "persistent", false)
		st := memory.New()
		return &BackendResult{Store: st, Cleanup: st.Close}, nil
	}

	st, err := memory.NewFromFile(config.MemoryStateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory state: %w", err)
	}

	f.logger.Info("Initialized memory backend", "persistent", true, "state_file", config.MemoryStateFile)

	return &BackendResult{
		Store:   st,
		Cleanup: st.Close,
	}, nil
}
