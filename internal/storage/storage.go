package storage

import (
	"log/slog"

	"github.com/eval-forge/eval-forge/internal/abstractions"
	"github.com/eval-forge/eval-forge/internal/serviceerrors"
	"github.com/eval-forge/eval-forge/internal/storage/memory"
	"github.com/eval-forge/eval-forge/internal/storage/sql"
)

// NewStorage creates the storage backend the database configuration selects:
// the in-memory store for the "memory" driver, SQL for everything else.
func NewStorage(databaseConfig *map[string]any, logger *slog.Logger) (abstractions.Storage, error) {
	if databaseConfig == nil {
		return nil, serviceerrors.NewStorageError("database configuration is required")
	}
	if driver, ok := (*databaseConfig)["driver"].(string); ok && driver == memory.Driver {
		return memory.NewStorage(logger)
	}
	return sql.NewStorage(*databaseConfig, logger)
}
