// Package sqlite provides the public API for the SQLite backend.
// This package exposes the factory function for creating SQLite backends
// while keeping implementation details internal.
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/recopy/internal/sqlite"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

// NewBackend creates a new SQLite backend serving the models in reg.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	backend := sqlite.NewBackend(reg, logger)
//	err := backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".recopy-db",
//	})
//	defer backend.Detach()
func NewBackend(reg *types.Registry, logger *zap.Logger) types.Backend {
	return sqlite.NewBackend(reg, sqlite.WithLogger(logger))
}
