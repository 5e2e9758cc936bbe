// Package sqlite implements the SQLite storage backend for recopy. Tables
// are created from the registered models when the backend attaches; rows
// are read and written through a gateway that works on either the database
// handle or an open transaction.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

// DBFile is the database file name inside the data directory.
const DBFile = "recopy.db"

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend's logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// Backend implements types.Backend using SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sqlx.DB
	registry *types.Registry
	logger   *zap.Logger
}

// NewBackend creates a backend for the models in reg.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(reg *types.Registry, opts ...Option) *Backend {
	b := &Backend{registry: reg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry returns the models the backend serves.
func (b *Backend) Registry() *types.Registry {
	return b.registry
}

// Attach opens DataDir/recopy.db, creating the directory and any missing
// model tables. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	dbPath := filepath.Join(dataDir, DBFile)
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	// One connection: SQLite allows a single writer, and an open
	// transaction must see its own writes.
	db.SetMaxOpenConns(1)

	if err := createTables(context.Background(), db, b.registry.Models()); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.config = config
	b.attached = true
	b.logger.Debug("sqlite backend attached", zap.String("path", dbPath))
	return nil
}

// Detach closes the database. After Detach, all operations return
// ErrBackendDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if err := b.db.Close(); err != nil {
		return err
	}
	b.db = nil
	b.attached = false
	b.logger.Debug("sqlite backend detached")
	return nil
}

// Load implements types.Store.
func (b *Backend) Load(ctx context.Context, model *types.Model, id int64) (*types.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrBackendDetached
	}
	return b.gateway().Load(ctx, model, id)
}

// Insert implements types.Store.
func (b *Backend) Insert(ctx context.Context, rec *types.Record) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return 0, types.ErrBackendDetached
	}
	return b.gateway().Insert(ctx, rec)
}

// Update implements types.Store.
func (b *Backend) Update(ctx context.Context, rec *types.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrBackendDetached
	}
	return b.gateway().Update(ctx, rec)
}

// Children implements types.Store.
func (b *Backend) Children(ctx context.Context, parent *types.Record, rel *types.Relation) ([]*types.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrBackendDetached
	}
	return b.gateway().Children(ctx, parent, rel)
}

// List implements types.Store.
func (b *Backend) List(ctx context.Context, model *types.Model) ([]*types.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrBackendDetached
	}
	return b.gateway().List(ctx, model)
}

// Transact runs fn inside a database transaction. The transaction commits
// if fn returns nil and rolls back otherwise.
func (b *Backend) Transact(ctx context.Context, fn func(types.Store) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrBackendDetached
	}

	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&gateway{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			b.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		b.logger.Debug("transaction rolled back", zap.Error(err))
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (b *Backend) gateway() *gateway {
	return &gateway{q: b.db}
}
