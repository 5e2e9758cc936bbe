package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/recopy/internal/fixture"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

// setupBackend attaches a backend for the quote and invoice models in a
// temporary directory and detaches it when the test ends.
func setupBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend(fixture.QuoteInvoice())
	config := types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	}
	require.NoError(t, b.Attach(config))
	t.Cleanup(func() { b.Detach() })
	return b
}

func model(t *testing.T, b *Backend, name string) *types.Model {
	t.Helper()
	m, err := b.Registry().Model(name)
	require.NoError(t, err)
	return m
}

func TestBackend_Attach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend(fixture.QuoteInvoice())
	config := types.Config{Backend: types.BackendSQLite, DataDir: dir}

	require.NoError(t, b.Attach(config))
	defer b.Detach()

	_, err := os.Stat(filepath.Join(dir, DBFile))
	assert.NoError(t, err, "database file should exist")

	assert.ErrorIs(t, b.Attach(config), types.ErrAlreadyAttached)
}

func TestBackend_AttachInvalidConfig(t *testing.T) {
	b := NewBackend(fixture.QuoteInvoice())
	assert.ErrorIs(t, b.Attach(types.Config{DataDir: t.TempDir()}), types.ErrBackendEmpty)
	assert.ErrorIs(t, b.Attach(types.Config{Backend: "postgres", DataDir: t.TempDir()}), types.ErrBackendUnknown)
}

func TestBackend_Detach(t *testing.T) {
	b := NewBackend(fixture.QuoteInvoice())
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))

	require.NoError(t, b.Detach())
	assert.NoError(t, b.Detach(), "second Detach should not error")

	quote, err := b.Registry().Model(fixture.Quote)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = b.Load(ctx, quote, 1)
	assert.ErrorIs(t, err, types.ErrBackendDetached)
	_, err = b.Insert(ctx, quote.NewRecord())
	assert.ErrorIs(t, err, types.ErrBackendDetached)
	_, err = b.List(ctx, quote)
	assert.ErrorIs(t, err, types.ErrBackendDetached)
	err = b.Transact(ctx, func(types.Store) error { return nil })
	assert.ErrorIs(t, err, types.ErrBackendDetached)
}

func TestBackend_ReattachKeepsRows(t *testing.T) {
	dir := t.TempDir()
	config := types.Config{Backend: types.BackendSQLite, DataDir: dir}
	ctx := context.Background()

	b := NewBackend(fixture.QuoteInvoice())
	require.NoError(t, b.Attach(config))
	quote := model(t, b, fixture.Quote)
	_, err := types.InsertGraph(ctx, b, quote, fixture.QuoteData("q1", fixture.Line("tools", 5, 10)))
	require.NoError(t, err)
	require.NoError(t, b.Detach())

	b = NewBackend(fixture.QuoteInvoice())
	require.NoError(t, b.Attach(config))
	defer b.Detach()
	quote = model(t, b, fixture.Quote)

	got, err := b.Load(ctx, quote, 1)
	require.NoError(t, err)
	assert.Equal(t, "q1", got.String("ref"))
	assert.InDelta(t, 50.0, got.Float("total"), 0.001)
}

func TestBackend_Transact(t *testing.T) {
	tests := []struct {
		name    string
		fail    bool
		wantLen int
	}{
		{name: "commit keeps writes", fail: false, wantLen: 1},
		{name: "error rolls back writes", fail: true, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := setupBackend(t)
			quote := model(t, b, fixture.Quote)
			ctx := context.Background()

			err := b.Transact(ctx, func(s types.Store) error {
				rec := quote.NewRecord()
				require.NoError(t, rec.Set("ref", "q1"))
				if _, err := s.Insert(ctx, rec); err != nil {
					return err
				}
				if tt.fail {
					return assert.AnError
				}
				return nil
			})
			if tt.fail {
				assert.ErrorIs(t, err, assert.AnError)
			} else {
				assert.NoError(t, err)
			}

			recs, err := b.List(ctx, quote)
			require.NoError(t, err)
			assert.Len(t, recs, tt.wantLen)
		})
	}
}

func TestTableDefs(t *testing.T) {
	reg := fixture.QuoteInvoice()
	defs, err := tableDefs(reg.Models())
	require.NoError(t, err)

	byName := make(map[string]*tableDef)
	for _, d := range defs {
		byName[d.name] = d
	}
	require.Len(t, byName, 3, "invoice, quote and the shared line table")

	line := byName["line"]
	require.NotNil(t, line)
	assert.Equal(t, []string{"parent_id", "name", "type", "qty", "price", "vat"}, line.columns)
	assert.Equal(t, "REAL", line.kinds["price"])
	assert.Equal(t, "INTEGER", line.kinds["qty"])
	assert.Equal(t, "TEXT", line.kinds["type"])
	assert.Equal(t, "INTEGER", byName["invoice"].kinds["is_paid"])
}

func TestTableDefs_ConflictingColumn(t *testing.T) {
	a := &types.Model{Name: "a", Table: "shared", Fields: []*types.Field{types.Stored("x", types.ValueTypeText)}}
	b := &types.Model{Name: "b", Table: "shared", Fields: []*types.Field{types.Stored("x", types.ValueTypeInteger)}}

	_, err := tableDefs([]*types.Model{a, b})
	assert.ErrorIs(t, err, types.ErrInvalidModel)
}
