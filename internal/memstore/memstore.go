// Package memstore provides an in-memory transactional Store. Tests use it
// to run the copy engine without a database.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

type table struct {
	nextID int64
	rows   map[int64]map[string]any
}

type state map[string]*table

func (s state) clone() state {
	out := make(state, len(s))
	for name, t := range s {
		rows := make(map[int64]map[string]any, len(t.rows))
		for id, row := range t.rows {
			rows[id] = maps.Clone(row)
		}
		out[name] = &table{nextID: t.nextID, rows: rows}
	}
	return out
}

func (s state) table(name string) *table {
	t, ok := s[name]
	if !ok {
		t = &table{rows: make(map[int64]map[string]any)}
		s[name] = t
	}
	return t
}

// Store keeps rows per table in memory. Models sharing a table share an
// ID sequence, as they would in a database.
type Store struct {
	mu    sync.RWMutex
	state state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: make(state)}
}

// Load implements types.Store.
func (s *Store) Load(ctx context.Context, model *types.Model, id int64) (*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).Load(ctx, model, id)
}

// Insert implements types.Store.
func (s *Store) Insert(ctx context.Context, rec *types.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).Insert(ctx, rec)
}

// Update implements types.Store.
func (s *Store) Update(ctx context.Context, rec *types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).Update(ctx, rec)
}

// Children implements types.Store.
func (s *Store) Children(ctx context.Context, parent *types.Record, rel *types.Relation) ([]*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).Children(ctx, parent, rel)
}

// List implements types.Store.
func (s *Store) List(ctx context.Context, model *types.Model) ([]*types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&view{st: s.state}).List(ctx, model)
}

// Transact runs fn against a copy of the store's state and keeps the copy
// only if fn succeeds.
func (s *Store) Transact(ctx context.Context, fn func(types.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &view{st: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

// Len returns the number of rows in a table.
func (s *Store) Len(tableName string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.state[tableName]; ok {
		return len(t.rows)
	}
	return 0
}

// view implements types.Store over a state. The caller holds the lock.
type view struct {
	st state
}

func (v *view) Load(ctx context.Context, model *types.Model, id int64) (*types.Record, error) {
	row, ok := v.st.table(model.TableName()).rows[id]
	if !ok || !matches(model, row) {
		return nil, fmt.Errorf("%w: %s %d", types.ErrNotFound, model.Name, id)
	}
	return v.hydrate(ctx, model, id, row)
}

func (v *view) Insert(_ context.Context, rec *types.Record) (int64, error) {
	if err := applyConditions(rec); err != nil {
		return 0, err
	}
	t := v.st.table(rec.Model.TableName())
	t.nextID++
	id := t.nextID
	t.rows[id] = rec.Stored()
	rec.MarkLoaded(id)
	return id, nil
}

func (v *view) Update(_ context.Context, rec *types.Record) error {
	t := v.st.table(rec.Model.TableName())
	row, ok := t.rows[rec.ID]
	if !ok || !matches(rec.Model, row) {
		return fmt.Errorf("%w: %s %d", types.ErrNotFound, rec.Model.Name, rec.ID)
	}
	if err := applyConditions(rec); err != nil {
		return err
	}
	t.rows[rec.ID] = rec.Stored()
	rec.MarkLoaded(rec.ID)
	return nil
}

func (v *view) Children(ctx context.Context, parent *types.Record, rel *types.Relation) ([]*types.Record, error) {
	child, err := parent.Model.Related(rel)
	if err != nil {
		return nil, err
	}
	if rel.Kind == types.HasOneKind {
		id := parent.Int(rel.LinkField)
		if id == 0 {
			return nil, nil
		}
		rec, err := v.Load(ctx, child, id)
		if err != nil {
			return nil, err
		}
		return []*types.Record{rec}, nil
	}
	return v.scan(ctx, child, func(row map[string]any) bool {
		return row[rel.LinkField] == parent.ID
	})
}

func (v *view) List(ctx context.Context, model *types.Model) ([]*types.Record, error) {
	return v.scan(ctx, model, func(map[string]any) bool { return true })
}

func (v *view) scan(ctx context.Context, model *types.Model, keep func(map[string]any) bool) ([]*types.Record, error) {
	t := v.st.table(model.TableName())
	ids := slices.Sorted(maps.Keys(t.rows))
	var out []*types.Record
	for _, id := range ids {
		row := t.rows[id]
		if !matches(model, row) || !keep(row) {
			continue
		}
		rec, err := v.hydrate(ctx, model, id, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (v *view) hydrate(ctx context.Context, model *types.Model, id int64, row map[string]any) (*types.Record, error) {
	rec := model.NewRecord()
	for _, f := range model.StoredFields() {
		if err := rec.Set(f.Name, row[f.Name]); err != nil {
			return nil, err
		}
	}
	rec.MarkLoaded(id)
	if err := types.Derive(ctx, rec, v.Children); err != nil {
		return nil, err
	}
	return rec, nil
}

func matches(model *types.Model, row map[string]any) bool {
	for _, c := range model.Conditions {
		f, ok := model.Field(c.Field)
		if !ok {
			return false
		}
		want, err := f.Coerce(c.Value)
		if err != nil || row[c.Field] != want {
			return false
		}
	}
	return true
}

func applyConditions(rec *types.Record) error {
	for _, c := range rec.Model.Conditions {
		if err := rec.Set(c.Field, c.Value); err != nil {
			return err
		}
	}
	return nil
}
