package types

import (
	"context"
	"fmt"
)

// Store reads and writes records. Records returned by a store are loaded
// and have their derived fields computed.
type Store interface {
	// Load returns the record of model with id, or ErrNotFound.
	Load(ctx context.Context, model *Model, id int64) (*Record, error)
	// Insert assigns a new ID to rec and writes its stored values.
	Insert(ctx context.Context, rec *Record) (int64, error)
	// Update overwrites the stored values of an existing record.
	// Returns ErrNotFound if rec.ID does not exist.
	Update(ctx context.Context, rec *Record) error
	// Children returns the records of the many side of rel owned by parent,
	// ordered by ID.
	Children(ctx context.Context, parent *Record, rel *Relation) ([]*Record, error)
	// List returns every record of model ordered by ID.
	List(ctx context.Context, model *Model) ([]*Record, error)
}

// Transactor runs fn against a Store whose writes are committed only if
// fn returns nil.
type Transactor interface {
	Transact(ctx context.Context, fn func(Store) error) error
}

// Backend is a Store with a lifecycle.
type Backend interface {
	Store
	Transactor
	// Attach opens the backend. Returns ErrAlreadyAttached if called twice.
	Attach(config Config) error
	// Detach releases resources. It is idempotent.
	Detach() error
}

// Atomically runs fn inside a transaction when s supports one, and
// directly otherwise.
func Atomically(ctx context.Context, s Store, fn func(Store) error) error {
	if tx, ok := s.(Transactor); ok {
		return tx.Transact(ctx, fn)
	}
	return fn(s)
}

// InsertGraph inserts a record of model from data, then the records of
// any has-many relation named in data. Related entries are given as a
// list of maps; their link fields are set to the new owner's ID. The
// whole graph is inserted atomically when the store supports it.
func InsertGraph(ctx context.Context, s Store, model *Model, data map[string]any) (*Record, error) {
	var out *Record
	err := Atomically(ctx, s, func(st Store) error {
		id, err := insertNode(ctx, st, model, data, nil)
		if err != nil {
			return err
		}
		out, err = st.Load(ctx, model, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type link struct {
	field string
	id    int64
}

func insertNode(ctx context.Context, s Store, model *Model, data map[string]any, parent *link) (int64, error) {
	rec := model.NewRecord()
	nested := make(map[*Relation][]map[string]any)
	for k, v := range data {
		if k == IDField {
			continue
		}
		if rel, ok := model.Relation(k); ok {
			rows, err := asRows(v)
			if err != nil {
				return 0, fmt.Errorf("%s.%s: %w", model.Name, k, err)
			}
			if rel.Kind != HasManyKind {
				return 0, fmt.Errorf("%w: %s.%s is not a has-many relation", ErrInvalidModel, model.Name, k)
			}
			nested[rel] = rows
			continue
		}
		if model.IsComputed(k) {
			continue
		}
		if err := rec.Set(k, v); err != nil {
			return 0, err
		}
	}
	if parent != nil {
		if err := rec.Set(parent.field, parent.id); err != nil {
			return 0, err
		}
	}
	id, err := s.Insert(ctx, rec)
	if err != nil {
		return 0, err
	}

	for _, rel := range model.Relations {
		rows, ok := nested[rel]
		if !ok {
			continue
		}
		child, err := model.Related(rel)
		if err != nil {
			return 0, err
		}
		for _, row := range rows {
			if _, err := insertNode(ctx, s, child, row, &link{field: rel.LinkField, id: id}); err != nil {
				return 0, err
			}
		}
	}
	return id, nil
}

func asRows(v any) ([]map[string]any, error) {
	switch rows := v.(type) {
	case []map[string]any:
		return rows, nil
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			m, ok := r.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: related entry is %T, want an object", ErrTypeMismatch, r)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: related entries are %T, want a list", ErrTypeMismatch, v)
	}
}
