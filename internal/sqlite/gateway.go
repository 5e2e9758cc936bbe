package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

// gateway implements types.Store over a database handle or a transaction.
// It does no locking; Backend serializes access.
type gateway struct {
	q sqlx.ExtContext
}

func (g *gateway) Load(ctx context.Context, model *types.Model, id int64) (*types.Record, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidID, id)
	}
	sb := selectFrom(model)
	sb.Where(sb.Equal(quote(types.IDField), id))
	recs, err := g.query(ctx, model, sb)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s %d", types.ErrNotFound, model.Name, id)
	}
	return recs[0], nil
}

func (g *gateway) Insert(ctx context.Context, rec *types.Record) (int64, error) {
	if err := applyConditions(rec); err != nil {
		return 0, err
	}
	table := quote(rec.Model.TableName())
	cols, vals := columns(rec)

	var (
		query string
		args  []any
	)
	if len(cols) == 0 {
		query = "INSERT INTO " + table + " DEFAULT VALUES"
	} else {
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto(table)
		ib.Cols(cols...)
		ib.Values(vals...)
		query, args = ib.Build()
	}
	res, err := g.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", rec.Model.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", rec.Model.Name, err)
	}
	rec.MarkLoaded(id)
	return id, nil
}

func (g *gateway) Update(ctx context.Context, rec *types.Record) error {
	if rec.ID <= 0 {
		return fmt.Errorf("%w: %d", types.ErrInvalidID, rec.ID)
	}
	if err := applyConditions(rec); err != nil {
		return err
	}
	cols, vals := columns(rec)

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update(quote(rec.Model.TableName()))
	assignments := make([]string, 0, len(cols))
	for i, col := range cols {
		assignments = append(assignments, ub.Assign(col, vals[i]))
	}
	if len(assignments) == 0 {
		assignments = append(assignments, ub.Assign(quote(types.IDField), rec.ID))
	}
	ub.Set(assignments...)
	ub.Where(append([]string{ub.Equal(quote(types.IDField), rec.ID)}, conditionExprs(&ub.Cond, rec.Model)...)...)

	query, args := ub.Build()
	res, err := g.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", rec.Model.Name, rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %d: %w", rec.Model.Name, rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", types.ErrNotFound, rec.Model.Name, rec.ID)
	}
	rec.MarkLoaded(rec.ID)
	return nil
}

func (g *gateway) Children(ctx context.Context, parent *types.Record, rel *types.Relation) ([]*types.Record, error) {
	child, err := parent.Model.Related(rel)
	if err != nil {
		return nil, err
	}
	if rel.Kind == types.HasOneKind {
		id := parent.Int(rel.LinkField)
		if id == 0 {
			return nil, nil
		}
		rec, err := g.Load(ctx, child, id)
		if err != nil {
			return nil, err
		}
		return []*types.Record{rec}, nil
	}
	sb := selectFrom(child)
	sb.Where(sb.Equal(quote(rel.LinkField), parent.ID))
	return g.query(ctx, child, sb)
}

func (g *gateway) List(ctx context.Context, model *types.Model) ([]*types.Record, error) {
	return g.query(ctx, model, selectFrom(model))
}

// selectFrom starts a query over the model's table filtered by its
// conditions and ordered by ID.
func selectFrom(model *types.Model) *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("*")
	sb.From(quote(model.TableName()))
	if conds := conditionExprs(&sb.Cond, model); len(conds) > 0 {
		sb.Where(conds...)
	}
	sb.OrderBy(quote(types.IDField))
	return sb
}

func conditionExprs(cond *sqlbuilder.Cond, model *types.Model) []string {
	out := make([]string, 0, len(model.Conditions))
	for _, c := range model.Conditions {
		f, _ := model.Field(c.Field)
		v, _ := f.Coerce(c.Value)
		out = append(out, cond.Equal(quote(c.Field), sqlValue(v)))
	}
	return out
}

func (g *gateway) query(ctx context.Context, model *types.Model, sb *sqlbuilder.SelectBuilder) ([]*types.Record, error) {
	query, args := sb.Build()
	rows, err := g.q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", model.Name, err)
	}
	var raw []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan %s: %w", model.Name, err)
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("scan %s: %w", model.Name, err)
	}
	rows.Close()

	// Rows are hydrated after the cursor closes: deriving aggregates
	// queries children on the same connection.
	out := make([]*types.Record, 0, len(raw))
	for _, row := range raw {
		rec, err := g.hydrate(ctx, model, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (g *gateway) hydrate(ctx context.Context, model *types.Model, row map[string]any) (*types.Record, error) {
	id, ok := row[types.IDField].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: %s row without integer id", types.ErrInvalidID, model.Name)
	}
	rec := model.NewRecord()
	for _, f := range model.StoredFields() {
		v := row[f.Name]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if err := rec.Set(f.Name, v); err != nil {
			return nil, fmt.Errorf("%s %d: %w", model.Name, id, err)
		}
	}
	rec.MarkLoaded(id)
	if err := types.Derive(ctx, rec, g.Children); err != nil {
		return nil, err
	}
	return rec, nil
}

// columns returns the quoted stored columns of rec and their SQL values.
func columns(rec *types.Record) ([]string, []any) {
	stored := rec.Model.StoredFields()
	cols := make([]string, 0, len(stored))
	vals := make([]any, 0, len(stored))
	for _, f := range stored {
		cols = append(cols, quote(f.Name))
		vals = append(vals, sqlValue(rec.Get(f.Name)))
	}
	return cols, vals
}

// sqlValue converts a coerced field value to a driver value.
func sqlValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func applyConditions(rec *types.Record) error {
	for _, c := range rec.Model.Conditions {
		if err := rec.Set(c.Field, c.Value); err != nil {
			return err
		}
	}
	return nil
}
