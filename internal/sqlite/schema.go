package sqlite

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

// columnType maps a value type to its SQLite storage class.
func columnType(vt types.ValueType) string {
	switch vt {
	case types.ValueTypeInteger, types.ValueTypeBoolean:
		return "INTEGER"
	case types.ValueTypeNumeric, types.ValueTypeMoney:
		return "REAL"
	default:
		return "TEXT"
	}
}

type tableDef struct {
	name    string
	columns []string
	kinds   map[string]string
}

// tableDefs groups the stored fields of every model by table. Models that
// share a table contribute the union of their columns; a column declared
// with two storage classes is an error.
func tableDefs(models []*types.Model) ([]*tableDef, error) {
	var order []*tableDef
	byName := make(map[string]*tableDef)
	for _, m := range models {
		name := m.TableName()
		def, ok := byName[name]
		if !ok {
			def = &tableDef{name: name, kinds: make(map[string]string)}
			byName[name] = def
			order = append(order, def)
		}
		for _, f := range m.StoredFields() {
			ct := columnType(f.Type)
			if prev, ok := def.kinds[f.Name]; ok {
				if prev != ct {
					return nil, fmt.Errorf("%w: column %s.%s is both %s and %s",
						types.ErrInvalidModel, name, f.Name, prev, ct)
				}
				continue
			}
			def.kinds[f.Name] = ct
			def.columns = append(def.columns, f.Name)
		}
	}
	return order, nil
}

// createTables creates a table for every model table that does not exist.
// Existing tables are left as they are.
func createTables(ctx context.Context, db *sqlx.DB, models []*types.Model) error {
	defs, err := tableDefs(models)
	if err != nil {
		return err
	}
	for _, def := range defs {
		ctb := sqlbuilder.SQLite.NewCreateTableBuilder()
		ctb.CreateTable(quote(def.name)).IfNotExists()
		ctb.Define(quote(types.IDField), "INTEGER", "PRIMARY KEY", "AUTOINCREMENT")
		for _, col := range def.columns {
			ctb.Define(quote(col), def.kinds[col])
		}
		query, args := ctb.Build()
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("creating table %s: %w", def.name, err)
		}
	}
	return nil
}

// quote quotes an identifier taken from a model definition.
func quote(name string) string {
	return sqlbuilder.SQLite.Quote(name)
}
