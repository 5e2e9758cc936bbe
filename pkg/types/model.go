package types

import (
	"fmt"
	"slices"
)

// IDField is the implicit integer primary key every model carries.
const IDField = "id"

// FieldKind tells whether a field is stored or derived on read.
type FieldKind string

// Field kinds.
const (
	FieldStored    FieldKind = "stored"
	FieldComputed  FieldKind = "computed"
	FieldAggregate FieldKind = "aggregate"
)

// AggregateFunc names the reduction applied by an aggregate field.
type AggregateFunc string

// Aggregate functions.
const (
	AggregateSum   AggregateFunc = "sum"
	AggregateCount AggregateFunc = "count"
	AggregateMin   AggregateFunc = "min"
	AggregateMax   AggregateFunc = "max"
	AggregateAvg   AggregateFunc = "avg"
)

var validAggregateFuncs = map[AggregateFunc]bool{
	AggregateSum:   true,
	AggregateCount: true,
	AggregateMin:   true,
	AggregateMax:   true,
	AggregateAvg:   true,
}

// FormulaFunc computes a derived value from a record's values keyed by
// field name. It must not have side effects.
type FormulaFunc func(values map[string]any) (any, error)

// Aggregate describes a reduction over the children of a has-many relation.
// Field is ignored for count.
type Aggregate struct {
	Relation string
	Field    string
	Func     AggregateFunc
}

// Field describes a single field of a model.
type Field struct {
	Name      string
	Kind      FieldKind
	Type      ValueType
	Default   any         // Overrides the type default for new records.
	Enum      []string    // Allowed values for enum fields.
	Formula   string      // Source expression for computed fields.
	Func      FormulaFunc // Go formula; used when Formula is empty.
	Aggregate *Aggregate

	eval FormulaFunc // compiled by Registry.Register
}

// Stored declares a stored field.
func Stored(name string, vt ValueType) *Field {
	return &Field{Name: name, Kind: FieldStored, Type: vt}
}

// Computed declares a field derived from formula, e.g. "qty * price".
// Field references may also be written in brackets: "[qty] * [price]".
func Computed(name string, vt ValueType, formula string) *Field {
	return &Field{Name: name, Kind: FieldComputed, Type: vt, Formula: formula}
}

// ComputedFunc declares a field derived by a Go function.
func ComputedFunc(name string, vt ValueType, fn FormulaFunc) *Field {
	return &Field{Name: name, Kind: FieldComputed, Type: vt, Func: fn}
}

// Aggregated declares a field reducing field over the children of relation.
func Aggregated(name string, vt ValueType, fn AggregateFunc, relation, field string) *Field {
	return &Field{
		Name:      name,
		Kind:      FieldAggregate,
		Type:      vt,
		Aggregate: &Aggregate{Relation: relation, Field: field, Func: fn},
	}
}

// WithDefault sets the field's default value and returns the field.
func (f *Field) WithDefault(v any) *Field {
	f.Default = v
	return f
}

// WithEnum sets the allowed values of an enum field and returns the field.
func (f *Field) WithEnum(values ...string) *Field {
	f.Enum = values
	return f
}

// IsDerived reports whether the field's value is computed on read.
func (f *Field) IsDerived() bool {
	return f.Kind == FieldComputed || f.Kind == FieldAggregate
}

// Coerce converts v to the field's type and checks enum membership.
func (f *Field) Coerce(v any) (any, error) {
	out, err := Coerce(f.Type, v)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", f.Name, err)
	}
	if f.Type == ValueTypeEnum && out != nil && !slices.Contains(f.Enum, out.(string)) {
		return nil, fmt.Errorf("field %q: %w: %q is not one of %v", f.Name, ErrTypeMismatch, out, f.Enum)
	}
	return out, nil
}

// DefaultValue returns the field's declared default, or the type default
// when none is declared.
func (f *Field) DefaultValue() (any, error) {
	if f.Default != nil {
		return f.Coerce(f.Default)
	}
	return DefaultValue(f.Type)
}

// RelationKind is the cardinality of a relation seen from its owner.
type RelationKind string

// Relation kinds.
const (
	// HasManyKind relations own child records whose LinkField holds the
	// owner's ID.
	HasManyKind RelationKind = "has_many"
	// HasOneKind relations reference a single record whose ID is held in
	// the owner's LinkField.
	HasOneKind RelationKind = "has_one"
)

// Relation declares a link from one model to another.
type Relation struct {
	Name      string
	Kind      RelationKind
	Model     string // Related model name, resolved through the registry.
	LinkField string
	Cascade   bool // Follow automatically when the owner is deep-copied.
}

// HasMany declares a one-to-many relation. linkField is the field on the
// related model that references this model's ID.
func HasMany(name, model, linkField string) *Relation {
	return &Relation{Name: name, Kind: HasManyKind, Model: model, LinkField: linkField}
}

// HasOne declares a many-to-one reference. linkField is the field on this
// model holding the related record's ID.
func HasOne(name, model, linkField string) *Relation {
	return &Relation{Name: name, Kind: HasOneKind, Model: model, LinkField: linkField}
}

// Cascading marks the relation to be followed by every deep copy of its
// owner and returns the relation.
func (r *Relation) Cascading() *Relation {
	r.Cascade = true
	return r
}

// Condition pins a stored field to a fixed value. Models sharing a table
// use conditions to select their own rows.
type Condition struct {
	Field string
	Value any
}

// Model is a record type: a table, an ordered list of fields, relations,
// and conditions.
type Model struct {
	Name       string
	Table      string // Defaults to Name.
	Fields     []*Field
	Relations  []*Relation
	Conditions []Condition

	registry *Registry
	fields   map[string]*Field
}

// TableName returns the table the model's rows live in.
func (m *Model) TableName() string {
	if m.Table != "" {
		return m.Table
	}
	return m.Name
}

// Field returns the named field.
func (m *Model) Field(name string) (*Field, bool) {
	if m.fields != nil {
		f, ok := m.fields[name]
		return f, ok
	}
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Relation returns the named relation.
func (m *Model) Relation(name string) (*Relation, bool) {
	for _, r := range m.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// IsComputed reports whether name is a derived field of the model.
func (m *Model) IsComputed(name string) bool {
	f, ok := m.Field(name)
	return ok && f.IsDerived()
}

// StoredFields returns the stored fields in declaration order.
func (m *Model) StoredFields() []*Field {
	out := make([]*Field, 0, len(m.Fields))
	for _, f := range m.Fields {
		if !f.IsDerived() {
			out = append(out, f)
		}
	}
	return out
}

// Condition returns the value the model pins field to.
func (m *Model) Condition(field string) (any, bool) {
	for _, c := range m.Conditions {
		if c.Field == field {
			return c.Value, true
		}
	}
	return nil, false
}

// Related resolves the model on the other side of rel.
// Returns ErrUnknownModel if the model was not registered with a registry
// that knows the related model.
func (m *Model) Related(rel *Relation) (*Model, error) {
	if m.registry == nil {
		return nil, fmt.Errorf("%w: %q is not registered", ErrUnknownModel, m.Name)
	}
	return m.registry.Model(rel.Model)
}

// NewRecord returns an unsaved record with defaults and conditions applied.
func (m *Model) NewRecord() *Record {
	r := &Record{Model: m, values: make(map[string]any, len(m.Fields))}
	for _, f := range m.Fields {
		if f.IsDerived() {
			continue
		}
		// Defaults were validated when the model was registered.
		v, _ := f.DefaultValue()
		r.values[f.Name] = v
	}
	for _, c := range m.Conditions {
		if f, ok := m.Field(c.Field); ok {
			v, _ := f.Coerce(c.Value)
			r.values[c.Field] = v
		}
	}
	return r
}
