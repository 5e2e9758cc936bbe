package types

import (
	"fmt"
	"sync"
	"time"

	"github.com/mesh-intelligence/recopy/internal/formula"
)

// Registry resolves model names. Models are validated and their formulas
// compiled once, when registered; relations are resolved by name on use so
// models may reference each other in any order.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register validates and adds models. Nothing is added if any model is
// invalid. Returns ErrDuplicateName if a name is already registered and
// an error wrapping ErrInvalidModel for malformed declarations.
func (r *Registry) Register(models ...*Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if m == nil || m.Name == "" {
			return fmt.Errorf("%w: model name must not be empty", ErrInvalidModel)
		}
		if _, ok := r.models[m.Name]; ok || seen[m.Name] {
			return fmt.Errorf("%w: model %q", ErrDuplicateName, m.Name)
		}
		seen[m.Name] = true
		if err := prepare(m); err != nil {
			return err
		}
	}
	for _, m := range models {
		m.registry = r
		r.models[m.Name] = m
		r.order = append(r.order, m.Name)
	}
	return nil
}

// Model returns the named model or ErrUnknownModel.
func (r *Registry) Model(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Models returns all models in registration order.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Model, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.models[name])
	}
	return out
}

// Validate checks references between models: relation targets exist,
// has-many link fields are stored integer fields of the child, and
// aggregated fields exist on the child model.
func (r *Registry) Validate() error {
	for _, m := range r.Models() {
		for _, rel := range m.Relations {
			target, err := r.Model(rel.Model)
			if err != nil {
				return fmt.Errorf("%w: %s.%s: %w", ErrInvalidModel, m.Name, rel.Name, err)
			}
			if rel.Kind == HasManyKind {
				if err := checkLinkField(target, rel.LinkField); err != nil {
					return fmt.Errorf("%s.%s: %w", m.Name, rel.Name, err)
				}
			}
		}
		for _, f := range m.Fields {
			if f.Kind != FieldAggregate || f.Aggregate.Func == AggregateCount {
				continue
			}
			rel, _ := m.Relation(f.Aggregate.Relation)
			target, _ := r.Model(rel.Model)
			if _, ok := target.Field(f.Aggregate.Field); !ok {
				return fmt.Errorf("%w: %s.%s aggregates unknown field %s.%s",
					ErrInvalidModel, m.Name, f.Name, target.Name, f.Aggregate.Field)
			}
		}
	}
	return nil
}

// prepare validates a single model and compiles its formulas.
func prepare(m *Model) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: model %q: %s", ErrInvalidModel, m.Name, fmt.Sprintf(format, args...))
	}

	index := make(map[string]*Field, len(m.Fields))
	for _, f := range m.Fields {
		switch {
		case f == nil || f.Name == "":
			return invalid("field name must not be empty")
		case f.Name == IDField:
			return invalid("field %q is implicit", IDField)
		case index[f.Name] != nil:
			return invalid("duplicate field %q", f.Name)
		case !IsValidValueType(f.Type):
			return invalid("field %q: %v %q", f.Name, ErrInvalidValueType, f.Type)
		case f.Type == ValueTypeEnum && len(f.Enum) == 0:
			return invalid("enum field %q has no values", f.Name)
		}
		if f.Kind == "" {
			f.Kind = FieldStored
		}
		if f.Default != nil {
			if _, err := f.Coerce(f.Default); err != nil {
				return invalid("default: %v", err)
			}
		}
		index[f.Name] = f
	}

	relations := make(map[string]bool, len(m.Relations))
	for _, rel := range m.Relations {
		switch {
		case rel == nil || rel.Name == "":
			return invalid("relation name must not be empty")
		case relations[rel.Name] || index[rel.Name] != nil:
			return invalid("duplicate name %q", rel.Name)
		case rel.Model == "":
			return invalid("relation %q has no model", rel.Name)
		case rel.LinkField == "":
			return invalid("relation %q has no link field", rel.Name)
		case rel.Kind != HasManyKind && rel.Kind != HasOneKind:
			return invalid("relation %q has unknown kind %q", rel.Name, rel.Kind)
		}
		if rel.Kind == HasOneKind {
			if err := checkLinkField(&Model{Name: m.Name, fields: index}, rel.LinkField); err != nil {
				return fmt.Errorf("%s.%s: %w", m.Name, rel.Name, err)
			}
		}
		relations[rel.Name] = true
	}

	for _, c := range m.Conditions {
		f := index[c.Field]
		if f == nil || f.IsDerived() {
			return invalid("condition on unknown or derived field %q", c.Field)
		}
		if _, err := f.Coerce(c.Value); err != nil {
			return invalid("condition: %v", err)
		}
	}

	sample := formulaSample(m.Fields)
	for _, f := range m.Fields {
		switch f.Kind {
		case FieldStored:
			if f.Formula != "" || f.Func != nil || f.Aggregate != nil {
				return invalid("stored field %q declares a formula", f.Name)
			}
		case FieldComputed:
			switch {
			case f.Formula != "":
				fn, err := formula.Compile(f.Formula, sample)
				if err != nil {
					return invalid("field %q: %v", f.Name, err)
				}
				f.eval = FormulaFunc(fn)
			case f.Func != nil:
				f.eval = f.Func
			default:
				return invalid("computed field %q has no formula", f.Name)
			}
		case FieldAggregate:
			a := f.Aggregate
			if a == nil || !validAggregateFuncs[a.Func] {
				return invalid("aggregate field %q has no valid function", f.Name)
			}
			rel, ok := m.Relation(a.Relation)
			if !ok || rel.Kind != HasManyKind {
				return invalid("aggregate field %q needs a has-many relation, got %q", f.Name, a.Relation)
			}
			if a.Func != AggregateCount && a.Field == "" {
				return invalid("aggregate field %q has no source field", f.Name)
			}
		default:
			return invalid("field %q has unknown kind %q", f.Name, f.Kind)
		}
	}

	m.fields = index
	return nil
}

// checkLinkField requires name to be a stored integer field of m.
func checkLinkField(m *Model, name string) error {
	f, ok := m.Field(name)
	if !ok || f.IsDerived() || f.Type != ValueTypeInteger {
		return fmt.Errorf("%w: link field %s.%s must be a stored integer field", ErrInvalidModel, m.Name, name)
	}
	return nil
}

// formulaSample maps every field, and the ID, to a zero value of the Go
// type formulas see at run time.
func formulaSample(fields []*Field) map[string]any {
	sample := map[string]any{IDField: 0.0}
	for _, f := range fields {
		switch {
		case f.Type.IsNumeric():
			sample[f.Name] = 0.0
		case f.Type == ValueTypeBoolean:
			sample[f.Name] = false
		case f.Type == ValueTypeTimestamp:
			sample[f.Name] = time.Time{}
		default:
			sample[f.Name] = ""
		}
	}
	return sample
}
