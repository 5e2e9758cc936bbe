package types

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Record is an instance of a model. Stored values are coerced to their
// field types on Set; derived values are filled in by Derive when a store
// loads the record.
type Record struct {
	Model *Model
	ID    int64

	values  map[string]any
	derived map[string]any
	loaded  bool
}

// Loaded reports whether the record was returned by a store.
func (r *Record) Loaded() bool {
	return r.loaded
}

// MarkLoaded records that the record was read from or written to a store
// under id. Stores call this; callers should not.
func (r *Record) MarkLoaded(id int64) {
	r.ID = id
	r.loaded = true
}

// Value returns the value of a stored or derived field, or the ID for
// IDField. Returns ErrUnknownField if the model has no such field.
func (r *Record) Value(name string) (any, error) {
	if name == IDField {
		return r.ID, nil
	}
	f, ok := r.Model.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.Model.Name, name)
	}
	if f.IsDerived() {
		return r.derived[name], nil
	}
	return r.values[name], nil
}

// Get returns the value of a field, or nil if the field is unknown.
func (r *Record) Get(name string) any {
	v, _ := r.Value(name)
	return v
}

// Float returns a numeric field as float64, or 0.
func (r *Record) Float(name string) float64 {
	f, _ := AsFloat(r.Get(name))
	return f
}

// Int returns an integer field as int64, or 0.
func (r *Record) Int(name string) int64 {
	i, _ := toInteger(r.Get(name))
	return i
}

// String returns a text field, or "".
func (r *Record) String(name string) string {
	s, _ := r.Get(name).(string)
	return s
}

// Set assigns a stored field, coercing v to the field's type.
// Returns ErrUnknownField, ErrComputedField, or an error wrapping
// ErrTypeMismatch.
func (r *Record) Set(name string, v any) error {
	f, ok := r.Model.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.Model.Name, name)
	}
	if f.IsDerived() {
		return fmt.Errorf("%w: %s.%s", ErrComputedField, r.Model.Name, name)
	}
	out, err := f.Coerce(v)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Model.Name, err)
	}
	if r.values == nil {
		r.values = make(map[string]any)
	}
	r.values[name] = out
	return nil
}

// SetAll assigns every entry of values with Set.
func (r *Record) SetAll(values map[string]any) error {
	for _, f := range r.Model.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if err := r.Set(f.Name, v); err != nil {
			return err
		}
	}
	for k := range values {
		if _, ok := r.Model.Field(k); !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.Model.Name, k)
		}
	}
	return nil
}

// IsComputed reports whether name is a derived field of the record's model.
func (r *Record) IsComputed(name string) bool {
	return r.Model.IsComputed(name)
}

// Stored returns a copy of the stored values keyed by field name.
func (r *Record) Stored() map[string]any {
	return maps.Clone(r.values)
}

// Map returns the ID, stored and derived values keyed by field name.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.values)+len(r.derived)+1)
	maps.Copy(out, r.values)
	maps.Copy(out, r.derived)
	out[IDField] = r.ID
	return out
}

// MarshalJSON encodes the record as a flat object of field values.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// setDerived stores a derived value.
func (r *Record) setDerived(name string, v any) {
	if r.derived == nil {
		r.derived = make(map[string]any)
	}
	r.derived[name] = v
}
