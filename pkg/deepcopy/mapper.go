package deepcopy

import (
	"fmt"
	"maps"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

// TransformFunc rewrites a source value before it is coerced to the
// destination field's type.
type TransformFunc func(v any) (any, error)

// FieldMap adjusts how source fields become destination fields. All keys
// are destination field names.
type FieldMap struct {
	// Aliases names the source field to read for a destination field.
	// The source field may be types.IDField.
	Aliases map[string]string
	// Transforms rewrite the copied value.
	Transforms map[string]TransformFunc
	// Overrides set a fixed value; they win over copied values.
	Overrides map[string]any
}

// merge returns a FieldMap holding base with over's entries on top.
func merge(base, over *FieldMap) *FieldMap {
	out := &FieldMap{
		Aliases:    make(map[string]string),
		Transforms: make(map[string]TransformFunc),
		Overrides:  make(map[string]any),
	}
	for _, fm := range []*FieldMap{base, over} {
		if fm == nil {
			continue
		}
		maps.Copy(out.Aliases, fm.Aliases)
		maps.Copy(out.Transforms, fm.Transforms)
		maps.Copy(out.Overrides, fm.Overrides)
	}
	return out
}

// check reports the first entry of fm that cannot apply to a copy from
// src to dst.
func (fm *FieldMap) check(src, dst *types.Model) error {
	if fm == nil {
		return nil
	}
	target := func(name string) error {
		f, ok := dst.Field(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", types.ErrUnknownField, dst.Name, name)
		}
		if f.IsDerived() {
			return fmt.Errorf("%w: %s.%s", types.ErrComputedField, dst.Name, name)
		}
		return nil
	}
	for name := range fm.Overrides {
		if err := target(name); err != nil {
			return err
		}
	}
	for name := range fm.Transforms {
		if err := target(name); err != nil {
			return err
		}
	}
	for name, from := range fm.Aliases {
		if err := target(name); err != nil {
			return err
		}
		if _, ok := src.Field(from); !ok && from != types.IDField {
			return fmt.Errorf("%w: %s.%s", types.ErrUnknownField, src.Name, from)
		}
	}
	return nil
}

// mapFields copies values from src into dst following the destination's
// field order. Derived fields and fields in skip are left alone; so are
// destination fields with no stored source, which keep their default or
// current value.
func mapFields(fm *FieldMap, src, dst *types.Record, skip map[string]bool) error {
	if fm == nil {
		fm = &FieldMap{}
	}
	for _, f := range dst.Model.Fields {
		if f.IsDerived() || skip[f.Name] {
			continue
		}
		if v, ok := fm.Overrides[f.Name]; ok {
			if err := dst.Set(f.Name, v); err != nil {
				return err
			}
			continue
		}

		from := f.Name
		if alias, ok := fm.Aliases[f.Name]; ok {
			from = alias
		}
		var v any
		if from == types.IDField {
			v = src.ID
		} else {
			sf, ok := src.Model.Field(from)
			if !ok || sf.IsDerived() {
				continue
			}
			v = src.Get(from)
		}
		if fn, ok := fm.Transforms[f.Name]; ok {
			out, err := fn(v)
			if err != nil {
				return fmt.Errorf("transform %s.%s: %w", dst.Model.Name, f.Name, err)
			}
			v = out
		}
		if err := dst.Set(f.Name, v); err != nil {
			return err
		}
	}
	return nil
}
