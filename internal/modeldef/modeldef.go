// Package modeldef reads model definitions from YAML.
//
// A definitions file lists models with their fields, relations and
// conditions, and optional per-destination field maps applied by every
// copy into that model:
//
//	models:
//	  - name: invoice_line
//	    table: line
//	    conditions: {type: invoice}
//	    fields:
//	      - {name: qty, type: integer}
//	      - {name: total, type: money, formula: "[qty]*[price]*(1+vat)"}
//	maps:
//	  invoice:
//	    set: {is_paid: false}
//	    alias: {ref: id}
//	    transform: {ref: '"INV-" + string(value)'}
package modeldef

import (
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/recopy/internal/formula"
	"github.com/mesh-intelligence/recopy/pkg/deepcopy"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

// Default holds the quote and invoice definitions written by recopy init.
//
//go:embed default.yaml
var Default []byte

var validate = validator.New(validator.WithRequiredStructEnabled())

// File is the YAML document.
type File struct {
	Models []ModelDef        `yaml:"models" validate:"required,min=1,dive"`
	Maps   map[string]MapDef `yaml:"maps" validate:"dive"`
}

// ModelDef declares one model.
type ModelDef struct {
	Name       string         `yaml:"name" validate:"required"`
	Table      string         `yaml:"table"`
	Fields     []FieldDef     `yaml:"fields" validate:"dive"`
	Relations  []RelationDef  `yaml:"relations" validate:"dive"`
	Conditions map[string]any `yaml:"conditions"`
}

// FieldDef declares a field. A field with a formula is computed, one with
// an aggregate is derived from a has-many relation, and any other field is
// stored.
type FieldDef struct {
	Name      string        `yaml:"name" validate:"required"`
	Type      string        `yaml:"type" validate:"required,oneof=text integer numeric money boolean enum timestamp"`
	Default   any           `yaml:"default"`
	Enum      []string      `yaml:"enum" validate:"required_if=Type enum"`
	Formula   string        `yaml:"formula" validate:"excluded_with=Aggregate"`
	Aggregate *AggregateDef `yaml:"aggregate"`
}

// AggregateDef declares the reduction of an aggregate field.
type AggregateDef struct {
	Func     string `yaml:"func" validate:"required,oneof=sum count min max avg"`
	Relation string `yaml:"relation" validate:"required"`
	Field    string `yaml:"field" validate:"required_unless=Func count"`
}

// RelationDef declares a relation. Exactly one of HasMany and HasOne names
// the related model.
type RelationDef struct {
	Name    string `yaml:"name" validate:"required"`
	HasMany string `yaml:"has_many" validate:"required_without=HasOne,excluded_with=HasOne"`
	HasOne  string `yaml:"has_one" validate:"required_without=HasMany"`
	Link    string `yaml:"link" validate:"required"`
	Cascade bool   `yaml:"cascade"`
}

// MapDef declares the field map applied to copies into a model.
type MapDef struct {
	Set       map[string]any    `yaml:"set"`
	Alias     map[string]string `yaml:"alias"`
	Transform map[string]string `yaml:"transform"`
}

// Definitions is a parsed and validated definitions file.
type Definitions struct {
	Registry *types.Registry
	// Maps holds the field map of each destination model that has one.
	Maps map[string]*deepcopy.FieldMap
}

// Apply registers the field maps with a copy session.
func (d *Definitions) Apply(s *deepcopy.Session) {
	for _, name := range slices.Sorted(maps.Keys(d.Maps)) {
		s.Map(name, *d.Maps[name])
	}
}

// Load reads and parses a definitions file.
func Load(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model definitions %s: %w", path, err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Parse parses definitions from YAML. Errors wrap types.ErrInvalidModel,
// or types.ErrDuplicateName when two models share a name.
func Parse(data []byte) (*Definitions, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidModel, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrInvalidModel, describe(err))
	}

	models := make([]*types.Model, 0, len(f.Models))
	for _, md := range f.Models {
		models = append(models, md.model())
	}
	reg := types.NewRegistry()
	if err := reg.Register(models...); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	fieldMaps := make(map[string]*deepcopy.FieldMap, len(f.Maps))
	for name, md := range f.Maps {
		if _, err := reg.Model(name); err != nil {
			return nil, fmt.Errorf("%w: maps: %w", types.ErrInvalidModel, err)
		}
		fm, err := md.fieldMap()
		if err != nil {
			return nil, fmt.Errorf("%w: maps.%s: %w", types.ErrInvalidModel, name, err)
		}
		fieldMaps[name] = fm
	}
	return &Definitions{Registry: reg, Maps: fieldMaps}, nil
}

func (md ModelDef) model() *types.Model {
	m := &types.Model{Name: md.Name, Table: md.Table}
	for _, fd := range md.Fields {
		m.Fields = append(m.Fields, fd.field())
	}
	for _, rd := range md.Relations {
		var rel *types.Relation
		if rd.HasMany != "" {
			rel = types.HasMany(rd.Name, rd.HasMany, rd.Link)
		} else {
			rel = types.HasOne(rd.Name, rd.HasOne, rd.Link)
		}
		rel.Cascade = rd.Cascade
		m.Relations = append(m.Relations, rel)
	}
	for _, name := range slices.Sorted(maps.Keys(md.Conditions)) {
		m.Conditions = append(m.Conditions, types.Condition{Field: name, Value: md.Conditions[name]})
	}
	return m
}

func (fd FieldDef) field() *types.Field {
	vt := types.ValueType(fd.Type)
	var f *types.Field
	switch {
	case fd.Formula != "":
		f = types.Computed(fd.Name, vt, fd.Formula)
	case fd.Aggregate != nil:
		a := fd.Aggregate
		f = types.Aggregated(fd.Name, vt, types.AggregateFunc(a.Func), a.Relation, a.Field)
	default:
		f = types.Stored(fd.Name, vt)
	}
	f.Default = fd.Default
	f.Enum = fd.Enum
	return f
}

func (md MapDef) fieldMap() (*deepcopy.FieldMap, error) {
	fm := &deepcopy.FieldMap{
		Aliases:    md.Alias,
		Overrides:  md.Set,
		Transforms: make(map[string]deepcopy.TransformFunc, len(md.Transform)),
	}
	for name, src := range md.Transform {
		fn, err := formula.CompileValue(src)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", name, err)
		}
		fm.Transforms[name] = deepcopy.TransformFunc(fn)
	}
	return fm, nil
}

// describe flattens validator errors into one line.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "File."), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
