package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderModels declares an order with lines and a computed total.
func orderModels() []*Model {
	return []*Model{
		{
			Name: "order",
			Fields: []*Field{
				Stored("ref", ValueTypeText),
				Aggregated("total", ValueTypeMoney, AggregateSum, "Lines", "amount"),
				Aggregated("lines", ValueTypeInteger, AggregateCount, "Lines", ""),
			},
			Relations: []*Relation{HasMany("Lines", "order_line", "order_id")},
		},
		{
			Name: "order_line",
			Fields: []*Field{
				Stored("order_id", ValueTypeInteger),
				Stored("qty", ValueTypeInteger).WithDefault(1),
				Stored("price", ValueTypeMoney),
				Computed("amount", ValueTypeMoney, "[qty] * [price]"),
			},
			Relations: []*Relation{HasOne("Order", "order", "order_id")},
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(orderModels()...))
	require.NoError(t, reg.Validate())

	m, err := reg.Model("order_line")
	require.NoError(t, err)
	assert.Equal(t, "order_line", m.TableName())
	assert.True(t, m.IsComputed("amount"))
	assert.False(t, m.IsComputed("qty"))

	other, err := m.Related(m.Relations[0])
	require.NoError(t, err)
	assert.Equal(t, "order", other.Name)

	names := make([]string, 0, 2)
	for _, m := range reg.Models() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"order", "order_line"}, names)

	_, err = reg.Model("invoice")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Model{Name: "a"}))

	err := reg.Register(&Model{Name: "b"}, &Model{Name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateName)
	_, err = reg.Model("b")
	assert.ErrorIs(t, err, ErrUnknownModel, "a failed Register adds nothing")

	err = reg.Register(&Model{Name: "c"}, &Model{Name: "c"})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	tests := []struct {
		name  string
		model *Model
	}{
		{"empty model name", &Model{}},
		{"empty field name", &Model{Name: "m", Fields: []*Field{Stored("", ValueTypeText)}}},
		{"explicit id field", &Model{Name: "m", Fields: []*Field{Stored(IDField, ValueTypeInteger)}}},
		{"duplicate field", &Model{Name: "m", Fields: []*Field{
			Stored("a", ValueTypeText), Stored("a", ValueTypeInteger),
		}}},
		{"unknown value type", &Model{Name: "m", Fields: []*Field{Stored("a", "decimal")}}},
		{"enum without values", &Model{Name: "m", Fields: []*Field{Stored("a", ValueTypeEnum)}}},
		{"bad default", &Model{Name: "m", Fields: []*Field{
			Stored("a", ValueTypeInteger).WithDefault("ten"),
		}}},
		{"default outside enum", &Model{Name: "m", Fields: []*Field{
			Stored("a", ValueTypeEnum).WithEnum("x", "y").WithDefault("z"),
		}}},
		{"relation without model", &Model{Name: "m", Relations: []*Relation{HasMany("R", "", "m_id")}}},
		{"relation without link", &Model{Name: "m", Relations: []*Relation{HasMany("R", "x", "")}}},
		{"relation named like a field", &Model{
			Name:      "m",
			Fields:    []*Field{Stored("R", ValueTypeText)},
			Relations: []*Relation{HasMany("R", "x", "m_id")},
		}},
		{"unknown relation kind", &Model{Name: "m", Relations: []*Relation{{Name: "R", Kind: "many_many", Model: "x", LinkField: "m_id"}}}},
		{"has-one link must be stored integer", &Model{
			Name:      "m",
			Fields:    []*Field{Stored("x_id", ValueTypeText)},
			Relations: []*Relation{HasOne("X", "x", "x_id")},
		}},
		{"condition on unknown field", &Model{Name: "m", Conditions: []Condition{{Field: "kind", Value: "a"}}}},
		{"condition value mismatch", &Model{
			Name:       "m",
			Fields:     []*Field{Stored("n", ValueTypeInteger)},
			Conditions: []Condition{{Field: "n", Value: "one"}},
		}},
		{"stored field with formula", &Model{Name: "m", Fields: []*Field{
			{Name: "a", Kind: FieldStored, Type: ValueTypeText, Formula: "b"},
		}}},
		{"computed field without formula", &Model{Name: "m", Fields: []*Field{
			{Name: "a", Kind: FieldComputed, Type: ValueTypeText},
		}}},
		{"formula with unknown name", &Model{Name: "m", Fields: []*Field{
			Stored("qty", ValueTypeInteger),
			Computed("total", ValueTypeMoney, "qty * price"),
		}}},
		{"formula with syntax error", &Model{Name: "m", Fields: []*Field{
			Stored("qty", ValueTypeInteger),
			Computed("total", ValueTypeMoney, "qty *"),
		}}},
		{"aggregate with bad function", &Model{
			Name:      "m",
			Fields:    []*Field{Aggregated("t", ValueTypeMoney, "median", "R", "x")},
			Relations: []*Relation{HasMany("R", "x", "m_id")},
		}},
		{"aggregate over has-one", &Model{
			Name:      "m",
			Fields:    []*Field{Stored("x_id", ValueTypeInteger), Aggregated("t", ValueTypeMoney, AggregateSum, "X", "v")},
			Relations: []*Relation{HasOne("X", "x", "x_id")},
		}},
		{"aggregate without field", &Model{
			Name:      "m",
			Fields:    []*Field{Aggregated("t", ValueTypeMoney, AggregateSum, "R", "")},
			Relations: []*Relation{HasMany("R", "x", "m_id")},
		}},
		{"unknown field kind", &Model{Name: "m", Fields: []*Field{{Name: "a", Kind: "virtual", Type: ValueTypeText}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.model)
			assert.ErrorIs(t, err, ErrInvalidModel)
		})
	}
}

func TestRegistry_Validate(t *testing.T) {
	tests := []struct {
		name   string
		models []*Model
	}{
		{"relation to unknown model", []*Model{
			{Name: "a", Relations: []*Relation{HasMany("B", "b", "a_id")}},
		}},
		{"has-many link missing on child", []*Model{
			{Name: "a", Relations: []*Relation{HasMany("B", "b", "a_id")}},
			{Name: "b", Fields: []*Field{Stored("owner", ValueTypeInteger)}},
		}},
		{"aggregate of unknown child field", []*Model{
			{
				Name:      "a",
				Fields:    []*Field{Aggregated("t", ValueTypeMoney, AggregateSum, "B", "amount")},
				Relations: []*Relation{HasMany("B", "b", "a_id")},
			},
			{Name: "b", Fields: []*Field{Stored("a_id", ValueTypeInteger)}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			require.NoError(t, reg.Register(tt.models...))
			assert.ErrorIs(t, reg.Validate(), ErrInvalidModel)
		})
	}
}

func TestModel_NewRecord(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Model{
		Name:  "invoice_line",
		Table: "line",
		Fields: []*Field{
			Stored("type", ValueTypeEnum).WithEnum("invoice", "quote"),
			Stored("qty", ValueTypeInteger).WithDefault(1),
			Stored("vat", ValueTypeNumeric).WithDefault("0.21"),
			Stored("paid", ValueTypeBoolean),
			Computed("total", ValueTypeMoney, "qty * vat"),
		},
		Conditions: []Condition{{Field: "type", Value: "invoice"}},
	}))
	m, err := reg.Model("invoice_line")
	require.NoError(t, err)
	assert.Equal(t, "line", m.TableName())

	rec := m.NewRecord()
	assert.False(t, rec.Loaded())
	assert.Equal(t, int64(0), rec.ID)
	assert.Equal(t, "invoice", rec.Get("type"))
	assert.Equal(t, int64(1), rec.Get("qty"))
	assert.Equal(t, 0.21, rec.Get("vat"))
	assert.Equal(t, false, rec.Get("paid"))
	assert.Nil(t, rec.Get("total"), "derived values are filled in by Derive")
	assert.NotContains(t, rec.Stored(), "total")

	v, ok := m.Condition("type")
	assert.True(t, ok)
	assert.Equal(t, "invoice", v)
	_, ok = m.Condition("qty")
	assert.False(t, ok)
}
