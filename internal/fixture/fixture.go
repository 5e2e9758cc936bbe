// Package fixture declares the quote and invoice models used by tests
// across the module. Quote and invoice lines share the "line" table and
// are told apart by their type condition.
package fixture

import "github.com/mesh-intelligence/recopy/pkg/types"

// Model names.
const (
	Quote       = "quote"
	Invoice     = "invoice"
	QuoteLine   = "quote_line"
	InvoiceLine = "invoice_line"
)

// Lines is the has-many relation from a header to its lines.
const Lines = "Lines"

// QuoteInvoice returns a validated registry with the four models. Invoice
// lines add 21% VAT to their total; quote lines do not.
func QuoteInvoice() *types.Registry {
	reg := types.NewRegistry()
	err := reg.Register(
		header(Invoice, InvoiceLine, types.Stored("is_paid", types.ValueTypeBoolean).WithDefault(false)),
		header(Quote, QuoteLine, types.Stored("is_converted", types.ValueTypeBoolean).WithDefault(false)),
		line(InvoiceLine, Invoice, "invoice", "[qty]*[price]*(1+vat)",
			types.Stored("vat", types.ValueTypeNumeric).WithDefault(0.21)),
		line(QuoteLine, Quote, "quote", "[qty]*[price]"),
	)
	if err == nil {
		err = reg.Validate()
	}
	if err != nil {
		panic(err)
	}
	return reg
}

func header(name, lineModel string, flag *types.Field) *types.Model {
	return &types.Model{
		Name: name,
		Fields: []*types.Field{
			types.Aggregated("total", types.ValueTypeMoney, types.AggregateSum, Lines, "total"),
			types.Stored("ref", types.ValueTypeText),
			flag,
		},
		Relations: []*types.Relation{
			types.HasMany(Lines, lineModel, "parent_id"),
		},
	}
}

func line(name, parent, kind, total string, extra ...*types.Field) *types.Model {
	fields := []*types.Field{
		types.Stored("parent_id", types.ValueTypeInteger),
		types.Stored("name", types.ValueTypeText),
		types.Stored("type", types.ValueTypeEnum).WithEnum("invoice", "quote"),
		types.Stored("qty", types.ValueTypeInteger),
		types.Stored("price", types.ValueTypeMoney),
	}
	fields = append(fields, extra...)
	fields = append(fields, types.Computed("total", types.ValueTypeMoney, total))
	return &types.Model{
		Name:       name,
		Table:      "line",
		Fields:     fields,
		Relations:  []*types.Relation{types.HasOne("Parent", parent, "parent_id")},
		Conditions: []types.Condition{{Field: "type", Value: kind}},
	}
}

// QuoteData returns insert data for a header with nested lines.
func QuoteData(ref string, lines ...map[string]any) map[string]any {
	rows := make([]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, l)
	}
	return map[string]any{"ref": ref, Lines: rows}
}

// Line returns insert data for a single line.
func Line(name string, qty int, price float64) map[string]any {
	return map[string]any{"name": name, "qty": qty, "price": price}
}
