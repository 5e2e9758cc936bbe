package deepcopy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/recopy/internal/fixture"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

func TestParsePaths(t *testing.T) {
	wants, err := parsePaths([]string{"Lines.Notes", "Payments", "Lines.Tags", "Lines"})
	require.NoError(t, err)
	require.Len(t, wants, 2)

	assert.Equal(t, "Lines", wants[0].name)
	require.Len(t, wants[0].sub, 2)
	assert.Equal(t, "Notes", wants[0].sub[0].name)
	assert.Equal(t, "Tags", wants[0].sub[1].name)
	assert.Equal(t, "Payments", wants[1].name)

	_, err = parsePaths([]string{"Lines..Notes"})
	assert.ErrorIs(t, err, types.ErrUnknownRelation)
}

// treeRegistry declares order -> item -> product where items reference
// their product through a has-one relation.
func treeRegistry(t *testing.T, cascadeItems bool) *types.Registry {
	t.Helper()
	items := types.HasMany("Items", "item", "order_id")
	if cascadeItems {
		items.Cascading()
	}
	reg := types.NewRegistry()
	require.NoError(t, reg.Register(
		&types.Model{
			Name:      "order",
			Fields:    []*types.Field{types.Stored("ref", types.ValueTypeText)},
			Relations: []*types.Relation{items, types.HasMany("Notes", "note", "order_id")},
		},
		&types.Model{
			Name: "item",
			Fields: []*types.Field{
				types.Stored("order_id", types.ValueTypeInteger),
				types.Stored("product_id", types.ValueTypeInteger),
			},
			Relations: []*types.Relation{types.HasOne("Product", "product", "product_id")},
		},
		&types.Model{
			Name:   "product",
			Fields: []*types.Field{types.Stored("sku", types.ValueTypeText)},
		},
		&types.Model{
			Name:   "note",
			Fields: []*types.Field{types.Stored("order_id", types.ValueTypeInteger)},
		},
	))
	require.NoError(t, reg.Validate())
	return reg
}

func TestBuildPlan(t *testing.T) {
	reg := treeRegistry(t, false)
	order, err := reg.Model("order")
	require.NoError(t, err)

	plan, err := buildPlan(order, order, []string{"Items.Product"}, nil, nil)
	require.NoError(t, err)

	require.Len(t, plan.hasMany, 1)
	items := plan.hasMany[0]
	assert.Equal(t, "Items", items.path)
	assert.True(t, items.skip["order_id"], "parent link is set by the engine")

	require.Len(t, items.hasOne, 1)
	product := items.hasOne[0]
	assert.Equal(t, "Items.Product", product.path)
	assert.True(t, items.skip["product_id"], "has-one link is set by the engine")
	assert.Empty(t, product.hasMany)
}

func TestBuildPlan_CascadeOrder(t *testing.T) {
	reg := treeRegistry(t, true)
	order, err := reg.Model("order")
	require.NoError(t, err)

	plan, err := buildPlan(order, order, []string{"Notes"}, nil, nil)
	require.NoError(t, err)
	require.Len(t, plan.hasMany, 2)
	assert.Equal(t, "Notes", plan.hasMany[0].path, "requested relations come first")
	assert.Equal(t, "Items", plan.hasMany[1].path, "then cascading ones")
}

func TestBuildPlan_SiblingRevisitIsNotACycle(t *testing.T) {
	reg := types.NewRegistry()
	require.NoError(t, reg.Register(
		&types.Model{
			Name:   "person",
			Fields: []*types.Field{types.Stored("name", types.ValueTypeText)},
		},
		&types.Model{
			Name: "contract",
			Fields: []*types.Field{
				types.Stored("buyer_id", types.ValueTypeInteger),
				types.Stored("seller_id", types.ValueTypeInteger),
			},
			Relations: []*types.Relation{
				types.HasOne("Buyer", "person", "buyer_id"),
				types.HasOne("Seller", "person", "seller_id"),
			},
		},
	))
	contract, err := reg.Model("contract")
	require.NoError(t, err)

	plan, err := buildPlan(contract, contract, []string{"Buyer", "Seller"}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, plan.hasOne, 2)
}

func TestBuildPlan_Cycle(t *testing.T) {
	reg := fixture.QuoteInvoice()
	quote, err := reg.Model(fixture.Quote)
	require.NoError(t, err)
	invoice, err := reg.Model(fixture.Invoice)
	require.NoError(t, err)

	_, err = buildPlan(quote, invoice, []string{"Lines.Parent"}, nil, nil)
	assert.ErrorIs(t, err, types.ErrCyclicRelation)
}

func TestBuildPlan_KindMismatch(t *testing.T) {
	reg := types.NewRegistry()
	require.NoError(t, reg.Register(
		&types.Model{
			Name:      "a",
			Fields:    []*types.Field{types.Stored("x_id", types.ValueTypeInteger)},
			Relations: []*types.Relation{types.HasOne("X", "x", "x_id")},
		},
		&types.Model{
			Name:      "b",
			Relations: []*types.Relation{types.HasMany("X", "x", "b_id")},
		},
		&types.Model{
			Name:   "x",
			Fields: []*types.Field{types.Stored("b_id", types.ValueTypeInteger)},
		},
	))
	a, _ := reg.Model("a")
	b, _ := reg.Model("b")

	_, err := buildPlan(a, b, []string{"X"}, nil, nil)
	assert.ErrorIs(t, err, types.ErrUnknownRelation)
}
