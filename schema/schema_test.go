package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/graft"
	"github.com/syssam/graft/schema"
)

var _ graft.Model = (*schema.Table)(nil)

func TestRegistryDefaults(t *testing.T) {
	reg, err := schema.NewRegistry(
		&schema.Table{Type: "Customer", Columns: schema.StringList{"name"}},
		&schema.Table{
			Type:       "Order",
			Columns:    schema.StringList{"customer_id", "total"},
			Timestamps: true,
			Relations: []*schema.Relation{
				{Kind: schema.BelongsTo, Target: "Customer"},
			},
		},
		&schema.Table{
			Type: "Invoice",
			Relations: []*schema.Relation{
				{Kind: schema.HasMany, Target: "LineItem", Name: "lineItems"},
				{Kind: schema.ManyToMany, Target: "Tag", Pivot: &schema.Pivot{
					Type: "InvoiceTag",
					Owns: &schema.Owned{Type: "Note"},
				}},
			},
		},
		&schema.Table{Type: "LineItem", KeyType: schema.KeyManual},
		&schema.Table{Type: "Tag", Name: "labels", Key: "id"},
		&schema.Table{Type: "InvoiceTag"},
		&schema.Table{Type: "Note", KeyType: schema.KeyUUID},
	)
	require.NoError(t, err)

	order, ok := reg.Lookup("Order")
	require.True(t, ok)
	assert.Equal(t, "orders", order.Name)
	assert.Equal(t, "order_id", order.KeyName())
	assert.Equal(t, "Order", order.TypeName())
	assert.Equal(t, schema.KeyIncrement, order.KeyType)
	assert.True(t, order.HasRelation("customer"))
	assert.False(t, order.HasRelation("lineItems"))
	rel, ok := order.Relation("customer")
	require.True(t, ok)
	assert.Equal(t, "customer_id", rel.ForeignKey)

	invoice, _ := reg.Lookup("Invoice")
	items, ok := invoice.Relation("lineItems")
	require.True(t, ok)
	assert.Equal(t, "invoice_id", items.ForeignKey)
	assert.True(t, items.Kind.Many())

	tags, ok := invoice.Relation("tag")
	require.True(t, ok)
	assert.Equal(t, "invoice_id", tags.Pivot.OwnerKey)
	assert.Equal(t, "id", tags.Pivot.RelatedKey)
	assert.Equal(t, "note_id", tags.Pivot.Owns.Column)

	item, _ := reg.Lookup("LineItem")
	assert.Equal(t, "line_items", item.Name)
	assert.Equal(t, "line_item_id", item.Key)
	assert.Nil(t, item.NewKey())

	note, _ := reg.Lookup("Note")
	_, err = uuid.Parse(note.NewKey().(string))
	assert.NoError(t, err)

	var types []string
	for _, tbl := range reg.Tables() {
		types = append(types, tbl.Type)
	}
	assert.Equal(t, []string{"Customer", "Order", "Invoice", "LineItem", "Tag", "InvoiceTag", "Note"}, types)

	_, ok = reg.Lookup("Missing")
	assert.False(t, ok)
}

func TestRegistryCopiesDeclarations(t *testing.T) {
	declare := func() []*schema.Table {
		return []*schema.Table{
			{Type: "Invoice", Relations: []*schema.Relation{
				{Kind: schema.ManyToMany, Target: "Tag", Pivot: &schema.Pivot{
					Type: "InvoiceTag",
					Owns: &schema.Owned{Type: "Note"},
				}},
			}},
			{Type: "Tag"},
			{Type: "InvoiceTag"},
			{Type: "Note"},
		}
	}
	tables := declare()
	first, err := schema.NewRegistry(tables...)
	require.NoError(t, err)
	assert.Equal(t, declare(), tables)

	tables[0].Name = "bills"
	second, err := schema.NewRegistry(tables...)
	require.NoError(t, err)

	a, _ := first.Lookup("Invoice")
	b, _ := second.Lookup("Invoice")
	assert.Equal(t, "invoices", a.Name)
	assert.Equal(t, "bills", b.Name)
	assert.NotSame(t, a.Relations[0], b.Relations[0])
	assert.NotSame(t, a.Relations[0].Pivot.Owns, b.Relations[0].Pivot.Owns)
	assert.Equal(t, "note_id", a.Relations[0].Pivot.Owns.Column)
	assert.Empty(t, tables[0].Relations[0].Pivot.Owns.Column)
}

func TestFillableIsCopied(t *testing.T) {
	reg, err := schema.NewRegistry(&schema.Table{Type: "Customer", Columns: schema.StringList{"name", "email"}})
	require.NoError(t, err)
	c, _ := reg.Lookup("Customer")

	cols := c.Fillable()
	cols[0] = "mutated"
	assert.Equal(t, []string{"name", "email"}, c.Fillable())
	assert.True(t, c.IsFillable("email"))
	assert.False(t, c.IsFillable("customer_id"))
}

func TestRegistryErrors(t *testing.T) {
	tests := []struct {
		name    string
		tables  []*schema.Table
		wantErr string
	}{
		{
			name:    "nil table",
			tables:  []*schema.Table{nil},
			wantErr: "schema: nil table",
		},
		{
			name:    "missing type",
			tables:  []*schema.Table{{Name: "things"}},
			wantErr: `schema: table "things": missing type`,
		},
		{
			name:    "duplicate type",
			tables:  []*schema.Table{{Type: "A"}, {Type: "A"}},
			wantErr: `schema: type "A" registered twice`,
		},
		{
			name:    "bad key type",
			tables:  []*schema.Table{{Type: "A", KeyType: "serial"}},
			wantErr: `schema: A: unknown key type "serial"`,
		},
		{
			name: "unknown target",
			tables: []*schema.Table{{Type: "A", Relations: []*schema.Relation{
				{Kind: schema.HasMany, Target: "B"},
			}}},
			wantErr: `schema: A.b: unknown target type "B"`,
		},
		{
			name: "unknown kind",
			tables: []*schema.Table{{Type: "B"}, {Type: "A", Relations: []*schema.Relation{
				{Kind: "has_few", Target: "B"},
			}}},
			wantErr: `schema: A.b: unknown relation kind "has_few"`,
		},
		{
			name: "duplicate relation",
			tables: []*schema.Table{{Type: "B"}, {Type: "A", Relations: []*schema.Relation{
				{Kind: schema.HasMany, Target: "B"},
				{Kind: schema.HasOne, Target: "B"},
			}}},
			wantErr: `schema: A: duplicate relation "b"`,
		},
		{
			name: "pivot missing",
			tables: []*schema.Table{{Type: "B"}, {Type: "A", Relations: []*schema.Relation{
				{Kind: schema.ManyToMany, Target: "B"},
			}}},
			wantErr: "schema: A.b: many_to_many requires a pivot type",
		},
		{
			name: "pivot unknown",
			tables: []*schema.Table{{Type: "B"}, {Type: "A", Relations: []*schema.Relation{
				{Kind: schema.ManyToMany, Target: "B", Pivot: &schema.Pivot{Type: "AB"}},
			}}},
			wantErr: `schema: A.b: unknown pivot type "AB"`,
		},
		{
			name: "relation without target",
			tables: []*schema.Table{{Type: "A", Relations: []*schema.Relation{
				{Kind: schema.HasMany},
			}}},
			wantErr: "schema: A: relation without target",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.NewRegistry(tt.tables...)
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

const invoiceSchema = `
tables:
  - type: Invoice
    fillable: [number, total]
    timestamps: true
    relations:
      - kind: has_many
        target: LineItem
        name: lineItems
      - kind: many_to_many
        target: Attachment
        pivot:
          type: Attachable
          owner_key: owner_id
          type_column: owner_type
  - type: LineItem
    fillable: [line_item_id, invoice_id, sku, qty]
  - type: Attachment
    fillable: path
  - type: Attachable
    fillable: [owner_id, owner_type, attachment_id]
`

func TestParse(t *testing.T) {
	reg, err := schema.Parse([]byte(invoiceSchema))
	require.NoError(t, err)

	invoice, ok := reg.Lookup("Invoice")
	require.True(t, ok)
	assert.True(t, invoice.Timestamps)
	assert.Equal(t, []string{"number", "total"}, invoice.Fillable())

	att, ok := invoice.Relation("attachment")
	require.True(t, ok)
	assert.Equal(t, "owner_id", att.Pivot.OwnerKey)
	assert.Equal(t, "attachment_id", att.Pivot.RelatedKey)
	assert.Equal(t, "owner_type", att.Pivot.TypeColumn)

	attachment, _ := reg.Lookup("Attachment")
	assert.Equal(t, []string{"path"}, attachment.Fillable())

	_, err = schema.Parse([]byte("tables: {"))
	assert.ErrorContains(t, err, "parse schema")
	_, err = schema.Parse([]byte("tables:\n  - type: A\n    fillable: {a: 1}\n"))
	assert.ErrorContains(t, err, "expected string or list")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(invoiceSchema), 0o600))

	reg, err := schema.Load(path)
	require.NoError(t, err)
	assert.Len(t, reg.Tables(), 4)

	_, err = schema.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read schema")
}
