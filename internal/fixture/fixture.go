// Package fixture opens in-memory SQLite databases holding the tables used
// by the store and service tests.
package fixture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/graft/dialect"
	"github.com/syssam/graft/dialect/sql"
	"github.com/syssam/graft/schema"
)

// DDL creates the fixture tables.
var DDL = []string{
	`CREATE TABLE customers (
		customer_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT UNIQUE,
		password TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		order_id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER REFERENCES customers (customer_id),
		total INTEGER NOT NULL DEFAULT 0,
		placed_on TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE invoices (
		invoice_id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE line_items (
		line_item_id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id INTEGER NOT NULL REFERENCES invoices (invoice_id),
		sku TEXT NOT NULL,
		qty INTEGER NOT NULL DEFAULT 1 CHECK (qty > 0)
	)`,
	`CREATE TABLE attachments (
		attachment_id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL
	)`,
	`CREATE TABLE attachables (
		attachable_id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		owner_type TEXT NOT NULL,
		attachment_id INTEGER NOT NULL
	)`,
	`CREATE TABLE tags (
		tag_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE notes (
		note_id TEXT PRIMARY KEY,
		body TEXT
	)`,
	`CREATE TABLE invoice_tags (
		invoice_tag_id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		note_id TEXT
	)`,
	`CREATE TABLE sequences (
		sequence_id INTEGER PRIMARY KEY,
		name TEXT
	)`,
}

// Tables returns fresh declarations of the fixture tables.
func Tables() []*schema.Table {
	return []*schema.Table{
		{
			Type:       "Customer",
			Columns:    schema.StringList{"name", "email", "password"},
			Timestamps: true,
			Relations: []*schema.Relation{
				{Kind: schema.HasMany, Target: "Order", Name: "orders"},
			},
		},
		{
			Type:       "Order",
			Columns:    schema.StringList{"customer_id", "total", "placed_on"},
			Timestamps: true,
			Relations: []*schema.Relation{
				{Kind: schema.BelongsTo, Target: "Customer"},
			},
		},
		{
			Type:       "Invoice",
			Columns:    schema.StringList{"number"},
			Timestamps: true,
			Relations: []*schema.Relation{
				{Kind: schema.HasMany, Target: "LineItem", Name: "lineItems"},
				{Kind: schema.ManyToMany, Target: "Attachment", Pivot: &schema.Pivot{
					Type:       "Attachable",
					OwnerKey:   "owner_id",
					TypeColumn: "owner_type",
				}},
				{Kind: schema.ManyToMany, Target: "Tag", Name: "tags", Pivot: &schema.Pivot{
					Type: "InvoiceTag",
					Owns: &schema.Owned{Type: "Note"},
				}},
			},
		},
		{
			Type:    "LineItem",
			Columns: schema.StringList{"line_item_id", "invoice_id", "sku", "qty"},
		},
		{Type: "Attachment", Columns: schema.StringList{"path"}},
		{Type: "Attachable", Columns: schema.StringList{"owner_id", "owner_type", "attachment_id"}},
		{Type: "Tag", Columns: schema.StringList{"name"}},
		{Type: "Note", KeyType: schema.KeyUUID, Columns: schema.StringList{"body"}},
		{Type: "InvoiceTag", Columns: schema.StringList{"invoice_id", "tag_id", "note_id"}},
		{Type: "Sequence", KeyType: schema.KeyManual, Columns: schema.StringList{"name"}},
	}
}

// Registry returns a registry of the fixture tables.
func Registry(t testing.TB) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(Tables()...)
	require.NoError(t, err)
	return reg
}

// Open returns a driver over a new in-memory database holding the fixture
// tables. The pool is limited to one connection, so statements issued
// outside an open transaction block until it finishes.
func Open(t testing.TB) *sql.Driver {
	t.Helper()
	drv, err := sql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { drv.Close() })
	for _, stmt := range DDL {
		require.NoError(t, drv.Exec(context.Background(), stmt, []any{}, nil))
	}
	return drv
}

// Count returns the number of rows in table.
func Count(t testing.TB, drv dialect.ExecQuerier, table string) int {
	t.Helper()
	return Query(t, drv, "SELECT COUNT(*) AS n FROM "+table)[0]["n"]
}

// Query runs query and returns the integer columns of every row.
func Query(t testing.TB, drv dialect.ExecQuerier, query string, args ...any) []map[string]int {
	t.Helper()
	if args == nil {
		args = []any{}
	}
	rows := &sql.Rows{}
	require.NoError(t, drv.Query(context.Background(), query, args, rows))
	maps, err := sql.ScanMaps(rows)
	require.NoError(t, err)
	out := make([]map[string]int, 0, len(maps))
	for _, m := range maps {
		row := make(map[string]int, len(m))
		for k, v := range m {
			if n, ok := v.(int64); ok {
				row[k] = int(n)
			}
		}
		out = append(out, row)
	}
	return out
}
