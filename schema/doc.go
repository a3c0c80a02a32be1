// Package schema declares the tables and relations the SQL storage adapter
// works with.
//
// A [Table] names an entity type, its key, its fillable columns and its
// relations. Tables are registered together in a [Registry], which fills
// in the conventional names and checks that every relation resolves:
//
//	reg, err := schema.NewRegistry(
//	    &schema.Table{Type: "Customer", Columns: schema.StringList{"name"}},
//	    &schema.Table{
//	        Type:       "Order",
//	        Columns:    schema.StringList{"customer_id", "total"},
//	        Timestamps: true,
//	        Relations: []*schema.Relation{
//	            {Kind: schema.BelongsTo, Target: "Customer"},
//	        },
//	    },
//	)
//
// With the defaults applied, "Order" is stored in "orders" keyed by
// "order_id", and its "customer" relation follows orders.customer_id.
//
// The same declarations can be read from YAML with [Load] or [Parse].
//
// Schema declarations describe existing tables; creating or migrating them
// is left to the application.
package schema
