// Package graft persists a parent entity together with its declared children
// in a single transaction.
//
// The root package holds the contracts shared by every layer: the entity
// accessor ([Entity], [Model]), the request [Payload], the [RelationBag] used
// for eager loading after commit, and the error kinds.
//
// # Packages
//
//   - service: the orchestrator (Before/After children, sync, morph rows)
//   - store: a SQL storage adapter built on dialect/sql
//   - schema: table and relation declarations consumed by store
//   - validate: the rule-based validation collaborator
//   - dialect, dialect/sql, dialect/sql/sqlgraph: the driver layer
//
// # Usage
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	customerRepo, _ := store.New(drv, reg, "Customer")
//	orderRepo, _ := store.New(drv, reg, "Order")
//	customers, _ := service.New(drv, customerRepo)
//	orders, err := service.New(drv, orderRepo,
//	    service.WithChildren(service.Descriptor{Child: customers, Timing: service.Before}),
//	)
//	order, err := orders.Store(ctx, graft.Payload{
//	    "total":    120,
//	    "customer": map[string]any{"name": "Ana"},
//	})
//
// # Errors
//
//   - [ConfigurationError]: malformed descriptors or models, never retried
//   - [PersistenceError]: the write failed and was rolled back
//   - validation errors from the collaborator are returned unchanged
package graft
