// Package sql wraps database/sql as a dialect.Driver.
//
// # Drivers
//
// Open and OpenDB return a *Driver whose Exec and Query methods take the
// arguments as []any and scan into *sql.Result and *sql.Rows respectively:
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)")
//	rows := &sql.Rows{}
//	err = drv.Query(ctx, "SELECT * FROM customers", []any{}, rows)
//	records, err := sql.ScanMaps(rows)
//
// StatsDriver counts statements, transactions, errors and slow statements.
// DebugDriver logs every statement at debug level through log/slog.
//
// Statements are built with entgo.io/ent/dialect/sql and passed to Exec or
// Query as a query string and []any arguments.
package sql
