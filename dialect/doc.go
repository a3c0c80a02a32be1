// Package dialect defines the driver contract the storage layer runs on.
//
// # Supported Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// The dialect name doubles as the database/sql driver name, so the matching
// driver package must be imported by the program:
//
//	import (
//	    _ "github.com/go-sql-driver/mysql"
//	    _ "github.com/lib/pq"
//	    _ "modernc.org/sqlite"
//	)
//
// # Driver and Tx
//
// Driver and Tx share the ExecQuerier methods, so storage code written against
// ExecQuerier runs unchanged inside or outside a transaction:
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
//
//	type Tx interface {
//	    ExecQuerier
//	    Commit() error
//	    Rollback() error
//	}
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, stats and debug drivers
//   - dialect/sql/sqlgraph: constraint error classification
//
// Statements are rendered with entgo.io/ent/dialect/sql, whose dialect
// names match these except for SQLite ("sqlite3").
package dialect
