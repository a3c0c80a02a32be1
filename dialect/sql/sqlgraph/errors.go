// Package sqlgraph classifies constraint violations reported by the
// PostgreSQL, MySQL and SQLite drivers.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// constraint describes how each supported driver reports one kind of violation.
type constraint struct {
	pg       string
	mysql    []uint16
	sqlite   []int
	fallback []string
}

var (
	uniqueConstraint = constraint{
		pg:     pgUniqueViolation,
		mysql:  []uint16{mysqlDuplicateEntry},
		sqlite: []int{sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY},
		fallback: []string{
			"Error 1062",                 // MySQL
			"violates unique constraint", // Postgres
			"UNIQUE constraint failed",   // SQLite
		},
	}
	foreignKeyConstraint = constraint{
		pg:     pgForeignKeyViolation,
		mysql:  []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		sqlite: []int{sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY},
		fallback: []string{
			"Error 1451",                      // MySQL (Cannot delete or update a parent row)
			"Error 1452",                      // MySQL (Cannot add or update a child row)
			"violates foreign key constraint", // Postgres
			"FOREIGN KEY constraint failed",   // SQLite
		},
	}
	checkConstraint = constraint{
		pg:     pgCheckViolation,
		mysql:  []uint16{mysqlCheckConstraintViolate},
		sqlite: []int{sqlite3.SQLITE_CONSTRAINT_CHECK},
		fallback: []string{
			"Error 3819",                // MySQL
			"violates check constraint", // Postgres
			"CHECK constraint failed",   // SQLite
		},
	}
)

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	return uniqueConstraint.match(err)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	return foreignKeyConstraint.match(err)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
// e.g. a value does not satisfy a check condition.
func IsCheckConstraintError(err error) bool {
	return checkConstraint.match(err)
}

func (c constraint) match(err error) bool {
	if err == nil {
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return string(pe.Code) == c.pg
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		for _, n := range c.mysql {
			if me.Number == n {
				return true
			}
		}
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		for _, code := range c.sqlite {
			if se.Code() == code {
				return true
			}
		}
		return false
	}
	// Drivers wrapped by other layers (e.g. sqlmock, tracing drivers) only
	// leave the message behind.
	msg := err.Error()
	for _, sub := range c.fallback {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
