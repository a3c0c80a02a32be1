package graft

import (
	"context"

	"github.com/syssam/graft/dialect"
)

// Repository is the storage adapter contract consumed by the orchestrator.
// A Repository is bound either to a driver or, through WithTx, to one
// transaction; every statement of a bound repository runs inside it.
type Repository interface {
	// Model describes the entity type the repository stores.
	Model() Model

	// WithTx returns a copy of the repository bound to tx.
	WithTx(tx dialect.Tx) Repository

	// Get returns the record with the given key, eager-loading the relations in with.
	Get(ctx context.Context, key any, with ...string) (Entity, error)

	// Store inserts the fillable fields of p. When p carries the key of an
	// existing record, that record is updated instead.
	Store(ctx context.Context, p Payload) (Entity, error)

	// Update writes the fillable fields of p to the record keyed by p[KeyName].
	Update(ctx context.Context, p Payload) (Entity, error)

	// Destroy deletes the record with the given key.
	Destroy(ctx context.Context, key any) error

	// Latest returns the single record with the given key, most recently
	// updated first, eager-loading the relations in with. Zero matches yield
	// a NotFoundError and more than one a NotSingularError.
	Latest(ctx context.Context, key any, with ...string) (Entity, error)

	// Related returns the records reached from parent through relation,
	// skipping those whose key is in exclude.
	Related(ctx context.Context, parent Entity, relation string, exclude []any) ([]Related, error)

	// Remove deletes e from the table of its own type.
	Remove(ctx context.Context, e Entity) error

	// Upsert makes sure exactly one record of targetType matches every field
	// of match, inserting it when missing.
	Upsert(ctx context.Context, targetType string, match Payload) (Entity, error)

	// Resolves reports whether targetType is a type the repository can write.
	Resolves(targetType string) bool
}
