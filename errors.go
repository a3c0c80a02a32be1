package graft

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("graft: entity not found")

	// ErrNotSingular is returned when a lookup that expects exactly one result
	// returns zero or multiple results.
	ErrNotSingular = errors.New("graft: entity not singular")

	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("graft: invalid configuration")

	// ErrPersistence is matched by every PersistenceError.
	ErrPersistence = errors.New("graft: persistence failed")

	// ErrTxDone is returned when a phase runs against a transaction that was
	// already committed or rolled back.
	ErrTxDone = errors.New("graft: transaction already finished")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the key that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("graft: %s not found (key=%v)", e.label, e.id)
	}
	return fmt.Sprintf("graft: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// NewNotFoundError returns a new NotFoundError for the given entity type and key.
func NewNotFoundError(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError represents an error when a lookup expects a singular result
// but receives multiple results.
type NotSingularError struct {
	label string
	count int
}

// Error returns the error string.
func (e *NotSingularError) Error() string {
	return fmt.Sprintf("graft: %s not singular (got %d results, expected 1)", e.label, e.count)
}

// Is reports whether the target error matches NotSingularError.
func (e *NotSingularError) Is(err error) bool {
	return err == ErrNotSingular
}

// NewNotSingularError returns a new NotSingularError with the result count.
func NewNotSingularError(label string, count int) *NotSingularError {
	return &NotSingularError{label: label, count: count}
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// ConfigurationError reports a malformed descriptor table, a missing callback,
// a child that is not an orchestrator, an incomplete morph config or a model
// whose key is not persisted. It is never retried.
type ConfigurationError struct {
	Entity string // Entity type being configured
	Msg    string
}

// Error returns the error string.
func (e *ConfigurationError) Error() string {
	if e.Entity == "" {
		return "graft: configuration: " + e.Msg
	}
	return fmt.Sprintf("graft: configuration of %s: %s", e.Entity, e.Msg)
}

// Is reports whether the target error is ErrConfiguration.
func (e *ConfigurationError) Is(err error) bool {
	return err == ErrConfiguration
}

// NewConfigurationError returns a ConfigurationError with a formatted message.
func NewConfigurationError(entity, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Entity: entity, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigurationError
	return errors.As(err, &e)
}

// PersistenceError is returned when an orchestrated write fails and its
// transaction was rolled back. Only the message of the original error is
// carried; the cause is not unwrappable.
type PersistenceError struct {
	Entity string // Entity type being persisted
	Op     string // Operation (store or update)
	Msg    string // Message of the original error
}

// Error returns the error string.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("graft: %s %s: %s", e.Op, e.Entity, e.Msg)
}

// Is reports whether the target error is ErrPersistence.
func (e *PersistenceError) Is(err error) bool {
	return err == ErrPersistence
}

// NewPersistenceError returns a PersistenceError carrying the message of err.
func NewPersistenceError(entity, op string, err error) *PersistenceError {
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	return &PersistenceError{Entity: entity, Op: op, Msg: msg}
}

// IsPersistenceError returns true if the error is a PersistenceError.
func IsPersistenceError(err error) bool {
	if err == nil {
		return false
	}
	var e *PersistenceError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("graft: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("graft: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// MutationError wraps a storage mutation error with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Operation (e.g., "create", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("graft: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Operation (e.g., "select", "related", "reload")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("graft: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("graft: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}
