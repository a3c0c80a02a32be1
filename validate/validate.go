// Package validate checks payloads against per-field rule tags using
// go-playground/validator. It is the validation collaborator of a
// service.Service: its errors reach the caller without being wrapped.
package validate

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/syssam/graft"
)

// Rules declares the validation tags of a payload.
type Rules struct {
	// Fields maps a payload field to a validator tag, e.g. "required,email".
	Fields map[string]string `yaml:"fields,omitempty"`

	// ExcludeOnUpdate lists fields whose rule does not apply to updates.
	ExcludeOnUpdate []string `yaml:"exclude_on_update,omitempty"`

	// ReplaceOnUpdate overrides the tag of a field for updates.
	ReplaceOnUpdate map[string]string `yaml:"replace_on_update,omitempty"`
}

// Validator validates payloads against a fixed set of Rules.
// It is safe for concurrent use.
type Validator struct {
	v      *validator.Validate
	create map[string]any
	update map[string]any
}

// New returns a Validator for rules.
func New(rules Rules) *Validator {
	create := make(map[string]any, len(rules.Fields))
	for f, tag := range rules.Fields {
		create[f] = tag
	}
	update := maps.Clone(create)
	for _, f := range rules.ExcludeOnUpdate {
		delete(update, f)
	}
	for f, tag := range rules.ReplaceOnUpdate {
		update[f] = tag
	}
	return &Validator{
		v:      validator.New(validator.WithRequiredStructEnabled()),
		create: create,
		update: update,
	}
}

// Create validates p against every rule and returns the ruled fields.
func (v *Validator) Create(p graft.Payload) (graft.Payload, error) {
	return v.check(p, v.create)
}

// Update validates p against the update rules and returns the ruled fields.
func (v *Validator) Update(p graft.Payload) (graft.Payload, error) {
	return v.check(p, v.update)
}

func (v *Validator) check(p graft.Payload, rules map[string]any) (graft.Payload, error) {
	if len(rules) == 0 {
		return graft.Payload{}, nil
	}
	data := map[string]any(p.Clone())
	if errs := v.v.ValidateMap(data, rules); len(errs) > 0 {
		e := &Error{Fields: make(map[string]string, len(errs))}
		for field, err := range errs {
			e.Fields[field] = message(err)
		}
		return nil, e
	}
	return p.Only(slices.Collect(maps.Keys(rules))...), nil
}

func message(err any) string {
	var ve validator.ValidationErrors
	if e, ok := err.(error); ok && errors.As(e, &ve) && len(ve) > 0 {
		fe := ve[0]
		if fe.Param() != "" {
			return fmt.Sprintf("failed on %s=%s", fe.Tag(), fe.Param())
		}
		return "failed on " + fe.Tag()
	}
	return fmt.Sprint(err)
}

// Error reports the fields of a payload that failed validation.
type Error struct {
	Fields map[string]string // field -> message
}

// Error returns the error string.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("validate: ")
	for i, f := range slices.Sorted(maps.Keys(e.Fields)) {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f + " " + e.Fields[f])
	}
	return b.String()
}

// IsError reports whether err is, or wraps, a validation Error.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
