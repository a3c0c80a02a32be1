package service

import (
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/syssam/graft"
)

// Timing tells whether a child is persisted before or after its parent.
type Timing uint8

// Child timings.
const (
	Before Timing = iota + 1
	After
)

// String returns the timing name.
func (t Timing) String() string {
	switch t {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return fmt.Sprintf("Timing(%d)", uint8(t))
	}
}

// Flag is a set of per-child behaviours.
type Flag uint8

// Child flags.
const (
	// Sync deletes the related rows missing from the incoming collection
	// before the children are stored. After children only.
	Sync Flag = 1 << iota
	// Morph writes a polymorphic association row for the stored child.
	Morph
)

// Has reports whether f contains every flag of o.
func (f Flag) Has(o Flag) bool { return f&o == o }

// MorphConfig describes the polymorphic association row written for a child.
type MorphConfig struct {
	// OwnerField prefixes the owner columns: OwnerField_id and OwnerField_type.
	OwnerField string `yaml:"owner_field"`
	// RelatedColumn holds the key of the stored child.
	RelatedColumn string `yaml:"related_column"`
	// TargetType is the entity type of the association rows.
	TargetType string `yaml:"target_type"`
}

// Descriptor declares one child of a parent service.
type Descriptor struct {
	// Child persists the child entity inside the parent transaction.
	Child Persister
	// Timing is required.
	Timing Timing
	// Options holds Sync and Morph.
	Options Flag
	// RelationName overrides the relation eager-loaded on reload and used
	// by Sync. Defaults to the lower camel case child type name.
	RelationName string
	// PayloadKey overrides the payload field holding the child value.
	// Defaults to the snake case child type name.
	PayloadKey string
	// Morph is required by the Morph option.
	Morph *MorphConfig
}

// binding is a Descriptor with its names resolved.
type binding struct {
	child      Persister
	timing     Timing
	options    Flag
	typeName   string
	keyName    string
	payloadKey string
	relation   string
	morph      *MorphConfig
}

// PayloadKey returns the default payload field of a child type.
func PayloadKey(typeName string) string {
	return inflect.Underscore(typeName)
}

// RelationName returns the default relation name of a child type.
func RelationName(typeName string) string {
	return inflect.CamelizeDownFirst(typeName)
}

// resolve checks d against the parent model and derives its names.
func resolve(parent graft.Model, repo Repository, i int, d Descriptor) (binding, error) {
	name := parent.TypeName()
	if d.Child == nil || d.Child.Model() == nil {
		return binding{}, graft.NewConfigurationError(name, "child %d does not implement Persister", i)
	}
	m := d.Child.Model()
	b := binding{
		child:      d.Child,
		timing:     d.Timing,
		options:    d.Options,
		typeName:   m.TypeName(),
		keyName:    m.KeyName(),
		payloadKey: d.PayloadKey,
		relation:   d.RelationName,
		morph:      d.Morph,
	}
	if b.typeName == "" || b.keyName == "" {
		return binding{}, graft.NewConfigurationError(name, "child %d has no type or key name", i)
	}
	if b.timing != Before && b.timing != After {
		return binding{}, graft.NewConfigurationError(name, "child %s has no timing", b.typeName)
	}
	if b.payloadKey == "" {
		b.payloadKey = PayloadKey(b.typeName)
	}
	if b.relation == "" {
		b.relation = RelationName(b.typeName)
	}
	if !parent.HasRelation(b.relation) {
		return binding{}, graft.NewConfigurationError(name, "child %s: unknown relation %q", b.typeName, b.relation)
	}
	if b.options.Has(Sync) && b.timing != After {
		return binding{}, graft.NewConfigurationError(name, "child %s: sync requires after timing", b.typeName)
	}
	if b.options.Has(Morph) {
		if err := checkMorph(b.morph, repo); err != nil {
			return binding{}, graft.NewConfigurationError(name, "child %s: %v", b.typeName, err)
		}
	}
	return b, nil
}
