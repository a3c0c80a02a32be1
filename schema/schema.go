package schema

import (
	"fmt"
	"slices"

	"github.com/go-openapi/inflect"
	"github.com/google/uuid"
)

// KeyType controls how a table's key is produced on insert.
type KeyType string

// Key types.
const (
	// KeyIncrement keys are assigned by the database (auto increment / serial).
	KeyIncrement KeyType = "increment"
	// KeyUUID keys are generated client-side with google/uuid.
	KeyUUID KeyType = "uuid"
	// KeyManual keys are supplied by the caller in the payload. The key
	// column must be fillable for it to be written.
	KeyManual KeyType = "manual"
)

// Kind is the kind of a relation between two tables.
type Kind string

// Relation kinds.
const (
	// BelongsTo: the foreign key lives on the owner and references the target key.
	BelongsTo Kind = "belongs_to"
	// HasOne: the foreign key lives on the target and references the owner key.
	HasOne Kind = "has_one"
	// HasMany: like HasOne with any number of targets.
	HasMany Kind = "has_many"
	// ManyToMany: owner and target are linked through pivot rows.
	ManyToMany Kind = "many_to_many"
)

// Many reports whether the relation yields a list of records.
func (k Kind) Many() bool {
	return k == HasMany || k == ManyToMany
}

// Table declares one entity type and the table it is stored in.
type Table struct {
	// Type is the entity type name, e.g. "LineItem".
	Type string `yaml:"type"`

	// Name is the SQL table. Defaults to the plural snake case of Type.
	Name string `yaml:"table,omitempty"`

	// Key is the key column. Defaults to the snake case of Type with an
	// "_id" suffix, e.g. "line_item_id".
	Key string `yaml:"key,omitempty"`

	// KeyType defaults to KeyIncrement.
	KeyType KeyType `yaml:"key_type,omitempty"`

	// Columns lists the fillable columns: the only ones written from a payload.
	Columns StringList `yaml:"fillable,omitempty"`

	// Timestamps maintains created_at and updated_at.
	Timestamps bool `yaml:"timestamps,omitempty"`

	// Relations declared on the type.
	Relations []*Relation `yaml:"relations,omitempty"`
}

// Relation declares a named edge from a table to a target type.
type Relation struct {
	// Name of the relation. Defaults to the lower camel case of Target.
	Name string `yaml:"name,omitempty"`

	Kind Kind `yaml:"kind"`

	// Target is the entity type reached through the relation.
	Target string `yaml:"target"`

	// ForeignKey defaults to the target key for BelongsTo and to the owner
	// key for HasOne and HasMany. Unused by ManyToMany.
	ForeignKey string `yaml:"foreign_key,omitempty"`

	// Pivot is required by ManyToMany.
	Pivot *Pivot `yaml:"pivot,omitempty"`
}

// Pivot describes the association rows of a ManyToMany relation.
type Pivot struct {
	// Type is the registered entity type of the pivot rows.
	Type string `yaml:"type"`

	// OwnerKey references the owner key. Defaults to the owner key name.
	OwnerKey string `yaml:"owner_key,omitempty"`

	// RelatedKey references the target key. Defaults to the target key name.
	RelatedKey string `yaml:"related_key,omitempty"`

	// TypeColumn, when set, holds the owner type name (polymorphic pivots).
	TypeColumn string `yaml:"type_column,omitempty"`

	// Owns is a record each pivot row exclusively owns. It is deleted
	// together with the pivot row.
	Owns *Owned `yaml:"owns,omitempty"`
}

// Owned references a record owned by a pivot row.
type Owned struct {
	// Type is the registered entity type of the owned record.
	Type string `yaml:"type"`
	// Column on the pivot holding the owned record key. Defaults to the
	// owned type key name.
	Column string `yaml:"column,omitempty"`
}

// TypeName implements graft.Model.
func (t *Table) TypeName() string { return t.Type }

// KeyName implements graft.Model.
func (t *Table) KeyName() string { return t.Key }

// Fillable implements graft.Model.
func (t *Table) Fillable() []string { return slices.Clone(t.Columns) }

// HasRelation implements graft.Model.
func (t *Table) HasRelation(name string) bool {
	_, ok := t.Relation(name)
	return ok
}

// Relation returns the relation with the given name.
func (t *Table) Relation(name string) (*Relation, bool) {
	for _, r := range t.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// IsFillable reports whether column may be written from a payload.
func (t *Table) IsFillable(column string) bool {
	return slices.Contains(t.Columns, column)
}

// NewKey returns a client-generated key, or nil when the key is assigned
// by the database or the caller.
func (t *Table) NewKey() any {
	if t.KeyType == KeyUUID {
		return uuid.NewString()
	}
	return nil
}

// clone returns a deep copy of t, so that defaults never reach the caller's
// declarations.
func (t *Table) clone() *Table {
	c := *t
	c.Columns = slices.Clone(t.Columns)
	c.Relations = make([]*Relation, len(t.Relations))
	for i, rel := range t.Relations {
		if rel == nil {
			continue
		}
		r := *rel
		if rel.Pivot != nil {
			p := *rel.Pivot
			if p.Owns != nil {
				o := *p.Owns
				p.Owns = &o
			}
			r.Pivot = &p
		}
		c.Relations[i] = &r
	}
	return &c
}

// defaults fills the fields derived from the table alone.
func (t *Table) defaults() error {
	if t.Type == "" {
		return fmt.Errorf("schema: table %q: missing type", t.Name)
	}
	snake := inflect.Underscore(t.Type)
	if t.Name == "" {
		t.Name = inflect.Pluralize(snake)
	}
	if t.Key == "" {
		t.Key = snake + "_id"
	}
	switch t.KeyType {
	case "":
		t.KeyType = KeyIncrement
	case KeyIncrement, KeyUUID, KeyManual:
	default:
		return fmt.Errorf("schema: %s: unknown key type %q", t.Type, t.KeyType)
	}
	for _, r := range t.Relations {
		if r == nil || r.Target == "" {
			return fmt.Errorf("schema: %s: relation without target", t.Type)
		}
		if r.Name == "" {
			r.Name = inflect.CamelizeDownFirst(r.Target)
		}
	}
	return nil
}

// link resolves the relation defaults that depend on other tables.
func (t *Table) link(r *Registry) error {
	seen := make(map[string]struct{}, len(t.Relations))
	for _, rel := range t.Relations {
		if _, ok := seen[rel.Name]; ok {
			return fmt.Errorf("schema: %s: duplicate relation %q", t.Type, rel.Name)
		}
		seen[rel.Name] = struct{}{}
		target, ok := r.Lookup(rel.Target)
		if !ok {
			return fmt.Errorf("schema: %s.%s: unknown target type %q", t.Type, rel.Name, rel.Target)
		}
		switch rel.Kind {
		case BelongsTo:
			if rel.ForeignKey == "" {
				rel.ForeignKey = target.Key
			}
		case HasOne, HasMany:
			if rel.ForeignKey == "" {
				rel.ForeignKey = t.Key
			}
		case ManyToMany:
			if err := rel.linkPivot(t, target, r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("schema: %s.%s: unknown relation kind %q", t.Type, rel.Name, rel.Kind)
		}
	}
	return nil
}

func (rel *Relation) linkPivot(owner, target *Table, r *Registry) error {
	p := rel.Pivot
	if p == nil || p.Type == "" {
		return fmt.Errorf("schema: %s.%s: many_to_many requires a pivot type", owner.Type, rel.Name)
	}
	if _, ok := r.Lookup(p.Type); !ok {
		return fmt.Errorf("schema: %s.%s: unknown pivot type %q", owner.Type, rel.Name, p.Type)
	}
	if p.OwnerKey == "" {
		p.OwnerKey = owner.Key
	}
	if p.RelatedKey == "" {
		p.RelatedKey = target.Key
	}
	if p.Owns != nil {
		owned, ok := r.Lookup(p.Owns.Type)
		if !ok {
			return fmt.Errorf("schema: %s.%s: unknown owned type %q", owner.Type, rel.Name, p.Owns.Type)
		}
		if p.Owns.Column == "" {
			p.Owns.Column = owned.Key
		}
	}
	return nil
}
