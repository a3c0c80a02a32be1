package graft

// Model describes an entity type without reference to a particular record.
type Model interface {
	// TypeName returns the unqualified entity type name (e.g. "LineItem").
	// It is also the discriminator written by morph associations.
	TypeName() string

	// KeyName returns the name of the key field (e.g. "line_item_id").
	KeyName() string

	// Fillable returns the fields the storage adapter accepts on write.
	Fillable() []string

	// HasRelation reports whether name is a relation declared on the type.
	HasRelation(name string) bool
}

// Entity is the accessor contract over one stored record.
type Entity interface {
	Model

	// Key returns the value of the key field, or nil when the record
	// has not been persisted.
	Key() any

	// Field returns the value of a column.
	Field(name string) (any, bool)

	// Edge returns a relation loaded on the record. Has-many and many-to-many
	// relations yield []Entity, others a single Entity (or nil).
	Edge(name string) (any, bool)
}

// Related is one row reached through a relation of a parent entity.
type Related struct {
	// Entity is the related record.
	Entity Entity

	// Pivot is the association record linking parent and Entity, set for
	// relations declared through an intermediate table.
	Pivot Entity

	// Owned is the record Pivot exclusively owns, if the association declares one.
	Owned Entity
}

// HasKey reports whether e carries a non-empty key.
func HasKey(e Entity) bool {
	return e != nil && !IsEmpty(e.Key())
}
