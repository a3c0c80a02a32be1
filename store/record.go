package store

import (
	"encoding/json"
	"maps"

	"github.com/syssam/graft"
	"github.com/syssam/graft/schema"
)

// Record is one row of a registered table. It implements graft.Entity.
type Record struct {
	table  *schema.Table
	values map[string]any
	edges  map[string]any
}

func newRecord(t *schema.Table, values map[string]any) *Record {
	for k, v := range values {
		if b, ok := v.([]byte); ok {
			values[k] = string(b)
		}
	}
	return &Record{table: t, values: values}
}

// TypeName returns the entity type of the record.
func (r *Record) TypeName() string { return r.table.Type }

// KeyName returns the key column.
func (r *Record) KeyName() string { return r.table.Key }

// Fillable returns the fillable columns of the record type.
func (r *Record) Fillable() []string { return r.table.Fillable() }

// HasRelation reports whether the record type declares the relation.
func (r *Record) HasRelation(name string) bool { return r.table.HasRelation(name) }

// Key returns the value of the key column.
func (r *Record) Key() any {
	return r.values[r.table.Key]
}

// Field returns the value of a column.
func (r *Record) Field(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Edge returns a relation loaded on the record.
func (r *Record) Edge(name string) (any, bool) {
	v, ok := r.edges[name]
	return v, ok
}

// Values returns a copy of the column values.
func (r *Record) Values() map[string]any {
	return maps.Clone(r.values)
}

func (r *Record) setEdge(name string, v any) {
	if r.edges == nil {
		r.edges = make(map[string]any)
	}
	r.edges[name] = v
}

// MarshalJSON encodes the columns and the loaded relations as one object.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.values)+len(r.edges))
	maps.Copy(out, r.values)
	maps.Copy(out, r.edges)
	return json.Marshal(out)
}

var _ graft.Entity = (*Record)(nil)
