package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Registry maps entity type names to their tables. A Registry is built
// once and is read-only afterwards.
type Registry struct {
	tables map[string]*Table
	order  []string
}

// NewRegistry registers copies of the given tables, applies the defaults
// and checks that every relation resolves.
func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if t == nil {
			return nil, fmt.Errorf("schema: nil table")
		}
		t = t.clone()
		if err := t.defaults(); err != nil {
			return nil, err
		}
		if _, ok := r.tables[t.Type]; ok {
			return nil, fmt.Errorf("schema: type %q registered twice", t.Type)
		}
		r.tables[t.Type] = t
		r.order = append(r.order, t.Type)
	}
	for _, name := range r.order {
		if err := r.tables[name].link(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Lookup returns the table registered for the entity type.
func (r *Registry) Lookup(typ string) (*Table, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tables[typ]
	return t, ok
}

// Tables returns the registered tables in registration order.
func (r *Registry) Tables() []*Table {
	out := make([]*Table, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tables[name])
	}
	return out
}

// File is the YAML layout of a schema file.
//
//	tables:
//	  - type: Invoice
//	    fillable: [number, total]
//	    timestamps: true
//	    relations:
//	      - kind: has_many
//	        target: LineItem
//	        name: lineItems
//	  - type: LineItem
//	    fillable: [line_item_id, invoice_id, sku, qty]
type File struct {
	Tables []*Table `yaml:"tables"`
}

// Parse builds a Registry from YAML data.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return NewRegistry(f.Tables...)
}

// Load reads and parses a YAML schema file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(data)
}

// StringList is a YAML type that can be either a string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler for StringList.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}
