package graft

// RelationBag collects relation names to eager-load when reloading a parent.
// Insertion order is preserved; duplicates and empty names are dropped.
type RelationBag struct {
	names []string
	seen  map[string]struct{}
}

// Add appends the given names to the bag.
func (b *RelationBag) Add(names ...string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if b.seen == nil {
			b.seen = make(map[string]struct{})
		}
		if _, ok := b.seen[n]; ok {
			continue
		}
		b.seen[n] = struct{}{}
		b.names = append(b.names, n)
	}
}

// Names returns a copy of the collected names in insertion order.
func (b *RelationBag) Names() []string {
	if b == nil || len(b.names) == 0 {
		return nil
	}
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

