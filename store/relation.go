package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	entgraph "entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/syssam/graft"
	"github.com/syssam/graft/contrib/dataloader"
	"github.com/syssam/graft/schema"
)

// Related returns the records reached from parent through relation whose
// key is not in exclude. Records reached through a pivot carry the pivot
// row, and the record the pivot owns when the relation declares one.
func (r *Repository) Related(ctx context.Context, parent graft.Entity, relation string, exclude []any) ([]graft.Related, error) {
	if !graft.HasKey(parent) {
		return nil, fmt.Errorf("store: related %q of an entity without key", relation)
	}
	owner, rel, target, err := r.relation(parent.TypeName(), relation)
	if err != nil {
		return nil, err
	}
	return r.related(ctx, owner, rel, target, parent, exclude)
}

func (r *Repository) relation(ownerType, name string) (*schema.Table, *schema.Relation, *schema.Table, error) {
	owner, ok := r.reg.Lookup(ownerType)
	if !ok {
		return nil, nil, nil, fmt.Errorf("store: type %q is not registered", ownerType)
	}
	rel, ok := owner.Relation(name)
	if !ok {
		return nil, nil, nil, fmt.Errorf("store: %s has no relation %q", owner.Type, name)
	}
	target, ok := r.reg.Lookup(rel.Target)
	if !ok {
		return nil, nil, nil, fmt.Errorf("store: type %q is not registered", rel.Target)
	}
	return owner, rel, target, nil
}

func (r *Repository) related(ctx context.Context, owner *schema.Table, rel *schema.Relation, target *schema.Table, parent graft.Entity, exclude []any) ([]graft.Related, error) {
	if rel.Kind == schema.ManyToMany {
		return r.throughPivot(ctx, owner, rel, target, parent, exclude)
	}
	sel := entgraph.Neighbors(r.builder, r.step(owner, rel, target, parent))
	// A belongs-to step joins the owner table; keep the target columns only.
	sel.Select(sel.C("*"))
	if len(exclude) > 0 {
		sel.Where(entsql.NotIn(sel.C(target.Key), exclude...))
	}
	rows, err := r.query(ctx, sel.OrderBy(sel.C(target.Key)))
	if err != nil {
		return nil, graft.NewQueryError(target.Type, rel.Name, err)
	}
	out := make([]graft.Related, 0, len(rows))
	for _, rec := range records(target, rows) {
		out = append(out, graft.Related{Entity: rec})
	}
	return out, nil
}

// step describes the hop from parent to the targets of a direct relation.
func (r *Repository) step(owner *schema.Table, rel *schema.Relation, target *schema.Table, parent graft.Entity) *entgraph.Step {
	var edge entgraph.StepOption
	switch rel.Kind {
	case schema.BelongsTo:
		edge = entgraph.Edge(entgraph.M2O, true, owner.Name, rel.ForeignKey)
	case schema.HasOne:
		edge = entgraph.Edge(entgraph.O2O, false, target.Name, rel.ForeignKey)
	default:
		edge = entgraph.Edge(entgraph.O2M, false, target.Name, rel.ForeignKey)
	}
	return entgraph.NewStep(
		entgraph.From(owner.Name, owner.Key, parent.Key()),
		entgraph.To(target.Name, target.Key),
		edge,
	)
}

// pivots selects the pivot rows of parent, restricted to its type when the
// pivot is polymorphic.
func (r *Repository) pivots(pt *schema.Table, p *schema.Pivot, parent graft.Entity) *entsql.Selector {
	t := r.stmt().Table(pt.Name)
	sel := r.stmt().Select().From(t).Where(entsql.EQ(t.C(p.OwnerKey), parent.Key()))
	if p.TypeColumn != "" {
		sel.Where(entsql.EQ(t.C(p.TypeColumn), parent.TypeName()))
	}
	return sel.OrderBy(t.C(pt.Key))
}

// throughPivot loads the pivot rows of parent, then their targets and owned
// records with one IN query each.
func (r *Repository) throughPivot(ctx context.Context, owner *schema.Table, rel *schema.Relation, target *schema.Table, parent graft.Entity, exclude []any) ([]graft.Related, error) {
	pt, ok := r.reg.Lookup(rel.Pivot.Type)
	if !ok {
		return nil, fmt.Errorf("store: type %q is not registered", rel.Pivot.Type)
	}
	if rel.Pivot.OwnerKey == "" || rel.Pivot.RelatedKey == "" {
		return nil, fmt.Errorf("store: pivot %s of %s.%s has no keys", pt.Type, owner.Type, rel.Name)
	}
	rows, err := r.query(ctx, r.pivots(pt, rel.Pivot, parent))
	if err != nil {
		return nil, graft.NewQueryError(pt.Type, rel.Name, err)
	}
	pivots := records(pt, rows)
	if len(pivots) == 0 {
		return nil, nil
	}
	relatedKey := fieldKey(rel.Pivot.RelatedKey)
	sel := r.stmt().Select().
		From(r.stmt().Table(target.Name)).
		Where(entsql.In(target.Key, dataloader.Keys(pivots, relatedKey)...))
	if len(exclude) > 0 {
		sel.Where(entsql.NotIn(target.Key, exclude...))
	}
	rows, err = r.query(ctx, sel.OrderBy(target.Key))
	if err != nil {
		return nil, graft.NewQueryError(target.Type, rel.Name, err)
	}
	targets := records(target, rows)
	byTarget := dataloader.GroupByKey(pivots, relatedKey)

	var owned []*Record
	if o := rel.Pivot.Owns; o != nil {
		if owned, err = r.ownedBy(ctx, o, pivots); err != nil {
			return nil, err
		}
	}
	var out []graft.Related
	for _, t := range targets {
		for _, p := range byTarget[graft.NormalizeKey(t.Key())] {
			rl := graft.Related{Entity: t, Pivot: p}
			if i := indexOf(pivots, p); owned != nil && owned[i] != nil {
				rl.Owned = owned[i]
			}
			out = append(out, rl)
		}
	}
	return out, nil
}

// ownedBy returns, for each pivot, the record it owns or nil.
func (r *Repository) ownedBy(ctx context.Context, o *schema.Owned, pivots []*Record) ([]*Record, error) {
	ot, ok := r.reg.Lookup(o.Type)
	if !ok {
		return nil, fmt.Errorf("store: type %q is not registered", o.Type)
	}
	ownedKey := fieldKey(o.Column)
	var keys []any
	for _, k := range dataloader.Keys(pivots, ownedKey) {
		if !graft.IsEmpty(k) {
			keys = append(keys, k)
		}
	}
	found, err := r.findAll(ctx, ot, keys)
	if err != nil {
		return nil, err
	}
	want := make([]any, len(pivots))
	for i, p := range pivots {
		want[i] = ownedKey(p)
	}
	ordered, _ := dataloader.OrderByKeys(want, found, func(rec *Record) any {
		return graft.NormalizeKey(rec.Key())
	})
	return ordered, nil
}

func (r *Repository) loadEdges(ctx context.Context, rec *Record, names []string) error {
	for _, name := range names {
		owner, rel, target, err := r.relation(rec.TypeName(), name)
		if err != nil {
			return graft.NewQueryError(rec.TypeName(), "with", err)
		}
		rels, err := r.related(ctx, owner, rel, target, rec, nil)
		if err != nil {
			return err
		}
		if !rel.Kind.Many() {
			var one graft.Entity
			if len(rels) > 0 {
				one = rels[0].Entity
			}
			rec.setEdge(name, one)
			continue
		}
		many := make([]graft.Entity, 0, len(rels))
		seen := make(map[any]struct{}, len(rels))
		for _, rl := range rels {
			k := graft.NormalizeKey(rl.Entity.Key())
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			many = append(many, rl.Entity)
		}
		rec.setEdge(name, many)
	}
	return nil
}

func fieldKey(column string) dataloader.KeyFunc[any, *Record] {
	return func(rec *Record) any {
		v, _ := rec.Field(column)
		return graft.NormalizeKey(v)
	}
}

func indexOf(pivots []*Record, p *Record) int {
	for i := range pivots {
		if pivots[i] == p {
			return i
		}
	}
	return -1
}
