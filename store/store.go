// Package store is a SQL storage adapter for the orchestrator. A Repository
// reads and writes the rows of one registered schema.Table through a
// dialect.Driver, or through a transaction once bound with WithTx.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	entdialect "entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/syssam/graft"
	"github.com/syssam/graft/dialect"
	"github.com/syssam/graft/dialect/sql"
	"github.com/syssam/graft/dialect/sql/sqlgraph"
	"github.com/syssam/graft/schema"
)

// Timestamp columns maintained for tables declaring Timestamps.
const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
)

// Repository implements graft.Repository over SQL tables.
type Repository struct {
	eq      dialect.ExecQuerier
	dialect string
	builder string
	reg     *schema.Registry
	table   *schema.Table
	now     func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the clock used for timestamp columns.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// New returns a Repository for the entity type registered as typeName.
func New(drv dialect.Driver, reg *schema.Registry, typeName string, opts ...Option) (*Repository, error) {
	if drv == nil {
		return nil, errors.New("store: nil driver")
	}
	t, ok := reg.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("store: type %q is not registered", typeName)
	}
	r := &Repository{
		eq:      drv,
		dialect: drv.Dialect(),
		builder: builderDialect(drv.Dialect()),
		reg:     reg,
		table:   t,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Model returns the table the repository stores.
func (r *Repository) Model() graft.Model {
	return r.table
}

// WithTx returns a copy of the repository whose statements run in tx.
func (r *Repository) WithTx(tx dialect.Tx) graft.Repository {
	c := *r
	c.eq = tx
	return &c
}

// Resolves reports whether targetType is registered.
func (r *Repository) Resolves(targetType string) bool {
	_, ok := r.reg.Lookup(targetType)
	return ok
}

// builderDialect maps a driver dialect to the dialect name of the statement
// builder, which spells SQLite as sqlite3.
func builderDialect(name string) string {
	if name == dialect.SQLite {
		return entdialect.SQLite
	}
	return name
}

// stmt returns a statement builder for the repository dialect.
func (r *Repository) stmt() *entsql.DialectBuilder {
	return entsql.Dialect(r.builder)
}

// Get returns the record with the given key.
func (r *Repository) Get(ctx context.Context, key any, with ...string) (graft.Entity, error) {
	rec, err := r.find(ctx, r.table, key)
	if err != nil {
		return nil, err
	}
	if err := r.loadEdges(ctx, rec, with); err != nil {
		return nil, err
	}
	return rec, nil
}

// Latest returns the only record with the given key, ordered by the most
// recent update (or by key when the table has no timestamps).
func (r *Repository) Latest(ctx context.Context, key any, with ...string) (graft.Entity, error) {
	t := r.table
	sel := r.stmt().Select().
		From(r.stmt().Table(t.Name)).
		Where(entsql.EQ(t.Key, key))
	if t.Timestamps {
		sel.OrderBy(entsql.Desc(UpdatedAt))
	} else {
		sel.OrderBy(entsql.Desc(t.Key))
	}
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, graft.NewQueryError(t.Type, "latest", err)
	}
	switch len(rows) {
	case 0:
		return nil, graft.NewNotFoundError(t.Type, key)
	case 1:
	default:
		return nil, graft.NewNotSingularError(t.Type, len(rows))
	}
	rec := newRecord(t, rows[0])
	if err := r.loadEdges(ctx, rec, with); err != nil {
		return nil, err
	}
	return rec, nil
}

// Store inserts the fillable fields of p, or updates the existing record
// when p carries its key.
func (r *Repository) Store(ctx context.Context, p graft.Payload) (graft.Entity, error) {
	t := r.table
	if key := p[t.Key]; !graft.IsEmpty(key) {
		ok, err := r.exists(ctx, t, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return r.Update(ctx, p)
		}
	}
	return r.insert(ctx, t, r.fillable(t, p))
}

// Update writes the fillable fields of p to the record keyed by p[KeyName].
func (r *Repository) Update(ctx context.Context, p graft.Payload) (graft.Entity, error) {
	t := r.table
	key := p[t.Key]
	if graft.IsEmpty(key) {
		return nil, graft.NewMutationError(t.Type, "update", fmt.Errorf("missing %s", t.Key))
	}
	ok, err := r.exists(ctx, t, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, graft.NewNotFoundError(t.Type, key)
	}
	cols := r.fillable(t, p)
	delete(cols, t.Key)
	if err := r.update(ctx, t, key, cols); err != nil {
		return nil, err
	}
	return r.find(ctx, t, key)
}

// Destroy deletes the record with the given key.
func (r *Repository) Destroy(ctx context.Context, key any) error {
	return r.delete(ctx, r.table, key)
}

// Remove deletes e from the table registered for its type.
func (r *Repository) Remove(ctx context.Context, e graft.Entity) error {
	if e == nil {
		return errors.New("store: remove nil entity")
	}
	t, ok := r.reg.Lookup(e.TypeName())
	if !ok {
		return fmt.Errorf("store: type %q is not registered", e.TypeName())
	}
	if !graft.HasKey(e) {
		return graft.NewMutationError(t.Type, "delete", fmt.Errorf("missing %s", t.Key))
	}
	return r.delete(ctx, t, e.Key())
}

// Upsert returns the first record of targetType matching every field of
// match, inserting one when none exists. The match columns are written as
// given, whether fillable or not.
func (r *Repository) Upsert(ctx context.Context, targetType string, match graft.Payload) (graft.Entity, error) {
	t, ok := r.reg.Lookup(targetType)
	if !ok {
		return nil, fmt.Errorf("store: type %q is not registered", targetType)
	}
	if len(match) == 0 {
		return nil, graft.NewMutationError(t.Type, "upsert", errors.New("empty match"))
	}
	sel := r.stmt().Select().From(r.stmt().Table(t.Name)).OrderBy(t.Key)
	for _, col := range match.Keys() {
		sel.Where(entsql.EQ(col, match[col]))
	}
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, graft.NewQueryError(t.Type, "upsert", err)
	}
	if len(rows) == 0 {
		return r.insert(ctx, t, match.Clone())
	}
	rec := newRecord(t, rows[0])
	if t.Timestamps {
		if err := r.update(ctx, t, rec.Key(), graft.Payload{}); err != nil {
			return nil, err
		}
		return r.find(ctx, t, rec.Key())
	}
	return rec, nil
}

// fillable returns the fields of p that t accepts.
func (r *Repository) fillable(t *schema.Table, p graft.Payload) graft.Payload {
	return p.Only(t.Columns...)
}

func (r *Repository) insert(ctx context.Context, t *schema.Table, cols graft.Payload) (*Record, error) {
	if graft.IsEmpty(cols[t.Key]) {
		delete(cols, t.Key)
		if key := t.NewKey(); key != nil {
			cols[t.Key] = key
		}
	}
	if t.Timestamps {
		now := r.now()
		cols[CreatedAt] = now
		cols[UpdatedAt] = now
	}
	ins := r.stmt().Insert(t.Name)
	for _, col := range cols.Keys() {
		ins.Set(col, cols[col])
	}
	if len(cols) == 0 {
		ins.Default()
	}
	key, hasKey := cols[t.Key]
	switch {
	case hasKey:
		if _, err := r.exec(ctx, ins); err != nil {
			return nil, mutationError(t, "create", err)
		}
	case t.KeyType != schema.KeyIncrement:
		// The key is neither generated nor given: the row is written but
		// cannot be read back.
		if _, err := r.exec(ctx, ins); err != nil {
			return nil, mutationError(t, "create", err)
		}
		return newRecord(t, cols), nil
	case r.dialect == dialect.Postgres:
		rows, err := r.query(ctx, ins.Returning(t.Key))
		if err != nil {
			return nil, mutationError(t, "create", err)
		}
		if len(rows) != 1 {
			return nil, graft.NewMutationError(t.Type, "create", fmt.Errorf("returned %d keys", len(rows)))
		}
		key = rows[0][t.Key]
	default:
		res, err := r.exec(ctx, ins)
		if err != nil {
			return nil, mutationError(t, "create", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, graft.NewMutationError(t.Type, "create", err)
		}
		key = id
	}
	return r.find(ctx, t, key)
}

func (r *Repository) update(ctx context.Context, t *schema.Table, key any, cols graft.Payload) error {
	if len(cols) == 0 && !t.Timestamps {
		return nil
	}
	upd := r.stmt().Update(t.Name)
	for _, col := range cols.Keys() {
		upd.Set(col, cols[col])
	}
	if t.Timestamps {
		upd.Set(UpdatedAt, r.now())
	}
	if _, err := r.exec(ctx, upd.Where(entsql.EQ(t.Key, key))); err != nil {
		return mutationError(t, "update", err)
	}
	return nil
}

func (r *Repository) delete(ctx context.Context, t *schema.Table, key any) error {
	res, err := r.exec(ctx, r.stmt().Delete(t.Name).Where(entsql.EQ(t.Key, key)))
	if err != nil {
		return mutationError(t, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return graft.NewMutationError(t.Type, "delete", err)
	}
	if n == 0 {
		return graft.NewNotFoundError(t.Type, key)
	}
	return nil
}

func (r *Repository) find(ctx context.Context, t *schema.Table, key any) (*Record, error) {
	rows, err := r.query(ctx, r.stmt().Select().
		From(r.stmt().Table(t.Name)).
		Where(entsql.EQ(t.Key, key)))
	if err != nil {
		return nil, graft.NewQueryError(t.Type, "", err)
	}
	switch len(rows) {
	case 0:
		return nil, graft.NewNotFoundError(t.Type, key)
	case 1:
		return newRecord(t, rows[0]), nil
	default:
		return nil, graft.NewNotSingularError(t.Type, len(rows))
	}
}

func (r *Repository) findAll(ctx context.Context, t *schema.Table, keys []any) ([]*Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := r.query(ctx, r.stmt().Select().
		From(r.stmt().Table(t.Name)).
		Where(entsql.In(t.Key, keys...)).
		OrderBy(t.Key))
	if err != nil {
		return nil, graft.NewQueryError(t.Type, "", err)
	}
	return records(t, rows), nil
}

func (r *Repository) exists(ctx context.Context, t *schema.Table, key any) (bool, error) {
	rows, err := r.query(ctx, r.stmt().Select(t.Key).
		From(r.stmt().Table(t.Name)).
		Where(entsql.EQ(t.Key, key)).
		Limit(1))
	if err != nil {
		return false, graft.NewQueryError(t.Type, "exists", err)
	}
	return len(rows) > 0, nil
}

func (r *Repository) query(ctx context.Context, q entsql.Querier) ([]map[string]any, error) {
	query, args := q.Query()
	if args == nil {
		args = []any{}
	}
	rows := &sql.Rows{}
	if err := r.eq.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return sql.ScanMaps(rows)
}

func (r *Repository) exec(ctx context.Context, q entsql.Querier) (sql.Result, error) {
	query, args := q.Query()
	if args == nil {
		args = []any{}
	}
	var res sql.Result
	if err := r.eq.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func records(t *schema.Table, rows []map[string]any) []*Record {
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, newRecord(t, row))
	}
	return out
}

// mutationError classifies driver constraint violations.
func mutationError(t *schema.Table, op string, err error) error {
	if sqlgraph.IsConstraintError(err) {
		return graft.NewConstraintError(fmt.Sprintf("%s %s: %v", op, t.Name, err), err)
	}
	return graft.NewMutationError(t.Type, op, err)
}

var _ graft.Repository = (*Repository)(nil)
