package service_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/crypto/bcrypt"

	"github.com/syssam/graft"
	"github.com/syssam/graft/dialect"
	"github.com/syssam/graft/dialect/sql"
	"github.com/syssam/graft/internal/fixture"
	"github.com/syssam/graft/schema"
	"github.com/syssam/graft/service"
	"github.com/syssam/graft/store"
	"github.com/syssam/graft/validate"
)

// env is a fixture database behind a debug driver whose statements are
// captured as JSON log lines.
type env struct {
	t     *testing.T
	base  *sql.Driver
	drv   dialect.Driver
	reg   *schema.Registry
	logs  *bytes.Buffer
	calls []call
}

func newEnv(t *testing.T) *env {
	t.Helper()
	base := fixture.Open(t)
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &env{
		t:    t,
		base: base,
		drv:  sql.NewDebugDriver(base, logger),
		reg:  fixture.Registry(t),
		logs: logs,
	}
}

func (e *env) repo(typ string) graft.Repository {
	e.t.Helper()
	r, err := store.New(e.drv, e.reg, typ)
	require.NoError(e.t, err)
	return &recorder{Repository: r, calls: &e.calls}
}

func (e *env) service(typ string, opts ...service.Option) *service.Service {
	e.t.Helper()
	s, err := service.New(e.drv, e.repo(typ), opts...)
	require.NoError(e.t, err)
	return s
}

func (e *env) count(table string) int {
	e.t.Helper()
	return fixture.Count(e.t, e.base, table)
}

// statements returns the SQL executed (not queried) since the last reset.
func (e *env) statements() []string {
	e.t.Helper()
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(e.logs.Bytes()))
	for sc.Scan() {
		var line struct {
			Msg string `json:"msg"`
			SQL string `json:"sql"`
		}
		require.NoError(e.t, json.Unmarshal(sc.Bytes(), &line))
		if line.Msg == "exec" || line.Msg == "tx exec" {
			out = append(out, line.SQL)
		}
	}
	return out
}

func (e *env) reset() {
	e.logs.Reset()
	e.calls = nil
}

// stores returns the recorded Store calls.
func (e *env) stores() []call {
	var out []call
	for _, c := range e.calls {
		if c.op == "store" {
			out = append(out, c)
		}
	}
	return out
}

func countPrefix(stmts []string, prefix string) int {
	n := 0
	for _, s := range stmts {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func indexPrefix(stmts []string, prefix string) int {
	for i, s := range stmts {
		if strings.HasPrefix(s, prefix) {
			return i
		}
	}
	return -1
}

// call is one write or reload seen by a recorder.
type call struct {
	typ  string
	op   string
	p    graft.Payload
	with []string
}

type recorder struct {
	graft.Repository
	calls *[]call
	// latestErr, when set, is returned by Latest instead of reading.
	latestErr error
}

func (r *recorder) WithTx(tx dialect.Tx) graft.Repository {
	return &recorder{Repository: r.Repository.WithTx(tx), calls: r.calls, latestErr: r.latestErr}
}

func (r *recorder) Store(ctx context.Context, p graft.Payload) (graft.Entity, error) {
	*r.calls = append(*r.calls, call{typ: r.Model().TypeName(), op: "store", p: p})
	return r.Repository.Store(ctx, p)
}

func (r *recorder) Update(ctx context.Context, p graft.Payload) (graft.Entity, error) {
	*r.calls = append(*r.calls, call{typ: r.Model().TypeName(), op: "update", p: p})
	return r.Repository.Update(ctx, p)
}

func (r *recorder) Latest(ctx context.Context, key any, with ...string) (graft.Entity, error) {
	*r.calls = append(*r.calls, call{typ: r.Model().TypeName(), op: "latest", with: with})
	if r.latestErr != nil {
		return nil, r.latestErr
	}
	return r.Repository.Latest(ctx, key, with...)
}

func (e *env) invoices(opts ...service.Option) *service.Service {
	items := e.service("LineItem")
	return e.service("Invoice", append([]service.Option{
		service.WithChildren(service.Descriptor{
			Child:        items,
			Timing:       service.After,
			Options:      service.Sync,
			RelationName: "lineItems",
		}),
	}, opts...)...)
}

func edges(t *testing.T, e graft.Entity, name string) []graft.Entity {
	t.Helper()
	v, ok := e.Edge(name)
	require.True(t, ok, "edge %s not loaded", name)
	many, ok := v.([]graft.Entity)
	require.True(t, ok, "edge %s is %T", name, v)
	return many
}

func field(t *testing.T, e graft.Entity, name string) any {
	t.Helper()
	v, ok := e.Field(name)
	require.True(t, ok, "field %s", name)
	return v
}

func TestStoreBeforeChild(t *testing.T) {
	e := newEnv(t)
	orders := e.service("Order", service.WithChildren(service.Descriptor{
		Child:  e.service("Customer"),
		Timing: service.Before,
	}))

	order, err := orders.Store(context.Background(), graft.Payload{
		"total":    1200,
		"customer": map[string]any{"name": "Ana"},
	})
	require.NoError(t, err)

	stmts := e.statements()
	ci, oi := indexPrefix(stmts, "INSERT INTO `customers`"), indexPrefix(stmts, "INSERT INTO `orders`")
	require.NotEqual(t, -1, ci)
	require.NotEqual(t, -1, oi)
	assert.Less(t, ci, oi, "customer is inserted before the order")

	stores := e.stores()
	require.Len(t, stores, 2)
	assert.Equal(t, "Customer", stores[0].typ)
	assert.Equal(t, "Order", stores[1].typ)
	assert.Equal(t, int64(1), stores[1].p["customer_id"], "parent payload carries the child key")

	assert.EqualValues(t, 1, field(t, order, "customer_id"))
	v, ok := order.Edge("customer")
	require.True(t, ok)
	customer, ok := v.(graft.Entity)
	require.True(t, ok)
	assert.Equal(t, "Ana", field(t, customer, "name"))
	assert.Equal(t, 1, e.count("customers"))
	assert.Equal(t, 1, e.count("orders"))
}

func TestStoreBeforeChildAbsent(t *testing.T) {
	e := newEnv(t)
	orders := e.service("Order", service.WithChildren(service.Descriptor{
		Child:  e.service("Customer"),
		Timing: service.Before,
	}))

	order, err := orders.Store(context.Background(), graft.Payload{"total": 10})
	require.NoError(t, err)
	assert.Equal(t, 0, e.count("customers"))
	v, ok := order.Edge("customer")
	require.True(t, ok)
	assert.Nil(t, v)

	_, err = orders.Store(context.Background(), graft.Payload{
		"customer": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}},
	})
	require.Error(t, err)
	assert.True(t, graft.IsPersistenceError(err))
	assert.Equal(t, 1, e.count("orders"))
}

func TestStoreReloadFailure(t *testing.T) {
	e := newEnv(t)
	repo := e.repo("Customer").(*recorder)
	repo.latestErr = graft.NewNotFoundError("Customer", int64(1))
	customers, err := service.New(e.drv, repo)
	require.NoError(t, err)

	_, err = customers.Store(context.Background(), graft.Payload{"name": "Ana"})
	require.Error(t, err)
	var perr *graft.PersistenceError
	require.True(t, errors.As(err, &perr), "%v", err)
	assert.Equal(t, "store", perr.Op)
	assert.Equal(t, "Customer", perr.Entity)
	assert.Contains(t, perr.Msg, "reload Customer 1")
	assert.Equal(t, 1, e.count("customers"), "the insert is committed before the reload")
}

func TestStoreAfterChildren(t *testing.T) {
	e := newEnv(t)
	invoices := e.invoices()

	inv, err := invoices.Store(context.Background(), graft.Payload{
		"number": "INV-1",
		"line_item": []any{
			map[string]any{"sku": "a", "qty": 1},
			map[string]any{"sku": "b", "qty": 2},
			map[string]any{"sku": "c", "qty": 3},
		},
	})
	require.NoError(t, err)

	stores := e.stores()
	require.Len(t, stores, 4)
	assert.Equal(t, "Invoice", stores[0].typ)
	for _, c := range stores[1:] {
		assert.Equal(t, "LineItem", c.typ)
		assert.Equal(t, inv.Key(), c.p["invoice_id"])
	}
	assert.Len(t, edges(t, inv, "lineItems"), 3)
	assert.Equal(t, 3, e.count("line_items"))
}

func TestSyncRemovesMissingChildren(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	invoices := e.invoices()

	inv, err := invoices.Store(ctx, graft.Payload{
		"number": "INV-1",
		"line_item": []any{
			map[string]any{"sku": "a"},
			map[string]any{"sku": "b"},
			map[string]any{"sku": "c"},
		},
	})
	require.NoError(t, err)
	items := edges(t, inv, "lineItems")
	require.Len(t, items, 3)

	e.reset()
	updated, err := invoices.Update(ctx, inv.Key(), graft.Payload{
		"line_item": []any{
			map[string]any{"line_item_id": items[0].Key(), "sku": "a", "qty": 4},
			map[string]any{"line_item_id": items[2].Key(), "sku": "c", "qty": 5},
		},
	})
	require.NoError(t, err)

	stmts := e.statements()
	assert.Equal(t, 1, countPrefix(stmts, "DELETE FROM `line_items`"))
	assert.Equal(t, 2, countPrefix(stmts, "UPDATE `line_items`"))
	assert.Equal(t, 0, countPrefix(stmts, "INSERT INTO `line_items`"))

	left := edges(t, updated, "lineItems")
	require.Len(t, left, 2)
	assert.Equal(t, items[0].Key(), left[0].Key())
	assert.Equal(t, items[2].Key(), left[1].Key())
	assert.EqualValues(t, 5, field(t, left[1], "qty"))

	// The same collection again deletes nothing more.
	e.reset()
	_, err = invoices.Update(ctx, inv.Key(), graft.Payload{
		"line_item": []any{
			map[string]any{"line_item_id": items[0].Key(), "sku": "a", "qty": 4},
			map[string]any{"line_item_id": items[2].Key(), "sku": "c", "qty": 5},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, countPrefix(e.statements(), "DELETE"))
	assert.Equal(t, 2, e.count("line_items"))
}

func TestSyncAbsentCollection(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	invoices := e.invoices()

	inv, err := invoices.Store(ctx, graft.Payload{
		"number":    "INV-1",
		"line_item": []any{map[string]any{"sku": "a"}, map[string]any{"sku": "b"}},
	})
	require.NoError(t, err)

	updated, err := invoices.Update(ctx, inv.Key(), graft.Payload{"number": "INV-1b"})
	require.NoError(t, err)
	assert.Equal(t, 0, e.count("line_items"))
	assert.Empty(t, edges(t, updated, "lineItems"))
	assert.Equal(t, "INV-1b", field(t, updated, "number"))
}

func TestSyncMissingKeyKeepsRowZero(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	invoices := e.invoices()

	inv, err := invoices.Store(ctx, graft.Payload{"number": "INV-1"})
	require.NoError(t, err)
	require.NoError(t, e.base.Exec(ctx,
		`INSERT INTO line_items (line_item_id, invoice_id, sku, qty) VALUES (0, ?, 'zero', 1)`,
		[]any{inv.Key()}, nil))
	require.NoError(t, e.base.Exec(ctx,
		`INSERT INTO line_items (line_item_id, invoice_id, sku, qty) VALUES (7, ?, 'seven', 1)`,
		[]any{inv.Key()}, nil))

	// An element without a key stands for key 0, so row 0 survives the sync.
	updated, err := invoices.Update(ctx, inv.Key(), graft.Payload{
		"line_item": []any{map[string]any{"sku": "new"}},
	})
	require.NoError(t, err)

	rows := fixture.Query(t, e.base, "SELECT line_item_id AS id FROM line_items ORDER BY line_item_id")
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0]["id"])
	assert.Equal(t, 8, rows[1]["id"])
	assert.Len(t, edges(t, updated, "lineItems"), 2)
}

func TestSyncThroughPivot(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	invoices := e.service("Invoice", service.WithChildren(service.Descriptor{
		Child:        e.service("Tag"),
		Timing:       service.After,
		Options:      service.Sync,
		RelationName: "tags",
		PayloadKey:   "tags",
	}))

	inv, err := invoices.Store(ctx, graft.Payload{"number": "INV-1"})
	require.NoError(t, err)
	red, err := e.repo("Tag").Store(ctx, graft.Payload{"name": "red"})
	require.NoError(t, err)
	blue, err := e.repo("Tag").Store(ctx, graft.Payload{"name": "blue"})
	require.NoError(t, err)
	note, err := e.repo("Note").Store(ctx, graft.Payload{"body": "why red"})
	require.NoError(t, err)
	pivots := e.repo("InvoiceTag")
	_, err = pivots.Store(ctx, graft.Payload{"invoice_id": inv.Key(), "tag_id": red.Key(), "note_id": note.Key()})
	require.NoError(t, err)
	_, err = pivots.Store(ctx, graft.Payload{"invoice_id": inv.Key(), "tag_id": blue.Key()})
	require.NoError(t, err)

	updated, err := invoices.Update(ctx, inv.Key(), graft.Payload{
		"tags": []any{map[string]any{"tag_id": blue.Key(), "name": "blue"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, e.count("tags"), "related rows behind a pivot are kept")
	assert.Equal(t, 1, e.count("invoice_tags"))
	assert.Equal(t, 0, e.count("notes"), "the record owned by the pivot is deleted")
	tags := edges(t, updated, "tags")
	require.Len(t, tags, 1)
	assert.Equal(t, blue.Key(), tags[0].Key())
}

func TestMorphIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	invoices := e.service("Invoice", service.WithChildren(service.Descriptor{
		Child:   e.service("Attachment"),
		Timing:  service.After,
		Options: service.Morph,
		Morph: &service.MorphConfig{
			OwnerField:    "owner",
			RelatedColumn: "attachment_id",
			TargetType:    "Attachable",
		},
	}))

	inv, err := invoices.Store(ctx, graft.Payload{
		"number":     "INV-1",
		"attachment": map[string]any{"path": "a.pdf"},
	})
	require.NoError(t, err)
	attached := edges(t, inv, "attachment")
	require.Len(t, attached, 1)

	_, err = invoices.Update(ctx, inv.Key(), graft.Payload{
		"attachment": map[string]any{"attachment_id": attached[0].Key(), "path": "a.pdf"},
	})
	require.NoError(t, err)

	rows := fixture.Query(t, e.base, "SELECT owner_id, attachment_id FROM attachables")
	require.Len(t, rows, 1)
	assert.EqualValues(t, inv.Key(), rows[0]["owner_id"])
	assert.EqualValues(t, attached[0].Key(), rows[0]["attachment_id"])
	assert.Equal(t, 1, e.count("attachments"))

	var ownerType string
	require.NoError(t, e.base.DB().QueryRow("SELECT owner_type FROM attachables").Scan(&ownerType))
	assert.Equal(t, "Invoice", ownerType)
}

func TestMorphUsesLastStoredChild(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	invoices := e.service("Invoice", service.WithChildren(service.Descriptor{
		Child:        e.service("LineItem"),
		Timing:       service.After,
		Options:      service.Morph,
		RelationName: "lineItems",
		Morph: &service.MorphConfig{
			OwnerField:    "owner",
			RelatedColumn: "attachment_id",
			TargetType:    "Attachable",
		},
	}))

	inv, err := invoices.Store(ctx, graft.Payload{
		"number": "INV-1",
		"line_item": []any{
			map[string]any{"sku": "a"},
			map[string]any{"sku": "b"},
			map[string]any{"sku": "c"},
		},
	})
	require.NoError(t, err)
	items := edges(t, inv, "lineItems")
	require.Len(t, items, 3)

	rows := fixture.Query(t, e.base, "SELECT attachment_id FROM attachables")
	require.Len(t, rows, 1, "only the last stored child is linked")
	assert.EqualValues(t, items[2].Key(), rows[0]["attachment_id"])
}

func TestReloadRelations(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	items := e.service("LineItem")
	invoices := e.service("Invoice", service.WithChildren(
		service.Descriptor{Child: items, Timing: service.After, RelationName: "lineItems"},
		service.Descriptor{Child: items, Timing: service.After, RelationName: "lineItems", PayloadKey: "extra_items"},
		service.Descriptor{Child: e.service("Attachment"), Timing: service.After},
	))

	inv, err := invoices.Store(ctx, graft.Payload{
		"number":      "INV-1",
		"line_item":   map[string]any{"sku": "a"},
		"extra_items": []any{map[string]any{"sku": "b"}},
	})
	require.NoError(t, err)

	var with []string
	for _, c := range e.calls {
		if c.op == "latest" && c.typ == "Invoice" {
			with = c.with
		}
	}
	assert.Equal(t, []string{"lineItems", "attachment"}, with)
	assert.Len(t, edges(t, inv, "lineItems"), 2)
	assert.Empty(t, edges(t, inv, "attachment"))
}

func TestResultCallback(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	customers := e.repo("Customer")

	var seen graft.Payload
	passthrough := e.service("Customer", service.WithResult(func(_ context.Context, _ graft.Entity, p graft.Payload) (graft.Entity, error) {
		seen = p
		return nil, nil
	}))
	got, err := passthrough.Store(ctx, graft.Payload{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", field(t, got, "name"))
	assert.Equal(t, graft.Payload{"name": "Ana"}, seen)

	override, err := customers.Store(ctx, graft.Payload{"name": "Override"})
	require.NoError(t, err)
	replacing := e.service("Customer", service.WithResult(func(context.Context, graft.Entity, graft.Payload) (graft.Entity, error) {
		return override, nil
	}))
	got, err = replacing.Store(ctx, graft.Payload{"name": "Bia"})
	require.NoError(t, err)
	assert.Equal(t, override.Key(), got.Key())

	failing := e.service("Customer", service.WithResult(func(context.Context, graft.Entity, graft.Payload) (graft.Entity, error) {
		return nil, errors.New("callback failed")
	}))
	_, err = failing.Store(ctx, graft.Payload{"name": "Cid"})
	require.Error(t, err)
	assert.True(t, graft.IsPersistenceError(err))
	assert.Contains(t, err.Error(), "callback failed")
	assert.Equal(t, 4, e.count("customers"), "the callback runs after commit")
}

func TestChildResultCallback(t *testing.T) {
	e := newEnv(t)
	var calls int
	items := e.service("LineItem", service.WithResult(func(_ context.Context, ent graft.Entity, _ graft.Payload) (graft.Entity, error) {
		calls++
		return nil, nil
	}))
	invoices := e.service("Invoice", service.WithChildren(service.Descriptor{
		Child: items, Timing: service.After, RelationName: "lineItems",
	}))
	_, err := invoices.Store(context.Background(), graft.Payload{
		"number":    "INV-1",
		"line_item": []any{map[string]any{"sku": "a"}, map[string]any{"sku": "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAfterPhaseFailureRollsBack(t *testing.T) {
	e := newEnv(t)
	invoices := e.invoices()

	_, err := invoices.Store(context.Background(), graft.Payload{
		"number": "INV-1",
		"line_item": []any{
			map[string]any{"sku": "a", "qty": 1},
			map[string]any{"sku": "b", "qty": 0},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, graft.ErrPersistence))
	assert.False(t, graft.IsConstraintError(err), "only the message of the cause is kept")
	assert.Contains(t, err.Error(), "CHECK constraint failed")

	assert.Equal(t, 0, e.count("invoices"))
	assert.Equal(t, 0, e.count("line_items"))
	assert.Contains(t, e.logs.String(), "rollback transaction")
}

func TestValidationErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	items := e.service("LineItem", service.WithRules(validate.Rules{
		Fields: map[string]string{"sku": "required"},
	}))
	invoices := e.service("Invoice",
		service.WithRules(validate.Rules{Fields: map[string]string{"number": "required"}}),
		service.WithChildren(service.Descriptor{Child: items, Timing: service.After, RelationName: "lineItems"}),
	)

	_, err := invoices.Store(ctx, graft.Payload{})
	var ve *validate.Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, map[string]string{"number": "failed on required"}, ve.Fields)
	assert.False(t, graft.IsPersistenceError(err))

	_, err = invoices.Store(ctx, graft.Payload{
		"number":    "INV-1",
		"line_item": []any{map[string]any{"sku": "a"}, map[string]any{"qty": 2}},
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, map[string]string{"sku": "failed on required"}, ve.Fields)
	assert.Equal(t, 0, e.count("invoices"), "the transaction is rolled back")
	assert.Equal(t, 0, e.count("line_items"))
}

func TestEmptyKeyAfterPersist(t *testing.T) {
	e := newEnv(t)
	seqs := e.service("Sequence")

	_, err := seqs.Store(context.Background(), graft.Payload{"sequence_id": 5, "name": "a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, graft.ErrConfiguration))
	assert.Contains(t, err.Error(), "sequence_id is empty after store")
	assert.Equal(t, 0, e.count("sequences"))
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	customers := e.service("Customer", service.WithRules(validate.Rules{
		Fields:          map[string]string{"name": "required"},
		ExcludeOnUpdate: []string{"name"},
	}))

	c, err := customers.Store(ctx, graft.Payload{"name": "Ana"})
	require.NoError(t, err)
	u, err := customers.Update(ctx, c.Key(), graft.Payload{"email": "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, c.Key(), u.Key())
	assert.Equal(t, "ana@example.com", field(t, u, "email"))
	assert.Equal(t, "Ana", field(t, u, "name"))

	_, err = customers.Update(ctx, 404, graft.Payload{"name": "x"})
	require.Error(t, err)
	assert.True(t, graft.IsPersistenceError(err))
	var pe *graft.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, service.OpUpdate, pe.Op)
	assert.Equal(t, "Customer", pe.Entity)
	assert.Contains(t, pe.Msg, "not found")
}

func TestCastsAndExcept(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	customers := e.service("Customer",
		service.WithExcept("email"),
		service.WithCasts(map[string]service.Cast{"password": service.PasswordCast(bcrypt.MinCost)}),
	)
	c, err := customers.Store(ctx, graft.Payload{"name": "Ana", "email": "ana@example.com", "password": "s3cret"})
	require.NoError(t, err)
	assert.Nil(t, field(t, c, "email"))
	hash, ok := field(t, c, "password").(string)
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	orders := e.service("Order", service.WithCasts(map[string]service.Cast{
		"total":     service.CastMoney,
		"placed_on": service.CastDate,
	}))
	o, err := orders.Store(ctx, graft.Payload{"total": "12.5", "placed_on": "2026-03-01T10:30:00Z"})
	require.NoError(t, err)
	assert.EqualValues(t, 1250, field(t, o, "total"))
	placed, ok := field(t, o, "placed_on").(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(placed, "2026-03-01"), placed)

	_, err = orders.Store(ctx, graft.Payload{"total": "twelve"})
	assert.True(t, graft.IsPersistenceError(err))
	assert.Equal(t, 1, e.count("orders"))
}

func TestAfterHook(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	hookErr := errors.New("notify failed")
	var got graft.Entity
	customers := e.service("Customer", service.WithAfter(func(_ context.Context, ent graft.Entity, _ graft.Payload) error {
		got = ent
		return nil
	}))
	c, err := customers.Store(ctx, graft.Payload{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, c.Key(), got.Key())

	failing := e.service("Customer", service.WithAfter(func(context.Context, graft.Entity, graft.Payload) error {
		return hookErr
	}))
	_, err = failing.Store(ctx, graft.Payload{"name": "Bia"})
	assert.Same(t, hookErr, err)
	assert.Equal(t, 2, e.count("customers"))
}

func TestGetAndDestroy(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	orders := e.service("Order", service.WithChildren(service.Descriptor{
		Child: e.service("Customer"), Timing: service.Before,
	}))
	o, err := orders.Store(ctx, graft.Payload{"customer": map[string]any{"name": "Ana"}})
	require.NoError(t, err)

	got, err := orders.Get(ctx, o.Key(), "customer")
	require.NoError(t, err)
	_, ok := got.Edge("customer")
	assert.True(t, ok)

	require.NoError(t, orders.Destroy(ctx, o.Key()))
	_, err = orders.Get(ctx, o.Key())
	assert.True(t, graft.IsNotFound(err))
	assert.Equal(t, "Order", orders.Model().TypeName())
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	e := newEnv(t)
	orders := e.service("Order",
		service.WithTracer(tp),
		service.WithChildren(service.Descriptor{
			Child:  e.service("Customer", service.WithTracer(tp)),
			Timing: service.Before,
		}),
	)
	_, err := orders.Store(context.Background(), graft.Payload{"customer": map[string]any{"name": "Ana"}})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	child, parent := spans[0], spans[1]
	assert.Equal(t, "graft.store", child.Name())
	assert.Equal(t, "graft.store", parent.Name())
	assert.Equal(t, parent.SpanContext().SpanID(), child.Parent().SpanID())

	_, err = orders.Update(context.Background(), 404, graft.Payload{})
	require.Error(t, err)
	spans = sr.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "graft.update", spans[2].Name())
	assert.Equal(t, "Error", spans[2].Status().Code.String())
}
