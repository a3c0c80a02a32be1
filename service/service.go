// Package service persists a parent entity together with its declared
// children in one transaction.
//
// A Service wraps the Repository of one entity type. Each Descriptor binds a
// child Service that is stored either before the parent, so the parent row
// can reference the child key, or after it, with the parent key merged into
// every child payload. After children may be reconciled against the incoming
// collection (Sync) and linked through a polymorphic association row (Morph).
// Once committed, the parent is reloaded with every child relation attached.
//
//	customers, _ := service.New(drv, customerRepo)
//	orders, err := service.New(drv, orderRepo, service.WithChildren(
//		service.Descriptor{Child: customers, Timing: service.Before},
//	))
//	order, err := orders.Store(ctx, graft.Payload{
//		"total":    1200,
//		"customer": map[string]any{"name": "Ana"},
//	})
package service

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/syssam/graft"
	"github.com/syssam/graft/dialect"
	"github.com/syssam/graft/validate"
)

const tracerName = "github.com/syssam/graft/service"

// Operation names, as reported by PersistenceError and span names.
const (
	OpStore  = "store"
	OpUpdate = "update"
)

// Repository is the storage adapter of a Service.
type Repository = graft.Repository

// Persister stores an entity inside a transaction it does not own. Every
// Service is a Persister and may be the Child of a Descriptor.
type Persister interface {
	Model() graft.Model
	StoreTx(ctx context.Context, tx dialect.Tx, p graft.Payload) (graft.Entity, error)
}

// Validator checks a payload before it is persisted. Failures should be
// *validate.Error values; they are returned to the caller as they are.
type Validator interface {
	Create(p graft.Payload) (graft.Payload, error)
	Update(p graft.Payload) (graft.Payload, error)
}

// ResultFunc receives the reloaded entity and the payload of the call. A
// non-nil entity replaces the result.
type ResultFunc func(ctx context.Context, e graft.Entity, p graft.Payload) (graft.Entity, error)

// AfterFunc is notified of a successful top-level Store or Update.
type AfterFunc func(ctx context.Context, e graft.Entity, p graft.Payload) error

// Service orchestrates the persistence of one entity type and its children.
// It is immutable once created and safe for concurrent use.
type Service struct {
	drv         dialect.Driver
	repo        Repository
	model       graft.Model
	descriptors []Descriptor
	children    []binding
	result      ResultFunc
	hasResult   bool
	after       AfterFunc
	validator   Validator
	except      []string
	casts       map[string]Cast
	log         *slog.Logger
	tracer      trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithChildren appends child descriptors. They run in declaration order.
func WithChildren(ds ...Descriptor) Option {
	return func(s *Service) {
		s.descriptors = append(s.descriptors, ds...)
	}
}

// WithResult sets the result callback. Setting a nil callback is a
// configuration error.
func WithResult(fn ResultFunc) Option {
	return func(s *Service) {
		s.result, s.hasResult = fn, true
	}
}

// WithAfter sets the hook notified after a successful Store or Update.
func WithAfter(fn AfterFunc) Option {
	return func(s *Service) {
		s.after = fn
	}
}

// WithValidator sets the validation collaborator.
func WithValidator(v Validator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithRules validates payloads against rules.
func WithRules(rules validate.Rules) Option {
	return WithValidator(validate.New(rules))
}

// WithExcept drops fields from every payload.
func WithExcept(fields ...string) Option {
	return func(s *Service) {
		s.except = append(s.except, fields...)
	}
}

// WithCasts converts payload fields before validation.
func WithCasts(casts map[string]Cast) Option {
	return func(s *Service) {
		if s.casts == nil {
			s.casts = make(map[string]Cast, len(casts))
		}
		for f, c := range casts {
			s.casts[f] = c
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTracer sets the tracer provider. Defaults to the global provider.
func WithTracer(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// New returns a Service storing the entities of repo through drv.
func New(drv dialect.Driver, repo Repository, opts ...Option) (*Service, error) {
	if repo == nil || repo.Model() == nil {
		return nil, graft.NewConfigurationError("", "nil repository")
	}
	model := repo.Model()
	if drv == nil {
		return nil, graft.NewConfigurationError(model.TypeName(), "nil driver")
	}
	s := &Service{
		drv:    drv,
		repo:   repo,
		model:  model,
		log:    slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if model.KeyName() == "" {
		return nil, graft.NewConfigurationError(model.TypeName(), "model has no key name")
	}
	if s.hasResult && s.result == nil {
		return nil, graft.NewConfigurationError(model.TypeName(), "result callback is nil")
	}
	for f, c := range s.casts {
		if c == nil {
			return nil, graft.NewConfigurationError(model.TypeName(), "nil cast for %q", f)
		}
	}
	s.children = make([]binding, 0, len(s.descriptors))
	for i, d := range s.descriptors {
		b, err := resolve(model, repo, i, d)
		if err != nil {
			return nil, err
		}
		s.children = append(s.children, b)
	}
	s.log = s.log.With("entity", model.TypeName())
	return s, nil
}

// Model returns the model of the stored entity type.
func (s *Service) Model() graft.Model {
	return s.model
}

// Get returns the entity with the given key.
func (s *Service) Get(ctx context.Context, key any, with ...string) (graft.Entity, error) {
	return s.repo.Get(ctx, key, with...)
}

// Destroy deletes the entity with the given key.
func (s *Service) Destroy(ctx context.Context, key any) error {
	return s.repo.Destroy(ctx, key)
}

// Store persists p and its children in a new transaction and returns the
// reloaded entity.
func (s *Service) Store(ctx context.Context, p graft.Payload) (graft.Entity, error) {
	return s.run(ctx, OpStore, p, nil)
}

// Update persists p and its children as changes to the entity keyed by id.
func (s *Service) Update(ctx context.Context, id any, p graft.Payload) (graft.Entity, error) {
	return s.run(ctx, OpUpdate, p, id)
}

// StoreTx stores p inside tx on behalf of a parent Service. It neither
// commits nor rolls back, and returns errors unwrapped.
func (s *Service) StoreTx(ctx context.Context, tx dialect.Tx, p graft.Payload) (e graft.Entity, err error) {
	ctx, span := s.start(ctx, OpStore)
	defer func() { end(span, err) }()

	if p, err = s.prepare(OpStore, p); err != nil {
		return nil, err
	}
	sc := &scope{tx: tx, state: txActive}
	stored, bag, err := s.persist(ctx, sc, OpStore, p)
	if err != nil {
		return nil, err
	}
	if e, err = s.reload(ctx, s.repo.WithTx(tx), stored, bag); err != nil {
		return nil, err
	}
	return s.apply(ctx, e, p)
}

func (s *Service) run(ctx context.Context, op string, p graft.Payload, id any) (e graft.Entity, err error) {
	ctx, span := s.start(ctx, op)
	defer func() { end(span, err) }()

	if p, err = s.prepare(op, p); err != nil {
		return nil, s.fail(op, err)
	}
	if op == OpUpdate {
		p = p.With(s.model.KeyName(), id)
	}
	sc := &scope{}
	if err := sc.begin(ctx, s.drv); err != nil {
		return nil, s.fail(op, err)
	}
	stored, bag, err := s.persist(ctx, sc, op, p)
	if err != nil {
		return nil, s.abort(ctx, sc, op, err)
	}
	if err := sc.commit(); err != nil {
		return nil, s.abort(ctx, sc, op, err)
	}
	span.SetAttributes(attribute.String("graft.key", fmt.Sprint(stored.Key())))
	if e, err = s.reload(ctx, s.repo, stored, bag); err != nil {
		return nil, s.fail(op, err)
	}
	if e, err = s.apply(ctx, e, p); err != nil {
		return nil, s.fail(op, err)
	}
	if s.after != nil {
		if err := s.after(ctx, e, p); err != nil {
			return nil, err
		}
	}
	s.log.DebugContext(ctx, "persisted", "op", op, "key", stored.Key(), "relations", bag)
	return e, nil
}

// prepare drops excepted fields, applies casts and validates p.
func (s *Service) prepare(op string, p graft.Payload) (graft.Payload, error) {
	p = p.Without(s.except...)
	p, err := applyCasts(p, s.casts)
	if err != nil {
		return nil, err
	}
	if s.validator == nil {
		return p, nil
	}
	if op == OpUpdate {
		_, err = s.validator.Update(p)
	} else {
		_, err = s.validator.Create(p)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// persist runs the before, parent and after phases inside sc. It returns the
// stored parent and the relations to reload.
func (s *Service) persist(ctx context.Context, sc *scope, op string, p graft.Payload) (graft.Entity, []string, error) {
	tx, err := sc.active()
	if err != nil {
		return nil, nil, err
	}
	repo := s.repo.WithTx(tx)
	var bag graft.RelationBag

	before := make([]graft.Entity, len(s.children))
	for i, b := range s.children {
		if b.timing != Before {
			continue
		}
		bag.Add(b.relation)
		child, err := s.storeBefore(ctx, tx, b, p)
		if err != nil {
			return nil, nil, err
		}
		if child == nil {
			continue
		}
		before[i] = child
		p = p.With(b.keyName, child.Key())
	}

	if _, err := sc.active(); err != nil {
		return nil, nil, err
	}
	var e graft.Entity
	if op == OpUpdate {
		e, err = repo.Update(ctx, p)
	} else {
		e, err = repo.Store(ctx, p)
	}
	if err != nil {
		return nil, nil, err
	}
	if !graft.HasKey(e) {
		return nil, nil, graft.NewConfigurationError(s.model.TypeName(),
			"%s is empty after %s: the key must be generated or fillable", s.model.KeyName(), op)
	}

	for i, b := range s.children {
		if b.timing == Before && b.options.Has(Morph) && before[i] != nil {
			if _, err := writeMorph(ctx, repo, e, b.morph, before[i].Key()); err != nil {
				return nil, nil, err
			}
		}
	}

	for _, b := range s.children {
		if b.timing != After {
			continue
		}
		if _, err := sc.active(); err != nil {
			return nil, nil, err
		}
		shape, elems := p.Child(b.payloadKey)
		if shape == graft.ShapeInvalid {
			return nil, nil, fmt.Errorf("%s: field %q is neither an object nor a list of objects", b.typeName, b.payloadKey)
		}
		bag.Add(b.relation)
		if b.options.Has(Sync) {
			rel, n, err := reconcile(ctx, repo, e, b.relation, elems, b.keyName)
			if err != nil {
				return nil, nil, err
			}
			s.log.DebugContext(ctx, "relation synced", "relation", rel, "deleted", n)
		}
		var current graft.Entity
		for _, el := range elems {
			if current, err = b.child.StoreTx(ctx, tx, el.With(s.model.KeyName(), e.Key())); err != nil {
				return nil, nil, err
			}
		}
		if current == nil {
			continue
		}
		s.log.DebugContext(ctx, "child stored", "child", b.typeName, "count", len(elems), "key", current.Key())
		if b.options.Has(Morph) {
			if _, err := writeMorph(ctx, repo, e, b.morph, current.Key()); err != nil {
				return nil, nil, err
			}
		}
	}
	return e, bag.Names(), nil
}

func (s *Service) storeBefore(ctx context.Context, tx dialect.Tx, b binding, p graft.Payload) (graft.Entity, error) {
	switch shape, elems := p.Child(b.payloadKey); shape {
	case graft.ShapeNone:
		return nil, nil
	case graft.ShapeOne:
		child, err := b.child.StoreTx(ctx, tx, elems[0])
		if err != nil {
			return nil, err
		}
		s.log.DebugContext(ctx, "child stored", "child", b.typeName, "key", child.Key())
		return child, nil
	default:
		return nil, fmt.Errorf("%s: field %q must hold a single object", b.typeName, b.payloadKey)
	}
}

// reload reads back the stored entity with the given relations.
func (s *Service) reload(ctx context.Context, repo Repository, e graft.Entity, with []string) (graft.Entity, error) {
	latest, err := repo.Latest(ctx, e.Key(), with...)
	if err != nil {
		return nil, fmt.Errorf("reload %s %v: %w", s.model.TypeName(), e.Key(), err)
	}
	return latest, nil
}

func (s *Service) apply(ctx context.Context, e graft.Entity, p graft.Payload) (graft.Entity, error) {
	if s.result == nil {
		return e, nil
	}
	out, err := s.result(ctx, e, p)
	if err != nil {
		return nil, err
	}
	if graft.IsEmpty(out) {
		return e, nil
	}
	return out, nil
}

// abort rolls sc back and classifies err.
func (s *Service) abort(ctx context.Context, sc *scope, op string, err error) error {
	if rerr := sc.rollback(); rerr != nil {
		s.log.ErrorContext(ctx, "rollback failed", "op", op, "error", rerr)
	}
	s.log.WarnContext(ctx, "transaction rolled back", "op", op, "error", err)
	return s.fail(op, err)
}

// fail wraps err in a PersistenceError unless it is a validation or
// configuration error.
func (s *Service) fail(op string, err error) error {
	if validate.IsError(err) || graft.IsConfigurationError(err) || graft.IsPersistenceError(err) {
		return err
	}
	return graft.NewPersistenceError(s.model.TypeName(), op, err)
}

func (s *Service) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "graft."+op, trace.WithAttributes(
		attribute.String("graft.entity", s.model.TypeName()),
	))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var _ Persister = (*Service)(nil)
