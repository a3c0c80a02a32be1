package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/graft"
	"github.com/syssam/graft/dialect"
	"github.com/syssam/graft/schema"
	"github.com/syssam/graft/service"
	"github.com/syssam/graft/store"
	"github.com/syssam/graft/validate"
)

// Config is the layout of a graftctl configuration file.
//
//	dialect: sqlite
//	dsn: file:shop.db
//	migrate:
//	  - CREATE TABLE IF NOT EXISTS customers (...)
//	tables:
//	  - type: Customer
//	    fillable: [name, email]
//	  - type: Order
//	    fillable: [customer_id, total]
//	    relations:
//	      - kind: belongs_to
//	        target: Customer
//	services:
//	  Order:
//	    children:
//	      - type: Customer
//	        timing: before
type Config struct {
	Dialect  string                   `yaml:"dialect"`
	DSN      string                   `yaml:"dsn"`
	Debug    bool                     `yaml:"debug,omitempty"`
	Migrate  []string                 `yaml:"migrate,omitempty"`
	Tables   []*schema.Table          `yaml:"tables"`
	Services map[string]ServiceConfig `yaml:"services,omitempty"`
}

// ServiceConfig configures the service of one entity type.
type ServiceConfig struct {
	Rules    validate.Rules    `yaml:"rules,omitempty"`
	Except   schema.StringList `yaml:"except,omitempty"`
	Casts    map[string]string `yaml:"casts,omitempty"`
	Children []ChildConfig     `yaml:"children,omitempty"`
}

// ChildConfig is the YAML form of a service.Descriptor.
type ChildConfig struct {
	Type       string               `yaml:"type"`
	Timing     string               `yaml:"timing"`
	Options    schema.StringList    `yaml:"options,omitempty"`
	Relation   string               `yaml:"relation,omitempty"`
	PayloadKey string               `yaml:"payload_key,omitempty"`
	Morph      *service.MorphConfig `yaml:"morph,omitempty"`
}

// LoadConfig reads a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Dialect == "" {
		cfg.Dialect = dialect.SQLite
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("config: dsn is required")
	}
	return cfg, nil
}

var casts = map[string]service.Cast{
	"password": service.CastPassword,
	"date":     service.CastDate,
	"datetime": service.CastDateTime,
	"money":    service.CastMoney,
}

// builder creates services on demand, children first.
type builder struct {
	cfg      *Config
	drv      dialect.Driver
	reg      *schema.Registry
	log      *slog.Logger
	services map[string]*service.Service
	building map[string]bool
}

func newBuilder(cfg *Config, drv dialect.Driver, reg *schema.Registry, log *slog.Logger) *builder {
	return &builder{
		cfg:      cfg,
		drv:      drv,
		reg:      reg,
		log:      log,
		services: make(map[string]*service.Service),
		building: make(map[string]bool),
	}
}

// service returns the service of typ, building its children first.
func (b *builder) service(typ string) (*service.Service, error) {
	if s, ok := b.services[typ]; ok {
		return s, nil
	}
	if b.building[typ] {
		return nil, graft.NewConfigurationError(typ, "child cycle through %s", typ)
	}
	b.building[typ] = true
	defer delete(b.building, typ)

	repo, err := store.New(b.drv, b.reg, typ)
	if err != nil {
		return nil, err
	}
	sc := b.cfg.Services[typ]
	opts := []service.Option{service.WithLogger(b.log)}
	if len(sc.Rules.Fields) > 0 {
		opts = append(opts, service.WithRules(sc.Rules))
	}
	if len(sc.Except) > 0 {
		opts = append(opts, service.WithExcept(sc.Except...))
	}
	if len(sc.Casts) > 0 {
		cs := make(map[string]service.Cast, len(sc.Casts))
		for field, name := range sc.Casts {
			c, ok := casts[name]
			if !ok {
				return nil, graft.NewConfigurationError(typ, "unknown cast %q for %s", name, field)
			}
			cs[field] = c
		}
		opts = append(opts, service.WithCasts(cs))
	}
	for _, cc := range sc.Children {
		d, err := b.descriptor(typ, cc)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithChildren(d))
	}
	s, err := service.New(b.drv, repo, opts...)
	if err != nil {
		return nil, err
	}
	b.services[typ] = s
	return s, nil
}

func (b *builder) descriptor(parent string, cc ChildConfig) (service.Descriptor, error) {
	child, err := b.service(cc.Type)
	if err != nil {
		return service.Descriptor{}, err
	}
	d := service.Descriptor{
		Child:        child,
		RelationName: cc.Relation,
		PayloadKey:   cc.PayloadKey,
		Morph:        cc.Morph,
	}
	switch cc.Timing {
	case "before":
		d.Timing = service.Before
	case "after":
		d.Timing = service.After
	default:
		return d, graft.NewConfigurationError(parent, "child %s: timing must be before or after, got %q", cc.Type, cc.Timing)
	}
	for _, o := range cc.Options {
		switch o {
		case "sync":
			d.Options |= service.Sync
		case "morph":
			d.Options |= service.Morph
		default:
			return d, graft.NewConfigurationError(parent, "child %s: unknown option %q", cc.Type, o)
		}
	}
	return d, nil
}
