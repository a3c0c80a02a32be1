// graftctl stores and reads nested entities described by a YAML
// configuration file.
//
//	graftctl -config graft.yaml store -entity Order < order.json
//	graftctl -config graft.yaml update -entity Order -id 1 < order.json
//	graftctl -config graft.yaml get -entity Order -id 1 -with customer
//	graftctl -config graft.yaml destroy -entity Order -id 1
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/graft"
	"github.com/syssam/graft/dialect"
	"github.com/syssam/graft/dialect/sql"
	"github.com/syssam/graft/schema"
)

const usage = `usage: graftctl [-config file] [-debug] <command> -entity <type> [flags]

commands:
  store    store the JSON payload read from stdin
  update   update entity -id with the JSON payload read from stdin
  get      print entity -id, loading the relations in -with
  destroy  delete entity -id
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "graftctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("graftctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "graft.yaml", "configuration file")
	debug := fs.Bool("debug", false, "log every SQL statement")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	cmd := fs.Arg(0)
	sub := flag.NewFlagSet(cmd, flag.ContinueOnError)
	sub.SetOutput(stderr)
	entity := sub.String("entity", "", "entity type")
	id := sub.String("id", "", "entity key")
	with := sub.String("with", "", "comma separated relations to load")
	if err := sub.Parse(fs.Args()[1:]); err != nil {
		return err
	}
	if *entity == "" {
		return errors.New("-entity is required")
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if *debug || cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	base, err := sql.Open(cfg.Dialect, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Dialect, err)
	}
	defer base.Close()
	if cfg.Dialect == dialect.SQLite {
		// Statements outside the orchestrated transaction must not race it
		// for the database lock.
		base.DB().SetMaxOpenConns(1)
	}
	stats := sql.NewStatsDriver(base, sql.WithSlowQueryLog(logger))
	var drv dialect.Driver = stats
	if level == slog.LevelDebug {
		drv = sql.NewDebugDriver(stats, logger)
	}
	defer func() {
		logger.Debug("statement stats", "stats", stats.QueryStats().Snapshot().String())
	}()

	for _, stmt := range cfg.Migrate {
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	reg, err := schema.NewRegistry(cfg.Tables...)
	if err != nil {
		return err
	}
	if err := checkServices(cfg, reg); err != nil {
		return err
	}
	svc, err := newBuilder(cfg, drv, reg, logger).service(*entity)
	if err != nil {
		return err
	}

	var out graft.Entity
	switch cmd {
	case "store":
		p, err := readPayload(stdin)
		if err != nil {
			return err
		}
		out, err = svc.Store(ctx, p)
		if err != nil {
			return err
		}
	case "update":
		p, err := readPayload(stdin)
		if err != nil {
			return err
		}
		if *id == "" {
			return errors.New("update: -id is required")
		}
		if out, err = svc.Update(ctx, parseKey(*id), p); err != nil {
			return err
		}
	case "get":
		if *id == "" {
			return errors.New("get: -id is required")
		}
		if out, err = svc.Get(ctx, parseKey(*id), splitList(*with)...); err != nil {
			return err
		}
	case "destroy":
		if *id == "" {
			return errors.New("destroy: -id is required")
		}
		return svc.Destroy(ctx, parseKey(*id))
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readPayload(r io.Reader) (graft.Payload, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var p graft.Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return normalize(p).(graft.Payload), nil
}

// normalize turns json.Number values into int64 or float64.
func normalize(v any) any {
	switch v := v.(type) {
	case graft.Payload:
		for k, e := range v {
			v[k] = normalize(e)
		}
		return v
	case map[string]any:
		for k, e := range v {
			v[k] = normalize(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalize(e)
		}
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	default:
		return v
	}
}

func parseKey(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// checkServices reports a service section declared for an unregistered type.
func checkServices(cfg *Config, reg *schema.Registry) error {
	types := make([]string, 0, len(cfg.Services))
	for typ := range cfg.Services {
		types = append(types, typ)
	}
	slices.Sort(types)
	for _, typ := range types {
		if _, ok := reg.Lookup(typ); ok {
			continue
		}
		var declared []string
		for _, t := range reg.Tables() {
			declared = append(declared, t.Type)
		}
		return graft.NewConfigurationError(typ, "service declared for a type missing from tables (declared: %s)", strings.Join(declared, ", "))
	}
	return nil
}
