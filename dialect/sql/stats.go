package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syssam/graft/dialect"
)

// QueryStats holds statement execution statistics.
type QueryStats struct {
	Queries      atomic.Int64
	Execs        atomic.Int64
	Commits      atomic.Int64
	Rollbacks    atomic.Int64
	SlowQueries  atomic.Int64
	Errors       atomic.Int64
	TotalElapsed atomic.Int64 // nanoseconds
}

// Snapshot returns a point-in-time copy of the statistics.
func (s *QueryStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries:      s.Queries.Load(),
		Execs:        s.Execs.Load(),
		Commits:      s.Commits.Load(),
		Rollbacks:    s.Rollbacks.Load(),
		SlowQueries:  s.SlowQueries.Load(),
		Errors:       s.Errors.Load(),
		TotalElapsed: time.Duration(s.TotalElapsed.Load()),
	}
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	Queries      int64
	Execs        int64
	Commits      int64
	Rollbacks    int64
	SlowQueries  int64
	Errors       int64
	TotalElapsed time.Duration
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d commits=%d rollbacks=%d slow=%d errors=%d elapsed=%s",
		s.Queries, s.Execs, s.Commits, s.Rollbacks, s.SlowQueries, s.Errors, s.TotalElapsed,
	)
}

// SlowQueryHook is a function called when a slow statement is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, elapsed time.Duration)

// StatsDriver wraps a dialect.Driver with statistics collection.
type StatsDriver struct {
	dialect.Driver
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the threshold for slow statement detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow statements to the given logger.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, elapsed time.Duration) {
		logger.WarnContext(ctx, "slow query detected", "elapsed", elapsed, "query", query, "args", args)
	})
}

// NewStatsDriver wraps a Driver with statistics collection.
//
//	drv, _ := sql.Open(dialect.Postgres, dsn)
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog(slog.Default()))
//	svc, _ := service.New(stats, repo)
//	fmt.Println(stats.QueryStats().Snapshot())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:        drv,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// Query executes a query and records statistics.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, start, err, &d.stats.Queries)
	return err
}

// Exec executes a statement and records statistics.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, start, err, &d.stats.Execs)
	return err
}

// Tx starts a transaction that also records statistics.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		d.stats.Errors.Add(1)
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, start time.Time, err error, counter *atomic.Int64) {
	elapsed := time.Since(start)
	counter.Add(1)
	d.stats.TotalElapsed.Add(int64(elapsed))
	if err != nil {
		d.stats.Errors.Add(1)
	}
	if elapsed > d.slowThreshold {
		d.stats.SlowQueries.Add(1)
		if d.slowHook != nil {
			argv, _ := args.([]any)
			d.slowHook(ctx, query, argv, elapsed)
		}
	}
}

// StatsTx wraps a transaction with statistics collection.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query executes a query within the transaction and records statistics.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, query, args, start, err, &tx.driver.stats.Queries)
	return err
}

// Exec executes a statement within the transaction and records statistics.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.record(ctx, query, args, start, err, &tx.driver.stats.Execs)
	return err
}

// Commit commits the transaction and counts it.
func (tx *StatsTx) Commit() error {
	tx.driver.stats.Commits.Add(1)
	return tx.Tx.Commit()
}

// Rollback rolls back the transaction and counts it.
func (tx *StatsTx) Rollback() error {
	tx.driver.stats.Rollbacks.Add(1)
	return tx.Tx.Rollback()
}

// DebugDriver is a driver that logs all driver operations at debug level.
type DebugDriver struct {
	dialect.Driver
	log *slog.Logger
}

// NewDebugDriver wraps a Driver with debug logging. A nil logger logs to slog.Default().
func NewDebugDriver(drv dialect.Driver, logger *slog.Logger) *DebugDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &DebugDriver{Driver: drv, log: logger.With("dialect", drv.Dialect())}
}

// Query executes a query and logs it.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log.DebugContext(ctx, "query", "sql", query, "args", args)
	return d.Driver.Query(ctx, query, args, v)
}

// Exec executes a statement and logs it.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log.DebugContext(ctx, "exec", "sql", query, "args", args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction with debug logging.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	d.log.DebugContext(ctx, "begin transaction")
	return &DebugTx{Tx: tx, log: d.log, ctx: ctx}, nil
}

// DebugTx is a transaction implementation that logs all transaction operations.
type DebugTx struct {
	dialect.Tx
	log *slog.Logger
	ctx context.Context
}

// Query executes a query within the transaction and logs it.
func (tx *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.log.DebugContext(ctx, "tx query", "sql", query, "args", args)
	return tx.Tx.Query(ctx, query, args, v)
}

// Exec executes a statement within the transaction and logs it.
func (tx *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.log.DebugContext(ctx, "tx exec", "sql", query, "args", args)
	return tx.Tx.Exec(ctx, query, args, v)
}

// Commit commits the transaction and logs it.
func (tx *DebugTx) Commit() error {
	tx.log.DebugContext(tx.ctx, "commit transaction")
	return tx.Tx.Commit()
}

// Rollback rolls back the transaction and logs it.
func (tx *DebugTx) Rollback() error {
	tx.log.DebugContext(tx.ctx, "rollback transaction")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*DebugTx)(nil)
)
