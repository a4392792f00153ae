package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/siddontang/loggers"

	"github.com/pgbridge/pgbridge/pkg/concurrency"
)

// Vendor distinguishes which side of the bridge a connection or query
// belongs to, since both sides sit behind the single Query primitive.
type Vendor int

const (
	VendorMySQL Vendor = iota
	VendorPG
)

func (v Vendor) String() string {
	if v == VendorPG {
		return "postgres"
	}
	return "mysql"
}

// Transient MySQL error numbers worth retrying: the long-running
// structure and constraint phases hit lock timeouts and dropped
// connections that resolve on their own.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errCannotConnect   = 2003
	errConnLost        = 2013
	errReadOnly        = 1290
	errQueryKilled     = 1836
)

// Programming-error MySQL numbers: syntax errors and references to
// relations that don't exist. Query coerces these to "no rows, no
// error" when the caller sets QueryOptions.CoerceProgrammingErrors
// (probe queries against possibly-absent tables rely on this).
const (
	errMySQLSyntax       = 1064
	errMySQLNoSuchTable  = 1146
	errMySQLBadFieldName = 1054
	errMySQLNoDB         = 1049
)

func mysqlCanRetry(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case errLockWaitTimeout, errDeadlock, errCannotConnect, errConnLost, errReadOnly, errQueryKilled:
		return true
	default:
		return false
	}
}

func mysqlIsProgrammingError(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case errMySQLSyntax, errMySQLNoSuchTable, errMySQLBadFieldName, errMySQLNoDB:
		return true
	default:
		return false
	}
}

// pgProgrammingErrorCodes are the SQLSTATE classes treated as
// programming errors (syntax_error, undefined_table, undefined_column,
// duplicate_table -- the last covers re-running structure load).
var pgProgrammingErrorCodes = map[string]bool{
	"42601": true,
	"42P01": true,
	"42703": true,
	"42P07": true,
}

func pgIsProgrammingError(err error) bool {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return false
	}
	return pgProgrammingErrorCodes[pe.Code]
}

// pgRetryableErrorCodes are transient PostgreSQL failures worth a retry:
// serialization/deadlock and connection loss classes.
var pgRetryableErrorCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"08000": true,
	"08006": true,
	"57P03": true,
}

func pgCanRetry(err error) bool {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pgRetryableErrorCodes[pe.Code]
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func isProgrammingError(vendor Vendor, err error) bool {
	if vendor == VendorPG {
		return pgIsProgrammingError(err)
	}
	return mysqlIsProgrammingError(err)
}

func canRetry(vendor Vendor, err error) bool {
	if vendor == VendorPG {
		return pgCanRetry(err)
	}
	return mysqlCanRetry(err)
}

// backoff sleeps a small, jittered amount before retry attempt i.
func backoff(i int) {
	if i <= 0 {
		return
	}
	randFactor := i * rand.Intn(10) * int(time.Millisecond)
	time.Sleep(time.Duration(randFactor))
}

// PoolConfig bounds connection usage on both vendors uniformly.
type PoolConfig struct {
	MaxPoolSize           int
	LockWaitTimeout       time.Duration
	InnodbLockWaitTimeout time.Duration
	MaxRetries            int
}

// DefaultPoolConfig returns the documented defaults: max_pool_size=20,
// max_retries=5.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxPoolSize:           20,
		LockWaitTimeout:       30 * time.Second,
		InnodbLockWaitTimeout: 3 * time.Second,
		MaxRetries:            5,
	}
}

// Pools owns the lazily-initialized connection pools to both the MySQL
// source and the PostgreSQL target, plus the single uniform Query
// primitive every phase of the migration runs through.
type Pools struct {
	cfg *PoolConfig
	log loggers.Advanced

	mysqlDB *sql.DB
	pgPool  *pgxpool.Pool
}

// NewPools opens both vendor pools immediately: MySQL via
// database/sql + go-sql-driver/mysql, PostgreSQL via pgxpool, each capped at
// cfg.MaxPoolSize connections.
func NewPools(ctx context.Context, cfg *PoolConfig, mysqlDSN, pgDSN string, log loggers.Advanced) (*Pools, error) {
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}
	mysqlDB, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, fmt.Errorf("opening mysql pool: %w", err)
	}
	mysqlDB.SetMaxOpenConns(cfg.MaxPoolSize)
	mysqlDB.SetMaxIdleConns(cfg.MaxPoolSize)

	pgCfg, err := pgxpool.ParseConfig(pgDSN)
	if err != nil {
		mysqlDB.Close()
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pgCfg.MaxConns = int32(cfg.MaxPoolSize)
	pgPool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		mysqlDB.Close()
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return &Pools{cfg: cfg, log: log, mysqlDB: mysqlDB, pgPool: pgPool}, nil
}

// MySQL returns the raw *sql.DB pool, for callers (cursor.go) that need
// driver-level access beyond the Query primitive.
func (p *Pools) MySQL() *sql.DB { return p.mysqlDB }

// PG returns the raw *pgxpool.Pool, for callers (copy.go) that need
// driver-level access beyond the Query primitive.
func (p *Pools) PG() *pgxpool.Pool { return p.pgPool }

// Config returns the pool's bounds, so callers sizing worker pools can
// read max_pool_size without re-plumbing it.
func (p *Pools) Config() *PoolConfig { return p.cfg }

// Ping probes both vendors with a trivial statement so an unreachable
// side fails the run before any DDL is issued.
// The two probes run through concurrency.RunFailFast so that an
// unreachable side is reported as soon as either probe fails, rather than
// waiting out a hung probe on the other vendor first.
func (p *Pools) Ping(ctx context.Context) error {
	probes := []struct {
		vendor string
		probe  func(context.Context) error
	}{
		{"mysql", p.mysqlDB.PingContext},
		{"postgres", p.pgPool.Ping},
	}
	return concurrency.RunFailFast(ctx, len(probes), len(probes), func(ctx context.Context, i int) error {
		if err := probes[i].probe(ctx); err != nil {
			return fmt.Errorf("%s: %w", probes[i].vendor, err)
		}
		return nil
	})
}

// Close releases both pools. Safe to call once at process shutdown.
func (p *Pools) Close() {
	if p.mysqlDB != nil {
		p.mysqlDB.Close()
	}
	if p.pgPool != nil {
		p.pgPool.Close()
	}
}

// Row is one result row keyed by column name, the shape every Query caller
// consumes regardless of vendor.
type Row map[string]any

// QueryOptions configures one Query call. Tag is a free-form label used
// only for logging; FatalOnError labels statements the caller treats as
// fatal, but Query does not read it: the error is returned like any
// other and stopping the run is left to the caller; CoerceProgrammingErrors turns a syntax or
// missing-relation error into an empty result, which probe queries
// against possibly-absent tables rely on.
type QueryOptions struct {
	Tag                     string
	Vendor                  Vendor
	Args                    []any
	FatalOnError            bool
	CoerceProgrammingErrors bool
	Conn                    *DedicatedConn
}

// Query runs sqlText against the vendor named in opts, making at most
// cfg.MaxRetries attempts while the errors are transient, and returns every row read back as a
// Row. It is the single uniform entry point: every phase goes through
// this instead of touching *sql.DB / *pgxpool.Pool directly.
func (p *Pools) Query(ctx context.Context, opts QueryOptions, sqlText string) ([]Row, error) {
	var rows []Row
	err := withRetry(ctx, opts.Vendor, p.cfg.MaxRetries, func() error {
		var innerErr error
		rows, innerErr = p.runOnce(ctx, opts, sqlText)
		return innerErr
	})
	if err != nil {
		if opts.CoerceProgrammingErrors && isProgrammingError(opts.Vendor, err) {
			if p.log != nil {
				p.log.Warnf("pgbridge: coercing programming error on %q to empty result: %v", opts.Tag, err)
			}
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

func (p *Pools) runOnce(ctx context.Context, opts QueryOptions, sqlText string) ([]Row, error) {
	switch opts.Vendor {
	case VendorPG:
		return p.runPG(ctx, opts, sqlText)
	default:
		return p.runMySQL(ctx, opts, sqlText)
	}
}

func (p *Pools) runMySQL(ctx context.Context, opts QueryOptions, sqlText string) ([]Row, error) {
	var rows *sql.Rows
	var err error
	if opts.Conn != nil && opts.Conn.mysqlConn != nil {
		rows, err = opts.Conn.mysqlConn.QueryContext(ctx, sqlText, opts.Args...)
	} else {
		rows, err = p.mysqlDB.QueryContext(ctx, sqlText, opts.Args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMySQLRows(rows)
}

func scanMySQLRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			if vals[i].Valid {
				r[c] = vals[i].String
			} else {
				r[c] = nil
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Pools) runPG(ctx context.Context, opts QueryOptions, sqlText string) ([]Row, error) {
	var err error
	var pgxRows pgx.Rows
	if opts.Conn != nil && opts.Conn.pgConn != nil {
		pgxRows, err = opts.Conn.pgConn.Query(ctx, sqlText, opts.Args...)
	} else {
		pgxRows, err = p.pgPool.Query(ctx, sqlText, opts.Args...)
	}
	if err != nil {
		return nil, err
	}
	defer pgxRows.Close()

	fields := pgxRows.FieldDescriptions()
	var out []Row
	for pgxRows.Next() {
		vals, err := pgxRows.Values()
		if err != nil {
			return nil, err
		}
		r := make(Row, len(fields))
		for i, f := range fields {
			r[string(f.Name)] = vals[i]
		}
		out = append(out, r)
	}
	return out, pgxRows.Err()
}

// ExecNoTransaction runs a PostgreSQL statement outside any implicit
// transaction wrapper, for administrative maintenance statements like
// session_replication_role toggles that must not be rolled back with data.
func (p *Pools) ExecNoTransaction(ctx context.Context, conn *DedicatedConn, sqlText string, args ...any) error {
	if conn != nil && conn.pgConn != nil {
		_, err := conn.pgConn.Exec(ctx, sqlText, args...)
		return err
	}
	_, err := p.pgPool.Exec(ctx, sqlText, args...)
	return err
}

// DedicatedConn wraps a single checked-out connection on one vendor,
// used by the data loader so an entire table's load (and any
// session-scoped setting such as session_replication_role) runs on one
// fixed connection rather than a pool-assigned one per statement.
type DedicatedConn struct {
	vendor    Vendor
	mysqlConn *sql.Conn
	pgConn    *pgxpool.Conn
}

// Vendor reports which side this dedicated connection belongs to.
func (c *DedicatedConn) Vendor() Vendor { return c.vendor }

// AcquireDedicated checks out one connection from the named vendor's pool
// and holds it until Release is called.
func (p *Pools) AcquireDedicated(ctx context.Context, vendor Vendor) (*DedicatedConn, error) {
	if vendor == VendorPG {
		conn, err := p.pgPool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring dedicated postgres connection: %w", err)
		}
		return &DedicatedConn{vendor: VendorPG, pgConn: conn}, nil
	}
	conn, err := p.mysqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring dedicated mysql connection: %w", err)
	}
	return &DedicatedConn{vendor: VendorMySQL, mysqlConn: conn}, nil
}

// Release returns the dedicated connection to its pool.
func (c *DedicatedConn) Release() {
	if c == nil {
		return
	}
	if c.pgConn != nil {
		c.pgConn.Release()
	}
	if c.mysqlConn != nil {
		c.mysqlConn.Close()
	}
}

// withRetry runs fn up to maxRetries times, retrying only on errors
// that canRetry classifies as transient for vendor.
func withRetry(ctx context.Context, vendor Vendor, maxRetries int, fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var err error
	for i := 0; i < maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !canRetry(vendor, err) {
			return err
		}
		backoff(i)
	}
	return err
}

// Retry exposes the same bounded-retry shape to callers outside this
// package that need it around an arbitrary typed result rather than a
// Query call.
func Retry[T any](ctx context.Context, cfg *PoolConfig, vendor Vendor, fn func() (T, error)) (T, error) {
	var zero T
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}
	var result T
	var fnErr error
	err := withRetry(ctx, vendor, cfg.MaxRetries, func() error {
		result, fnErr = fn()
		return fnErr
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}
