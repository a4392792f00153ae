// Package loader is the core data-movement pipeline. Per table, a
// reader pulls fixed-size batches off an unbuffered MySQL cursor and
// hands them to a single writer goroutine that COPYs them into
// PostgreSQL. A small buffered channel between the two is the whole
// flow-control story: the reader blocks when the writer falls behind,
// so memory stays bounded at a few batches per table. One writer per
// table is deliberate — COPY into a single table serializes at the
// storage layer, so extra writers only grow memory.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/siddontang/loggers"
	"github.com/sirupsen/logrus"

	"github.com/pgbridge/pgbridge/pkg/concurrency"
	"github.com/pgbridge/pgbridge/pkg/dbconn"
	"github.com/pgbridge/pgbridge/pkg/extraconfig"
	"github.com/pgbridge/pgbridge/pkg/logs"
	"github.com/pgbridge/pgbridge/pkg/metrics"
	"github.com/pgbridge/pgbridge/pkg/state"
	"github.com/pgbridge/pgbridge/pkg/utils"
)

const (
	defaultBatchSize          = 30000
	defaultMaxBufferedBatches = 3
	defaultLoaderCap          = 4
	defaultCharset            = "UTF8"
)

// Loader drives the per-table COPY pipeline for every Data Pool item.
type Loader struct {
	Pools       *dbconn.Pools
	State       *state.Manager
	ExtraConfig *extraconfig.Resolver
	Metrics     metrics.Sink
	Log         loggers.Advanced

	Schema          string
	Charset         string
	LogsDir         string
	MigrateOnlyData bool

	BatchSize          int
	MaxBufferedBatches int
	LoaderCap          int
}

func (l *Loader) batchSize() int {
	if l.BatchSize > 0 {
		return l.BatchSize
	}
	return defaultBatchSize
}

func (l *Loader) maxBuffered() int {
	if l.MaxBufferedBatches > 0 {
		return l.MaxBufferedBatches
	}
	return defaultMaxBufferedBatches
}

func (l *Loader) charset() string {
	if l.Charset != "" {
		return l.Charset
	}
	return defaultCharset
}

func (l *Loader) loaderCap() int {
	if l.LoaderCap > 0 {
		return l.LoaderCap
	}
	return defaultLoaderCap
}

// tableLogger returns a logger dedicated to tableName's own log file
// ({logs_dir}/{table}.log) when l.Log is the concrete *logrus.Logger
// logs.New builds and LogsDir is set, falling back to the shared top-level
// logger otherwise (e.g. in tests that pass a bare loggers.Advanced stub).
func (l *Loader) tableLogger(tableName string) loggers.Advanced {
	if l.LogsDir == "" {
		return l.Log
	}
	parent, ok := l.Log.(*logrus.Logger)
	if !ok {
		return l.Log
	}
	return logs.ForTable(parent, l.LogsDir, tableName)
}

// OnTableLoaded is invoked once a table's data is fully loaded (or
// found already loaded by the recovery probe), so the caller can apply
// that table's constraints without this package importing pkg/constraint.
type OnTableLoaded func(ctx context.Context, tableName string) error

// SendData runs the outer loop over items with concurrency
// min(pool_size, |items|, CPU, loader_cap). onLoaded is called for a
// table immediately after its worker finishes without error; a failed
// worker does not trigger it.
func (l *Loader) SendData(ctx context.Context, items []state.PoolItem, onLoaded OnTableLoaded) error {
	if len(items) == 0 {
		return nil
	}
	n := minInt(l.Pools.Config().MaxPoolSize, len(items), runtime.NumCPU(), l.loaderCap())

	outcomes := concurrency.Run(ctx, n, len(items), func(ctx context.Context, i int) error {
		item := items[i]
		tableName, err := l.loadOne(ctx, item)
		if err != nil {
			if l.Log != nil {
				l.Log.Errorf("pgbridge: loading table %q failed: %v", item.TableName, err)
			}
			return err
		}
		if onLoaded != nil {
			return onLoaded(ctx, tableName)
		}
		return nil
	})

	var firstErr error
	for _, o := range outcomes {
		if o.Err != nil && firstErr == nil {
			firstErr = o.Err
		}
	}
	return firstErr
}

// loadOne runs one Data Pool item's worker to completion: recovery probe,
// streamed COPY, constraint deferral, cleanup. Returns the table's logical
// name for the caller's onLoaded hook.
func (l *Loader) loadOne(ctx context.Context, item state.PoolItem) (string, error) {
	tableLog := l.tableLogger(item.TableName)
	recovered, err := l.probeRecovery(ctx, item.TableName)
	if err != nil {
		return "", fmt.Errorf("recovery probe for %q: %w", item.TableName, err)
	}
	if recovered {
		tableLog.Infof("pgbridge: %q already loaded, skipping", item.TableName)
		if err := l.State.DeletePoolItem(ctx, item.ID); err != nil {
			return "", err
		}
		return item.TableName, nil
	}
	return item.TableName, l.populateTable(ctx, item, tableLog)
}

// probeRecovery is the weak "target has at least one row" check used as
// the resumption signal: a data-pool row only survives an earlier run
// if its load never finished, but the probe cannot tell a fully loaded
// table from a partially loaded one — a partial failure needs a manual
// truncate before retry.
func (l *Loader) probeRecovery(ctx context.Context, tableName string) (bool, error) {
	qualified := utils.QuoteIdent(l.Schema) + "." + utils.QuoteIdent(tableName)
	rows, err := l.Pools.Query(ctx, dbconn.QueryOptions{Tag: "data_transferred", Vendor: dbconn.VendorPG, CoerceProgrammingErrors: true},
		fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", qualified))
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (l *Loader) populateTable(ctx context.Context, item state.PoolItem, tableLog loggers.Advanced) (err error) {
	originalTableName := l.ExtraConfig.GetTableName(item.TableName, true)
	selectSQL := fmt.Sprintf("SELECT %s FROM `%s`", item.Projection, originalTableName)

	mysqlConn, err := l.Pools.AcquireDedicated(ctx, dbconn.VendorMySQL)
	if err != nil {
		return fmt.Errorf("acquiring mysql cursor connection: %w", err)
	}
	defer mysqlConn.Release()

	cursor, err := dbconn.OpenCursor(ctx, mysqlConn, selectSQL)
	if err != nil {
		return fmt.Errorf("opening source cursor: %w", err)
	}
	defer cursor.Close()

	pgConn, err := l.Pools.AcquireDedicated(ctx, dbconn.VendorPG)
	if err != nil {
		return fmt.Errorf("acquiring postgres writer connection: %w", err)
	}
	defer pgConn.Release()

	var originalRole string
	if l.MigrateOnlyData {
		originalRole, err = l.disableTriggers(ctx, pgConn)
		if err != nil && tableLog != nil {
			tableLog.Errorf("pgbridge: disabling triggers on %q failed: %v", item.TableName, err)
		}
	}
	defer func() {
		if originalRole != "" {
			if err := dbconn.SetReplicationRole(ctx, pgConn, originalRole); err != nil && tableLog != nil {
				tableLog.Errorf("pgbridge: restoring session_replication_role on %q failed: %v", item.TableName, err)
			}
		}
		if err != nil {
			return
		}
		if delErr := l.State.DeletePoolItem(ctx, item.ID); delErr != nil && tableLog != nil {
			tableLog.Errorf("pgbridge: deleting data-pool row for %q failed: %v", item.TableName, delErr)
		}
	}()

	return l.runPipeline(ctx, pgConn, item, cursor, tableLog)
}

type batchJob struct {
	data []byte
	n    int
}

// runPipeline is the reader/writer pipeline: a bounded channel of depth
// maxBuffered() carries encoded batches to the single writer goroutine,
// which COPYs each one in turn.
func (l *Loader) runPipeline(ctx context.Context, pgConn *dbconn.DedicatedConn, item state.PoolItem, cursor *dbconn.SourceCursor, tableLog loggers.Advanced) error {
	jobs := make(chan batchJob, l.maxBuffered())
	writerErrs := make(chan error, 1)
	qualified := utils.QuoteIdent(l.Schema) + "." + utils.QuoteIdent(item.TableName)
	columns := cursor.Columns()

	go func() {
		var firstErr error
		for job := range jobs {
			start := time.Now()
			n, err := dbconn.CopyIn(ctx, pgConn, qualified, columns, l.charset(), bytes.NewReader(job.data))
			if err != nil {
				if tableLog != nil {
					tableLog.Errorf("pgbridge: COPY into %s failed: %v", qualified, err)
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if l.Metrics != nil {
				l.Metrics.RowsCopied(item.TableName, uint64(n))
				l.Metrics.BatchFlushed(item.TableName, job.n, time.Since(start))
			}
		}
		writerErrs <- firstErr
	}()

	var readErr error
	for {
		batch, err := cursor.FetchMany(l.batchSize())
		if err != nil {
			readErr = err
			break
		}
		if len(batch) == 0 {
			break
		}
		jobs <- batchJob{data: EncodeBatch(batch), n: len(batch)}
	}
	close(jobs)

	writeErr := <-writerErrs
	if readErr != nil {
		return readErr
	}
	return writeErr
}

func (l *Loader) disableTriggers(ctx context.Context, conn *dbconn.DedicatedConn) (string, error) {
	role := "origin"
	rows, err := l.Pools.Query(ctx, dbconn.QueryOptions{Tag: "disable_triggers", Vendor: dbconn.VendorPG, Conn: conn}, "SHOW session_replication_role")
	if err == nil && len(rows) > 0 {
		if v, ok := rows[0]["session_replication_role"].(string); ok && v != "" {
			role = v
		}
	}
	if err := dbconn.SetReplicationRole(ctx, conn, "replica"); err != nil {
		return role, err
	}
	return role, nil
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	if m <= 0 {
		return 1
	}
	return m
}
