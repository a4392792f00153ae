// Package state is CRUD over the two bookkeeping tables that make a
// migration run resumable: state_logs_{schema}{source_db}, a single row
// of monotonic phase flags, and data_pool_{schema}{source_db}, the
// per-table work queue. Both names are fully determined by the schema
// and source database, so a restarted process attaches to prior work
// without any extra handshake.
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgbridge/pgbridge/pkg/dbconn"
	"github.com/pgbridge/pgbridge/pkg/utils"
	"github.com/siddontang/loggers"
)

// Flag names the four monotonic phase booleans in the state-logs row.
type Flag string

const (
	TablesLoaded              Flag = "tables_loaded"
	PerTableConstraintsLoaded Flag = "per_table_constraints_loaded"
	ForeignKeysLoaded         Flag = "foreign_keys_loaded"
	ViewsLoaded               Flag = "views_loaded"
)

// PoolItem is one Data Pool row's JSON metadata payload: the logical
// table name, its pre-built projection, row count, estimated size, and —
// once read back — the owning row's id.
type PoolItem struct {
	ID         int64  `json:"_id,omitempty"`
	TableName  string `json:"tableName"`
	Projection string `json:"projection"`
	RowCount   uint64 `json:"rowCount"`
	SizeBytes  uint64 `json:"sizeBytes"`
}

// Manager owns the bookkeeping table names for one schema + source
// database pair and drives all state-log / data-pool CRUD through Pools.
type Manager struct {
	pools    *dbconn.Pools
	log      loggers.Advanced
	schema   string
	sourceDB string
}

// New returns a Manager for the given schema and source database name.
// The two table names are fully determined by these two strings, so a
// new process can attach to prior work without any extra bookkeeping.
func New(pools *dbconn.Pools, log loggers.Advanced, schema, sourceDB string) *Manager {
	return &Manager{pools: pools, log: log, schema: schema, sourceDB: sourceDB}
}

// StateLogsTable returns the schema-qualified state-logs table name.
func (m *Manager) StateLogsTable() string {
	return utils.QuoteIdent(m.schema) + "." + utils.QuoteIdent("state_logs_"+m.schema+m.sourceDB)
}

// DataPoolTable returns the schema-qualified data-pool table name.
func (m *Manager) DataPoolTable() string {
	return utils.QuoteIdent(m.schema) + "." + utils.QuoteIdent("data_pool_"+m.schema+m.sourceDB)
}

// CreateStateLogsTable creates the state-logs table if absent and inserts
// the single all-false row if the table was just created (empty). The
// returned bool is true when the row was freshly seeded, i.e. this is
// not a restart of a prior run; the boot phase uses this to decide
// whether to announce restart mode.
func (m *Manager) CreateStateLogsTable(ctx context.Context) (bool, error) {
	table := m.StateLogsTable()
	createSQL := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s ("tables_loaded" BOOLEAN, "per_table_constraints_loaded" BOOLEAN, "foreign_keys_loaded" BOOLEAN, "views_loaded" BOOLEAN)`,
		table,
	)
	if _, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "create_state_logs_table", Vendor: dbconn.VendorPG, FatalOnError: true}, createSQL); err != nil {
		return false, fmt.Errorf("creating state-logs table: %w", err)
	}

	rows, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "create_state_logs_table", Vendor: dbconn.VendorPG, FatalOnError: true}, fmt.Sprintf("SELECT COUNT(1) AS cnt FROM %s", table))
	if err != nil {
		return false, fmt.Errorf("counting state-logs rows: %w", err)
	}

	empty := len(rows) == 0 || toInt64(rows[0]["cnt"]) == 0
	if empty {
		insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (FALSE, FALSE, FALSE, FALSE)", table)
		if _, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "create_state_logs_table", Vendor: dbconn.VendorPG, FatalOnError: true}, insertSQL); err != nil {
			return false, fmt.Errorf("seeding state-logs row: %w", err)
		}
		m.logf("table %s is created", table)
	} else {
		m.logf("table %s already exists", table)
	}
	return empty, nil
}

// CreateDataPoolTable creates the data-pool queue table if absent.
func (m *Manager) CreateDataPoolTable(ctx context.Context) error {
	table := m.DataPoolTable()
	sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s ("id" BIGSERIAL, "metadata" JSON)`, table)
	if _, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "create_data_pool_table", Vendor: dbconn.VendorPG, FatalOnError: true}, sql); err != nil {
		return fmt.Errorf("creating data-pool table: %w", err)
	}
	m.logf("table %s is created", table)
	return nil
}

// Get reads a single boolean phase flag.
func (m *Manager) Get(ctx context.Context, flag Flag) (bool, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s", flag, m.StateLogsTable())
	rows, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "get", Vendor: dbconn.VendorPG, FatalOnError: true}, sql)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, fmt.Errorf("state: no state-logs row present")
	}
	return toBool(rows[0][string(flag)]), nil
}

// Set flips one or more flags to TRUE unconditionally. Setting an
// already-true flag is a no-op in effect, so concurrent callers commute.
func (m *Manager) Set(ctx context.Context, flags ...Flag) error {
	if len(flags) == 0 {
		return nil
	}
	assignments := ""
	for i, f := range flags {
		if i > 0 {
			assignments += ","
		}
		assignments += fmt.Sprintf("%s = TRUE", f)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", m.StateLogsTable(), assignments)
	_, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "set", Vendor: dbconn.VendorPG, FatalOnError: true}, sql)
	return err
}

// ReadDataPool selects every Data Pool row and attaches each row's id
// as PoolItem.ID, so the loader can delete the row by id once the
// table's load completes.
func (m *Manager) ReadDataPool(ctx context.Context) ([]PoolItem, error) {
	sql := fmt.Sprintf("SELECT id AS id, metadata AS metadata FROM %s", m.DataPoolTable())
	rows, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "read_data_pool", Vendor: dbconn.VendorPG, FatalOnError: true}, sql)
	if err != nil {
		return nil, err
	}
	items := make([]PoolItem, 0, len(rows))
	for _, r := range rows {
		var item PoolItem
		raw, _ := r["metadata"].([]byte)
		if raw == nil {
			if s, ok := r["metadata"].(string); ok {
				raw = []byte(s)
			} else if v := r["metadata"]; v != nil {
				// pgx hands a JSON column back already decoded.
				raw, _ = json.Marshal(v)
			}
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decoding data-pool metadata: %w", err)
		}
		item.ID = toInt64(r["id"])
		items = append(items, item)
	}
	return items, nil
}

// InsertPoolItem writes one Data Pool row's metadata JSON.
func (m *Manager) InsertPoolItem(ctx context.Context, item PoolItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding data-pool metadata: %w", err)
	}
	sql := fmt.Sprintf("INSERT INTO %s (metadata) VALUES ($1)", m.DataPoolTable())
	_, err = m.pools.Query(ctx, dbconn.QueryOptions{Tag: "insert_pool_item", Vendor: dbconn.VendorPG, FatalOnError: true, Args: []any{payload}}, sql)
	return err
}

// DeletePoolItem removes the Data Pool row with the given id: called
// only on successful worker completion (or recovery short-circuit).
func (m *Manager) DeletePoolItem(ctx context.Context, id int64) error {
	sql := fmt.Sprintf("DELETE FROM %s WHERE id = $1", m.DataPoolTable())
	_, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "delete_pool_item", Vendor: dbconn.VendorPG, Args: []any{id}}, sql)
	return err
}

// DropDataPoolTable drops the data-pool table at end of run.
func (m *Manager) DropDataPoolTable(ctx context.Context) error {
	table := m.DataPoolTable()
	_, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "drop_data_pool_table", Vendor: dbconn.VendorPG}, fmt.Sprintf("DROP TABLE %s", table))
	m.logf("table %s is dropped", table)
	return err
}

// DropStateLogsTable drops the state-logs table at end of run.
func (m *Manager) DropStateLogsTable(ctx context.Context) error {
	table := m.StateLogsTable()
	_, err := m.pools.Query(ctx, dbconn.QueryOptions{Tag: "drop_state_logs_table", Vendor: dbconn.VendorPG}, fmt.Sprintf("DROP TABLE %s", table))
	return err
}

func (m *Manager) logf(format string, args ...any) {
	if m.log != nil {
		m.log.Infof(format, args...)
	}
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case string:
		var out int64
		fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}
