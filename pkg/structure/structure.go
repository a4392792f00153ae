// Package structure enumerates source relations, creates the matching
// target tables, and inserts one Data Pool row per table so the data
// loader can pick each table up as an independent unit of work.
// Per-table processing is fanned out over pkg/concurrency.
package structure

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pgbridge/pgbridge/pkg/concurrency"
	"github.com/pgbridge/pgbridge/pkg/dbconn"
	"github.com/pgbridge/pgbridge/pkg/extraconfig"
	"github.com/pgbridge/pgbridge/pkg/project"
	"github.com/pgbridge/pgbridge/pkg/state"
	"github.com/pgbridge/pgbridge/pkg/table"
	"github.com/pgbridge/pgbridge/pkg/utils"
	"github.com/siddontang/loggers"
)

// defaultMySQLVersion is the conservative fallback used when the
// VERSION() probe fails: old enough that spatial projection picks the
// legacy AsWKB function.
const defaultMySQLVersion = "5.6.21"

// Loader enumerates the source schema and populates both the in-memory
// table registry and the Data Pool queue table.
type Loader struct {
	Pools           *dbconn.Pools
	State           *state.Manager
	ExtraConfig     *extraconfig.Resolver
	Log             loggers.Advanced
	Schema          string
	SourceDB        string
	IncludeTables   []string
	ExcludeTables   []string
	MigrateOnlyData bool
	MaxConcurrency  int

	// MySQLVersion is the probed source "major.minor" version,
	// populated by Load before any table is processed.
	MySQLVersion string

	mapType func(mysqlType string) (string, error)
}

// New builds a Loader. mapType is pkg/types.Map bound to the operator's
// loaded data_types_map.json.
func New(pools *dbconn.Pools, st *state.Manager, ec *extraconfig.Resolver, log loggers.Advanced, schema, sourceDB string, mapType func(string) (string, error)) *Loader {
	return &Loader{
		Pools:          pools,
		State:          st,
		ExtraConfig:    ec,
		Log:            log,
		Schema:         schema,
		SourceDB:       sourceDB,
		MaxConcurrency: 20,
		mapType:        mapType,
	}
}

// relation is one row read back from SHOW FULL TABLES.
type relation struct {
	name string
	kind string
}

// Load runs the whole structure phase: enumerate, create
// tables (unless migrate-only-data), build projections, enqueue Data Pool
// rows. It returns the populated table registry and the list of source
// view names discovered (for the later View phase).
func (l *Loader) Load(ctx context.Context, haveTablesLoaded bool) (*table.Registry, []string, error) {
	l.probeMySQLVersion(ctx)

	reg := table.NewRegistry()
	relations, err := l.listRelations(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("enumerating source relations: %w", err)
	}

	var tableNames []string
	var viewNames []string
	for _, r := range relations {
		if r.kind == "BASE TABLE" && !contains(l.ExcludeTables, r.name) {
			logical := l.ExtraConfig.GetTableName(r.name, false)
			reg.Add(&table.Table{Name: logical, Original: r.name})
			tableNames = append(tableNames, logical)
		} else if r.kind == "VIEW" {
			viewNames = append(viewNames, r.name)
		}
	}

	outcomes := concurrency.Run(ctx, l.MaxConcurrency, len(tableNames), func(ctx context.Context, i int) error {
		return l.processTable(ctx, reg.Get(tableNames[i]), haveTablesLoaded)
	})
	for _, o := range outcomes {
		if o.Err != nil && l.Log != nil {
			l.Log.Errorf("pgbridge: structure load failed for %q: %v", tableNames[o.Index], o.Err)
		}
	}

	if l.Log != nil {
		l.Log.Infof("pgbridge: source structure loaded, %d tables, %d views", len(tableNames), len(viewNames))
	}
	if err := l.State.Set(ctx, state.TablesLoaded); err != nil {
		return nil, nil, err
	}
	return reg, viewNames, nil
}

// probeMySQLVersion runs SELECT VERSION() once and stores its
// "major.minor" form on the Loader: every segment after the major is
// concatenated into the minor and any "-postfix" is dropped, so
// "5.7.21-log" becomes "5.721". It falls back to defaultMySQLVersion on any failure or
// unexpected result shape.
func (l *Loader) probeMySQLVersion(ctx context.Context) {
	l.MySQLVersion = defaultMySQLVersion
	rows, err := l.Pools.Query(ctx, dbconn.QueryOptions{Tag: "get_mysql_version", Vendor: dbconn.VendorMySQL, CoerceProgrammingErrors: true},
		"SELECT VERSION() AS mysql_version;")
	if err != nil || len(rows) == 0 {
		return
	}
	raw, _ := rows[0]["mysql_version"].(string)
	parts := strings.Split(raw, ".")
	if len(parts) < 2 {
		return
	}
	major := parts[0]
	minor := strings.SplitN(strings.Join(parts[1:], ""), "-", 2)[0]
	l.MySQLVersion = major + "." + minor
}

func (l *Loader) loadTableComment(ctx context.Context, t *table.Table) {
	rows, err := l.Pools.Query(ctx, dbconn.QueryOptions{Tag: "create_table", Vendor: dbconn.VendorMySQL, CoerceProgrammingErrors: true}, fmt.Sprintf(
		"SELECT table_comment AS table_comment FROM information_schema.tables WHERE table_schema = '%s' AND table_name = '%s'",
		l.SourceDB, t.Original,
	))
	if err != nil || len(rows) == 0 {
		return
	}
	comment, _ := rows[0]["table_comment"].(string)
	t.Comment = comment
}

func (l *Loader) listRelations(ctx context.Context) ([]relation, error) {
	col := "Tables_in_" + l.SourceDB
	sqlText := fmt.Sprintf("SHOW FULL TABLES IN `%s` WHERE 1 = 1", l.SourceDB)
	if len(l.IncludeTables) > 0 {
		sqlText += fmt.Sprintf(" AND %s IN(%s)", col, quotedList(l.IncludeTables))
	}
	if len(l.ExcludeTables) > 0 {
		sqlText += fmt.Sprintf(" AND %s NOT IN(%s)", col, quotedList(l.ExcludeTables))
	}
	rows, err := l.Pools.Query(ctx, dbconn.QueryOptions{Tag: "load_structure", Vendor: dbconn.VendorMySQL, FatalOnError: true}, sqlText)
	if err != nil {
		return nil, err
	}
	out := make([]relation, 0, len(rows))
	for _, r := range rows {
		name, _ := r[col].(string)
		kind, _ := r["Table_type"].(string)
		out = append(out, relation{name: name, kind: kind})
	}
	return out, nil
}

// processTable creates the target table (unless migrate-only-data),
// then enqueues its Data Pool row (unless tables were already loaded on
// a prior run).
func (l *Loader) processTable(ctx context.Context, t *table.Table, haveTablesLoaded bool) error {
	if err := l.loadColumns(ctx, t); err != nil {
		return err
	}
	l.loadTableComment(ctx, t)
	if !l.MigrateOnlyData {
		if err := l.createTargetTable(ctx, t); err != nil {
			return err
		}
	}
	if haveTablesLoaded {
		return nil
	}
	return l.enqueueDataPoolRow(ctx, t)
}

func (l *Loader) loadColumns(ctx context.Context, t *table.Table) error {
	sqlText := fmt.Sprintf("SHOW FULL COLUMNS FROM `%s`", t.Original)
	rows, err := l.Pools.Query(ctx, dbconn.QueryOptions{Tag: "create_table", Vendor: dbconn.VendorMySQL, FatalOnError: false}, sqlText)
	if err != nil {
		return err
	}
	for _, r := range rows {
		name, _ := r["Field"].(string)
		srcType, _ := r["Type"].(string)
		nullStr, _ := r["Null"].(string)
		extra, _ := r["Extra"].(string)
		comment, _ := r["Comment"].(string)
		var def *string
		if v, ok := r["Default"].(string); ok {
			def = &v
		}
		logical := l.ExtraConfig.GetColumnName(t.Original, name, false)
		t.Columns = append(t.Columns, table.Column{
			Name:       logical,
			Original:   name,
			SourceType: srcType,
			Null:       strings.EqualFold(nullStr, "YES"),
			Default:    def,
			Extra:      extra,
			Comment:    comment,
		})
	}
	return nil
}

func (l *Loader) createTargetTable(ctx context.Context, t *table.Table) error {
	var defs []string
	for _, c := range t.Columns {
		pgType, err := l.mapType(c.SourceType)
		if err != nil {
			return fmt.Errorf("mapping type for %s.%s: %w", t.Name, c.Name, err)
		}
		defs = append(defs, fmt.Sprintf("%s %s", utils.QuoteIdent(c.Name), pgType))
	}
	sqlText := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, t.QuotedName(l.Schema), strings.Join(defs, ","))
	_, err := l.Pools.Query(ctx, dbconn.QueryOptions{Tag: "create_table", Vendor: dbconn.VendorPG, FatalOnError: true}, sqlText)
	return err
}

func (l *Loader) enqueueDataPoolRow(ctx context.Context, t *table.Table) error {
	rowCount, err := l.rowCount(ctx, t.Original)
	if err != nil {
		return err
	}
	sizeBytes, err := l.sizeBytes(ctx, t.Original)
	if err != nil {
		return err
	}
	item := state.PoolItem{
		TableName:  t.Name,
		Projection: project.Project(t.Columns, l.MySQLVersion),
		RowCount:   rowCount,
		SizeBytes:  sizeBytes,
	}
	return l.State.InsertPoolItem(ctx, item)
}

func (l *Loader) rowCount(ctx context.Context, originalTable string) (uint64, error) {
	rows, err := l.Pools.Query(ctx, dbconn.QueryOptions{Tag: "get_rows_cnt", Vendor: dbconn.VendorMySQL, FatalOnError: true},
		fmt.Sprintf("SELECT COUNT(1) AS rows_count FROM `%s`", originalTable))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toUint64(rows[0]["rows_count"]), nil
}

func (l *Loader) sizeBytes(ctx context.Context, originalTable string) (uint64, error) {
	rows, err := l.Pools.Query(ctx, dbconn.QueryOptions{Tag: "get_size", Vendor: dbconn.VendorMySQL, FatalOnError: true}, fmt.Sprintf(
		"SELECT data_length AS size_bytes FROM information_schema.TABLES WHERE table_schema = '%s' AND table_name = '%s'",
		l.SourceDB, originalTable,
	))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toUint64(rows[0]["size_bytes"]), nil
}

func quotedList(items []string) string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(out, ",")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case int64:
		return uint64(n)
	case uint64:
		return n
	case float64:
		return uint64(n)
	case string:
		out, _ := strconv.ParseUint(n, 10, 64)
		return out
	default:
		return 0
	}
}
