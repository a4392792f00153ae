// Package constraint runs, per table, the ordered sequence of post-load
// DDL steps that data loading alone cannot express: ENUM checks,
// NOT NULL, DEFAULT, sequences, indexes, and comments. Each step
// tolerates individual column/index failures so one bad statement never
// costs the table its remaining constraints.
package constraint

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgbridge/pgbridge/pkg/concurrency"
	"github.com/pgbridge/pgbridge/pkg/config"
	"github.com/pgbridge/pgbridge/pkg/dbconn"
	"github.com/pgbridge/pgbridge/pkg/extraconfig"
	"github.com/pgbridge/pgbridge/pkg/metrics"
	"github.com/pgbridge/pgbridge/pkg/table"
	"github.com/pgbridge/pgbridge/pkg/types"
	"github.com/pgbridge/pgbridge/pkg/utils"
	"github.com/siddontang/loggers"
)

// reservedDefaults maps source default tokens that must be rendered as
// their PG canonical form rather than quoted literally.
var reservedDefaults = map[string]string{
	"CURRENT_DATE":          "CURRENT_DATE",
	"0000-00-00":            "'-INFINITY'",
	"CURRENT_TIME":          "CURRENT_TIME",
	"00:00:00":              "00:00:00",
	"CURRENT_TIMESTAMP":     "CURRENT_TIMESTAMP",
	"0000-00-00 00:00:00":   "'-INFINITY'",
	"LOCALTIME":             "LOCALTIME",
	"LOCALTIMESTAMP":        "LOCALTIMESTAMP",
	"NULL":                  "NULL",
	"null":                  "NULL",
	"UTC_DATE":              "(CURRENT_DATE AT TIME ZONE 'UTC')",
	"UTC_TIME":              "(CURRENT_TIME AT TIME ZONE 'UTC')",
	"UTC_TIMESTAMP":         "(NOW() AT TIME ZONE 'UTC')",
}

// pgNumericTypes lists the PG types whose defaults are emitted unquoted.
var pgNumericTypes = map[string]bool{
	"money": true, "numeric": true, "decimal": true, "double precision": true,
	"real": true, "bigint": true, "int": true, "smallint": true,
}

const defaultConcurrency = 8

// Applier runs the six-step constraint sequence for a table once its data
// has finished loading.
type Applier struct {
	Pools       *dbconn.Pools
	ExtraConfig *extraconfig.Resolver
	TypeMap     config.TypeMap
	IndexTypes  config.IndexTypeMap
	Metrics     metrics.Sink
	Log         loggers.Advanced

	Schema          string
	MigrateOnlyData bool
	Concurrency     int
}

func (a *Applier) concurrency() int {
	if a.Concurrency > 0 {
		return a.Concurrency
	}
	return defaultConcurrency
}

func (a *Applier) report(table, kind string, ok bool) {
	if a.Metrics != nil {
		a.Metrics.ConstraintApplied(table, kind, ok)
	}
}

func (a *Applier) logf(format string, args ...any) {
	if a.Log != nil {
		a.Log.Infof(format, args...)
	}
}

func (a *Applier) errf(format string, args ...any) {
	if a.Log != nil {
		a.Log.Errorf(format, args...)
	}
}

// Apply runs the per-table constraint sequence in order. In data-only
// mode it only advances the table's auto-increment sequence value (the
// table, sequence, defaults, indexes, and comments were all set up by a
// prior full run).
func (a *Applier) Apply(ctx context.Context, t *table.Table) error {
	if a.MigrateOnlyData {
		a.setSequenceValue(ctx, t)
		return nil
	}

	a.processEnums(ctx, t)
	a.processNotNull(ctx, t)
	a.processDefaults(ctx, t)
	a.createSequence(ctx, t)
	a.createIndexes(ctx, t)
	a.processComments(ctx, t)
	return nil
}

func (a *Applier) exec(ctx context.Context, sql string) error {
	_, err := a.Pools.Query(ctx, dbconn.QueryOptions{Tag: "constraint", Vendor: dbconn.VendorPG}, sql)
	return err
}

// enumValues splits a MySQL "enum('a','b')" / "set('a','b')" source type
// into its comma-separated value list. The trailing close-paren is
// stripped so the value list can be re-wrapped in a new "IN (...)"
// clause without doubling the ')'.
func enumValues(sourceType string) (string, bool) {
	idx := strings.IndexByte(sourceType, '(')
	if idx == -1 {
		return "", false
	}
	head := strings.ToLower(sourceType[:idx])
	if head != "enum" && head != "set" {
		return "", false
	}
	tail := sourceType[idx+1:]
	tail = strings.TrimSuffix(tail, ")")
	return tail, true
}

func (a *Applier) processEnums(ctx context.Context, t *table.Table) {
	originalTableName := a.ExtraConfig.GetTableName(t.Name, true)
	var cols []table.Column
	for _, c := range t.Columns {
		if _, ok := enumValues(c.SourceType); ok {
			cols = append(cols, c)
		}
	}
	concurrency.Run(ctx, a.concurrency(), len(cols), func(ctx context.Context, i int) error {
		c := cols[i]
		values, _ := enumValues(c.SourceType)
		columnName := a.ExtraConfig.GetColumnName(originalTableName, c.Original, false)
		sql := fmt.Sprintf(`ALTER TABLE %s ADD CHECK (%s IN (%s));`, t.QuotedName(a.Schema), utils.QuoteIdent(columnName), values)
		err := a.exec(ctx, sql)
		a.report(t.Name, "enum", err == nil)
		if err != nil {
			a.errf("pgbridge: setting enum check on %s.%s failed: %v", t.Name, columnName, err)
		} else {
			a.logf("pgbridge: set ENUM for %q.%q", t.Name, columnName)
		}
		return nil
	})
}

func (a *Applier) processNotNull(ctx context.Context, t *table.Table) {
	originalTableName := a.ExtraConfig.GetTableName(t.Name, true)
	var cols []table.Column
	for _, c := range t.Columns {
		if !c.Null {
			cols = append(cols, c)
		}
	}
	concurrency.Run(ctx, a.concurrency(), len(cols), func(ctx context.Context, i int) error {
		c := cols[i]
		columnName := a.ExtraConfig.GetColumnName(originalTableName, c.Original, false)
		sql := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s SET NOT NULL;`, t.QuotedName(a.Schema), utils.QuoteIdent(columnName))
		err := a.exec(ctx, sql)
		a.report(t.Name, "not_null", err == nil)
		if err != nil {
			a.errf("pgbridge: setting NOT NULL on %s.%s failed: %v", t.Name, columnName, err)
		} else {
			a.logf("pgbridge: set NOT NULL for %q.%q", t.Name, columnName)
		}
		return nil
	})
}

// defaultClause composes the RHS of "SET DEFAULT" for one column:
// reserved tokens first, then type-driven quoting.
func (a *Applier) defaultClause(c table.Column) (string, error) {
	if c.Default == nil {
		return "NULL", nil
	}
	def := *c.Default
	if pg, ok := reservedDefaults[def]; ok {
		return pg, nil
	}

	pgType, err := types.Map(a.TypeMap, c.SourceType)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(pgType, "bit") {
		return def, nil
	}
	if strings.HasPrefix(pgType, "bytea") {
		return fmt.Sprintf("'\\x%s'", def), nil
	}
	if pgNumericTypes[baseTypeName(pgType)] {
		return def, nil
	}
	return fmt.Sprintf("'%s'", def), nil
}

func baseTypeName(pgType string) string {
	if idx := strings.IndexByte(pgType, '('); idx != -1 {
		return strings.TrimSpace(pgType[:idx])
	}
	return pgType
}

func (a *Applier) processDefaults(ctx context.Context, t *table.Table) {
	originalTableName := a.ExtraConfig.GetTableName(t.Name, true)
	cols := t.Columns
	concurrency.Run(ctx, a.concurrency(), len(cols), func(ctx context.Context, i int) error {
		c := cols[i]
		columnName := a.ExtraConfig.GetColumnName(originalTableName, c.Original, false)
		rhs, err := a.defaultClause(c)
		if err != nil {
			a.errf("pgbridge: resolving default for %s.%s failed: %v", t.Name, columnName, err)
			a.report(t.Name, "default", false)
			return nil
		}
		sql := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s;`, t.QuotedName(a.Schema), utils.QuoteIdent(columnName), rhs)
		execErr := a.exec(ctx, sql)
		a.report(t.Name, "default", execErr == nil)
		if execErr != nil {
			a.errf("pgbridge: setting default on %s.%s failed: %v", t.Name, columnName, execErr)
		} else {
			a.logf("pgbridge: set default for %q.%q", t.Name, columnName)
		}
		return nil
	})
}

func (a *Applier) autoIncrementColumn(t *table.Table) (table.Column, bool) {
	for _, c := range t.Columns {
		if c.IsAutoIncrement() {
			return c, true
		}
	}
	return table.Column{}, false
}

// createSequence creates the auto-increment column's sequence, points
// the column's default at NEXTVAL, binds ownership, then advances it to
// the table's current MAX. Each sub-statement aborts the remaining ones
// on failure.
func (a *Applier) createSequence(ctx context.Context, t *table.Table) {
	col, ok := a.autoIncrementColumn(t)
	if !ok {
		return
	}
	originalTableName := a.ExtraConfig.GetTableName(t.Name, true)
	columnName := a.ExtraConfig.GetColumnName(originalTableName, col.Original, false)
	seqName := fmt.Sprintf("%s_%s_seq", t.Name, columnName)
	quotedSeq := utils.QuoteIdent(a.Schema) + "." + utils.QuoteIdent(seqName)

	if err := a.exec(ctx, fmt.Sprintf(`CREATE SEQUENCE %s;`, quotedSeq)); err != nil {
		a.report(t.Name, "sequence", false)
		a.errf("pgbridge: creating sequence %s failed: %v", quotedSeq, err)
		return
	}
	if err := a.exec(ctx, fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s SET DEFAULT NEXTVAL('%s.%s');`, t.QuotedName(a.Schema), utils.QuoteIdent(columnName), a.Schema, seqName)); err != nil {
		a.report(t.Name, "sequence", false)
		a.errf("pgbridge: setting NEXTVAL default on %s failed: %v", t.Name, err)
		return
	}
	if err := a.exec(ctx, fmt.Sprintf(`ALTER SEQUENCE %s OWNED BY %s.%s;`, quotedSeq, t.QuotedName(a.Schema), utils.QuoteIdent(columnName))); err != nil {
		a.report(t.Name, "sequence", false)
		a.errf("pgbridge: binding sequence ownership on %s failed: %v", t.Name, err)
		return
	}
	err := a.exec(ctx, fmt.Sprintf(`SELECT SETVAL('%s', (SELECT MAX(%s) FROM %s));`, quotedSeq, utils.QuoteIdent(columnName), t.QuotedName(a.Schema)))
	a.report(t.Name, "sequence", err == nil)
	if err != nil {
		a.errf("pgbridge: setting sequence value on %s failed: %v", quotedSeq, err)
		return
	}
	a.logf("pgbridge: sequence %s is created", quotedSeq)
}

// setSequenceValue is the data-only-mode path: only advance an
// already-existing sequence to the table's current MAX.
func (a *Applier) setSequenceValue(ctx context.Context, t *table.Table) {
	col, ok := a.autoIncrementColumn(t)
	if !ok {
		return
	}
	originalTableName := a.ExtraConfig.GetTableName(t.Name, true)
	columnName := a.ExtraConfig.GetColumnName(originalTableName, col.Original, false)
	seqName := fmt.Sprintf("%s_%s_seq", t.Name, columnName)
	quotedSeq := utils.QuoteIdent(a.Schema) + "." + utils.QuoteIdent(seqName)
	err := a.exec(ctx, fmt.Sprintf(`SELECT SETVAL('%s', (SELECT MAX(%s) FROM %s));`, quotedSeq, utils.QuoteIdent(columnName), t.QuotedName(a.Schema)))
	a.report(t.Name, "sequence", err == nil)
	if err != nil {
		a.errf("pgbridge: advancing sequence %s failed: %v", quotedSeq, err)
	}
}

// indexGroup accumulates the per-key_name rows from SHOW INDEX before
// emission, since a composite index's columns arrive as separate rows.
type indexGroup struct {
	isUnique  bool
	columns   []string
	indexType string
}

func (a *Applier) indexType(mysqlType string) string {
	if v, ok := a.IndexTypes[mysqlType]; ok {
		return v
	}
	return "BTREE"
}

// createIndexes groups SHOW INDEX rows by Key_name and emits one
// PRIMARY KEY or CREATE [UNIQUE] INDEX statement per group.
func (a *Applier) createIndexes(ctx context.Context, t *table.Table) {
	originalTableName := a.ExtraConfig.GetTableName(t.Name, true)
	rows, err := a.Pools.Query(ctx, dbconn.QueryOptions{Tag: "show_index", Vendor: dbconn.VendorMySQL, CoerceProgrammingErrors: true},
		fmt.Sprintf("SHOW INDEX FROM `%s`", originalTableName))
	if err != nil {
		a.errf("pgbridge: SHOW INDEX on %s failed: %v", originalTableName, err)
		return
	}

	order := make([]string, 0)
	groups := make(map[string]*indexGroup)
	for _, r := range rows {
		keyName := fmt.Sprintf("%v", r["Key_name"])
		columnName := a.ExtraConfig.GetColumnName(originalTableName, fmt.Sprintf("%v", r["Column_name"]), false)
		g, ok := groups[keyName]
		if !ok {
			g = &indexGroup{
				isUnique:  isFalsyNonUnique(r["Non_unique"]),
				indexType: a.indexType(fmt.Sprintf("%v", r["Index_type"])),
			}
			groups[keyName] = g
			order = append(order, keyName)
		}
		g.columns = append(g.columns, columnName)
	}

	concurrency.Run(ctx, a.concurrency(), len(order), func(ctx context.Context, i int) error {
		keyName := order[i]
		g := groups[keyName]
		quotedCols := make([]string, len(g.columns))
		for j, c := range g.columns {
			quotedCols[j] = utils.QuoteIdent(c)
		}
		var sql string
		if strings.EqualFold(keyName, "primary") {
			sql = fmt.Sprintf(`ALTER TABLE %s ADD PRIMARY KEY(%s);`, t.QuotedName(a.Schema), strings.Join(quotedCols, ","))
		} else {
			unique := ""
			if g.isUnique {
				unique = "UNIQUE "
			}
			idxName := fmt.Sprintf("%s_%s_%s%d_idx", a.Schema, t.Name, g.columns[0], i)
			sql = fmt.Sprintf(`CREATE %sINDEX %s ON %s USING %s (%s);`, unique, utils.QuoteIdent(idxName), t.QuotedName(a.Schema), g.indexType, strings.Join(quotedCols, ","))
		}
		err := a.exec(ctx, sql)
		a.report(t.Name, "index", err == nil)
		if err != nil {
			a.errf("pgbridge: creating index %q on %s failed: %v", keyName, t.Name, err)
		}
		return nil
	})
	a.logf("pgbridge: %q.%q: PK/indices are set", a.Schema, t.Name)
}

// isFalsyNonUnique reports whether SHOW INDEX's Non_unique column equals 0,
// i.e. the index is in fact unique.
func isFalsyNonUnique(v any) bool {
	switch n := v.(type) {
	case int64:
		return n == 0
	case int32:
		return n == 0
	case int:
		return n == 0
	case string:
		return n == "0"
	default:
		return false
	}
}

// processComments emits the table comment, then per-column comments for
// every column with nonempty Comment.
func (a *Applier) processComments(ctx context.Context, t *table.Table) {
	if t.Comment != "" {
		sql := fmt.Sprintf(`COMMENT ON TABLE %s IS %s;`, t.QuotedName(a.Schema), utils.QuoteLiteral(t.Comment))
		err := a.exec(ctx, sql)
		a.report(t.Name, "comment", err == nil)
		if err != nil {
			a.errf("pgbridge: setting table comment on %s failed: %v", t.Name, err)
		}
	}

	originalTableName := a.ExtraConfig.GetTableName(t.Name, true)
	var cols []table.Column
	for _, c := range t.Columns {
		if c.Comment != "" {
			cols = append(cols, c)
		}
	}
	concurrency.Run(ctx, a.concurrency(), len(cols), func(ctx context.Context, i int) error {
		c := cols[i]
		columnName := a.ExtraConfig.GetColumnName(originalTableName, c.Original, false)
		sql := fmt.Sprintf(`COMMENT ON COLUMN %s.%s IS %s;`, t.QuotedName(a.Schema), utils.QuoteIdent(columnName), utils.QuoteLiteral(c.Comment))
		err := a.exec(ctx, sql)
		a.report(t.Name, "comment", err == nil)
		if err != nil {
			a.errf("pgbridge: setting column comment on %s.%s failed: %v", t.Name, columnName, err)
		}
		return nil
	})
}
