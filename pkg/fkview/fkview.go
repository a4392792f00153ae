// Package fkview runs the two cross-table steps that only make sense
// once every table's data and per-table constraints are in place:
// foreign-key creation and best-effort view translation.
package fkview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pgbridge/pgbridge/pkg/concurrency"
	"github.com/pgbridge/pgbridge/pkg/dbconn"
	"github.com/pgbridge/pgbridge/pkg/extraconfig"
	"github.com/pgbridge/pgbridge/pkg/logs"
	"github.com/pgbridge/pgbridge/pkg/utils"
	"github.com/siddontang/loggers"
)

const foreignKeysMetadataSQL = `
SELECT
    cols.COLUMN_NAME AS COLUMN_NAME,
    refs.REFERENCED_TABLE_NAME AS REFERENCED_TABLE_NAME,
    refs.REFERENCED_COLUMN_NAME AS REFERENCED_COLUMN_NAME,
    cRefs.UPDATE_RULE AS UPDATE_RULE,
    cRefs.DELETE_RULE AS DELETE_RULE,
    cRefs.CONSTRAINT_NAME AS CONSTRAINT_NAME
FROM INFORMATION_SCHEMA.COLUMNS AS cols
INNER JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE AS refs
    ON refs.TABLE_SCHEMA = cols.TABLE_SCHEMA
        AND refs.REFERENCED_TABLE_SCHEMA = cols.TABLE_SCHEMA
        AND refs.TABLE_NAME = cols.TABLE_NAME
        AND refs.COLUMN_NAME = cols.COLUMN_NAME
LEFT JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS AS cRefs
    ON cRefs.CONSTRAINT_SCHEMA = cols.TABLE_SCHEMA
        AND cRefs.CONSTRAINT_NAME = refs.CONSTRAINT_NAME
WHERE cols.TABLE_SCHEMA = '%s' AND cols.TABLE_NAME = '%s';
`

// Phase runs the Foreign-Key and View steps against one migration's tables.
type Phase struct {
	Pools       *dbconn.Pools
	ExtraConfig *extraconfig.Resolver
	Log         loggers.Advanced

	Schema   string
	SourceDB string
	LogsDir  string

	Concurrency int
}

func (p *Phase) concurrency() int {
	if p.Concurrency > 0 {
		return p.Concurrency
	}
	return 8
}

func (p *Phase) logf(format string, args ...any) {
	if p.Log != nil {
		p.Log.Infof(format, args...)
	}
}

func (p *Phase) errf(format string, args ...any) {
	if p.Log != nil {
		p.Log.Errorf(format, args...)
	}
}

type fkRow struct {
	ColumnName           string
	ReferencedTableName  string
	ReferencedColumnName string
	UpdateRule           string
	DeleteRule           string
	ConstraintName       string
}

type fkConstraint struct {
	columns             []string
	referencedColumns   []string
	referencedTableName string
	updateRule          string
	deleteRule          string
}

// SetForeignKeys runs the foreign-key step: per table, recover every
// (column, referenced table/column, rules, constraint name) tuple from the
// source's information_schema, merge in operator-supplied extras, group by
// constraint name (a composite key's columns arrive as separate rows), and
// emit one ALTER TABLE ... ADD FOREIGN KEY per group.
func (p *Phase) SetForeignKeys(ctx context.Context, tableNames []string) error {
	concurrency.Run(ctx, p.concurrency(), len(tableNames), func(ctx context.Context, i int) error {
		p.foreignKeysForTable(ctx, tableNames[i])
		return nil
	})
	return nil
}

func (p *Phase) foreignKeysForTable(ctx context.Context, tableName string) {
	originalTableName := p.ExtraConfig.GetTableName(tableName, true)
	sql := fmt.Sprintf(foreignKeysMetadataSQL, p.SourceDB, originalTableName)
	rows, err := p.Pools.Query(ctx, dbconn.QueryOptions{Tag: "foreign_keys_metadata", Vendor: dbconn.VendorMySQL, CoerceProgrammingErrors: true}, sql)
	if err != nil {
		p.errf("pgbridge: fetching foreign keys for %q failed: %v", tableName, err)
		return
	}

	fkRows := make([]fkRow, 0, len(rows))
	for _, r := range rows {
		fkRows = append(fkRows, fkRow{
			ColumnName:           fmt.Sprintf("%v", r["COLUMN_NAME"]),
			ReferencedTableName:  fmt.Sprintf("%v", r["REFERENCED_TABLE_NAME"]),
			ReferencedColumnName: fmt.Sprintf("%v", r["REFERENCED_COLUMN_NAME"]),
			UpdateRule:           fmt.Sprintf("%v", r["UPDATE_RULE"]),
			DeleteRule:           fmt.Sprintf("%v", r["DELETE_RULE"]),
			ConstraintName:       fmt.Sprintf("%v", r["CONSTRAINT_NAME"]),
		})
	}
	for _, extra := range p.ExtraConfig.ParseForeignKeys(tableName) {
		fkRows = append(fkRows, fkRow{
			ColumnName:           extra.ColumnName,
			ReferencedTableName:  extra.ReferencedTableName,
			ReferencedColumnName: extra.ReferencedColumnName,
			UpdateRule:           extra.UpdateRule,
			DeleteRule:           extra.DeleteRule,
			ConstraintName:       extra.ConstraintName,
		})
	}
	if len(fkRows) == 0 {
		return
	}

	p.setForeignKeysForTable(ctx, tableName, fkRows)
}

func (p *Phase) setForeignKeysForTable(ctx context.Context, tableName string, rows []fkRow) {
	originalTableName := p.ExtraConfig.GetTableName(tableName, true)
	order := make([]string, 0)
	constraints := make(map[string]*fkConstraint)

	for _, row := range rows {
		columnName := p.ExtraConfig.GetColumnName(originalTableName, row.ColumnName, false)
		referencedTableName := p.ExtraConfig.GetTableName(row.ReferencedTableName, false)
		originalReferencedTableName := p.ExtraConfig.GetTableName(row.ReferencedTableName, true)
		referencedColumnName := p.ExtraConfig.GetColumnName(originalReferencedTableName, row.ReferencedColumnName, false)

		c, ok := constraints[row.ConstraintName]
		if !ok {
			c = &fkConstraint{
				referencedTableName: referencedTableName,
				updateRule:          row.UpdateRule,
				deleteRule:          row.DeleteRule,
			}
			constraints[row.ConstraintName] = c
			order = append(order, row.ConstraintName)
		}
		c.columns = append(c.columns, columnName)
		c.referencedColumns = append(c.referencedColumns, referencedColumnName)
	}

	concurrency.Run(ctx, p.concurrency(), len(order), func(ctx context.Context, i int) error {
		name := order[i]
		c := constraints[name]
		cols := quoteAll(c.columns)
		refCols := quoteAll(c.referencedColumns)
		sql := fmt.Sprintf(`ALTER TABLE %s.%s ADD FOREIGN KEY (%s) REFERENCES %s.%s(%s) ON UPDATE %s ON DELETE %s;`,
			utils.QuoteIdent(p.Schema), utils.QuoteIdent(tableName), strings.Join(cols, ","),
			utils.QuoteIdent(p.Schema), utils.QuoteIdent(c.referencedTableName), strings.Join(refCols, ","), c.updateRule, c.deleteRule)

		_, err := p.Pools.Query(ctx, dbconn.QueryOptions{Tag: "set_foreign_key", Vendor: dbconn.VendorPG}, sql)
		if err != nil {
			p.errf("pgbridge: adding foreign key %q on %q failed: %v", name, tableName, err)
		}
		return nil
	})
}

func quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = utils.QuoteIdent(n)
	}
	return out
}

// GenerateViews translates each source view's SHOW CREATE VIEW output
// per the four textual rewrite rules and applies it; a view that fails
// to apply has its translated SQL written verbatim to
// {logsDir}/not_created_views/{view}.sql for human review.
func (p *Phase) GenerateViews(ctx context.Context, viewNames []string) error {
	concurrency.Run(ctx, p.concurrency(), len(viewNames), func(ctx context.Context, i int) error {
		p.generateOneView(ctx, viewNames[i])
		return nil
	})
	return nil
}

func (p *Phase) generateOneView(ctx context.Context, viewName string) {
	rows, err := p.Pools.Query(ctx, dbconn.QueryOptions{Tag: "show_create_view", Vendor: dbconn.VendorMySQL, CoerceProgrammingErrors: true},
		fmt.Sprintf("SHOW CREATE VIEW `%s`", viewName))
	if err != nil || len(rows) == 0 {
		p.errf("pgbridge: SHOW CREATE VIEW %q failed: %v", viewName, err)
		return
	}
	mysqlViewCode, _ := rows[0]["Create View"].(string)
	sql := translateViewCode(p.Schema, viewName, mysqlViewCode)

	_, err = p.Pools.Query(ctx, dbconn.QueryOptions{Tag: "create_pg_view", Vendor: dbconn.VendorPG}, sql)
	if err != nil {
		p.writeNotCreatedView(viewName, sql)
		return
	}
	p.logf("pgbridge: view %q.%q is created", p.Schema, viewName)
}

func (p *Phase) writeNotCreatedView(viewName, sql string) {
	path := logs.NotCreatedViewPath(p.LogsDir, viewName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.errf("pgbridge: creating not_created_views dir failed: %v", err)
		return
	}
	if err := os.WriteFile(path, []byte(sql), 0o644); err != nil {
		p.errf("pgbridge: writing %s failed: %v", path, err)
	}
}

// translateViewCode rewrites MySQL view DDL into PostgreSQL form:
// backticks to double quotes, body sliced from the first AS, and every
// relation following FROM or JOIN schema-qualified.
func translateViewCode(schema, viewName, mysqlViewCode string) string {
	code := strings.ReplaceAll(mysqlViewCode, "`", `"`)
	if idx := strings.Index(code, "AS"); idx != -1 {
		code = code[idx:]
	}

	tokens := strings.Split(code, " ")
	for i, tok := range tokens {
		lower := strings.ToLower(tok)
		if (lower == "from" || lower == "join") && i+1 < len(tokens) {
			tokens[i+1] = utils.QuoteIdent(schema) + "." + tokens[i+1]
		}
	}

	return fmt.Sprintf(`CREATE OR REPLACE VIEW %s.%s %s;`, utils.QuoteIdent(schema), utils.QuoteIdent(viewName), strings.Join(tokens, " "))
}
