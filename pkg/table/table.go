// Package table holds the in-memory records that describe a single
// migrated relation: its source-side columns and its target-side identity.
package table

import "github.com/pgbridge/pgbridge/pkg/utils"

// Column describes one column as reported by SHOW FULL COLUMNS on the
// source, plus the logical (target) name it was resolved to.
type Column struct {
	Name       string // logical (target) name
	Original   string // source-side name, as used in SHOW FULL COLUMNS
	SourceType string // raw MySQL type string, e.g. "enum('a','b')", "int(10) unsigned"
	Null       bool   // true if Null == "YES"
	Default    *string
	Extra      string // e.g. "auto_increment"
	Comment    string
}

// IsAutoIncrement reports whether the column is a MySQL AUTO_INCREMENT column.
func (c Column) IsAutoIncrement() bool {
	return c.Extra == "auto_increment"
}

// Table is one per source relation being migrated. It is created when
// structure load enumerates the source and augmented when the target
// table is created; it is never destroyed during a run.
type Table struct {
	Name     string // logical (target) name
	Original string // source-side name
	Columns  []Column
	Comment  string
	RowCount uint64

	// LogPath is this table's dedicated log destination, e.g. logs/users.log.
	LogPath string
}

// QuotedName renders the PostgreSQL-quoted "schema"."table" identifier.
func (t *Table) QuotedName(schema string) string {
	return utils.QuoteIdent(schema) + "." + utils.QuoteIdent(t.Name)
}

// ColumnNames returns the logical names of all columns, in source order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Registry is the in-memory set of tables discovered during structure
// load. It is treated as immutable once data load begins.
type Registry struct {
	tables []*Table
	byName map[string]*Table
}

// NewRegistry returns an empty table registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Table)}
}

// Add registers a table. It is a no-op if a table with the same logical
// name is already registered.
func (r *Registry) Add(t *Table) {
	if _, ok := r.byName[t.Name]; ok {
		return
	}
	r.tables = append(r.tables, t)
	r.byName[t.Name] = t
}

// Get returns the table with the given logical name, or nil.
func (r *Registry) Get(name string) *Table {
	return r.byName[name]
}

// All returns every registered table, in registration order.
func (r *Registry) All() []*Table {
	return r.tables
}

// Names returns the logical name of every registered table, in
// registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tables))
	for i, t := range r.tables {
		names[i] = t.Name
	}
	return names
}
