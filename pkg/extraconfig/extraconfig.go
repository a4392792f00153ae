// Package extraconfig answers rename lookups between logical (target)
// and original (source) table/column names, plus operator-supplied
// extra foreign keys absent from the source schema. The column name
// lookup is asymmetric by design (see GetColumnName); nothing in this
// codebase depends on symmetry.
package extraconfig

import (
	"strings"

	"github.com/pgbridge/pgbridge/pkg/config"
)

// Resolver answers rename lookups over one loaded extra_config.json.
type Resolver struct {
	cfg *config.ExtraConfig
}

// New wraps cfg. A nil cfg behaves as an empty one: every lookup is
// passthrough.
func New(cfg *config.ExtraConfig) *Resolver {
	if cfg == nil {
		cfg = &config.ExtraConfig{}
	}
	return &Resolver{cfg: cfg}
}

// GetColumnName translates a column name: the table is always looked up by
// its original (source) name, and the column within it is always matched
// against its original name. wantOriginal selects which side of the pair is
// returned. Missing entries are passthrough.
func (r *Resolver) GetColumnName(originalTableName, currentColumnName string, wantOriginal bool) string {
	for _, t := range r.cfg.Tables {
		if t.OriginalTableName != originalTableName {
			continue
		}
		for _, c := range t.Columns {
			if c.OriginalColumnName == currentColumnName {
				if wantOriginal {
					return c.OriginalColumnName
				}
				return c.NewColumnName
			}
		}
	}
	return currentColumnName
}

// GetTableName translates between a table's logical and original names.
// Which name currentTableName is matched against depends on
// wantOriginal: when true, the search key is the table's *new* name and
// the original name is returned; when false, the reverse.
func (r *Resolver) GetTableName(currentTableName string, wantOriginal bool) string {
	for _, t := range r.cfg.Tables {
		var key string
		if wantOriginal {
			key = t.NewTableName
		} else {
			key = t.OriginalTableName
		}
		if key == currentTableName {
			if wantOriginal {
				return t.OriginalTableName
			}
			return t.NewTableName
		}
	}
	return currentTableName
}

// ForeignKey is one operator-supplied FK record, its rules uppercased to
// match what information_schema reports for discovered constraints.
type ForeignKey struct {
	TableName            string
	ColumnName           string
	ReferencedTableName  string
	ReferencedColumnName string
	ConstraintName       string
	UpdateRule           string
	DeleteRule           string
}

// ParseForeignKeys returns every extra FK defined for tableName.
func (r *Resolver) ParseForeignKeys(tableName string) []ForeignKey {
	var out []ForeignKey
	for _, fk := range r.cfg.ForeignKeys {
		if fk.TableName != tableName {
			continue
		}
		out = append(out, ForeignKey{
			TableName:            fk.TableName,
			ColumnName:           fk.ColumnName,
			ReferencedTableName:  fk.ReferencedTableName,
			ReferencedColumnName: fk.ReferencedColumnName,
			ConstraintName:       fk.ConstraintName,
			UpdateRule:           strings.ToUpper(fk.UpdateRule),
			DeleteRule:           strings.ToUpper(fk.DeleteRule),
		})
	}
	return out
}
