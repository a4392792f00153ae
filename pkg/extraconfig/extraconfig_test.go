package extraconfig

import (
	"testing"

	"github.com/pgbridge/pgbridge/pkg/config"
	"github.com/stretchr/testify/assert"
)

func sampleConfig() *config.ExtraConfig {
	return &config.ExtraConfig{
		Tables: []config.TableRename{
			{
				OriginalTableName: "tbl_users",
				NewTableName:      "users",
				Columns: []config.ColumnRename{
					{OriginalColumnName: "usr_id", NewColumnName: "id"},
				},
			},
		},
		ForeignKeys: []config.ExtraForeignKey{
			{TableName: "users", ColumnName: "id", ReferencedTableName: "accounts", ReferencedColumnName: "id", ConstraintName: "fk_users_accounts", UpdateRule: "cascade", DeleteRule: "restrict"},
		},
	}
}

func TestGetColumnNamePassthroughWhenMissing(t *testing.T) {
	r := New(sampleConfig())
	assert.Equal(t, "other", r.GetColumnName("tbl_users", "other", false))
}

func TestGetColumnNameResolved(t *testing.T) {
	r := New(sampleConfig())
	assert.Equal(t, "id", r.GetColumnName("tbl_users", "usr_id", false))
	assert.Equal(t, "usr_id", r.GetColumnName("tbl_users", "usr_id", true))
}

func TestGetTableNameResolved(t *testing.T) {
	r := New(sampleConfig())
	assert.Equal(t, "tbl_users", r.GetTableName("users", true))
	assert.Equal(t, "users", r.GetTableName("tbl_users", false))
}

func TestGetTableNamePassthrough(t *testing.T) {
	r := New(sampleConfig())
	assert.Equal(t, "unrelated", r.GetTableName("unrelated", true))
}

func TestParseForeignKeysUppercasesRules(t *testing.T) {
	r := New(sampleConfig())
	fks := r.ParseForeignKeys("users")
	assert.Len(t, fks, 1)
	assert.Equal(t, "CASCADE", fks[0].UpdateRule)
	assert.Equal(t, "RESTRICT", fks[0].DeleteRule)
}

func TestNilConfigIsPassthrough(t *testing.T) {
	r := New(nil)
	assert.Equal(t, "x", r.GetTableName("x", true))
	assert.Empty(t, r.ParseForeignKeys("x"))
}
