package constraint

import (
	"testing"

	"github.com/pgbridge/pgbridge/pkg/config"
	"github.com/pgbridge/pgbridge/pkg/table"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func sampleTypeMap() config.TypeMap {
	return config.TypeMap{
		"int":     {Type: "integer", IncreasedSize: "bigint"},
		"varchar": {Type: "character varying"},
		"bit":     {Type: "bit"},
		"blob":    {Type: "bytea"},
		"decimal": {Type: "numeric"},
	}
}

func TestEnumValuesBalancesParens(t *testing.T) {
	values, ok := enumValues("enum('a','b','c')")
	assert.True(t, ok)
	assert.Equal(t, "'a','b','c'", values)
	assert.NotEqual(t, byte(')'), values[len(values)-1])
}

func TestEnumValuesHandlesSet(t *testing.T) {
	values, ok := enumValues("set('x','y')")
	assert.True(t, ok)
	assert.Equal(t, "'x','y'", values)
}

func TestEnumValuesRejectsNonEnum(t *testing.T) {
	_, ok := enumValues("varchar(255)")
	assert.False(t, ok)
}

func TestBaseTypeName(t *testing.T) {
	assert.Equal(t, "numeric", baseTypeName("numeric(10,2)"))
	assert.Equal(t, "integer", baseTypeName("integer"))
}

func TestDefaultClauseReservedToken(t *testing.T) {
	a := &Applier{TypeMap: sampleTypeMap()}
	col := table.Column{SourceType: "timestamp", Default: strPtr("CURRENT_TIMESTAMP")}
	rhs, err := a.defaultClause(col)
	assert.NoError(t, err)
	assert.Equal(t, "CURRENT_TIMESTAMP", rhs)
}

func TestDefaultClauseZeroDateSentinel(t *testing.T) {
	a := &Applier{TypeMap: sampleTypeMap()}
	col := table.Column{SourceType: "date", Default: strPtr("0000-00-00")}
	rhs, err := a.defaultClause(col)
	assert.NoError(t, err)
	assert.Equal(t, "'-INFINITY'", rhs)
}

func TestDefaultClauseNilIsNull(t *testing.T) {
	a := &Applier{TypeMap: sampleTypeMap()}
	col := table.Column{SourceType: "int"}
	rhs, err := a.defaultClause(col)
	assert.NoError(t, err)
	assert.Equal(t, "NULL", rhs)
}

func TestDefaultClauseNumericUnquoted(t *testing.T) {
	a := &Applier{TypeMap: sampleTypeMap()}
	col := table.Column{SourceType: "int", Default: strPtr("42")}
	rhs, err := a.defaultClause(col)
	assert.NoError(t, err)
	assert.Equal(t, "42", rhs)
}

func TestDefaultClauseStringQuoted(t *testing.T) {
	a := &Applier{TypeMap: sampleTypeMap()}
	col := table.Column{SourceType: "varchar(10)", Default: strPtr("abc")}
	rhs, err := a.defaultClause(col)
	assert.NoError(t, err)
	assert.Equal(t, "'abc'", rhs)
}

func TestDefaultClauseBlobBecomesByteaLiteral(t *testing.T) {
	a := &Applier{TypeMap: sampleTypeMap()}
	col := table.Column{SourceType: "blob", Default: strPtr("DEAD")}
	rhs, err := a.defaultClause(col)
	assert.NoError(t, err)
	assert.Equal(t, `'\xDEAD'`, rhs)
}

func TestIndexTypeFallsBackToBtree(t *testing.T) {
	a := &Applier{IndexTypes: config.IndexTypeMap{"FULLTEXT": "GIN"}}
	assert.Equal(t, "GIN", a.indexType("FULLTEXT"))
	assert.Equal(t, "BTREE", a.indexType("BTREE"))
	assert.Equal(t, "BTREE", a.indexType("UNKNOWN"))
}

func TestIsFalsyNonUnique(t *testing.T) {
	assert.True(t, isFalsyNonUnique(int64(0)))
	assert.False(t, isFalsyNonUnique(int64(1)))
	assert.True(t, isFalsyNonUnique("0"))
	assert.False(t, isFalsyNonUnique("1"))
}
