package types

import (
	"testing"

	"github.com/pgbridge/pgbridge/pkg/config"
	"github.com/stretchr/testify/assert"
)

func sampleMap() config.TypeMap {
	return config.TypeMap{
		"int": {
			Type:          "integer",
			IncreasedSize: "bigint",
		},
		"varchar": {
			Type:          "character varying",
			IncreasedSize: "character varying",
		},
		"char": {
			Type:          "character",
			IncreasedSize: "character",
		},
		"decimal": {
			Type:          "numeric",
			IncreasedSize: "numeric",
		},
		"datetime": {
			Type:                     "timestamp without time zone",
			IncreasedSize:            "timestamp without time zone",
			MySqlVarLenPgSqlFixedLen: true,
		},
		"text": {
			Type:          "text",
			IncreasedSize: "text",
		},
	}
}

func TestMapSimpleType(t *testing.T) {
	out, err := Map(sampleMap(), "text")
	assert.NoError(t, err)
	assert.Equal(t, "text", out)
}

func TestMapUnsignedWidensType(t *testing.T) {
	out, err := Map(sampleMap(), "int unsigned")
	assert.NoError(t, err)
	assert.Equal(t, "bigint", out)
}

func TestMapZerofillWidensType(t *testing.T) {
	out, err := Map(sampleMap(), "int(10) zerofill")
	assert.NoError(t, err)
	assert.Equal(t, "bigint(10)", out)
}

func TestMapWithDisplayWidth(t *testing.T) {
	out, err := Map(sampleMap(), "varchar(64)")
	assert.NoError(t, err)
	assert.Equal(t, "character varying(64)", out)
}

func TestMapEnumBecomesVarchar255(t *testing.T) {
	out, err := Map(sampleMap(), "enum('a','b','c')")
	assert.NoError(t, err)
	assert.Equal(t, "character varying(255)", out)
}

func TestMapSetBecomesVarchar255(t *testing.T) {
	out, err := Map(sampleMap(), "set('x','y')")
	assert.NoError(t, err)
	assert.Equal(t, "character varying(255)", out)
}

func TestMapDecimalKeepsDisplayWidth(t *testing.T) {
	out, err := Map(sampleMap(), "decimal(10,2)")
	assert.NoError(t, err)
	assert.Equal(t, "numeric(10,2)", out)
}

func TestMapDecimal19_2IsLengthless(t *testing.T) {
	out, err := Map(sampleMap(), "decimal(19,2)")
	assert.NoError(t, err)
	assert.Equal(t, "numeric", out)
}

func TestMapVarLenFixedLenIsLengthless(t *testing.T) {
	out, err := Map(sampleMap(), "datetime(6)")
	assert.NoError(t, err)
	assert.Equal(t, "timestamp without time zone", out)
}

func TestMapZeroLengthCharIsFixedUp(t *testing.T) {
	out, err := Map(sampleMap(), "char(0)")
	assert.NoError(t, err)
	assert.Equal(t, "character(1)", out)
}

func TestMapZeroLengthVarcharIsFixedUp(t *testing.T) {
	out, err := Map(sampleMap(), "varchar(0)")
	assert.NoError(t, err)
	assert.Equal(t, "character varying(1)", out)
}

func TestMapUnknownTypeErrors(t *testing.T) {
	_, err := Map(sampleMap(), "geometry")
	assert.Error(t, err)
}
