package project

import (
	"testing"

	"github.com/pgbridge/pgbridge/pkg/table"
	"github.com/stretchr/testify/assert"
)

func col(name, sourceType string) table.Column {
	return table.Column{Name: name, Original: name, SourceType: sourceType}
}

func TestProjectPlainColumns(t *testing.T) {
	out := Project([]table.Column{col("c1", "int"), col("c2", "varchar(64)")}, "8.0")
	assert.Equal(t, "`c1` AS `c1`,`c2` AS `c2`", out)
}

func TestProjectSpatialColumnModernMySQL(t *testing.T) {
	out := Project([]table.Column{col("geom", "geometry")}, "8.0")
	assert.Equal(t, "HEX(ST_AsWKB(`geom`)) AS `geom`", out)
}

func TestProjectSpatialColumnLegacyMySQL(t *testing.T) {
	out := Project([]table.Column{col("geom", "geometry")}, "5.6")
	assert.Equal(t, "HEX(AsWKB(`geom`)) AS `geom`", out)
}

func TestProjectSpatialColumnUnparseableVersionFallsBackToLegacy(t *testing.T) {
	out := Project([]table.Column{col("geom", "geometry")}, "")
	assert.Equal(t, "HEX(AsWKB(`geom`)) AS `geom`", out)
}

func TestProjectBinaryColumn(t *testing.T) {
	out := Project([]table.Column{col("data", "blob")}, "8.0")
	assert.Equal(t, "HEX(`data`) AS `data`", out)
}

func TestProjectBitColumn(t *testing.T) {
	out := Project([]table.Column{col("flags", "bit(8)")}, "8.0")
	assert.Equal(t, "BIN(`flags`) AS `flags`", out)
}

func TestProjectDateTimeColumn(t *testing.T) {
	out := Project([]table.Column{col("created_at", "datetime")}, "8.0")
	assert.Equal(t,
		"IF(`created_at` IN('0000-00-00', '0000-00-00 00:00:00'), '-INFINITY', CAST(`created_at` AS CHAR)) AS `created_at`",
		out,
	)
}

func TestIsNumericExcludesPoint(t *testing.T) {
	assert.False(t, IsNumeric("point"))
	assert.True(t, IsNumeric("bigint"))
	assert.True(t, IsNumeric("decimal(10,2)"))
}
