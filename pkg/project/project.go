// Package project builds the MySQL SELECT expression list for one table
// such that the stringified fetch already matches PostgreSQL
// COPY ... FORMAT text semantics: spatial and binary columns are
// hex-encoded, bit columns rendered as bit strings, and zero-dates
// replaced with the -INFINITY sentinel, all on the MySQL side.
package project

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pgbridge/pgbridge/pkg/table"
)

// spatialWKBVersionThreshold is the MySQL version at which ST_AsWKB replaces
// the older AsWKB function name, per
// https://bugs.mysql.com/bug.php?id=69798.
const spatialWKBVersionThreshold = 5.76

// Project renders the comma-separated SELECT expression list for cols, one
// COPY-safe text token per column. mysqlVersion is the source's probed
// "major.minor" version string; it selects between ST_AsWKB and AsWKB
// for spatial columns. The result is embedded verbatim in the Data Pool
// row and is opaque thereafter.
func Project(cols []table.Column, mysqlVersion string) string {
	wkbFunc := "AsWKB"
	if v, err := strconv.ParseFloat(mysqlVersion, 64); err == nil && v >= spatialWKBVersionThreshold {
		wkbFunc = "ST_AsWKB"
	}
	exprs := make([]string, len(cols))
	for i, c := range cols {
		exprs[i] = projectColumn(c, wkbFunc)
	}
	return strings.Join(exprs, ",")
}

func projectColumn(c table.Column, wkbFunc string) string {
	field := c.Original
	t := strings.ToLower(c.SourceType)

	switch {
	case isSpatial(t):
		return fmt.Sprintf("HEX(%s(`%s`)) AS `%s`", wkbFunc, field, field)
	case isBinary(t):
		return fmt.Sprintf("HEX(`%s`) AS `%s`", field, field)
	case isBit(t):
		return fmt.Sprintf("BIN(`%s`) AS `%s`", field, field)
	case isDateTime(t):
		return fmt.Sprintf(
			"IF(`%s` IN('0000-00-00', '0000-00-00 00:00:00'), '-INFINITY', CAST(`%s` AS CHAR)) AS `%s`",
			field, field, field,
		)
	default:
		return fmt.Sprintf("`%s` AS `%s`", field, field)
	}
}

func isSpatial(t string) bool {
	for _, s := range []string{"geometry", "point", "linestring", "polygon"} {
		if strings.Contains(t, s) {
			return true
		}
	}
	return false
}

func isBinary(t string) bool {
	return strings.Contains(t, "blob") || strings.Contains(t, "binary")
}

func isBit(t string) bool {
	return strings.Contains(t, "bit")
}

func isDateTime(t string) bool {
	return strings.Contains(t, "timestamp") || strings.Contains(t, "date")
}

// IsNumeric reports whether t is one of the MySQL numeric type classes.
func IsNumeric(t string) bool {
	t = strings.ToLower(t)
	if t == "point" {
		return false
	}
	for _, s := range []string{"decimal", "numeric", "double", "float", "int"} {
		if strings.Contains(t, s) {
			return true
		}
	}
	return false
}
