// Package types translates MySQL column type strings, as reported by
// SHOW FULL COLUMNS, into their PostgreSQL equivalents. The mapping
// itself is data: the operator-supplied data_types_map.json names the
// target type per MySQL base type, plus a widened variant for unsigned
// and zerofill columns. enum/set, decimal display widths, and
// zero-length character types get special handling here.
package types

import (
	"fmt"
	"strings"

	"github.com/pgbridge/pgbridge/pkg/config"
)

// Map converts a MySQL column type string, e.g. "int(10) unsigned
// zerofill" or "enum('a','b')", to its PostgreSQL equivalent using m.
func Map(m config.TypeMap, mysqlType string) (string, error) {
	fields := strings.Fields(mysqlType)
	if len(fields) == 0 {
		return "", fmt.Errorf("types: empty mysql type")
	}
	base := strings.ToLower(fields[0])
	increaseSize := containsToken(fields, "unsigned") || containsToken(fields, "zerofill")

	var out string
	if !strings.Contains(base, "(") {
		entry, ok := m[base]
		if !ok {
			return "", fmt.Errorf("types: no mapping for mysql type %q", base)
		}
		out = pick(entry, increaseSize)
	} else {
		parts := strings.SplitN(base, "(", 2)
		baseName := strings.ToLower(parts[0])
		displayWidth := parts[1] // retains the trailing ')'

		switch {
		case baseName == "enum" || baseName == "set":
			out = "character varying(255)"
		case baseName == "decimal" || baseName == "numeric":
			entry, ok := m[baseName]
			if !ok {
				return "", fmt.Errorf("types: no mapping for mysql type %q", baseName)
			}
			if base == "decimal(19,2)" {
				out = pick(entry, increaseSize)
			} else {
				out = entry.Type + "(" + displayWidth
			}
		default:
			entry, ok := m[baseName]
			if !ok {
				return "", fmt.Errorf("types: no mapping for mysql type %q", baseName)
			}
			if entry.MySqlVarLenPgSqlFixedLen {
				out = pick(entry, increaseSize)
			} else if increaseSize {
				out = entry.IncreasedSize + "(" + displayWidth
			} else {
				out = entry.Type + "(" + displayWidth
			}
		}
	}

	switch out {
	case "character(0)":
		out = "character(1)"
	case "character varying(0)":
		out = "character varying(1)"
	}
	return out, nil
}

func pick(entry config.TypeMapEntry, increaseSize bool) string {
	if increaseSize {
		return entry.IncreasedSize
	}
	return entry.Type
}

func containsToken(fields []string, token string) bool {
	for _, f := range fields {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}
