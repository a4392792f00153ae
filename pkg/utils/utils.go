// Package utils holds the PostgreSQL quoting helpers shared by every
// package that assembles SQL text for the target side: pkg/constraint,
// pkg/structure, pkg/fkview, pkg/table, pkg/state, pkg/migration. Centralized
// here so identifier and literal quoting follow Postgres's doubling rule
// consistently, rather than each call site hand-rolling `fmt.Sprintf("%q",
// ...)` — which is Go string-literal quoting (backslash escapes), not valid
// Postgres identifier quoting.
package utils

import "strings"

// QuoteIdent double-quotes a PostgreSQL identifier, doubling any embedded
// double quote per the SQL standard's quoting rule.
func QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QuoteLiteral single-quotes a PostgreSQL string literal, doubling any
// embedded single quote.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
