package constraint

import (
	"context"
	"fmt"

	"github.com/pgbridge/pgbridge/pkg/concurrency"
	"github.com/pgbridge/pgbridge/pkg/dbconn"
	"github.com/pgbridge/pgbridge/pkg/utils"
)

// DecodeBinaryData is the binary-data fixup that runs after all data is
// loaded: every bytea or geometry column on the target got its values
// written as a hex-escaped text string during COPY (the projection
// renders binary columns through HEX), so each such column needs a
// round trip through PostgreSQL's own ENCODE/DECODE to turn that text
// back into real binary storage. It runs unconditionally on every
// invocation, with no state-logs flag of its own, and any single
// column's failure does not abort the others.
func (a *Applier) DecodeBinaryData(ctx context.Context) error {
	rows, err := a.Pools.Query(ctx, dbconn.QueryOptions{Tag: "decode_binary_data", Vendor: dbconn.VendorPG, CoerceProgrammingErrors: true}, fmt.Sprintf(
		`SELECT table_name, column_name FROM information_schema.columns `+
			`WHERE table_schema = '%s' AND data_type IN ('bytea', 'geometry')`,
		a.Schema,
	))
	if err != nil || len(rows) == 0 {
		return nil
	}

	concurrency.Run(ctx, a.concurrency(), len(rows), func(ctx context.Context, i int) error {
		tableName, _ := rows[i]["table_name"].(string)
		columnName, _ := rows[i]["column_name"].(string)
		sql := fmt.Sprintf(
			`UPDATE %s.%s SET %s = DECODE(ENCODE(%s, 'escape'), 'hex');`,
			utils.QuoteIdent(a.Schema), utils.QuoteIdent(tableName), utils.QuoteIdent(columnName), utils.QuoteIdent(columnName),
		)
		if err := a.exec(ctx, sql); err != nil {
			a.errf("pgbridge: decoding binary data for %s.%s failed: %v", tableName, columnName, err)
			return nil
		}
		a.logf("pgbridge: decoded binary data for %q.%q", tableName, columnName)
		return nil
	})
	return nil
}
