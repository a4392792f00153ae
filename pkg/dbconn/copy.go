package dbconn

import (
	"context"
	"fmt"
	"io"

	"github.com/pgbridge/pgbridge/pkg/utils"
)

// CopyIn streams r into target via PostgreSQL's COPY ... FROM STDIN, text
// format, tab-delimited, matching the wire format the batch encoder in
// pkg/loader produces: one line per row, columns joined by tab,
// SQL NULL spelled `\N`, decoded according to charset (the operator's
// configured target connection charset, e.g. "UTF8"). conn must be a
// dedicated PostgreSQL connection so the writer goroutine owns it for the
// whole streaming call.
func CopyIn(ctx context.Context, conn *DedicatedConn, qualifiedTable string, columns []string, charset string, r io.Reader) (int64, error) {
	if conn.Vendor() != VendorPG {
		return 0, fmt.Errorf("dbconn: CopyIn requires a postgres connection")
	}
	copySQL := fmt.Sprintf(
		"COPY %s (%s) FROM STDIN WITH (FORMAT text, DELIMITER E'\\t', NULL '\\N', ENCODING '%s')",
		qualifiedTable, joinIdents(columns), charset,
	)
	tag, err := conn.pgConn.Conn().PgConn().CopyFrom(ctx, r, copySQL)
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", qualifiedTable, err)
	}
	return tag.RowsAffected(), nil
}

func joinIdents(columns []string) string {
	out := ""
	for i, c := range columns {
		if i > 0 {
			out += ", "
		}
		out += utils.QuoteIdent(c)
	}
	return out
}

// SetReplicationRole toggles session_replication_role on the exact
// dedicated connection passed in, never on a pool-assigned one: the
// setting is session-scoped in PostgreSQL, so it must be bound
// structurally to the same connection the COPY runs on or it silently
// no-ops against a different backend.
func SetReplicationRole(ctx context.Context, conn *DedicatedConn, role string) error {
	if conn.Vendor() != VendorPG {
		return fmt.Errorf("dbconn: SetReplicationRole requires a postgres connection")
	}
	_, err := conn.pgConn.Exec(ctx, fmt.Sprintf("SET session_replication_role = %s", role))
	return err
}
