package dbconn

import (
	"context"
	"database/sql"
	"fmt"
)

// SourceCursor is the unbuffered streaming cursor backing the data
// loader: one dedicated MySQL connection holds open a single *sql.Rows
// for the lifetime of one table's load, and the reader goroutine pulls
// fixed-size batches off it rather than buffering the whole result set.
type SourceCursor struct {
	conn    *DedicatedConn
	rows    *sql.Rows
	columns []string
}

// OpenCursor runs selectSQL (a projection whose every column is already
// rendered as COPY-safe text) on conn and returns a cursor over it.
// conn must be a dedicated MySQL connection: the cursor holds rows open
// across many FetchMany calls, so it cannot share a pool-managed connection
// with any other concurrent query.
func OpenCursor(ctx context.Context, conn *DedicatedConn, selectSQL string) (*SourceCursor, error) {
	if conn.Vendor() != VendorMySQL {
		return nil, fmt.Errorf("dbconn: source cursor requires a mysql connection")
	}
	rows, err := conn.mysqlConn.QueryContext(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("opening source cursor: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &SourceCursor{conn: conn, rows: rows, columns: cols}, nil
}

// FetchMany reads up to n rows, each already rendered as COPY-safe text
// tokens by the projection. It returns fewer than n rows (possibly
// zero) only once the source is exhausted; every later call returns
// zero rows.
func (c *SourceCursor) FetchMany(n int) ([][]sql.NullString, error) {
	batch := make([][]sql.NullString, 0, n)
	for len(batch) < n {
		if !c.rows.Next() {
			return batch, c.rows.Err()
		}
		vals := make([]sql.NullString, len(c.columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			return batch, err
		}
		batch = append(batch, vals)
	}
	return batch, nil
}

// Columns returns the projected column names, in SELECT order.
func (c *SourceCursor) Columns() []string {
	return c.columns
}

// Close releases the underlying *sql.Rows. It does not release the
// dedicated connection; callers own that connection's lifecycle.
func (c *SourceCursor) Close() error {
	return c.rows.Close()
}
