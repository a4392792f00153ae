package loader

import (
	"bytes"
	"database/sql"
)

// EncodeBatch renders one fetched batch as a COPY text-format stream:
// rows joined by newline, fields joined by tab, SQL NULL spelled `\N`.
// The projection already emitted COPY-safe tokens, so no further
// escaping happens here.
func EncodeBatch(rows [][]sql.NullString) []byte {
	var buf bytes.Buffer
	for i, row := range rows {
		if i > 0 {
			buf.WriteByte('\n')
		}
		for j, f := range row {
			if j > 0 {
				buf.WriteByte('\t')
			}
			if f.Valid {
				buf.WriteString(f.String)
			} else {
				buf.WriteString(`\N`)
			}
		}
	}
	return buf.Bytes()
}
