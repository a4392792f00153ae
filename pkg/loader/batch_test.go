package loader

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ns(s string, valid bool) sql.NullString {
	return sql.NullString{String: s, Valid: valid}
}

func TestEncodeBatchSingleRow(t *testing.T) {
	rows := [][]sql.NullString{{ns("1", true), ns("alice", true)}}
	assert.Equal(t, "1\talice", string(EncodeBatch(rows)))
}

func TestEncodeBatchNullField(t *testing.T) {
	rows := [][]sql.NullString{{ns("1", true), ns("", false)}}
	assert.Equal(t, "1\t\\N", string(EncodeBatch(rows)))
}

func TestEncodeBatchMultipleRows(t *testing.T) {
	rows := [][]sql.NullString{
		{ns("1", true)},
		{ns("2", true)},
	}
	assert.Equal(t, "1\n2", string(EncodeBatch(rows)))
}

func TestEncodeBatchEmpty(t *testing.T) {
	assert.Equal(t, "", string(EncodeBatch(nil)))
}
