package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNamesAreDeterministic(t *testing.T) {
	m := New(nil, nil, "shop", "shop_prod")
	assert.Equal(t, `"shop"."state_logs_shopshop_prod"`, m.StateLogsTable())
	assert.Equal(t, `"shop"."data_pool_shopshop_prod"`, m.DataPoolTable())
}

func TestToBool(t *testing.T) {
	assert.True(t, toBool(true))
	assert.False(t, toBool(false))
	assert.False(t, toBool(nil))
	assert.False(t, toBool("true"))
}

func TestToInt64(t *testing.T) {
	assert.Equal(t, int64(5), toInt64(int64(5)))
	assert.Equal(t, int64(5), toInt64(int32(5)))
	assert.Equal(t, int64(5), toInt64(5))
	assert.Equal(t, int64(5), toInt64("5"))
	assert.Equal(t, int64(0), toInt64(nil))
}

func TestPoolItemIDZeroBeforeReadBack(t *testing.T) {
	item := PoolItem{TableName: "users", Projection: "`id` AS `id`", RowCount: 10}
	assert.Equal(t, int64(0), item.ID)
}
