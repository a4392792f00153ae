package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuotedList(t *testing.T) {
	assert.Equal(t, `"a","b"`, quotedList([]string{"a", "b"}))
	assert.Equal(t, "", quotedList(nil))
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "b"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
	assert.False(t, contains(nil, "c"))
}

func TestToUint64(t *testing.T) {
	assert.Equal(t, uint64(5), toUint64(int64(5)))
	assert.Equal(t, uint64(5), toUint64(uint64(5)))
	assert.Equal(t, uint64(5), toUint64(float64(5)))
	assert.Equal(t, uint64(5), toUint64("5"))
	assert.Equal(t, uint64(0), toUint64(nil))
}
