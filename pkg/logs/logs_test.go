package logs

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestErrorOnlyHookLevels(t *testing.T) {
	h := &errorOnlyHook{}
	levels := h.Levels()
	assert.Contains(t, levels, logrus.ErrorLevel)
	assert.Contains(t, levels, logrus.FatalLevel)
	assert.NotContains(t, levels, logrus.InfoLevel)
}

func TestNewSetsDebugLevel(t *testing.T) {
	dir := t.TempDir()
	logger := New(dir, true)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger = New(dir, false)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestForTableInheritsLevel(t *testing.T) {
	dir := t.TempDir()
	parent := New(dir, true)
	child := ForTable(parent, dir, "users")
	assert.Equal(t, parent.GetLevel(), child.GetLevel())
}

func TestNotCreatedViewPath(t *testing.T) {
	assert.Equal(t, filepath.Join("logs", "not_created_views", "v1.sql"), NotCreatedViewPath("logs", "v1"))
}
