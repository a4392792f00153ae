package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoaderProcessesDefaultsWhenAbsent(t *testing.T) {
	c := &Config{}
	n, err := c.LoaderProcesses()
	assert.NoError(t, err)
	assert.Equal(t, defaultLoaderCap, n)
}

func TestLoaderProcessesDefaultSentinel(t *testing.T) {
	c := &Config{NumberOfSimultaneouslyRunningLoaderProcesses: json.RawMessage(`"DEFAULT"`)}
	n, err := c.LoaderProcesses()
	assert.NoError(t, err)
	assert.Equal(t, defaultLoaderCap, n)
}

func TestLoaderProcessesInt(t *testing.T) {
	c := &Config{NumberOfSimultaneouslyRunningLoaderProcesses: json.RawMessage(`8`)}
	n, err := c.LoaderProcesses()
	assert.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestLoaderProcessesRejectsOtherStrings(t *testing.T) {
	c := &Config{NumberOfSimultaneouslyRunningLoaderProcesses: json.RawMessage(`"MANY"`)}
	_, err := c.LoaderProcesses()
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	c := &Config{Source: Source{DBConfig: DBConfig{Database: "shop"}}}
	c.ApplyDefaults()
	assert.Equal(t, "shop", c.Schema)
	assert.Equal(t, defaultMaxPoolSize, c.MaxEachDBConnectionPoolSize)
	assert.Equal(t, "utf_8", c.Encoding)
	assert.Equal(t, ",", c.Delimiter)
	assert.Equal(t, "logs", c.LogsDir)
}

func TestApplyDefaultsKeepsExplicitSchema(t *testing.T) {
	c := &Config{Source: Source{DBConfig: DBConfig{Database: "shop"}}, Schema: "public"}
	c.ApplyDefaults()
	assert.Equal(t, "public", c.Schema)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := `{
		"source": {"host": "127.0.0.1", "port": 3306, "user": "root", "password": "pw", "database": "shop"},
		"target": {"host": "127.0.0.1", "port": 5432, "user": "pg", "password": "pw", "database": "shop"},
		"max_each_db_connection_pool_size": 10,
		"number_of_simultaneously_running_loader_processes": "DEFAULT"
	}`
	assert.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "shop", c.Schema)
	assert.Equal(t, 10, c.MaxEachDBConnectionPoolSize)
	n, err := c.LoaderProcesses()
	assert.NoError(t, err)
	assert.Equal(t, defaultLoaderCap, n)
}

func TestLoadRequiresHosts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	assert.NoError(t, os.WriteFile(path, []byte(`{"source": {}, "target": {}}`), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadExtraConfigMissingFileIsEmpty(t *testing.T) {
	ec, err := LoadExtraConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.NoError(t, err)
	assert.Empty(t, ec.Tables)
	assert.Empty(t, ec.ForeignKeys)
}

func TestLoadExtraConfigEmptyPathIsEmpty(t *testing.T) {
	ec, err := LoadExtraConfig("")
	assert.NoError(t, err)
	assert.Empty(t, ec.Tables)
}

func TestLoadIndexTypeMapMissingFileIsEmpty(t *testing.T) {
	m, err := LoadIndexTypeMap(filepath.Join(t.TempDir(), "nope.json"))
	assert.NoError(t, err)
	assert.Empty(t, m)
}

func TestLoadTypeMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data_types_map.json")
	doc := `{"int": {"type": "integer", "increased_size": "bigint", "mySqlVarLenPgSqlFixedLen": true}}`
	assert.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := LoadTypeMap(path)
	assert.NoError(t, err)
	assert.Equal(t, "integer", m["int"].Type)
	assert.Equal(t, "bigint", m["int"].IncreasedSize)
	assert.True(t, m["int"].MySqlVarLenPgSqlFixedLen)
}
