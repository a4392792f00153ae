// Package config loads the migration's external configuration files
// (config.json, extra_config.json, data_types_map.json, index_types_map.json).
// File discovery and CLI flag parsing belong to cmd/pgbridge; this package
// only owns the shapes and decoding of the JSON documents themselves.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DBConfig describes one side (source or target) of the migration.
type DBConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	Password   string `json:"password"`
	Database   string `json:"database"`
	Charset    string `json:"charset"`
	TLSMode    string `json:"tls_mode"`
	CACertPath string `json:"ca_cert_path"`
}

// Config is the top-level shape of config/config.json.
type Config struct {
	Source Source   `json:"source"`
	Target DBConfig `json:"target"`

	// Schema defaults to Source.Database when empty.
	Schema string `json:"schema"`

	IncludeTables []string `json:"include_tables"`
	ExcludeTables []string `json:"exclude_tables"`

	MaxEachDBConnectionPoolSize int `json:"max_each_db_connection_pool_size"`

	// NumberOfSimultaneouslyRunningLoaderProcesses accepts either an int or
	// the literal string "DEFAULT" in the JSON source, hence json.RawMessage.
	NumberOfSimultaneouslyRunningLoaderProcesses json.RawMessage `json:"number_of_simultaneously_running_loader_processes"`

	MigrateOnlyData     bool   `json:"migrate_only_data"`
	EnableExtraConfig   bool   `json:"enable_extra_config"`
	Encoding            string `json:"encoding"`
	Delimiter           string `json:"delimiter"`
	Debug               bool   `json:"debug"`
	RemoveTestResources bool   `json:"remove_test_resources"`
	LogsDir             string `json:"logs_dir"`
}

// Source is DBConfig plus nothing extra today, but kept distinct so that
// source-only fields can be added without disturbing DBConfig's use for
// the target.
type Source struct {
	DBConfig
}

const (
	defaultMaxPoolSize = 20
	defaultLoaderCap   = 4
)

// LoaderProcesses resolves number_of_simultaneously_running_loader_processes,
// honoring the "DEFAULT" sentinel string.
func (c *Config) LoaderProcesses() (int, error) {
	if len(c.NumberOfSimultaneouslyRunningLoaderProcesses) == 0 {
		return defaultLoaderCap, nil
	}
	var asString string
	if err := json.Unmarshal(c.NumberOfSimultaneouslyRunningLoaderProcesses, &asString); err == nil {
		if asString == "DEFAULT" {
			return defaultLoaderCap, nil
		}
		return 0, fmt.Errorf("invalid number_of_simultaneously_running_loader_processes: %q", asString)
	}
	var asInt int
	if err := json.Unmarshal(c.NumberOfSimultaneouslyRunningLoaderProcesses, &asInt); err == nil {
		return asInt, nil
	}
	return 0, fmt.Errorf("number_of_simultaneously_running_loader_processes must be an int or \"DEFAULT\"")
}

// ApplyDefaults fills in zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Schema == "" {
		c.Schema = c.Source.Database
	}
	if c.MaxEachDBConnectionPoolSize == 0 {
		c.MaxEachDBConnectionPoolSize = defaultMaxPoolSize
	}
	if c.Encoding == "" {
		c.Encoding = "utf_8"
	}
	if c.Delimiter == "" {
		c.Delimiter = ","
	}
	if c.LogsDir == "" {
		c.LogsDir = "logs"
	}
}

// Load reads and decodes config/config.json from path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()
	var c Config
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", path, err)
	}
	c.ApplyDefaults()
	if c.Source.Host == "" {
		return nil, fmt.Errorf("config: source.host is required")
	}
	if c.Target.Host == "" {
		return nil, fmt.Errorf("config: target.host is required")
	}
	return &c, nil
}

// TableRename maps one table's logical (new) name to its original
// (source) name, and likewise for a set of columns on that table.
type TableRename struct {
	OriginalTableName string         `json:"originalTableName"`
	NewTableName      string         `json:"newTableName"`
	Columns           []ColumnRename `json:"columns"`
}

// ColumnRename maps one column's logical (new) name to its original name.
type ColumnRename struct {
	OriginalColumnName string `json:"originalColumnName"`
	NewColumnName      string `json:"newColumnName"`
}

// ExtraForeignKey is an operator-supplied foreign key definition that does
// not exist in the source schema's information_schema.
type ExtraForeignKey struct {
	TableName            string `json:"tableName"`
	ColumnName           string `json:"columnName"`
	ReferencedTableName  string `json:"referencedTableName"`
	ReferencedColumnName string `json:"referencedColumnName"`
	ConstraintName       string `json:"constraintName"`
	UpdateRule           string `json:"updateRule"`
	DeleteRule           string `json:"deleteRule"`
}

// ExtraConfig is the shape of config/extra_config.json.
type ExtraConfig struct {
	Tables      []TableRename     `json:"tables"`
	ForeignKeys []ExtraForeignKey `json:"foreignKeys"`
}

// LoadExtraConfig reads and decodes config/extra_config.json. A missing
// file is not an error: extra configuration is optional.
func LoadExtraConfig(path string) (*ExtraConfig, error) {
	if path == "" {
		return &ExtraConfig{}, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &ExtraConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening extra config %s: %w", path, err)
	}
	defer f.Close()
	var ec ExtraConfig
	if err := json.NewDecoder(f).Decode(&ec); err != nil {
		return nil, fmt.Errorf("decoding extra config %s: %w", path, err)
	}
	return &ec, nil
}

// TypeMapEntry is one entry of config/data_types_map.json.
type TypeMapEntry struct {
	Type                     string `json:"type"`
	IncreasedSize            string `json:"increased_size"`
	MySqlVarLenPgSqlFixedLen bool   `json:"mySqlVarLenPgSqlFixedLen"`
}

// TypeMap is the full mysql_type -> TypeMapEntry mapping.
type TypeMap map[string]TypeMapEntry

// LoadTypeMap reads and decodes config/data_types_map.json.
func LoadTypeMap(path string) (TypeMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening type map %s: %w", path, err)
	}
	defer f.Close()
	var m TypeMap
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding type map %s: %w", path, err)
	}
	return m, nil
}

// IndexTypeMap is the mysql_index_type -> pg_using_clause mapping from
// config/index_types_map.json. A missing entry falls back to BTREE.
type IndexTypeMap map[string]string

// LoadIndexTypeMap reads and decodes config/index_types_map.json. A missing
// file yields an empty map, so every index falls back to BTREE.
func LoadIndexTypeMap(path string) (IndexTypeMap, error) {
	if path == "" {
		return IndexTypeMap{}, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return IndexTypeMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening index type map %s: %w", path, err)
	}
	defer f.Close()
	var m IndexTypeMap
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding index type map %s: %w", path, err)
	}
	return m, nil
}
