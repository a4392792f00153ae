package migration

import (
	"testing"

	"github.com/pgbridge/pgbridge/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestMigrationStateString(t *testing.T) {
	assert.Equal(t, "boot", stateBoot.String())
	assert.Equal(t, "sendData", stateSendData.String())
	assert.Equal(t, "binaryFixup", stateBinaryFixup.String())
	assert.Equal(t, "unknown", migrationState(999).String())
}

func sampleConfig() *config.Config {
	return &config.Config{
		Source: config.Source{DBConfig: config.DBConfig{Host: "127.0.0.1", Database: "app"}},
		Target: config.DBConfig{Host: "127.0.0.1", Database: "app"},
		Schema: "app",
	}
}

func TestNewRunnerRequiresConfig(t *testing.T) {
	_, err := NewRunner(nil, config.TypeMap{}, nil, nil)
	assert.Error(t, err)
}

func TestNewRunnerRequiresSourceHost(t *testing.T) {
	cfg := sampleConfig()
	cfg.Source.Host = ""
	_, err := NewRunner(cfg, config.TypeMap{}, nil, nil)
	assert.Error(t, err)
}

func TestNewRunnerRequiresTargetHost(t *testing.T) {
	cfg := sampleConfig()
	cfg.Target.Host = ""
	_, err := NewRunner(cfg, config.TypeMap{}, nil, nil)
	assert.Error(t, err)
}

func TestNewRunnerRequiresTypeMap(t *testing.T) {
	cfg := sampleConfig()
	_, err := NewRunner(cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestNewRunnerSucceeds(t *testing.T) {
	cfg := sampleConfig()
	r, err := NewRunner(cfg, config.TypeMap{}, nil, nil)
	assert.NoError(t, err)
	assert.NotNil(t, r)
	assert.Equal(t, stateInitial, r.getCurrentState())
}
