// Command pgbridge drives one resumable MySQL -> PostgreSQL migration
// run end to end. Flag and file-discovery concerns live here; the
// shapes they're decoded into, and the engine they drive, live in
// pkg/config and pkg/migration.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgbridge/pgbridge/pkg/config"
	"github.com/pgbridge/pgbridge/pkg/logs"
	"github.com/pgbridge/pgbridge/pkg/metrics"
	"github.com/pgbridge/pgbridge/pkg/migration"
)

// Migrate is the sole kong command: run one migration from a config
// directory to completion (or to the first fatal error).
type Migrate struct {
	ConfigDir   string `help:"Directory holding config.json, extra_config.json, data_types_map.json and index_types_map.json." default:"config" type:"path"`
	Debug       bool   `help:"Enable debug-level logging."`
	MetricsAddr string `help:"Address to serve Prometheus metrics on, e.g. :9090. Empty disables the metrics server."`
}

func (m *Migrate) Run() error {
	cfg, err := config.Load(m.ConfigDir + "/config.json")
	if err != nil {
		return err
	}
	if m.Debug {
		cfg.Debug = true
	}

	extraRaw, err := config.LoadExtraConfig(extraConfigPath(cfg, m.ConfigDir))
	if err != nil {
		return err
	}
	typeMap, err := config.LoadTypeMap(m.ConfigDir + "/data_types_map.json")
	if err != nil {
		return err
	}
	indexTypes, err := config.LoadIndexTypeMap(m.ConfigDir + "/index_types_map.json")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logger := logs.New(cfg.LogsDir, cfg.Debug)

	runner, err := migration.NewRunner(cfg, typeMap, indexTypes, extraRaw)
	if err != nil {
		return err
	}
	runner.SetLogger(logger)

	sink := metrics.NewPrometheusSink()
	runner.SetMetricsSink(sink)
	if m.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(sink.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: m.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return runner.Run(ctx)
}

// extraConfigPath honors EnableExtraConfig: when the operator has not
// opted in, extra configuration is treated as absent even if the file
// exists on disk.
func extraConfigPath(cfg *config.Config, configDir string) string {
	if !cfg.EnableExtraConfig {
		return ""
	}
	return configDir + "/extra_config.json"
}

var cli struct {
	Migrate Migrate `cmd:"" default:"withargs" help:"Run a MySQL to PostgreSQL migration."`
}

func main() {
	ctx := kong.Parse(&cli, kong.Name("pgbridge"), kong.Description("Resumable MySQL to PostgreSQL data migration."))
	ctx.FatalIfErrorf(ctx.Run())
}
