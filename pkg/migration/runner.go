// Package migration drives the fixed phase sequence of one migration
// run: boot, schema, state tables, structure, data, binary fixup,
// constraints, foreign keys, views, cleanup. The structure, constraints,
// foreign-key and view phases consult state-logs flags so a restarted
// process resumes rather than repeats completed work.
package migration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pgbridge/pgbridge/pkg/config"
	"github.com/pgbridge/pgbridge/pkg/constraint"
	"github.com/pgbridge/pgbridge/pkg/dbconn"
	"github.com/pgbridge/pgbridge/pkg/extraconfig"
	"github.com/pgbridge/pgbridge/pkg/fkview"
	"github.com/pgbridge/pgbridge/pkg/loader"
	"github.com/pgbridge/pgbridge/pkg/metrics"
	"github.com/pgbridge/pgbridge/pkg/state"
	"github.com/pgbridge/pgbridge/pkg/structure"
	"github.com/pgbridge/pgbridge/pkg/table"
	"github.com/pgbridge/pgbridge/pkg/types"
	"github.com/pgbridge/pgbridge/pkg/utils"
	"github.com/siddontang/loggers"
	"github.com/sirupsen/logrus"
)

type migrationState int32

const (
	stateInitial migrationState = iota
	stateBoot
	stateSchema
	stateStateTables
	stateLoadStructure
	stateSendData
	stateBinaryFixup
	stateConstraints
	stateForeignKeys
	stateViews
	stateCleanup
	stateClose
)

func (s migrationState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateBoot:
		return "boot"
	case stateSchema:
		return "schema"
	case stateStateTables:
		return "stateTables"
	case stateLoadStructure:
		return "loadStructure"
	case stateSendData:
		return "sendData"
	case stateBinaryFixup:
		return "binaryFixup"
	case stateConstraints:
		return "constraints"
	case stateForeignKeys:
		return "foreignKeys"
	case stateViews:
		return "views"
	case stateCleanup:
		return "cleanup"
	case stateClose:
		return "close"
	}
	return "unknown"
}

// Runner drives one migration run end to end. It is built once per process
// via NewRunner and is not reusable across runs.
type Runner struct {
	cfg        *config.Config
	typeMap    config.TypeMap
	indexTypes config.IndexTypeMap
	extraRaw   *config.ExtraConfig

	pools       *dbconn.Pools
	state       *state.Manager
	extraConfig *extraconfig.Resolver
	registry    *table.Registry

	structureLoader   *structure.Loader
	dataLoader        *loader.Loader
	constraintApplier *constraint.Applier
	fkPhase           *fkview.Phase
	viewNames         []string

	currentState migrationState // must use atomic to get/set
	startTime    time.Time
	runID        string

	logger      loggers.Advanced
	metricsSink metrics.Sink
}

// NewRunner validates cfg and wires the Runner's dependent components.
// The heavier, connection-owning pieces are constructed in boot, once
// both sides are known reachable.
func NewRunner(cfg *config.Config, typeMap config.TypeMap, indexTypes config.IndexTypeMap, extraRaw *config.ExtraConfig) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("migration: config is required")
	}
	if cfg.Source.Host == "" {
		return nil, fmt.Errorf("migration: source host is required")
	}
	if cfg.Target.Host == "" {
		return nil, fmt.Errorf("migration: target host is required")
	}
	if cfg.Schema == "" {
		return nil, fmt.Errorf("migration: schema is required")
	}
	if typeMap == nil {
		return nil, fmt.Errorf("migration: type map is required")
	}
	return &Runner{
		cfg:         cfg,
		typeMap:     typeMap,
		indexTypes:  indexTypes,
		extraRaw:    extraRaw,
		runID:       uuid.New().String(),
		logger:      logrus.New(),
		metricsSink: metrics.NoopSink{},
	}, nil
}

// SetLogger overrides the default logger.
func (r *Runner) SetLogger(logger loggers.Advanced) {
	r.logger = logger
}

// SetMetricsSink overrides the default no-op metrics sink.
func (r *Runner) SetMetricsSink(sink metrics.Sink) {
	r.metricsSink = sink
}

func (r *Runner) setCurrentState(s migrationState) {
	atomic.StoreInt32((*int32)(&r.currentState), int32(s))
	r.logger.Infof("pgbridge: entering phase %q", s)
}

func (r *Runner) getCurrentState() migrationState {
	return migrationState(atomic.LoadInt32((*int32)(&r.currentState)))
}

// Run executes the phase sequence in order. Failures up through the
// state-tables phase are fatal; failures in later phases are logged and
// do not abort the run.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	r.logger.Infof("pgbridge: starting migration run %s", r.runID)

	bootStart := time.Now()
	restart, err := r.boot(ctx)
	r.metricsSink.PhaseDuration(stateBoot.String(), time.Since(bootStart))
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	if restart {
		r.logger.Infof("pgbridge: prior state-logs table found, resuming in restart mode")
	}

	r.setCurrentState(stateSchema)
	schemaStart := time.Now()
	err = r.createSchema(ctx)
	r.metricsSink.PhaseDuration(stateSchema.String(), time.Since(schemaStart))
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	r.setCurrentState(stateStateTables)
	stateTablesStart := time.Now()
	err = r.state.CreateDataPoolTable(ctx)
	r.metricsSink.PhaseDuration(stateStateTables.String(), time.Since(stateTablesStart))
	if err != nil {
		return fmt.Errorf("state tables: %w", err)
	}

	r.setCurrentState(stateLoadStructure)
	loadStructureStart := time.Now()
	if err := r.loadStructure(ctx); err != nil {
		r.logger.Errorf("pgbridge: load structure failed: %v", err)
	}
	r.metricsSink.PhaseDuration(stateLoadStructure.String(), time.Since(loadStructureStart))

	r.setCurrentState(stateSendData)
	sendDataStart := time.Now()
	applied := r.sendData(ctx)
	r.metricsSink.PhaseDuration(stateSendData.String(), time.Since(sendDataStart))

	r.setCurrentState(stateBinaryFixup)
	binaryFixupStart := time.Now()
	if err := r.constraintApplier.DecodeBinaryData(ctx); err != nil {
		r.logger.Errorf("pgbridge: binary-data fixup failed: %v", err)
	}
	r.metricsSink.PhaseDuration(stateBinaryFixup.String(), time.Since(binaryFixupStart))

	r.setCurrentState(stateConstraints)
	constraintsStart := time.Now()
	r.runConstraints(ctx, applied)
	r.metricsSink.PhaseDuration(stateConstraints.String(), time.Since(constraintsStart))

	r.setCurrentState(stateForeignKeys)
	fkStart := time.Now()
	r.runForeignKeys(ctx)
	r.metricsSink.PhaseDuration(stateForeignKeys.String(), time.Since(fkStart))

	r.setCurrentState(stateViews)
	viewsStart := time.Now()
	r.runViews(ctx)
	r.metricsSink.PhaseDuration(stateViews.String(), time.Since(viewsStart))

	r.setCurrentState(stateCleanup)
	r.cleanup(ctx)

	r.setCurrentState(stateClose)
	r.pools.Close()

	r.logger.Infof("pgbridge: migration complete in %s", time.Since(r.startTime).Round(time.Second))
	return nil
}

// boot opens both pools, probes them, and creates the state-logs table,
// reporting whether this is a restart of a prior run.
func (r *Runner) boot(ctx context.Context) (bool, error) {
	r.setCurrentState(stateBoot)

	mysqlDSN, err := dbconn.MySQLDSN(r.cfg.Source.Host, r.cfg.Source.Port, r.cfg.Source.User, r.cfg.Source.Password, r.cfg.Source.Database, r.cfg.Source.TLSMode, r.cfg.Source.CACertPath)
	if err != nil {
		return false, fmt.Errorf("building source dsn: %w", err)
	}
	pgDSN := dbconn.PGDSN(r.cfg.Target.Host, r.cfg.Target.Port, r.cfg.Target.User, r.cfg.Target.Password, r.cfg.Target.Database, r.cfg.Target.TLSMode)

	poolCfg := dbconn.DefaultPoolConfig()
	poolCfg.MaxPoolSize = r.cfg.MaxEachDBConnectionPoolSize

	r.pools, err = dbconn.NewPools(ctx, poolCfg, mysqlDSN, pgDSN, r.logger)
	if err != nil {
		return false, fmt.Errorf("opening pools: %w", err)
	}
	if err := r.pools.Ping(ctx); err != nil {
		return false, fmt.Errorf("probing pools: %w", err)
	}

	r.state = state.New(r.pools, r.logger, r.cfg.Schema, r.cfg.Source.Database)
	r.extraConfig = extraconfig.New(r.extraRaw)

	loaderCap, err := r.cfg.LoaderProcesses()
	if err != nil {
		return false, err
	}

	mapType := func(mysqlType string) (string, error) { return types.Map(r.typeMap, mysqlType) }
	r.structureLoader = structure.New(r.pools, r.state, r.extraConfig, r.logger, r.cfg.Schema, r.cfg.Source.Database, mapType)
	r.structureLoader.IncludeTables = r.cfg.IncludeTables
	r.structureLoader.ExcludeTables = r.cfg.ExcludeTables
	r.structureLoader.MigrateOnlyData = r.cfg.MigrateOnlyData
	if r.cfg.MaxEachDBConnectionPoolSize > 0 {
		r.structureLoader.MaxConcurrency = r.cfg.MaxEachDBConnectionPoolSize
	}

	r.dataLoader = &loader.Loader{
		Pools:           r.pools,
		State:           r.state,
		ExtraConfig:     r.extraConfig,
		Metrics:         r.metricsSink,
		Log:             r.logger,
		Schema:          r.cfg.Schema,
		Charset:         r.cfg.Target.Charset,
		LogsDir:         r.cfg.LogsDir,
		MigrateOnlyData: r.cfg.MigrateOnlyData,
		LoaderCap:       loaderCap,
	}

	r.constraintApplier = &constraint.Applier{
		Pools:           r.pools,
		ExtraConfig:     r.extraConfig,
		TypeMap:         r.typeMap,
		IndexTypes:      r.indexTypes,
		Metrics:         r.metricsSink,
		Log:             r.logger,
		Schema:          r.cfg.Schema,
		MigrateOnlyData: r.cfg.MigrateOnlyData,
	}

	r.fkPhase = &fkview.Phase{
		Pools:       r.pools,
		ExtraConfig: r.extraConfig,
		Log:         r.logger,
		Schema:      r.cfg.Schema,
		SourceDB:    r.cfg.Source.Database,
		LogsDir:     r.cfg.LogsDir,
	}

	seeded, err := r.state.CreateStateLogsTable(ctx)
	if err != nil {
		return false, err
	}
	return !seeded, nil
}

func (r *Runner) createSchema(ctx context.Context) error {
	_, err := r.pools.Query(ctx, dbconn.QueryOptions{Tag: "create_schema", Vendor: dbconn.VendorPG, FatalOnError: true},
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", utils.QuoteIdent(r.cfg.Schema)))
	return err
}

// loadStructure runs the structure phase, guarded by the tables_loaded
// flag.
func (r *Runner) loadStructure(ctx context.Context) error {
	haveTablesLoaded, err := r.state.Get(ctx, state.TablesLoaded)
	if err != nil {
		return err
	}
	reg, viewNames, err := r.structureLoader.Load(ctx, haveTablesLoaded)
	if err != nil {
		return err
	}
	r.registry = reg
	r.fkPhase.Concurrency = r.cfg.MaxEachDBConnectionPoolSize
	r.viewNames = viewNames
	return nil
}

// sendData hydrates the work list from the data pool and runs the data
// loader. Each table's worker, on completion, immediately applies that
// table's constraints; the returned set tracks which tables were
// handled this way so the constraints phase can skip them and only
// sweep tables recovered in an earlier run.
func (r *Runner) sendData(ctx context.Context) map[string]bool {
	applied := make(map[string]bool)
	var mu sync.Mutex

	items, err := r.state.ReadDataPool(ctx)
	if err != nil {
		r.logger.Errorf("pgbridge: reading data pool failed: %v", err)
		return applied
	}

	onLoaded := func(ctx context.Context, tableName string) error {
		t := r.registry.Get(tableName)
		if t == nil {
			return nil
		}
		if err := r.constraintApplier.Apply(ctx, t); err != nil {
			return err
		}
		mu.Lock()
		applied[tableName] = true
		mu.Unlock()
		return nil
	}

	if err := r.dataLoader.SendData(ctx, items, onLoaded); err != nil {
		r.logger.Errorf("pgbridge: sending data failed: %v", err)
	}
	return applied
}

// runConstraints sweeps every table not
// already handled by sendData's onLoaded hook (covering tables recovered
// from a prior run, whose Data Pool row no longer exists), guarded by the
// per_table_constraints_loaded flag.
func (r *Runner) runConstraints(ctx context.Context, applied map[string]bool) {
	done, err := r.state.Get(ctx, state.PerTableConstraintsLoaded)
	if err != nil {
		r.logger.Errorf("pgbridge: reading constraints flag failed: %v", err)
		return
	}
	if done {
		return
	}
	if r.registry != nil {
		for _, t := range r.registry.All() {
			if applied[t.Name] {
				continue
			}
			if err := r.constraintApplier.Apply(ctx, t); err != nil {
				r.logger.Errorf("pgbridge: applying constraints to %q failed: %v", t.Name, err)
			}
		}
	}
	if err := r.state.Set(ctx, state.PerTableConstraintsLoaded); err != nil {
		r.logger.Errorf("pgbridge: setting constraints flag failed: %v", err)
	}
}

func (r *Runner) runForeignKeys(ctx context.Context) {
	if r.cfg.MigrateOnlyData {
		if err := r.state.Set(ctx, state.ForeignKeysLoaded); err != nil {
			r.logger.Errorf("pgbridge: setting foreign-keys flag failed: %v", err)
		}
		return
	}
	done, err := r.state.Get(ctx, state.ForeignKeysLoaded)
	if err != nil {
		r.logger.Errorf("pgbridge: reading foreign-keys flag failed: %v", err)
		return
	}
	if done || r.registry == nil {
		return
	}
	if err := r.fkPhase.SetForeignKeys(ctx, r.registry.Names()); err != nil {
		r.logger.Errorf("pgbridge: foreign-key phase failed: %v", err)
	}
	if err := r.state.Set(ctx, state.ForeignKeysLoaded); err != nil {
		r.logger.Errorf("pgbridge: setting foreign-keys flag failed: %v", err)
	}
}

func (r *Runner) runViews(ctx context.Context) {
	if r.cfg.MigrateOnlyData {
		if err := r.state.Set(ctx, state.ViewsLoaded); err != nil {
			r.logger.Errorf("pgbridge: setting views flag failed: %v", err)
		}
		return
	}
	done, err := r.state.Get(ctx, state.ViewsLoaded)
	if err != nil {
		r.logger.Errorf("pgbridge: reading views flag failed: %v", err)
		return
	}
	if done {
		return
	}
	if err := r.fkPhase.GenerateViews(ctx, r.viewNames); err != nil {
		r.logger.Errorf("pgbridge: view phase failed: %v", err)
	}
	if err := r.state.Set(ctx, state.ViewsLoaded); err != nil {
		r.logger.Errorf("pgbridge: setting views flag failed: %v", err)
	}
}

// cleanup drops the data-pool and state-logs tables. This MUST be the
// last step of the migration process: once they are gone, nothing marks
// the run as resumable.
func (r *Runner) cleanup(ctx context.Context) {
	if err := r.state.DropDataPoolTable(ctx); err != nil {
		r.logger.Errorf("pgbridge: dropping data-pool table failed: %v", err)
	}
	if err := r.state.DropStateLogsTable(ctx); err != nil {
		r.logger.Errorf("pgbridge: dropping state-logs table failed: %v", err)
	}
}
