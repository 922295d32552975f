package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/maxpert/bitseq/cfg"
	"github.com/maxpert/bitseq/db"
	"github.com/maxpert/bitseq/ddl"
	bitseqgrpc "github.com/maxpert/bitseq/grpc"
	"github.com/maxpert/bitseq/id"
	"github.com/maxpert/bitseq/sequence"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
)

// sqlFetcherCacheSize bounds the memoized batch queries of the sql backend
const sqlFetcherCacheSize = 256

// node owns the stores, backends and registry of one bitseq process
type node struct {
	store     *db.SequenceStore
	sqlite    *sql.DB
	counterDB *sql.DB // nil when the counter shares sqlite
	pgPool    *pgxpool.Pool
	conn      *grpc.ClientConn

	fetcher  sequence.Fetcher
	catalog  db.SequenceCatalog
	counter  *db.TableCounter
	registry *sequence.Registry

	inspector  ddl.Inspector
	entities   []ddl.EntityTable
	generators map[string]*id.SequenceGenerator
	batcher    *db.StatementBatcher
}

func openNode(ctx context.Context) (*node, error) {
	n := &node{generators: make(map[string]*id.SequenceGenerator)}
	if err := n.open(ctx); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

func (n *node) open(ctx context.Context) (err error) {
	if err := os.MkdirAll(cfg.Config.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	n.store, err = db.OpenSequenceStore(cfg.GetPebblePath(), cfg.Config.Storage.CounterPrefix)
	if err != nil {
		return err
	}

	if err := db.RegisterSequenceDriver(db.SQLiteDriverName, n.store); err != nil {
		return err
	}
	n.sqlite, err = sql.Open(db.SQLiteDriverName, cfg.GetSQLitePath()+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	if err := n.sqlite.PingContext(ctx); err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	if err := n.openCounter(ctx); err != nil {
		return err
	}
	if err := n.openBackend(ctx); err != nil {
		return err
	}

	n.inspector = db.NewSQLiteInspector(n.sqlite, n.catalog)
	n.entities = entitiesFromConfig(cfg.Config.DDL.Tables)
	n.batcher = db.NewStatementBatcher(db.SQLOpener{DB: n.sqlite}, cfg.Config.Batcher.MaxBatchSize)
	return nil
}

func (n *node) openCounter(ctx context.Context) error {
	counterDB := n.sqlite
	if cfg.Config.Storage.CounterDialect == db.CounterDialectMySQL {
		var err error
		n.counterDB, err = sql.Open("mysql", cfg.Config.Storage.CounterDSN)
		if err != nil {
			return fmt.Errorf("open counter database: %w", err)
		}
		if err := n.counterDB.PingContext(ctx); err != nil {
			return fmt.Errorf("open counter database: %w", err)
		}
		counterDB = n.counterDB
	}

	counter, err := db.NewTableCounter(counterDB, cfg.Config.Storage.CounterDialect)
	if err != nil {
		return err
	}
	n.counter = counter
	return nil
}

func (n *node) openBackend(ctx context.Context) error {
	switch cfg.Config.Sequences.Backend {
	case cfg.BackendPebble:
		n.fetcher = n.store
		n.catalog = n.store

	case cfg.BackendSQL:
		fetcher, err := db.NewSQLFetcher(n.sqlite, db.DialectSQLite, sqlFetcherCacheSize)
		if err != nil {
			return err
		}
		n.fetcher = fetcher
		n.catalog = n.store

	case cfg.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Config.Sequences.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		n.pgPool = pool
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		n.fetcher = db.NewPgFetcher(pool)
		n.catalog = db.NewPgCatalog(pool, cfg.FetchTimeout())

	case cfg.BackendRemote:
		conn, err := bitseqgrpc.Dial(cfg.Config.Sequences.RemoteAddress, cfg.GetSecret())
		if err != nil {
			return err
		}
		n.conn = conn
		remote := bitseqgrpc.NewRemoteFetcher(conn)
		n.fetcher = remote
		n.catalog = bitseqgrpc.NewRemoteCatalog(remote, cfg.FetchTimeout())

	default:
		return fmt.Errorf("unknown backend %q", cfg.Config.Sequences.Backend)
	}

	log.Info().Str("backend", string(cfg.Config.Sequences.Backend)).Msg("Sequence backend ready")
	return nil
}

// bootstrapSequences builds the registry and binds every configured sequence
func (n *node) bootstrapSequences() error {
	overrides := make([]sequence.FetchSizeOverride, 0, len(cfg.Config.Sequences.Override))
	for _, o := range cfg.Config.Sequences.Override {
		overrides = append(overrides, sequence.FetchSizeOverride{Pattern: o.Pattern, FetchSize: o.FetchSize})
	}

	registry, err := sequence.NewRegistry(sequence.Options{
		NativeEnabled: cfg.Config.Sequences.NativeEnabled,
		Fetcher:       n.fetcher,
		Counter:       n.counter,
		FetchTimeout:  cfg.FetchTimeout(),
		Overrides:     overrides,
	})
	if err != nil {
		return err
	}
	n.registry = registry

	for _, def := range cfg.Config.Sequences.Define {
		gen, err := id.Bind(registry, def.Name, definitionParams(def, cfg.Config.Sequences.DefaultFetchSize))
		if err != nil {
			return err
		}
		n.generators[def.Name] = gen
		log.Debug().Str("sequence", gen.SequenceName()).Msg("Sequence bound")
	}

	log.Info().
		Int("sequences", len(registry.Names())).
		Bool("native_enabled", registry.NativeEnabled()).
		Msg("Sequence registry ready")
	return nil
}

// applySchema synthesizes and applies the DDL of every bound sequence and entity table
func (n *node) applySchema(ctx context.Context) error {
	mode, err := ddl.ParseMode(string(cfg.Config.DDL.Mode))
	if err != nil {
		return err
	}

	applier := db.NewSQLiteApplier(n.sqlite, n.catalog, n.counter)
	stmts, err := ddl.NewSynthesizer(mode, n.inspector).Run(ctx, n.registry.Descriptors(), n.entities, applier)
	if err != nil {
		return err
	}

	log.Info().
		Str("mode", mode.String()).
		Int("statements", len(stmts)).
		Msg("Schema synthesized")
	for _, s := range ddl.SQLs(stmts) {
		log.Debug().Str("ddl", s).Msg("Applied DDL")
	}
	return nil
}

// Close releases every store and connection. Safe on a partially opened node.
func (n *node) Close() error {
	var errs []error
	if n.registry != nil {
		n.registry.Close()
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
	}
	if n.pgPool != nil {
		n.pgPool.Close()
	}
	if n.counterDB != nil {
		errs = append(errs, n.counterDB.Close())
	}
	if n.sqlite != nil {
		errs = append(errs, n.sqlite.Close())
	}
	if n.store != nil {
		errs = append(errs, n.store.Close())
	}
	return errors.Join(errs...)
}

// definitionParams renders a configured sequence as entity generator parameters
func definitionParams(def cfg.SequenceDefinition, defaultFetchSize int) id.Params {
	fetchSize := def.FetchSize
	if fetchSize == 0 {
		fetchSize = defaultFetchSize
	}

	params := id.Params{
		id.ParamSequenceName: def.Name,
		id.ParamFetchSize:    strconv.Itoa(fetchSize),
	}
	if def.StartCounter != 0 {
		params[id.ParamInitialValue] = strconv.FormatInt(def.StartCounter, 10)
	}
	if len(def.ExcludeRange) == 2 {
		params[id.ParamExcludeRange] = fmt.Sprintf("[%d,%d]", def.ExcludeRange[0], def.ExcludeRange[1])
	}
	if def.Emulation != "" {
		params[id.ParamEmulation] = def.Emulation
	}
	return params
}

func entitiesFromConfig(defs []cfg.TableDefinition) []ddl.EntityTable {
	entities := make([]ddl.EntityTable, 0, len(defs))
	for _, d := range defs {
		t := ddl.EntityTable{
			Name:       d.Name,
			Columns:    d.Columns,
			PrimaryKey: d.PrimaryKey,
		}
		for _, fk := range d.ForeignKeys {
			t.ForeignKeys = append(t.ForeignKeys, ddl.ForeignKey{
				Name:            fk.Name,
				Column:          fk.Column,
				RefTable:        fk.RefTable,
				RefColumn:       fk.RefColumn,
				OnDeleteCascade: fk.OnDeleteCascade,
			})
		}
		entities = append(entities, t)
	}
	return entities
}
