package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"path"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// BackendType selects what serves native sequence refills
type BackendType string

const (
	BackendPebble   BackendType = "pebble"   // Local Pebble store, advance-by-N
	BackendSQL      BackendType = "sql"      // UNION ALL batch query over database/sql
	BackendPostgres BackendType = "postgres" // nextval() over generate_series via pgx
	BackendRemote   BackendType = "remote"   // Range RPC against a bitseq server
)

// DDLMode controls schema synthesis at bootstrap
type DDLMode string

const (
	DDLNone   DDLMode = "none"
	DDLCreate DDLMode = "create"
	DDLUpdate DDLMode = "update"
)

// SequenceDefinition declares one sequence at bootstrap
type SequenceDefinition struct {
	Name         string  `toml:"name"`
	FetchSize    int     `toml:"fetch_size"`
	StartCounter int64   `toml:"start_counter"`
	ExcludeRange []int64 `toml:"exclude_range"` // [min, max], empty = none
	Emulation    string  `toml:"emulation"`     // "", "native" or "table"
}

// FetchSizeOverride replaces the fetch size of every sequence whose name matches Pattern
type FetchSizeOverride struct {
	Pattern   string `toml:"pattern"`
	FetchSize int    `toml:"fetch_size"`
}

// SequencesConfiguration controls allocation
type SequencesConfiguration struct {
	NativeEnabled    bool                 `toml:"native_enabled"`
	DefaultFetchSize int                  `toml:"default_fetch_size"`
	FetchTimeoutMS   int                  `toml:"fetch_timeout_ms"`
	Backend          BackendType          `toml:"backend"`
	RemoteAddress    string               `toml:"remote_address"`
	PostgresDSN      string               `toml:"postgres_dsn"`
	Define           []SequenceDefinition `toml:"define"`
	Override         []FetchSizeOverride  `toml:"override"`
}

// StorageConfiguration locates the local stores
type StorageConfiguration struct {
	SQLitePath     string `toml:"sqlite_path"`     // relative to data_dir
	PebbleDir      string `toml:"pebble_dir"`      // relative to data_dir
	CounterPrefix  string `toml:"counter_prefix"`  // key prefix inside Pebble
	CounterDialect string `toml:"counter_dialect"` // emulation tables: "sqlite3" or "mysql"
	CounterDSN     string `toml:"counter_dsn"`     // mysql DSN, empty = local SQLite
}

// BatcherConfiguration controls statement batching
type BatcherConfiguration struct {
	MaxBatchSize int `toml:"max_batch_size"`
}

// ForeignKeyDefinition declares a constraint of an entity table
type ForeignKeyDefinition struct {
	Name            string `toml:"name"`
	Column          string `toml:"column"`
	RefTable        string `toml:"ref_table"`
	RefColumn       string `toml:"ref_column"`
	OnDeleteCascade bool   `toml:"on_delete_cascade"`
}

// TableDefinition declares an entity table created next to the sequences
type TableDefinition struct {
	Name        string                 `toml:"name"`
	Columns     []string               `toml:"columns"` // full column definitions
	PrimaryKey  []string               `toml:"primary_key"`
	ForeignKeys []ForeignKeyDefinition `toml:"foreign_key"`
}

// DDLConfiguration controls schema synthesis
type DDLConfiguration struct {
	Mode   DDLMode           `toml:"mode"`
	Tables []TableDefinition `toml:"table"`
}

// ServerConfiguration for the gRPC + HTTP listener
type ServerConfiguration struct {
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Compression int    `toml:"compression_level"` // 0 disables zstd, 1-4 fastest..best
	Secret      string `toml:"secret"`            // shared secret for the range RPC, empty = open
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Sequences  SequencesConfiguration  `toml:"sequences"`
	Storage    StorageConfiguration    `toml:"storage"`
	Batcher    BatcherConfiguration    `toml:"batcher"`
	DDL        DDLConfiguration        `toml:"ddl"`
	Server     ServerConfiguration     `toml:"server"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag    = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag       = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag        = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	PortFlag          = flag.Int("port", 0, "Server port (overrides config)")
	DisableNativeFlag = flag.Bool("disable-native-sequences", false, "Serve every sequence without an explicit mode from the emulation table")
)

// Default configuration
var Config = &Configuration{
	NodeID:  0, // Auto-generate
	DataDir: "./bitseq-data",

	Sequences: SequencesConfiguration{
		NativeEnabled:    true,
		DefaultFetchSize: 50,
		FetchTimeoutMS:   5000,
		Backend:          BackendPebble,
	},

	Storage: StorageConfiguration{
		SQLitePath:     "bitseq.db",
		PebbleDir:      "sequences",
		CounterPrefix:  "/seq/",
		CounterDialect: "sqlite3",
	},

	Batcher: BatcherConfiguration{
		MaxBatchSize: 50,
	},

	DDL: DDLConfiguration{
		Mode: DDLUpdate,
	},

	Server: ServerConfiguration{
		BindAddress: "0.0.0.0",
		Port:        8090,
		Compression: 1,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *PortFlag != 0 {
		Config.Server.Port = *PortFlag
	}
	if *DisableNativeFlag {
		Config.Sequences.NativeEnabled = false
	}
	if secret := os.Getenv("BITSEQ_SECRET"); secret != "" {
		Config.Server.Secret = secret
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID creates a unique node ID based on machine ID
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("bitseq")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Server.Port < 1 || Config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", Config.Server.Port)
	}

	if Config.Server.Compression < 0 || Config.Server.Compression > 4 {
		return fmt.Errorf("compression level must be between 0 and 4")
	}

	seq := Config.Sequences
	if seq.DefaultFetchSize < 1 {
		return fmt.Errorf("default fetch size must be >= 1")
	}
	if seq.FetchTimeoutMS < 0 {
		return fmt.Errorf("fetch timeout must be >= 0")
	}

	switch seq.Backend {
	case BackendPebble, BackendSQL:
	case BackendPostgres:
		if seq.PostgresDSN == "" {
			return fmt.Errorf("postgres backend requires postgres_dsn")
		}
	case BackendRemote:
		if seq.RemoteAddress == "" {
			return fmt.Errorf("remote backend requires remote_address")
		}
	default:
		return fmt.Errorf("invalid sequence backend: %q", seq.Backend)
	}

	seen := make(map[string]bool, len(seq.Define))
	for i, def := range seq.Define {
		if def.Name == "" {
			return fmt.Errorf("sequence definition %d has no name", i)
		}
		if seen[def.Name] {
			return fmt.Errorf("sequence %q defined twice", def.Name)
		}
		seen[def.Name] = true

		if def.FetchSize < 0 {
			return fmt.Errorf("sequence %q: fetch size must be >= 0", def.Name)
		}
		if def.StartCounter < 0 {
			return fmt.Errorf("sequence %q: start counter must be >= 0", def.Name)
		}
		if n := len(def.ExcludeRange); n != 0 && n != 2 {
			return fmt.Errorf("sequence %q: exclude_range needs exactly two bounds", def.Name)
		}
		switch def.Emulation {
		case "", "default", "native", "table":
		default:
			return fmt.Errorf("sequence %q: invalid emulation %q", def.Name, def.Emulation)
		}
	}

	for _, o := range seq.Override {
		if o.Pattern == "" || o.FetchSize < 1 {
			return fmt.Errorf("fetch size override needs a pattern and fetch_size >= 1")
		}
	}

	switch Config.Storage.CounterDialect {
	case "sqlite3":
	case "mysql":
		if Config.Storage.CounterDSN == "" {
			return fmt.Errorf("mysql counter dialect requires counter_dsn")
		}
	default:
		return fmt.Errorf("invalid counter dialect: %q", Config.Storage.CounterDialect)
	}

	if Config.Batcher.MaxBatchSize < 1 {
		return fmt.Errorf("batcher max batch size must be >= 1")
	}

	switch Config.DDL.Mode {
	case DDLNone, DDLCreate, DDLUpdate:
	default:
		return fmt.Errorf("invalid ddl mode: %q", Config.DDL.Mode)
	}

	for i, t := range Config.DDL.Tables {
		if t.Name == "" {
			return fmt.Errorf("ddl table %d: name is required", i)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("ddl table %s: at least one column is required", t.Name)
		}
		for _, fk := range t.ForeignKeys {
			if fk.Name == "" || fk.Column == "" || fk.RefTable == "" || fk.RefColumn == "" {
				return fmt.Errorf("ddl table %s: foreign key needs name, column, ref_table and ref_column", t.Name)
			}
		}
	}

	return nil
}

// FetchTimeout returns the refill timeout, 0 means no deadline
func FetchTimeout() time.Duration {
	return time.Duration(Config.Sequences.FetchTimeoutMS) * time.Millisecond
}

// IsAuthEnabled reports whether range RPC callers must present the shared secret
func IsAuthEnabled() bool {
	return Config != nil && Config.Server.Secret != ""
}

// GetSecret returns the shared secret of the range RPC
func GetSecret() string {
	if Config == nil {
		return ""
	}
	return Config.Server.Secret
}

// GetSQLitePath returns the path to the local SQLite database
func GetSQLitePath() string {
	return path.Join(Config.DataDir, Config.Storage.SQLitePath)
}

// GetPebblePath returns the directory of the Pebble sequence store
func GetPebblePath() string {
	return path.Join(Config.DataDir, Config.Storage.PebbleDir)
}
