package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/lychee-technology/docschema"
	"github.com/lychee-technology/docschema/factory"
	"github.com/lychee-technology/docschema/internal"
	"github.com/spf13/pflag"
)

// storeOptions are the connection flags shared by the commands that open a
// document store. Flags override the optional config file.
type storeOptions struct {
	configFile string
	snapshot   string
	schemaDir  string
	host       string
	port       int
	database   string
	user       string
	password   string
	sslMode    string
	table      string
	iamAuth    bool
	region     string
}

func (o *storeOptions) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.configFile, "config", getenvDefault("CONFIG_FILE", ""), "HuJSON config file (optional)")
	flags.StringVar(&o.snapshot, "snapshot", getenvDefault("SNAPSHOT_PATH", ""), "use the in-memory store loaded from this BSON snapshot instead of Postgres")
	flags.StringVar(&o.schemaDir, "schema-dir", getenvDefault("SCHEMA_DIR", ""), "directory containing <collection>.json schema files")
	flags.StringVar(&o.host, "db-host", getenvDefault("DB_HOST", "localhost"), "database host")
	flags.IntVar(&o.port, "db-port", getenvDefaultInt("DB_PORT", 5432), "database port")
	flags.StringVar(&o.database, "db-name", getenvDefault("DB_NAME", "docschema"), "database name")
	flags.StringVar(&o.user, "db-user", getenvDefault("DB_USER", "postgres"), "database user")
	flags.StringVar(&o.password, "db-password", getenvDefault("DB_PASSWORD", ""), "database password")
	flags.StringVar(&o.sslMode, "db-ssl-mode", getenvDefault("DB_SSL_MODE", "disable"), "database sslmode")
	flags.StringVar(&o.table, "documents-table", getenvDefault("DOCUMENTS_TABLE", "documents"), "documents table name")
	flags.BoolVar(&o.iamAuth, "db-iam-auth", false, "authenticate with a DSQL IAM token")
	flags.StringVar(&o.region, "region", getenvDefault("AWS_REGION", ""), "AWS region for IAM auth")
}

// config loads the config file and applies the flags that were set, or
// every flag when no file is given.
func (o *storeOptions) config(flags *pflag.FlagSet) (*docschema.Config, error) {
	cfg, err := docschema.LoadConfig(o.configFile)
	if err != nil {
		return nil, err
	}
	set := func(name string) bool {
		return o.configFile == "" || flags.Changed(name)
	}
	if set("schema-dir") {
		cfg.Entity.SchemaDirectory = o.schemaDir
	}
	if set("snapshot") {
		cfg.Entity.SnapshotPath = o.snapshot
	}
	db := &cfg.Database
	if set("db-host") {
		db.Host = o.host
	}
	if set("db-port") {
		db.Port = o.port
	}
	if set("db-name") {
		db.Database = o.database
	}
	if set("db-user") {
		db.Username = o.user
	}
	if set("db-password") {
		db.Password = o.password
	}
	if set("db-ssl-mode") {
		db.SSLMode = o.sslMode
	}
	if set("documents-table") {
		db.TableNames.Documents = o.table
	}
	if set("db-iam-auth") {
		db.UseIAMAuth = o.iamAuth
	}
	if set("region") {
		db.Region = o.region
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openedStore is a document store plus the in-memory store to persist, if any.
type openedStore struct {
	store  docschema.DocumentStore
	memory *internal.MemoryStore
	close  func()
}

// openStore opens the snapshot-backed memory store when a snapshot is
// configured, Postgres otherwise.
func openStore(ctx context.Context, cfg *docschema.Config) (*openedStore, error) {
	if cfg.Entity.SnapshotPath != "" {
		mem := internal.NewMemoryStore()
		if err := mem.LoadSnapshot(cfg.Entity.SnapshotPath); err != nil {
			return nil, err
		}
		return &openedStore{store: mem, memory: mem, close: func() {}}, nil
	}
	pool, err := factory.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	store, err := internal.NewPostgresStore(pool, cfg.Database.TableNames.Documents)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &openedStore{store: store, close: pool.Close}, nil
}

// openEngine opens the configured store and layers an engine over it.
func openEngine(ctx context.Context, cfg *docschema.Config) (docschema.Engine, func(), error) {
	if cfg.Entity.SnapshotPath != "" {
		engine, _, err := factory.NewInMemoryEngine(cfg, nil)
		if err != nil {
			return nil, nil, err
		}
		return engine, func() {}, nil
	}
	pool, err := factory.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	engine, err := factory.NewEngineWithConfig(ctx, cfg, pool, nil)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return engine, pool.Close, nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvDefaultInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
