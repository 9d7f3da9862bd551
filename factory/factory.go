package factory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/docschema"
	"github.com/lychee-technology/docschema/internal"
	"go.uber.org/zap"
)

// Pool is the subset of *pgxpool.Pool the engine needs.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// tableChecker is swapped in tests.
var tableChecker = tableExists

// NewEngineWithConfig creates a Postgres-backed Engine. The documents table
// must exist (see `tools init-db`). Schemas in config.Entity.SchemaDirectory
// are registered with computed fields resolved through funcs.
//
// Usage:
//
//	cfg := docschema.DefaultConfig()
//	pool, err := factory.NewPostgresPool(ctx, cfg.Database)
//	if err != nil {
//	    // handle error
//	}
//	engine, err := factory.NewEngineWithConfig(ctx, cfg, pool, funcs)
func NewEngineWithConfig(ctx context.Context, cfg *docschema.Config, pool Pool, funcs *docschema.FuncRegistry) (docschema.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table := cfg.Database.TableNames.Documents
	ok, err := tableChecker(ctx, pool, table)
	if err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("required table %s is missing in the database", table)
	}

	store, err := internal.NewPostgresStore(pool, table)
	if err != nil {
		return nil, err
	}
	registry, err := loadRegistry(cfg, funcs)
	if err != nil {
		return nil, err
	}
	return internal.NewEngine(store, registry, cfg), nil
}

// NewInMemoryEngine creates an Engine over an in-process store. When
// config.Entity.SnapshotPath is set the store is loaded from that snapshot.
func NewInMemoryEngine(cfg *docschema.Config, funcs *docschema.FuncRegistry) (docschema.Engine, *internal.MemoryStore, error) {
	if cfg == nil {
		cfg = docschema.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	store := internal.NewMemoryStore()
	if cfg.Entity.SnapshotPath != "" {
		if err := store.LoadSnapshot(cfg.Entity.SnapshotPath); err != nil {
			return nil, nil, err
		}
	}
	registry, err := loadRegistry(cfg, funcs)
	if err != nil {
		return nil, nil, err
	}
	return internal.NewEngine(store, registry, cfg), store, nil
}

func loadRegistry(cfg *docschema.Config, funcs *docschema.FuncRegistry) (docschema.SchemaRegistry, error) {
	registry := internal.NewSchemaRegistry()
	if cfg.Entity.SchemaDirectory == "" {
		return registry, nil
	}
	names, err := internal.LoadSchemaDirectory(cfg.Entity.SchemaDirectory, funcs, registry)
	if err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	zap.S().Infow("Schemas registered", "directory", cfg.Entity.SchemaDirectory, "count", len(names))
	return registry, nil
}

func tableExists(ctx context.Context, pool Pool, table string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`,
		table,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// NewPostgresPool opens a pgx pool for cfg. With UseIAMAuth the password is
// replaced by a short-lived DSQL auth token.
func NewPostgresPool(ctx context.Context, cfg docschema.DatabaseConfig) (*pgxpool.Pool, error) {
	if err := internal.ValidatePostgresConfig(cfg); err != nil {
		return nil, err
	}
	password := cfg.Password
	if cfg.UseIAMAuth {
		token, err := iamAuthToken(ctx, cfg)
		if err != nil {
			return nil, err
		}
		password = token
	}

	poolCfg, err := pgxpool.ParseConfig(BuildDSN(cfg, password))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MinConns = int32(cfg.MinConnections)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime.Std()
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime.Std()
	}
	if cfg.Timeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.Timeout.Std()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func iamAuthToken(ctx context.Context, cfg docschema.DatabaseConfig) (string, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}
	endpoint := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	var token string
	if cfg.Username == "" || cfg.Username == "admin" {
		token, err = auth.GenerateDBConnectAdminAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
	} else {
		token, err = auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
	}
	if err != nil {
		return "", fmt.Errorf("generate IAM auth token: %w", err)
	}
	zap.S().Infow("Generated IAM auth token for Postgres connection", "host", cfg.Host)
	return token, nil
}

// BuildDSN renders cfg as a postgres:// URL with the given password.
func BuildDSN(cfg docschema.DatabaseConfig, password string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		if password != "" {
			u.User = url.UserPassword(cfg.Username, password)
		} else {
			u.User = url.User(cfg.Username)
		}
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
