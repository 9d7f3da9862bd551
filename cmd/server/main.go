package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lychee-technology/docschema"
	"github.com/lychee-technology/docschema/factory"
	"github.com/lychee-technology/docschema/internal"
	"go.uber.org/zap"
)

// Server represents the HTTP server over a document engine
type Server struct {
	engine docschema.Engine
	mux    *http.ServeMux
	health func(ctx context.Context) error
}

// NewServer creates a new Server instance. health may be nil.
func NewServer(engine docschema.Engine, health func(ctx context.Context) error) *Server {
	return &Server{
		engine: engine,
		mux:    http.NewServeMux(),
		health: health,
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/v1/", s.apiHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func main() {
	cfg, err := docschema.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}
	applyEnv(cfg)

	logger, err := docschema.NewLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if err := cfg.Validate(); err != nil {
		sugar.Fatalf("invalid configuration: %v", err)
	}
	sugar.Infof("schemaDir: %s", cfg.Entity.SchemaDirectory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		engine   docschema.Engine
		health   func(ctx context.Context) error
		snapshot *internal.MemoryStore
	)
	if os.Getenv("DB_HOST") != "" {
		pool, err := factory.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			sugar.Fatalf("failed to create database pool: %v", err)
		}
		defer pool.Close()
		engine, err = factory.NewEngineWithConfig(ctx, cfg, pool, nil)
		if err != nil {
			sugar.Fatalf("failed to create engine: %v", err)
		}
		health = pool.Ping
		sugar.Infow("using postgres store", "host", cfg.Database.Host, "table", cfg.Database.TableNames.Documents)
	} else {
		engine, snapshot, err = factory.NewInMemoryEngine(cfg, nil)
		if err != nil {
			sugar.Fatalf("failed to create engine: %v", err)
		}
		sugar.Infow("using in-memory store", "snapshot", cfg.Entity.SnapshotPath)
	}

	server := NewServer(engine, health)
	server.RegisterRoutes()

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("starting server", "port", cfg.Server.Port)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		sugar.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugar.Errorw("graceful shutdown failed", "error", err)
		}
	}

	if snapshot != nil && cfg.Entity.SnapshotPath != "" {
		if err := snapshot.SaveSnapshot(cfg.Entity.SnapshotPath); err != nil {
			sugar.Errorw("failed to save snapshot", "path", cfg.Entity.SnapshotPath, "error", err)
		}
	}
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *docschema.Config) {
	cfg.Entity.SchemaDirectory = getEnv("SCHEMA_DIR", cfg.Entity.SchemaDirectory)
	cfg.Entity.SnapshotPath = getEnv("SNAPSHOT_PATH", cfg.Entity.SnapshotPath)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.Username = getEnv("DB_USER", cfg.Database.Username)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)
	cfg.Database.MaxConnections = getEnvInt("DB_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.TableNames.Documents = getEnv("DOCUMENTS_TABLE", cfg.Database.TableNames.Documents)
	if v := os.Getenv("DB_USE_IAM_AUTH"); v != "" {
		cfg.Database.UseIAMAuth, _ = strconv.ParseBool(v)
	}
	cfg.Database.Region = getEnv("AWS_REGION", cfg.Database.Region)
	if secs := getEnvInt("DB_TIMEOUT_SECONDS", 0); secs > 0 {
		cfg.Database.Timeout = docschema.Duration(time.Duration(secs) * time.Second)
	}

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
