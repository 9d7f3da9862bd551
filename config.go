package docschema

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

// Config holds engine, storage and tooling settings
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Entity    EntityConfig    `json:"entity"`
	Reference ReferenceConfig `json:"reference"`
	Logging   LoggingConfig   `json:"logging"`
	Archive   ArchiveConfig   `json:"archive"`
	Server    ServerConfig    `json:"server"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host            string     `json:"host"`
	Port            int        `json:"port"`
	Database        string     `json:"database"`
	Username        string     `json:"username"`
	Password        string     `json:"password"`
	SSLMode         string     `json:"sslMode"`
	MaxConnections  int        `json:"maxConnections"`
	MinConnections  int        `json:"minConnections"`
	ConnMaxLifetime Duration   `json:"connMaxLifetime"`
	ConnMaxIdleTime Duration   `json:"connMaxIdleTime"`
	Timeout         Duration   `json:"timeout"`
	UseIAMAuth      bool       `json:"useIamAuth"`
	Region          string     `json:"region"`
	TableNames      TableNames `json:"tableNames"`
}

// TableNames names the tables used by the Postgres store
type TableNames struct {
	Documents string `json:"documents"`
}

// EntityConfig contains document engine settings
type EntityConfig struct {
	SchemaDirectory   string `json:"schemaDirectory"`
	HistoryCollection string `json:"historyCollection"`
	EnableHistory     bool   `json:"enableHistory"`
	SnapshotPath      string `json:"snapshotPath"`
}

// ReferenceConfig contains reference management settings
type ReferenceConfig struct {
	// ValidateOnWrite rejects writes whose references point at missing documents.
	ValidateOnWrite bool `json:"validateOnWrite"`
	// CheckIntegrity enables the blocking check and dangling-reference cleanup on remove.
	CheckIntegrity bool `json:"checkIntegrity"`
	MaxExpandDepth int  `json:"maxExpandDepth"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"`
	Development bool   `json:"development"`
}

// ArchiveConfig controls export of history entries to Parquet on S3
type ArchiveConfig struct {
	DuckDBPath     string   `json:"duckdbPath"`
	MemoryLimitMB  int      `json:"memoryLimitMB"`
	Threads        int      `json:"threads"`
	WorkDir        string   `json:"workDir"`
	S3Bucket       string   `json:"s3Bucket"`
	S3Prefix       string   `json:"s3Prefix"`
	S3Region       string   `json:"s3Region"`
	S3Endpoint     string   `json:"s3Endpoint"`
	S3AccessKey    string   `json:"s3AccessKey"`
	S3SecretKey    string   `json:"s3SecretKey"`
	S3UsePathStyle bool     `json:"s3UsePathStyle"`
	BatchSize      int      `json:"batchSize"`
	OlderThan      Duration `json:"olderThan"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port            int      `json:"port"`
	ReadTimeout     Duration `json:"readTimeout"`
	WriteTimeout    Duration `json:"writeTimeout"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
}

// Duration is a time.Duration that reads either "5s" style strings or nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			SSLMode:         "disable",
			MaxConnections:  25,
			MinConnections:  1,
			ConnMaxLifetime: Duration(5 * time.Minute),
			ConnMaxIdleTime: Duration(5 * time.Minute),
			Timeout:         Duration(30 * time.Second),
			TableNames: TableNames{
				Documents: "documents",
			},
		},
		Entity: EntityConfig{
			HistoryCollection: "_history",
			EnableHistory:     true,
		},
		Reference: ReferenceConfig{
			ValidateOnWrite: false,
			CheckIntegrity:  true,
			MaxExpandDepth:  2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Archive: ArchiveConfig{
			MemoryLimitMB: 256,
			Threads:       2,
			S3Prefix:      "history",
			S3Region:      "us-east-1",
			BatchSize:     10000,
			OlderThan:     Duration(30 * 24 * time.Hour),
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

// LoadConfig reads a HuJSON (JSON with comments and trailing commas) file
// over the defaults. A missing path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := ParseConfig(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes HuJSON data into cfg and validates the result.
func ParseConfig(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}
	if err := json.Unmarshal(standardized, cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg.Validate()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.MaxConnections <= 0 {
		return &ConfigError{Field: "database.maxConnections", Message: "must be greater than 0"}
	}
	if c.Database.MinConnections < 0 || c.Database.MinConnections > c.Database.MaxConnections {
		return &ConfigError{Field: "database.minConnections", Message: "must be between 0 and maxConnections"}
	}
	if c.Database.TableNames.Documents == "" {
		return &ConfigError{Field: "database.tableNames.documents", Message: "must not be empty"}
	}
	if c.Database.UseIAMAuth && c.Database.Region == "" {
		return &ConfigError{Field: "database.region", Message: "is required when useIamAuth is set"}
	}
	if c.Entity.EnableHistory && c.Entity.HistoryCollection == "" {
		return &ConfigError{Field: "entity.historyCollection", Message: "must not be empty when history is enabled"}
	}
	if c.Reference.MaxExpandDepth < 0 {
		return &ConfigError{Field: "reference.maxExpandDepth", Message: "must not be negative"}
	}
	if c.Archive.BatchSize <= 0 {
		return &ConfigError{Field: "archive.batchSize", Message: "must be greater than 0"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
