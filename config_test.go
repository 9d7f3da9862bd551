package docschema

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Database.Host != "localhost" {
		t.Errorf("Expected database host to be 'localhost', got %s", config.Database.Host)
	}
	if config.Database.Port != 5432 {
		t.Errorf("Expected database port to be 5432, got %d", config.Database.Port)
	}
	if config.Database.TableNames.Documents != "documents" {
		t.Errorf("Expected documents table to be 'documents', got %s", config.Database.TableNames.Documents)
	}
	if config.Entity.HistoryCollection != "_history" || !config.Entity.EnableHistory {
		t.Errorf("Expected history enabled in '_history', got %+v", config.Entity)
	}
	if !config.Reference.CheckIntegrity || config.Reference.ValidateOnWrite {
		t.Errorf("Unexpected reference defaults %+v", config.Reference)
	}
	if config.Reference.MaxExpandDepth != 2 {
		t.Errorf("Expected max expand depth 2, got %d", config.Reference.MaxExpandDepth)
	}
	if config.Archive.OlderThan.Std() != 30*24*time.Hour {
		t.Errorf("Expected archive cutoff of 30 days, got %s", config.Archive.OlderThan.Std())
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"max connections", func(c *Config) { c.Database.MaxConnections = 0 }, "database.maxConnections"},
		{"min connections", func(c *Config) { c.Database.MinConnections = 100 }, "database.minConnections"},
		{"documents table", func(c *Config) { c.Database.TableNames.Documents = "" }, "database.tableNames.documents"},
		{"iam region", func(c *Config) { c.Database.UseIAMAuth = true }, "database.region"},
		{"history collection", func(c *Config) { c.Entity.HistoryCollection = "" }, "entity.historyCollection"},
		{"expand depth", func(c *Config) { c.Reference.MaxExpandDepth = -1 }, "reference.maxExpandDepth"},
		{"archive batch", func(c *Config) { c.Archive.BatchSize = 0 }, "archive.batchSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Fatalf("expected field %s, got %s", tt.field, ce.Field)
			}
		})
	}
}

func TestConfigValidate_HistoryDisabledAllowsEmptyCollection(t *testing.T) {
	config := DefaultConfig()
	config.Entity.EnableHistory = false
	config.Entity.HistoryCollection = ""
	if err := config.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseConfig_HuJSON(t *testing.T) {
	data := []byte(`{
		// local development
		"database": {
			"host": "db",
			"connMaxLifetime": "90s",
			"timeout": 5000000000,
		},
		"reference": {"validateOnWrite": true},
		"logging": {"level": "debug", "format": "console"},
	}`)

	config := DefaultConfig()
	if err := ParseConfig(data, config); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Database.Host != "db" {
		t.Errorf("Expected host 'db', got %s", config.Database.Host)
	}
	if config.Database.Port != 5432 {
		t.Errorf("Expected default port to survive, got %d", config.Database.Port)
	}
	if config.Database.ConnMaxLifetime.Std() != 90*time.Second {
		t.Errorf("Expected 90s lifetime, got %s", config.Database.ConnMaxLifetime.Std())
	}
	if config.Database.Timeout.Std() != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %s", config.Database.Timeout.Std())
	}
	if !config.Reference.ValidateOnWrite || !config.Reference.CheckIntegrity {
		t.Errorf("Unexpected reference config %+v", config.Reference)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", `{"database": `},
		{"type", `{"database": {"port": "x"}}`},
		{"duration", `{"server": {"readTimeout": "soon"}}`},
		{"validation", `{"database": {"maxConnections": 0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ParseConfig([]byte(tt.data), DefaultConfig()); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.jsonc"))
	if err != nil {
		t.Fatalf("missing file should yield defaults, got %v", err)
	}
	if config.Server.Port != 8080 {
		t.Errorf("Expected default server port, got %d", config.Server.Port)
	}

	path := filepath.Join(t.TempDir(), "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"server": {"port": 9090}}`), 0644); err != nil {
		t.Fatal(err)
	}
	config, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", config.Server.Port)
	}
}

func TestDurationMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Duration(1500 * time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `"1.5s"` {
		t.Fatalf("Expected \"1.5s\", got %s", data)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "warn", Format: "console"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewLogger(LoggingConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
	if _, err := NewLogger(LoggingConfig{Format: "xml"}); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}
