package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		want := DefaultMatchAPIConfig()
		if *cfg != *want {
			t.Errorf("LoadConfig(\"\") = %+v, want %+v", *cfg, *want)
		}
		if cfg.RequestTimeout != 30*time.Second {
			t.Errorf("expected timeout 30s, got %v", cfg.RequestTimeout)
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("RM_MATCH_API_PORT", "9999")
		t.Setenv("RM_MATCH_API_HOST", "127.0.0.1")
		t.Setenv("RM_MATCH_API_WORKERS", "3")
		t.Setenv("RM_DATABASE_URL", "postgres://rm:secret@db/rulematch")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != 9999 {
			t.Errorf("expected port 9999, got %d", cfg.Port)
		}
		if cfg.Host != "127.0.0.1" {
			t.Errorf("expected host 127.0.0.1, got %s", cfg.Host)
		}
		if cfg.Workers != 3 {
			t.Errorf("expected workers 3, got %d", cfg.Workers)
		}
		if cfg.DatabaseURL != "postgres://rm:secret@db/rulematch" {
			t.Errorf("expected database url from env, got %s", cfg.DatabaseURL)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("RM_MATCH_API_PORT", "8080")
		path := writeConfig(t, "match_api:\n  port: 9090\n  max_batch_size: 50\n")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Port != 8080 {
			t.Errorf("expected env port 8080 over file 9090, got %d", cfg.Port)
		}
		if cfg.MaxBatchSize != 50 {
			t.Errorf("expected max_batch_size 50 from file, got %d", cfg.MaxBatchSize)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("database password in file rejected", func(t *testing.T) {
		path := writeConfig(t, "database:\n  url: postgres://rm:secret@db/rulematch\n")

		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("expected error for password in config file")
		}
		if err.Error() != "database passwords not allowed in config files (use RM_DATABASE_URL environment variable)" {
			t.Errorf("wrong error message: %v", err)
		}
	})

	t.Run("database url without password in file", func(t *testing.T) {
		path := writeConfig(t, "database:\n  url: sqlite:///var/lib/rulematch/rules.db\n")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DatabaseURL != "sqlite:///var/lib/rulematch/rules.db" {
			t.Errorf("expected database url from file, got %s", cfg.DatabaseURL)
		}
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MatchAPIConfig)
	}{
		{name: "port too large", mutate: func(c *MatchAPIConfig) { c.Port = 70000 }},
		{name: "port zero", mutate: func(c *MatchAPIConfig) { c.Port = 0 }},
		{name: "negative max_connections", mutate: func(c *MatchAPIConfig) { c.MaxConnections = -1 }},
		{name: "zero timeout", mutate: func(c *MatchAPIConfig) { c.RequestTimeout = 0 }},
		{name: "zero batch size", mutate: func(c *MatchAPIConfig) { c.MaxBatchSize = 0 }},
		{name: "zero workers", mutate: func(c *MatchAPIConfig) { c.Workers = 0 }},
		{name: "zero queue depth", mutate: func(c *MatchAPIConfig) { c.QueueDepth = 0 }},
		{name: "empty database url", mutate: func(c *MatchAPIConfig) { c.DatabaseURL = "" }},
	}

	if err := validateConfig(DefaultMatchAPIConfig()); err != nil {
		t.Fatalf("validateConfig(defaults) error = %v, want nil", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMatchAPIConfig()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Errorf("validateConfig() error = nil, want error")
			}
		})
	}
}

func TestLoadConfig_InvalidEnvironment(t *testing.T) {
	t.Setenv("RM_MATCH_API_MAX_CONNECTIONS", "-1")

	if _, err := LoadConfig(""); err == nil {
		t.Error("expected error for negative max_connections")
	}
}

func TestRedactedDatabaseURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "postgres://rm:secret@db/rulematch", want: "postgres://rm:xxxxx@db/rulematch"},
		{url: "sqlite://rules.db", want: "sqlite://rules.db"},
		{url: "sqlite://:memory:", want: "sqlite://:memory:"},
	}
	for _, tt := range tests {
		cfg := &MatchAPIConfig{DatabaseURL: tt.url}
		if got := cfg.RedactedDatabaseURL(); got != tt.want {
			t.Errorf("RedactedDatabaseURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
