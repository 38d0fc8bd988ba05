package config

import (
	"fmt"
	"net/url"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*MatchAPIConfig, error) {
	return LoadConfigWith(viper.New(), configPath)
}

// LoadConfigWith loads into v, which may already carry bound CLI flags.
func LoadConfigWith(v *viper.Viper, configPath string) (*MatchAPIConfig, error) {
	// Set defaults matching DefaultMatchAPIConfig
	v.SetDefault("match_api.host", "0.0.0.0")
	v.SetDefault("match_api.port", 50051)
	v.SetDefault("match_api.max_connections", 1000)
	v.SetDefault("match_api.request_timeout", "30s")
	v.SetDefault("match_api.max_batch_size", 1000)
	v.SetDefault("match_api.workers", runtime.GOMAXPROCS(0))
	v.SetDefault("match_api.queue_depth", 256)
	v.SetDefault("match_api.rules_file", "")
	v.SetDefault("match_api.metrics_addr", ":9090")
	v.SetDefault("database.url", "sqlite://rulematch.db")

	// Bind environment variables with RM_ prefix
	v.SetEnvPrefix("RM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var fileDatabaseURL string
	if configPath != "" {
		// Read the file alone first so credentials can be traced to it
		file := viper.New()
		file.SetConfigFile(configPath)
		if err := file.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		fileDatabaseURL = file.GetString("database.url")

		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials must be environment-only
	if err := validateNoSecretsInConfig(fileDatabaseURL); err != nil {
		return nil, err
	}

	cfg := &MatchAPIConfig{
		Host:           v.GetString("match_api.host"),
		Port:           v.GetInt("match_api.port"),
		MaxConnections: v.GetInt("match_api.max_connections"),
		RequestTimeout: v.GetDuration("match_api.request_timeout"),
		MaxBatchSize:   v.GetInt("match_api.max_batch_size"),
		Workers:        v.GetInt("match_api.workers"),
		QueueDepth:     v.GetInt("match_api.queue_depth"),
		RulesFile:      v.GetString("match_api.rules_file"),
		MetricsAddr:    v.GetString("match_api.metrics_addr"),
		DatabaseURL:    v.GetString("database.url"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range and positive values for connections,
// timeout, batch size and worker settings.
func validateConfig(cfg *MatchAPIConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", cfg.MaxBatchSize)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be positive, got %d", cfg.QueueDepth)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database.url must be set")
	}
	return nil
}

// validateNoSecretsInConfig rejects a database password written into a
// config file (12-factor principle).
func validateNoSecretsInConfig(fileDatabaseURL string) error {
	if fileDatabaseURL == "" {
		return nil
	}
	u, err := url.Parse(fileDatabaseURL)
	if err != nil {
		return nil
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return fmt.Errorf("database passwords not allowed in config files (use RM_DATABASE_URL environment variable)")
	}
	return nil
}
