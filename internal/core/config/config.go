// Package config provides configuration management for rulematch services.
package config

import (
	"fmt"
	"net/url"
	"runtime"
	"time"
)

// MatchAPIConfig holds configuration for the gRPC match API service.
type MatchAPIConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	// MaxBatchSize caps the records accepted by one unary Match call.
	MaxBatchSize int
	Workers      int
	QueueDepth   int
	// RulesFile is an optional YAML rule file synced into the store at
	// startup and on change.
	RulesFile   string
	MetricsAddr string
	DatabaseURL string
}

// DefaultMatchAPIConfig returns configuration with default values.
func DefaultMatchAPIConfig() *MatchAPIConfig {
	return &MatchAPIConfig{
		Host:           "0.0.0.0",
		Port:           50051,
		MaxConnections: 1000,
		RequestTimeout: 30 * time.Second,
		MaxBatchSize:   1000,
		Workers:        runtime.GOMAXPROCS(0),
		QueueDepth:     256,
		RulesFile:      "",
		MetricsAddr:    ":9090",
		DatabaseURL:    "sqlite://rulematch.db",
	}
}

// Address returns the gRPC listen address.
func (c *MatchAPIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedactedDatabaseURL returns the database URL with any password masked,
// suitable for logs.
func (c *MatchAPIConfig) RedactedDatabaseURL() string {
	u, err := url.Parse(c.DatabaseURL)
	if err != nil || u.User == nil {
		return c.DatabaseURL
	}
	return u.Redacted()
}
