package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Database type constants
const (
	// DatabaseTypeCouchDB represents an Apache CouchDB server reached over HTTP
	DatabaseTypeCouchDB = "couchdb"
	// DatabaseTypeMemory represents the in-process revisioned store
	DatabaseTypeMemory = "memory"
)

// Config is the root configuration structure for the connector
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DatabaseConfig configures the document database connection.
// URL, when set, overrides Protocol/Hostname/Port. Host and DB are aliases
// of Hostname and Database. Hostname has no default so the alias can apply;
// ResolvedURL falls back to localhost.
type DatabaseConfig struct {
	Type              string                            `mapstructure:"type" yaml:"type"` // couchdb, memory
	URL               string                            `mapstructure:"url" yaml:"url"`
	Protocol          string                            `mapstructure:"protocol" yaml:"protocol"`
	Hostname          string                            `mapstructure:"hostname" yaml:"hostname"`
	Host              string                            `mapstructure:"host" yaml:"host"`
	Port              int                               `mapstructure:"port" yaml:"port"`
	Database          string                            `mapstructure:"database" yaml:"database"`
	DB                string                            `mapstructure:"db" yaml:"db"`
	Username          string                            `mapstructure:"username" yaml:"username"`
	Password          string                            `mapstructure:"password" yaml:"password"`
	OperationTimeout  time.Duration                     `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	MaxConns          int                               `mapstructure:"max_conns" yaml:"max_conns"`
	RequestsPerSecond float64                           `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	BreakerThreshold  int                               `mapstructure:"breaker_threshold" yaml:"breaker_threshold"` // 0 disables
	BreakerCooldown   time.Duration                     `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
	DesignDocs        map[string]map[string]interface{} `mapstructure:"design_docs" yaml:"design_docs"`
	DesignDocsFile    string                            `mapstructure:"design_docs_file" yaml:"design_docs_file"`
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" yaml:"log_format"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "couchconnector",
			Environment: "production",
		},
		Database: DatabaseConfig{
			Type:             DatabaseTypeCouchDB,
			Protocol:         "http",
			Port:             5984,
			OperationTimeout: 5 * time.Second,
			MaxConns:         10,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingSampleRate: 1.0,
		},
	}
}

// DatabaseName returns the configured database name, honoring the db alias.
func (c DatabaseConfig) DatabaseName() string {
	if name := strings.TrimSpace(c.Database); name != "" {
		return name
	}
	return strings.TrimSpace(c.DB)
}

// ResolvedURL returns URL when set, otherwise protocol://hostname:port.
func (c DatabaseConfig) ResolvedURL() string {
	if u := strings.TrimSpace(c.URL); u != "" {
		return u
	}
	protocol := strings.TrimSpace(c.Protocol)
	if protocol == "" {
		protocol = "http"
	}
	hostname := strings.TrimSpace(c.Hostname)
	if hostname == "" {
		hostname = strings.TrimSpace(c.Host)
	}
	if hostname == "" {
		hostname = "localhost"
	}
	if c.Port <= 0 {
		return fmt.Sprintf("%s://%s", protocol, hostname)
	}
	return fmt.Sprintf("%s://%s:%d", protocol, hostname, c.Port)
}

// Redacted returns a copy safe to print: the password and any credentials
// embedded in URL are masked.
func (c Config) Redacted() Config {
	out := c
	if out.Database.Password != "" {
		out.Database.Password = "***"
	}
	if u, err := url.Parse(out.Database.URL); err == nil && u.User != nil {
		out.Database.URL = u.Redacted()
	}
	return out
}
