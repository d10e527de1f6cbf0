package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "COUCH")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.DesignDocsFile != "" {
		docs, err := LoadDesignDocsFile(cfg.Database.DesignDocsFile)
		if err != nil {
			return nil, err
		}
		if cfg.Database.DesignDocs == nil {
			cfg.Database.DesignDocs = make(map[string]map[string]interface{}, len(docs))
		}
		for name, def := range docs {
			cfg.Database.DesignDocs[name] = def
		}
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadDesignDocsFile reads a YAML or JSON file mapping design document names
// to their definitions. Keys keep their original case, unlike viper-managed keys.
func LoadDesignDocsFile(path string) (map[string]map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read design docs file %s: %w", path, err)
	}
	docs := map[string]map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse design docs file %s: %w", path, err)
	}
	return docs, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Database
	v.BindEnv("database.type", l.prefixedEnv("DB_TYPE"))
	v.BindEnv("database.url", l.prefixedEnv("DB_URL"))
	v.BindEnv("database.protocol", l.prefixedEnv("DB_PROTOCOL"))
	v.BindEnv("database.hostname", l.prefixedEnv("DB_HOSTNAME"))
	v.BindEnv("database.host", l.prefixedEnv("DB_HOST"))
	v.BindEnv("database.port", l.prefixedEnv("DB_PORT"))
	v.BindEnv("database.database", l.prefixedEnv("DB_DATABASE"), l.prefixedEnv("DB_NAME"))
	v.BindEnv("database.db", l.prefixedEnv("DB_DB"))
	v.BindEnv("database.username", l.prefixedEnv("DB_USERNAME"))
	v.BindEnv("database.password", l.prefixedEnv("DB_PASSWORD"))
	v.BindEnv("database.operation_timeout", l.prefixedEnv("DB_OPERATION_TIMEOUT"))
	v.BindEnv("database.max_conns", l.prefixedEnv("DB_MAX_CONNS"))
	v.BindEnv("database.requests_per_second", l.prefixedEnv("DB_REQUESTS_PER_SECOND"))
	v.BindEnv("database.breaker_threshold", l.prefixedEnv("DB_BREAKER_THRESHOLD"))
	v.BindEnv("database.breaker_cooldown", l.prefixedEnv("DB_BREAKER_COOLDOWN"))
	v.BindEnv("database.design_docs_file", l.prefixedEnv("DB_DESIGN_DOCS_FILE"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "COUCH"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.protocol", cfg.Database.Protocol)
	v.SetDefault("database.hostname", cfg.Database.Hostname)
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.database", cfg.Database.Database)
	v.SetDefault("database.db", cfg.Database.DB)
	v.SetDefault("database.username", cfg.Database.Username)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.operation_timeout", cfg.Database.OperationTimeout)
	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.requests_per_second", cfg.Database.RequestsPerSecond)
	v.SetDefault("database.breaker_threshold", cfg.Database.BreakerThreshold)
	v.SetDefault("database.breaker_cooldown", cfg.Database.BreakerCooldown)
	v.SetDefault("database.design_docs_file", cfg.Database.DesignDocsFile)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
}

// Validate validates the configuration and returns detailed errors.
// A missing database name is not reported here; the connector rejects it at connect time.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))
	validTypes := []string{DatabaseTypeCouchDB, DatabaseTypeMemory}
	if !contains(validTypes, cfg.Database.Type) {
		errs = append(errs, fmt.Errorf("invalid database.type: %s (must be one of: %v)", cfg.Database.Type, validTypes))
	}

	if cfg.Database.Port < 0 || cfg.Database.Port > 65535 {
		errs = append(errs, fmt.Errorf("database.port must be between 0 and 65535, got %d", cfg.Database.Port))
	}
	if cfg.Database.OperationTimeout < 0 {
		errs = append(errs, errors.New("database.operation_timeout must not be negative"))
	}
	if cfg.Database.MaxConns < 0 {
		errs = append(errs, errors.New("database.max_conns must not be negative"))
	}
	if cfg.Database.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("database.requests_per_second must not be negative"))
	}
	if cfg.Database.BreakerThreshold < 0 {
		errs = append(errs, errors.New("database.breaker_threshold must not be negative"))
	}
	if cfg.Database.BreakerThreshold > 0 && cfg.Database.BreakerCooldown <= 0 {
		errs = append(errs, errors.New("database.breaker_cooldown must be positive when the breaker is enabled"))
	}
	for name := range cfg.Database.DesignDocs {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("database.design_docs contains an empty name"))
		}
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(cfg.Observability.LogLevel)) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s (must be one of: %v)", cfg.Observability.LogLevel, validLevels))
	}
	validFormats := []string{"json", "text", "console"}
	if !contains(validFormats, strings.ToLower(cfg.Observability.LogFormat)) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s (must be one of: %v)", cfg.Observability.LogFormat, validFormats))
	}

	if cfg.Observability.TracingEnabled {
		if strings.TrimSpace(cfg.Observability.TracingEndpoint) == "" {
			errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
		}
		if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
			errs = append(errs, errors.New("observability.tracing_sample_rate must be between 0 and 1"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
