package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-streams/pkg/auth"
)

// DatabaseURLEnvPrefix prefixes the environment variables overriding one
// database binding, e.g. DATABASE_URL_ADMIN for db_id "admin".
const DatabaseURLEnvPrefix = "DATABASE_URL_"

// Config holds all configuration for ekaya-streams.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (database passwords, HMAC secret) should only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TCPAddr enables the newline-delimited JSON listener when set.
	TCPAddr string `yaml:"tcp_addr" env:"TCP_ADDR" env-default:""`

	// AllowedOriginsStr is a comma-separated list of host patterns allowed
	// to open cross-origin websocket connections.
	AllowedOriginsStr string   `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:""`
	AllowedOrigins    []string `yaml:"-"`

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth AuthConfig `yaml:"auth"`

	// Databases binds each db_id to a connection URL. The URL of one
	// binding can be replaced with DATABASE_URL_<DB_ID>.
	Databases map[string]string `yaml:"databases"`

	Pool PoolConfig `yaml:"pool"`

	// SchemaFile holds the entity and stream declarations.
	SchemaFile string `yaml:"schema_file" env:"SCHEMA_FILE" env-default:"schema.yaml"`

	Streams StreamsConfig `yaml:"streams"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`

	HMACSecret string `yaml:"-" env:"AUTH_HMAC_SECRET"` // Secret - not in YAML

	// AnonymousRolesStr is a comma-separated list of roles granted to
	// connections without a token.
	AnonymousRolesStr string   `yaml:"anonymous_roles" env:"AUTH_ANONYMOUS_ROLES" env-default:""`
	AnonymousRoles    []string `yaml:"-"`
}

// PoolConfig holds engine pool settings shared by every binding.
type PoolConfig struct {
	MaxConns           int32 `yaml:"max_conns" env:"POOL_MAX_CONNS" env-default:"10"`
	MinConns           int32 `yaml:"min_conns" env:"POOL_MIN_CONNS" env-default:"1"`
	MaxIdleTimeMinutes int   `yaml:"max_idle_time_minutes" env:"POOL_MAX_IDLE_TIME_MINUTES" env-default:"5"`
}

// StreamsConfig holds defaults of the stream layer.
type StreamsConfig struct {
	// DefaultMaxLimit bounds the page size of streams that declare no limit.
	DefaultMaxLimit int `yaml:"default_max_limit" env:"STREAMS_DEFAULT_MAX_LIMIT" env-default:"100"`
}

// Load reads configuration from path with environment variable overrides.
// A .env file in the working directory is loaded into the environment
// first. A missing config file is not an error; configuration then comes
// from the environment only.
func Load(path, version string) (*Config, error) {
	// Variables already set win over .env values.
	_ = godotenv.Load()

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Parse complex fields
	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.Auth.AnonymousRoles = parseList(c.Auth.AnonymousRolesStr)
	c.AllowedOrigins = parseList(c.AllowedOriginsStr)

	if c.Databases == nil {
		c.Databases = make(map[string]string)
	}
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		id, ok := strings.CutPrefix(name, DatabaseURLEnvPrefix)
		if !ok || id == "" || value == "" {
			continue
		}
		c.Databases[strings.ToLower(id)] = value
	}
	for id, rawURL := range c.Databases {
		c.Databases[id] = ResolveURLForDocker(rawURL)
	}
	return nil
}

func (c *Config) validate() error {
	if len(c.Databases) == 0 {
		return errors.New("at least one database binding is required")
	}
	for id, rawURL := range c.Databases {
		if _, err := datasource.Scheme(rawURL); err != nil {
			return fmt.Errorf("database %q: %w", id, err)
		}
	}
	if c.Streams.DefaultMaxLimit < 1 {
		return fmt.Errorf("streams.default_max_limit must be positive, got %d", c.Streams.DefaultMaxLimit)
	}
	return c.validateTLS()
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}
	return nil
}

// DatabaseIDs lists the bound db_ids in sorted order.
func (c *Config) DatabaseIDs() []string {
	ids := make([]string, 0, len(c.Databases))
	for id := range c.Databases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PoolOptions converts the pool section for the engine layer.
func (c *Config) PoolOptions() datasource.PoolOptions {
	return datasource.PoolOptions{
		MaxConns:        c.Pool.MaxConns,
		MinConns:        c.Pool.MinConns,
		ConnMaxIdleTime: time.Duration(c.Pool.MaxIdleTimeMinutes) * time.Minute,
	}
}

// ValidatorConfig converts the auth section for token validation.
func (c *Config) ValidatorConfig() *auth.ValidatorConfig {
	return &auth.ValidatorConfig{
		EnableVerification: c.Auth.EnableVerification,
		HMACSecret:         c.Auth.HMACSecret,
		JWKSEndpoints:      c.Auth.JWKSEndpoints,
	}
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

func parseList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
