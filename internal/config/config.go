package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	HTTP         HTTPConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	Telemetry    TelemetryConfig
	Invalidation InvalidationConfig
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string
}

// DSN returns the modernc.org/sqlite data source name. Transactions start
// IMMEDIATE so the flag swap takes the write lock up front.
func (c DatabaseConfig) DSN() string {
	if c.Path == ":memory:" {
		return c.Path
	}
	return "file:" + c.Path + "?_txlock=immediate&_pragma=busy_timeout(5000)"
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// Redis invalidator and invalidations are only logged.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// JWTConfig holds bearer token settings.
type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	ServiceName string
	Environment string // development or production
	Exporter    string // stdout, otlp or none
}

// InvalidationConfig controls how cache tags leave the process.
type InvalidationConfig struct {
	// Mode is "direct" (call the cache inline after the write) or "river"
	// (enqueue a durable job that calls the cache with retries).
	Mode    string
	Timeout time.Duration
}

// Load reads configuration with the following priority (highest first):
//  1. Environment variables with ORGSTATE_ prefix (e.g. ORGSTATE_HTTP_PORT)
//  2. The config file at path, or orgstate.toml in the working directory
//  3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("orgstate")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ORGSTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		HTTP: HTTPConfig{
			Port:              v.GetString("http.port"),
			ReadHeaderTimeout: v.GetDuration("http.read_header_timeout"),
			ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
			TTL:    v.GetDuration("jwt.ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			ServiceName: v.GetString("telemetry.service_name"),
			Environment: v.GetString("telemetry.environment"),
			Exporter:    v.GetString("telemetry.exporter"),
		},
		Invalidation: InvalidationConfig{
			Mode:    v.GetString("invalidation.mode"),
			Timeout: v.GetDuration("invalidation.timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_header_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("database.path", "orgstate.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "orgstate:invalidations")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "orgstate")
	v.SetDefault("jwt.ttl", time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("telemetry.service_name", "orgstate")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("invalidation.mode", "direct")
	v.SetDefault("invalidation.timeout", 5*time.Second)
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required (set ORGSTATE_JWT_SECRET)"))
	} else if c.Telemetry.Environment == "production" && len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("jwt.secret must be at least 32 bytes in production"))
	}

	switch c.Invalidation.Mode {
	case "direct", "river":
	default:
		errs = append(errs, fmt.Errorf("invalidation.mode %q is not one of direct, river", c.Invalidation.Mode))
	}

	switch c.Telemetry.Exporter {
	case "stdout", "otlp", "none":
	default:
		errs = append(errs, fmt.Errorf("telemetry.exporter %q is not one of stdout, otlp, none", c.Telemetry.Exporter))
	}

	if c.Invalidation.Timeout <= 0 {
		errs = append(errs, errors.New("invalidation.timeout must be positive"))
	}

	return errors.Join(errs...)
}
