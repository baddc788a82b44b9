// Package config loads the telstar service configuration: defaults, then an
// optional YAML file, then environment variables (a .env file is read first
// when present).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TELSTAR_"

// Config holds the service configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Store    StoreConfig    `yaml:"store"`
	Auth     AuthConfig     `yaml:"auth"`
	Billing  BillingConfig  `yaml:"billing"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	RequireAuth  bool          `yaml:"require_auth"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" validate:"gte=0"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

// StoreConfig selects the record store. DSN is a file path for sqlite, a
// postgres connection string, or a mongodb URI.
type StoreConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=memory sqlite postgres mongo"`
	DSN      string `yaml:"dsn" validate:"required_unless=Driver memory"`
	Database string `yaml:"database" validate:"required_if=Driver mongo"`
	MaxConns int    `yaml:"max_conns" validate:"gte=0"`
	Migrate  bool   `yaml:"migrate"`
}

type AuthConfig struct {
	// JWTSecret signs session tokens. Empty uses a per-process random secret.
	JWTSecret  string        `yaml:"jwt_secret" validate:"omitempty,min=16"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost" validate:"omitempty,min=4,max=31"`
}

type BillingConfig struct {
	Currency string `yaml:"currency" validate:"required,len=3"`
	// UsageFromRecords bills the usage recorded through POST /usage instead
	// of zero units.
	UsageFromRecords bool   `yaml:"usage_from_records"`
	InvoiceIssuer    string `yaml:"invoice_issuer"`
}

type EventBusConfig struct {
	Enabled          bool          `yaml:"enabled"`
	URL              string        `yaml:"url" validate:"required_if=Enabled true"`
	Exchange         string        `yaml:"exchange"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{Addr: ":8080", MaxBodyBytes: 1 << 20, ShutdownWait: 10 * time.Second},
		Store: StoreConfig{
			Driver:  "memory",
			Migrate: true,
		},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour, BcryptCost: 12},
		Billing:  BillingConfig{Currency: "usd", InvoiceIssuer: "TELSTAR"},
		EventBus: EventBusConfig{Exchange: "telstar.billing.events", FailureThreshold: 5, OpenTimeout: 30 * time.Second},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
// envFiles are passed to godotenv; a missing file is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// godotenv.Load never overrides variables already set.
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides fields from TELSTAR_* variables.
func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)

	e.str("HTTP_ADDR", &c.HTTP.Addr)
	e.boolean("HTTP_REQUIRE_AUTH", &c.HTTP.RequireAuth)
	e.int64("HTTP_MAX_BODY_BYTES", &c.HTTP.MaxBodyBytes)
	e.duration("HTTP_SHUTDOWN_WAIT", &c.HTTP.ShutdownWait)

	e.str("STORE_DRIVER", &c.Store.Driver)
	e.str("STORE_DSN", &c.Store.DSN)
	e.str("STORE_DATABASE", &c.Store.Database)
	e.integer("STORE_MAX_CONNS", &c.Store.MaxConns)
	e.boolean("STORE_MIGRATE", &c.Store.Migrate)

	e.str("JWT_SECRET", &c.Auth.JWTSecret)
	e.duration("TOKEN_TTL", &c.Auth.TokenTTL)
	e.integer("BCRYPT_COST", &c.Auth.BcryptCost)

	e.str("CURRENCY", &c.Billing.Currency)
	e.boolean("USAGE_FROM_RECORDS", &c.Billing.UsageFromRecords)
	e.str("INVOICE_ISSUER", &c.Billing.InvoiceIssuer)

	e.boolean("EVENTBUS_ENABLED", &c.EventBus.Enabled)
	e.str("RABBITMQ_URL", &c.EventBus.URL)
	e.str("EVENTBUS_EXCHANGE", &c.EventBus.Exchange)
	e.duration("EVENTBUS_OPEN_TIMEOUT", &c.EventBus.OpenTimeout)

	e.boolean("METRICS_ENABLED", &c.Metrics.Enabled)
	e.str("METRICS_PATH", &c.Metrics.Path)

	c.Billing.Currency = strings.ToLower(c.Billing.Currency)
	return e.err
}

// envReader keeps the first parse error so callers check once.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("config: %s%s=%q: %w", EnvPrefix, key, value, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) int64(key string, dst *int64) {
	if v, ok := e.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}
