package extension

import "time"

// Config holds the TELSTAR extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.telstar" or "telstar" keys).
type Config struct {
	// DisableRoutes skips providing the REST handler in the container.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RequireAuth guards customer routes with session tokens.
	RequireAuth bool `json:"require_auth" mapstructure:"require_auth" yaml:"require_auth"`

	// Currency is the billing currency (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// UsageFromRecords bills recorded usage instead of zero units.
	UsageFromRecords bool `json:"usage_from_records" mapstructure:"usage_from_records" yaml:"usage_from_records"`

	// HookTimeout bounds each plugin hook call (default: 5s).
	HookTimeout time.Duration `json:"hook_timeout" mapstructure:"hook_timeout" yaml:"hook_timeout"`

	// TokenTTL is the session token lifetime (default: 24h).
	TokenTTL time.Duration `json:"token_ttl" mapstructure:"token_ttl" yaml:"token_ttl"`

	// JWTSecret signs session tokens. When empty each process signs with a
	// random secret, so tokens neither survive a restart nor validate on
	// another replica.
	JWTSecret string `json:"jwt_secret" mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:    "usd",
		HookTimeout: 5 * time.Second,
		TokenTTL:    24 * time.Hour,
	}
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic bool flags and values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.RequireAuth {
		yamlConfig.RequireAuth = true
	}
	if programmaticConfig.UsageFromRecords {
		yamlConfig.UsageFromRecords = true
	}

	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.HookTimeout == 0 && programmaticConfig.HookTimeout != 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}
	if yamlConfig.JWTSecret == "" && programmaticConfig.JWTSecret != "" {
		yamlConfig.JWTSecret = programmaticConfig.JWTSecret
	}
	if yamlConfig.TokenTTL == 0 && programmaticConfig.TokenTTL != 0 {
		yamlConfig.TokenTTL = programmaticConfig.TokenTTL
	}

	return mergeWithDefaults(yamlConfig)
}
