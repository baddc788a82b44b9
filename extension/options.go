package extension

import (
	"time"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/plugin"
	"github.com/Nityam-7/TELSTAR/store"
)

// Option configures the TELSTAR Forge extension.
type Option func(*Extension)

// WithStore sets the store for the billing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a telstar.Option through to the underlying engine.
func WithEngineOption(opt telstar.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, telstar.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes skips providing the REST handler.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireAuth guards customer routes with session tokens.
func WithRequireAuth() Option {
	return func(e *Extension) { e.config.RequireAuth = true }
}

// WithCurrency sets the billing currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithUsageFromRecords bills recorded usage.
func WithUsageFromRecords() Option {
	return func(e *Extension) { e.config.UsageFromRecords = true }
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HookTimeout = d }
}

// WithJWTSecret sets the shared secret session tokens are signed with.
func WithJWTSecret(secret string) Option {
	return func(e *Extension) { e.config.JWTSecret = secret }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
