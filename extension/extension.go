// Package extension provides the Forge extension adapter for TELSTAR.
//
// It implements the forge.Extension interface to integrate the billing
// engine into a Forge application with DI registration and lifecycle
// management. The engine and, unless disabled, the REST handler are
// provided in the container.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.telstar" or "telstar" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/api"
	"github.com/Nityam-7/TELSTAR/auth"
	"github.com/Nityam-7/TELSTAR/store"
	"github.com/Nityam-7/TELSTAR/store/memory"
	"github.com/Nityam-7/TELSTAR/usage"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "telstar"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Telecom subscription billing engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts TELSTAR as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *telstar.Engine
	server     *api.Server
	store      store.Store
	engineOpts []telstar.Option
}

// New creates a new TELSTAR Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *telstar.Engine { return e.engine }

// Server returns the REST handler set, or nil when routes are disabled.
func (e *Extension) Server() *api.Server { return e.server }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}
	e.engine = telstar.New(e.store, opts...)

	if err := vessel.Provide(fapp.Container(), func() (*telstar.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}
	e.server = api.New(e.engine, api.WithRequireAuth(e.config.RequireAuth))
	return vessel.Provide(fapp.Container(), func() (*api.Server, error) {
		return e.server, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("telstar: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("telstar: engine not initialized")
	}
	return e.engine.Ping(ctx)
}

// buildEngineOpts constructs telstar.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]telstar.Option, error) {
	tokens, err := e.tokenIssuer()
	if err != nil {
		return nil, err
	}

	opts := make([]telstar.Option, 0, len(e.engineOpts)+5)

	opts = append(opts,
		telstar.WithCurrency(e.config.Currency),
		telstar.WithHookTimeout(e.config.HookTimeout),
		telstar.WithAutoMigrate(!e.config.DisableMigrate),
		telstar.WithTokenIssuer(tokens),
	)
	if e.config.UsageFromRecords {
		opts = append(opts, telstar.WithUsageSource(usage.NewStoreSource(e.store)))
	}

	// Pass-through options come last so they win.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// tokenIssuer signs with the configured secret, or a random one when unset.
func (e *Extension) tokenIssuer() (auth.TokenIssuer, error) {
	if e.config.JWTSecret == "" {
		return auth.NewEphemeralJWTIssuer(e.config.TokenTTL), nil
	}
	issuer, err := auth.NewJWTIssuer([]byte(e.config.JWTSecret), e.config.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("telstar: extension config: %w", err)
	}
	return issuer, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("telstar: configuration is required but not found in config files; " +
				"ensure 'extensions.telstar' or 'telstar' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("telstar: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("require_auth", e.config.RequireAuth),
		forge.F("currency", e.config.Currency),
		forge.F("usage_from_records", e.config.UsageFromRecords),
		forge.F("hook_timeout", e.config.HookTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.telstar", "telstar"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("telstar: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("telstar: failed to bind config", forge.F("key", key))
	}

	return Config{}, false
}
