package telstar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Nityam-7/TELSTAR/auth"
	"github.com/Nityam-7/TELSTAR/plugin"
	"github.com/Nityam-7/TELSTAR/store"
	"github.com/Nityam-7/TELSTAR/types"
	"github.com/Nityam-7/TELSTAR/usage"
)

// Engine is the billing engine. It is safe for concurrent use; per-customer
// serialization is delegated to the store's transactions.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	usage    usage.Source
	hasher   auth.Hasher
	tokens   auth.TokenIssuer
	clock    func() time.Time
	currency string
	migrate  bool
	validate *validator.Validate

	dummyOnce sync.Once
	dummyHash string
}

// New creates a new Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		usage:    usage.None,
		hasher:   auth.NewBcryptHasher(auth.DefaultBcryptCost),
		clock:    time.Now,
		currency: types.DefaultCurrency,
		migrate:  true,
		validate: newValidator(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.tokens == nil {
		e.tokens = auth.NewEphemeralJWTIssuer(auth.DefaultTokenTTL)
	}

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithUsageSource sets where billed units come from. nil bills zero units.
func WithUsageSource(src usage.Source) Option {
	return func(e *Engine) {
		if src == nil {
			src = usage.None
		}
		e.usage = src
	}
}

// WithHasher replaces the bcrypt password hasher.
func WithHasher(h auth.Hasher) Option {
	return func(e *Engine) { e.hasher = h }
}

// WithTokenIssuer sets the session token issuer. Without one, tokens are
// signed with a per-process random secret.
func WithTokenIssuer(t auth.TokenIssuer) Option {
	return func(e *Engine) { e.tokens = t }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithCurrency sets the single currency all plans and invoices are in.
func WithCurrency(currency string) Option {
	return func(e *Engine) { e.currency = types.Zero(currency).Currency }
}

// WithAutoMigrate controls whether Start migrates the store. Default true.
func WithAutoMigrate(enabled bool) Option {
	return func(e *Engine) { e.migrate = enabled }
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Engine) { e.plugins.WithTimeout(d) }
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if e.migrate {
		if err := e.store.Migrate(ctx); err != nil {
			return classify("migrate", err)
		}
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("telstar engine started",
		"currency", e.currency,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop notifies plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Currency returns the engine's billing currency.
func (e *Engine) Currency() string { return e.currency }

// Ping checks store connectivity.
func (e *Engine) Ping(ctx context.Context) error {
	return classify("ping", e.store.Ping(ctx))
}

func (e *Engine) now() time.Time { return e.clock().UTC() }
