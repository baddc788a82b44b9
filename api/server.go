// Package api exposes the billing engine over HTTP with gorilla/mux. The
// route set and JSON field names follow the service's original REST surface
// so existing clients keep working.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	telstar "github.com/Nityam-7/TELSTAR"
	"github.com/Nityam-7/TELSTAR/plan"
)

// Server holds the HTTP handlers for an Engine.
type Server struct {
	engine      *telstar.Engine
	logger      *slog.Logger
	requireAuth bool
	maxBody     int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRequireAuth guards customer routes with a session token issued by
// POST /login. Tokens are read from "Authorization: Bearer" or
// "x-access-token".
func WithRequireAuth(enabled bool) Option {
	return func(s *Server) { s.requireAuth = enabled }
}

// WithMaxBodyBytes caps request bodies. Zero disables the cap.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// New creates a Server for engine.
func New(engine *telstar.Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		logger:  slog.Default(),
		maxBody: 1 << 20,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns a router with every route and the standard middleware.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.recoverMiddleware, s.loggingMiddleware, s.maxBytesMiddleware)
	s.RegisterRoutes(router)
	return router
}

// RegisterRoutes registers the billing routes on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	router.HandleFunc("/register", s.register).Methods(http.MethodPost)
	router.HandleFunc("/login", s.login).Methods(http.MethodPost)
	router.HandleFunc("/admin/addPlan", s.addPlan).Methods(http.MethodPost)
	router.HandleFunc("/prepaidPlans", s.listPlans(plan.TypePrepaid, "prepaidPlans")).Methods(http.MethodGet)
	router.HandleFunc("/postpaidPlans", s.listPlans(plan.TypePostpaid, "postpaidPlans")).Methods(http.MethodGet)

	customer := router.NewRoute().Subrouter()
	if s.requireAuth {
		customer.Use(s.authMiddleware)
	}
	customer.HandleFunc("/choosePlan", s.choosePlan).Methods(http.MethodPost)
	customer.HandleFunc("/generateInvoice", s.generateInvoice).Methods(http.MethodPost)
	customer.HandleFunc("/invoices/{id}", s.getInvoice).Methods(http.MethodGet)
	customer.HandleFunc("/payPostpaidInvoice", s.payPostpaidInvoice).Methods(http.MethodPost)
	customer.HandleFunc("/viewInvoiceHistory", s.viewInvoiceHistory).Methods(http.MethodPost)
	customer.HandleFunc("/viewHistory", s.viewHistory).Methods(http.MethodPost)
	customer.HandleFunc("/downloadInvoice/{id}", s.downloadInvoice).Methods(http.MethodGet)
	customer.HandleFunc("/usage", s.recordUsage).Methods(http.MethodPost)
}

// NewHTTPServer wraps h with the timeouts used by the CLI.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
