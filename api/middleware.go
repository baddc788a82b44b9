package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Nityam-7/TELSTAR/customer"
)

type contextKey string

const customerKey contextKey = "customer"

// CustomerFromContext returns the customer authenticated by the token
// middleware, if any.
func CustomerFromContext(ctx context.Context) (*customer.Customer, bool) {
	c, ok := ctx.Value(customerKey).(*customer.Customer)
	return c, ok
}

// statusRecorder captures the status code for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("http handler panic",
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBytesMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.maxBody > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the session token to a customer and stores it in
// the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"auth": false, "message": "No token provided."})
			return
		}

		c, err := s.engine.VerifyToken(r.Context(), token)
		if err != nil {
			if StatusFor(err) == http.StatusUnauthorized {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"auth": false, "message": "Failed to authenticate token."})
				return
			}
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), customerKey, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return strings.TrimSpace(r.Header.Get("x-access-token"))
}

// ownsMail reports whether the authenticated customer, when there is one,
// is the customer named in the request body.
func ownsMail(ctx context.Context, mail string) bool {
	c, ok := CustomerFromContext(ctx)
	if !ok {
		return true
	}
	return customer.NormalizeEmail(mail) == c.Email
}
