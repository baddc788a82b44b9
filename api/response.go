package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	telstar "github.com/Nityam-7/TELSTAR"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) //nolint:errcheck // client went away
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	switch telstar.KindOf(err) {
	case telstar.KindValidation:
		return http.StatusBadRequest
	case telstar.KindNotFound:
		return http.StatusNotFound
	case telstar.KindConflict:
		// Registration has always answered a taken email with 400.
		if errors.Is(err, telstar.ErrDuplicateEmail) {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case telstar.KindInvalidCredentials:
		return http.StatusUnauthorized
	case telstar.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case telstar.KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status from StatusFor. Storage and
// unknown failures are logged and hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorResponse{Error: err.Error(), Kind: telstar.KindOf(err).String()}

	var verr telstar.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		body.Error = fmt.Sprintf("internal error (%s)", body.Kind)
	}

	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return telstar.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}
