package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"restaurant-floor/internal/apperr"
	"restaurant-floor/internal/logger"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error     string  `json:"error"`
	Code      string  `json:"code"`
	LineIDs   []int64 `json:"line_ids,omitempty"`
	Timestamp string  `json:"timestamp"`
	RequestID string  `json:"request_id"`
}

// StatusFor maps an error onto its HTTP status code
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrIncompleteOrder),
		errors.Is(err, apperr.ErrInsufficientPoints),
		errors.Is(err, apperr.ErrBelowMinimum):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict),
		errors.Is(err, apperr.ErrStaleState),
		errors.Is(err, apperr.ErrInvalidTransition),
		errors.Is(err, apperr.ErrCannotRegress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps err to a status and writes the error body. Internal
// errors are logged and their details withheld from the client.
func WriteError(w http.ResponseWriter, r *http.Request, log *logger.Logger, action string, err error) {
	requestID := logger.RequestID(r.Context())
	status := StatusFor(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(action, "Request failed", requestID, err, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		message = "Internal server error"
	} else {
		log.Debug(action, message, requestID, map[string]interface{}{
			"status_code": status,
			"code":        apperr.Code(err),
		})
	}

	WriteJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      apperr.Code(err),
		LineIDs:   apperr.LineIDs(err),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	})
}

// DecodeJSON strictly decodes the request body into v
func DecodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

// PathID parses a positive integer path parameter
func PathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Validation("invalid %s %q", name, raw)
	}
	return id, nil
}

// QueryID parses an optional positive integer query parameter
func QueryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return nil, apperr.Validation("invalid %s %q", name, raw)
	}
	return &id, nil
}

// Describe is a short "METHOD path" label for logs
func Describe(r *http.Request) string {
	return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
}
