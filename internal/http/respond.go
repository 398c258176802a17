package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"billbuddy/internal/extract"
	"billbuddy/internal/services"
	"billbuddy/internal/store"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: http.StatusText(status), Message: message})
}

// writeServiceError maps service, store and extraction errors to statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	kind := ""

	switch {
	case errors.Is(err, services.ErrValidation):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, store.ErrNotFound):
		status, msg = http.StatusNotFound, "entry not found"
	case errors.Is(err, store.ErrAlreadySharing):
		status, msg = http.StatusConflict, "person already shares this entry"
	case errors.Is(err, store.ErrDuplicateID):
		status, msg = http.StatusConflict, "entry id already exists"
	case errors.Is(err, services.ErrExtractorUnavailable):
		status, msg = http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, extract.ErrUnknownMode):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		if k, ok := extract.KindOf(err); ok {
			kind = string(k)
			msg = "could not understand the recording"
			switch k {
			case extract.KindParse, extract.KindValidation:
				status = http.StatusUnprocessableEntity
			default:
				status, msg = http.StatusBadGateway, "extraction provider unavailable"
			}
		}
	}

	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "path", r.URL.Path, "status", status)
	}
	writeJSON(w, status, errorResponse{Error: http.StatusText(status), Message: msg, Kind: kind})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// sanitizeInput trims whitespace and strips control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func sanitizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, sanitizeInput(n))
	}
	return out
}
