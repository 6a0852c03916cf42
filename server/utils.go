package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/script"
	"github.com/onnwee/ooye-live/telemetry"
)

// maxBodyBytes bounds request bodies, script imports included.
const maxBodyBytes = 1 << 20

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound), errors.Is(err, script.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrSessionClosed), errors.Is(err, chat.ErrLogClosed):
		return http.StatusConflict
	case errors.Is(err, chat.ErrBlankMessage), errors.Is(err, chat.ErrUnknownReaction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, script.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, chat.ErrTooManySessions):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes {"error": ...} with the mapped status; server errors are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		telemetry.LoggerWithCorr(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path), slog.Any("err", err), slog.String("component", "http"))
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allow ...string) {
	for _, m := range allow {
		w.Header().Add("Allow", m)
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
