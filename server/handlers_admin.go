package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/script"
	"github.com/onnwee/ooye-live/telemetry"
)

var errStoreDisabled = errors.New("script store not configured (set DB_DSN)")

// HandleAdminSessions lists open sessions with their replay progress.
func (h *Handlers) HandleAdminSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	type sessionSummary struct {
		ID         string            `json:"id"`
		CreatedAt  time.Time         `json:"createdAt"`
		LastActive time.Time         `json:"lastActive"`
		Entries    int               `json:"entries"`
		Replay     chat.ReplayStatus `json:"replay"`
	}
	sessions := h.manager.List()
	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{
			ID:         s.ID,
			CreatedAt:  s.CreatedAt,
			LastActive: s.LastActive().UTC(),
			Entries:    s.Log.Len(),
			Replay:     s.Replay(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out, "count": len(out)})
}

// HandleAdminScripts lists stored scripts.
func (h *Handlers) HandleAdminScripts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": errStoreDisabled.Error()})
		return
	}
	infos, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scripts": infos})
}

// HandleAdminScript imports (PUT), exports (GET) or deletes (DELETE) /admin/scripts/{name}.
// The format comes from ?format= or the Content-Type / Accept header and defaults to JSON.
func (h *Handlers) HandleAdminScript(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/admin/scripts/")
	if name == "" || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": errStoreDisabled.Error()})
		return
	}
	switch r.Method {
	case http.MethodPut:
		h.importScript(w, r, name)
	case http.MethodGet:
		h.exportScript(w, r, name)
	case http.MethodDelete:
		if err := h.store.Delete(r.Context(), name); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// requestFormat picks a script format from the query string or the given header.
func requestFormat(r *http.Request, header string) (script.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return script.ParseFormat(f)
	}
	if v := r.Header.Get(header); v != "" && v != "*/*" {
		return script.ParseFormat(v)
	}
	return script.FormatJSON, nil
}

func (h *Handlers) importScript(w http.ResponseWriter, r *http.Request, name string) {
	format, err := requestFormat(r, "Content-Type")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	doc, err := script.Decode(data, format)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	if err := h.store.Save(r.Context(), name, "import", doc); err != nil {
		writeError(w, r, err)
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("script imported",
		slog.String("name", name), slog.Int("records", len(doc.Records)), slog.String("component", "admin"))
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "records": len(doc.Records)})
}

func (h *Handlers) exportScript(w http.ResponseWriter, r *http.Request, name string) {
	format, err := requestFormat(r, "Accept")
	if err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := h.store.Load(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if format == script.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := script.Encode(w, script.Document{Name: name, Records: recs}, format); err != nil {
		slog.Warn("script export write failed", slog.Any("err", err), slog.String("component", "admin"))
	}
}
