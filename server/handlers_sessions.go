package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/telemetry"
)

// HandleSessions creates a session and starts its replay.
func (h *Handlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	s, err := h.manager.Create(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	telemetry.Annotate(r.Context(), telemetry.SessionAttr(s.ID), telemetry.ScriptLengthAttr(s.ScriptLen()))
	telemetry.LoggerWithCorr(r.Context()).Info("session created", slog.String("session", s.ID), slog.String("component", "http"))
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           s.ID,
		"createdAt":    s.CreatedAt,
		"scriptLength": s.ScriptLen(),
		"viewer":       s.Composer.Viewer(),
		"reactions":    s.Reactions.States(),
	})
}

// HandleSessionsDispatcher routes requests under /sessions/{id}/* to appropriate sub-handlers.
func (h *Handlers) HandleSessionsDispatcher(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	id, tail, _ := strings.Cut(path, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	s, err := h.manager.Get(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	switch {
	case tail == "":
		h.handleSession(w, r, s)
	case tail == "chat":
		h.handleChatJSON(w, r, s)
	case tail == "chat/stream":
		h.handleChatSSE(w, r, s)
	case tail == "input":
		h.handleInput(w, r, s)
	case tail == "submit":
		h.handleSubmit(w, r, s)
	case tail == "reactions":
		h.handleReactions(w, r, s)
	case strings.HasPrefix(tail, "reactions/"):
		h.handleReact(w, r, s, strings.TrimPrefix(tail, "reactions/"))
	case tail == "ws":
		h.handleWebSocket(w, r, s)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleSession(w http.ResponseWriter, r *http.Request, s *chat.Session) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.Snapshot())
	case http.MethodDelete:
		if err := h.manager.Close(s.ID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// handleChatJSON returns a slice of the chat log: from (seq, default 0), limit (default all, max 5000).
func (h *Handlers) handleChatJSON(w http.ResponseWriter, r *http.Request, s *chat.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	from := parseIntQuery(r, "from", 0)
	limit := parseIntQuery(r, "limit", 0)
	if limit < 0 || limit > 5000 {
		limit = 5000
	}
	entries := s.Log.Range(from, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   s.Log.Len(),
		"replay":  s.Replay(),
	})
}

type textBody struct {
	Text *string `json:"text"`
}

func (h *Handlers) handleInput(w http.ResponseWriter, r *http.Request, s *chat.Session) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	var body textBody
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Text == nil {
		http.Error(w, `missing "text"`, http.StatusBadRequest)
		return
	}
	s.SetInput(*body.Text)
	writeJSON(w, http.StatusOK, map[string]string{"input": s.Composer.Input()})
}

// handleSubmit submits the input buffer; a "text" field replaces the buffer first.
func (h *Handlers) handleSubmit(w http.ResponseWriter, r *http.Request, s *chat.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var body textBody
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var (
		e   chat.Entry
		err error
	)
	if body.Text != nil {
		e, err = s.Submit(*body.Text)
	} else {
		e, err = s.SubmitInput()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *Handlers) handleReactions(w http.ResponseWriter, r *http.Request, s *chat.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reactions": s.Reactions.States(),
		"windowMs":  s.Reactions.Window().Milliseconds(),
	})
}

func (h *Handlers) handleReact(w http.ResponseWriter, r *http.Request, s *chat.Session, index string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	i, err := strconv.Atoi(index)
	if err != nil {
		http.Error(w, "reaction index must be an integer", http.StatusBadRequest)
		return
	}
	st, err := s.React(i)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
