package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/telemetry"
)

const (
	sseKeepAlive   = 15 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = wsPongWait * 9 / 10
	wsMaxMessage   = 4096
)

// writeSSE writes one Server-Sent Event. id may be empty.
func writeSSE(w http.ResponseWriter, event, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

// handleChatSSE streams the chat log as Server-Sent Events: the backlog from ?from= (or the
// Last-Event-ID header) first, then live entries and reaction changes until the session ends
// or the client goes away.
func (h *Handlers) handleChatSSE(w http.ResponseWriter, r *http.Request, s *chat.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	from := parseIntQuery(r, "from", 0)
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if n, err := strconv.Atoi(last); err == nil {
			from = n + 1
		}
	}

	feed, backlog := newEntryFeed(s, from)
	defer feed.Close()
	reactions := s.SubscribeReactions()
	defer func() { reactions.Close() }()
	telemetry.AddStreamSubscribers(1)
	defer telemetry.AddStreamSubscribers(-1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	logger := telemetry.LoggerWithCorr(r.Context()).With(slog.String("session", s.ID), slog.String("component", "sse"))
	sendEntries := func(entries []chat.Entry) error {
		for _, e := range entries {
			if err := writeSSE(w, "chat", strconv.Itoa(e.Seq), e); err != nil {
				return err
			}
			feed.sent(e)
		}
		return nil
	}
	if err := sendEntries(backlog); err != nil {
		logger.Debug("sse write failed", slog.Any("err", err))
		return
	}
	flusher.Flush()

	keepAlive := h.clock.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	reactC := reactions.C
	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-feed.C():
			if ok {
				err = sendEntries([]chat.Entry{e})
				break
			}
			missed, live := feed.resume()
			if !live {
				_ = writeSSE(w, "end", "", s.Replay())
				flusher.Flush()
				return
			}
			logger.Debug("sse stream fell behind, resubscribed", slog.Int("missed", len(missed)))
			telemetry.IncStreamResume("sse")
			err = sendEntries(missed)
		case st, ok := <-reactC:
			if ok {
				err = writeSSE(w, "reaction", "", st)
				break
			}
			var states []chat.ReactionState
			var live bool
			if reactions, states, live = resumeReactions(s, reactions); !live {
				reactC = nil
				continue
			}
			reactC = reactions.C
			for _, st := range states {
				if err = writeSSE(w, "reaction", "", st); err != nil {
					break
				}
			}
		case <-keepAlive.Chan():
			_, err = fmt.Fprint(w, ": ping\n\n")
		}
		if err != nil {
			logger.Debug("sse write failed", slog.Any("err", err))
			return
		}
		flusher.Flush()
	}
}

// wsFrame is the websocket message shape in both directions.
// Client frames: input{text}, submit{text?}, react{index}.
// Server frames: chat{entry}, reaction{reaction}, error{error}, end{replay}.
type wsFrame struct {
	Type     string              `json:"type"`
	Text     *string             `json:"text,omitempty"`
	Index    *int                `json:"index,omitempty"`
	Entry    *chat.Entry         `json:"entry,omitempty"`
	Reaction *chat.ReactionState `json:"reaction,omitempty"`
	Replay   *chat.ReplayStatus  `json:"replay,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// handleClientFrame applies one client frame to the session. Chat entries and reaction
// changes reach the client through the subscriptions, so only failures are answered.
func handleClientFrame(s *chat.Session, f wsFrame) error {
	switch f.Type {
	case "input":
		if f.Text == nil {
			return errors.New(`input frame needs "text"`)
		}
		s.SetInput(*f.Text)
		return nil
	case "submit":
		var err error
		if f.Text != nil {
			_, err = s.Submit(*f.Text)
		} else {
			_, err = s.SubmitInput()
		}
		return err
	case "react":
		if f.Index == nil {
			return errors.New(`react frame needs "index"`)
		}
		_, err := s.React(*f.Index)
		return err
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
}

// handleWebSocket serves a bidirectional session connection. One goroutine reads client
// frames; this goroutine owns every write.
func (h *Handlers) handleWebSocket(w http.ResponseWriter, r *http.Request, s *chat.Session) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		return
	}
	defer func() { _ = conn.Close() }()

	logger := telemetry.LoggerWithCorr(r.Context()).With(slog.String("session", s.ID), slog.String("component", "ws"))
	feed, backlog := newEntryFeed(s, 0)
	defer feed.Close()
	reactions := s.SubscribeReactions()
	defer func() { reactions.Close() }()
	telemetry.AddStreamSubscribers(1)
	defer telemetry.AddStreamSubscribers(-1)

	replies := make(chan wsFrame, 16)
	readDone := make(chan struct{})
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(readDone)
		for {
			var f wsFrame
			if err := conn.ReadJSON(&f); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read failed", slog.Any("err", err))
				}
				return
			}
			if err := handleClientFrame(s, f); err != nil {
				select {
				case replies <- wsFrame{Type: "error", Error: err.Error()}:
				default:
				}
			}
		}
	}()

	write := func(f wsFrame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(f)
	}
	sendEntries := func(entries []chat.Entry) error {
		for i := range entries {
			if err := write(wsFrame{Type: "chat", Entry: &entries[i]}); err != nil {
				return err
			}
			feed.sent(entries[i])
		}
		return nil
	}
	if err := sendEntries(backlog); err != nil {
		return
	}

	ping := h.clock.NewTicker(wsPingPeriod)
	defer ping.Stop()
	reactC := reactions.C
	for {
		var err error
		select {
		case <-readDone:
			return
		case <-h.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
			return
		case e, ok := <-feed.C():
			if ok {
				err = sendEntries([]chat.Entry{e})
				break
			}
			missed, live := feed.resume()
			if !live {
				st := s.Replay()
				_ = write(wsFrame{Type: "end", Replay: &st})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), time.Now().Add(time.Second))
				return
			}
			logger.Debug("websocket stream fell behind, resubscribed", slog.Int("missed", len(missed)))
			telemetry.IncStreamResume("ws")
			err = sendEntries(missed)
		case st, ok := <-reactC:
			if ok {
				err = write(wsFrame{Type: "reaction", Reaction: &st})
				break
			}
			var states []chat.ReactionState
			var live bool
			if reactions, states, live = resumeReactions(s, reactions); !live {
				reactC = nil
				continue
			}
			reactC = reactions.C
			for i := range states {
				if err = write(wsFrame{Type: "reaction", Reaction: &states[i]}); err != nil {
					break
				}
			}
		case f := <-replies:
			err = write(f)
		case <-ping.Chan():
			err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
		}
		if err != nil {
			logger.Debug("websocket write failed", slog.Any("err", err))
			return
		}
	}
}
