package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/ooye-live/chat"
	"github.com/onnwee/ooye-live/config"
	"github.com/onnwee/ooye-live/script"
	"github.com/onnwee/ooye-live/testutil"
)

type testEnv struct {
	handler http.Handler
	manager *chat.Manager
	source  *testutil.FakeSource
}

type envOption func(*config.Config, *chat.ManagerConfig)

// newTestEnv builds the full mux around a manager replaying source on the real clock.
func newTestEnv(t *testing.T, source *testutil.FakeSource, opts ...envOption) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &config.Config{}
	mcfg := chat.ManagerConfig{
		Session: chat.SessionConfig{
			ReactionWindow: 2 * time.Second,
			Viewer:         chat.Sender{Username: "You", FirstName: "Sanket", LastName: "Kalekar"},
		},
	}
	for _, o := range opts {
		o(cfg, &mcfg)
	}
	manager := chat.NewManager(ctx, source, mcfg)
	t.Cleanup(func() {
		manager.CloseAll()
		cancel()
	})
	return &testEnv{
		handler: NewMux(ctx, Deps{Manager: manager, Source: source, Config: cfg}),
		manager: manager,
		source:  source,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.ID
}

// waitReplayDone polls until the session's replay has finished.
func (e *testEnv) waitReplayDone(t *testing.T, id string) {
	t.Helper()
	s, err := e.manager.Get(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	select {
	case <-s.Sequencer.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("replay did not finish")
	}
}

type chatResponse struct {
	Entries []chat.Entry      `json:"entries"`
	Total   int               `json:"total"`
	Replay  chat.ReplayStatus `json:"replay"`
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return v
}

func greeting() *testutil.FakeSource {
	return testutil.NewFakeSource(
		testutil.Line("rohan", "hi", 0),
		testutil.Line("meera", "welcome", 10*time.Millisecond),
		testutil.Line("dev", "first time here", 0),
	)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, greeting())

	rr := env.do(t, http.MethodPost, "/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	created := decodeBody[struct {
		ID           string               `json:"id"`
		ScriptLength int                  `json:"scriptLength"`
		Viewer       chat.Sender          `json:"viewer"`
		Reactions    []chat.ReactionState `json:"reactions"`
	}](t, rr)
	if created.ID == "" || created.ScriptLength != 3 {
		t.Fatalf("unexpected create response: %+v", created)
	}
	if created.Viewer.Username != "You" {
		t.Errorf("expected viewer You, got %q", created.Viewer.Username)
	}
	if len(created.Reactions) != len(chat.DefaultReactionIcons) {
		t.Errorf("expected %d reactions, got %d", len(chat.DefaultReactionIcons), len(created.Reactions))
	}

	env.waitReplayDone(t, created.ID)

	rr = env.do(t, http.MethodGet, "/sessions/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("snapshot: expected 200, got %d", rr.Code)
	}
	snap := decodeBody[chat.Snapshot](t, rr)
	if len(snap.Entries) != 3 || !snap.Replay.Done || snap.Replay.Error != "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	rr = env.do(t, http.MethodDelete, "/sessions/"+created.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/sessions/"+created.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("after delete: expected 404, got %d", rr.Code)
	}
	if env.manager.Count() != 0 {
		t.Errorf("expected no open sessions, got %d", env.manager.Count())
	}
}

func TestSessionRouting(t *testing.T) {
	env := newTestEnv(t, greeting())
	id := env.createSession(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"list sessions is not allowed", http.MethodGet, "/sessions", http.StatusMethodNotAllowed},
		{"unknown session", http.MethodGet, "/sessions/nope", http.StatusNotFound},
		{"unknown session chat", http.MethodGet, "/sessions/nope/chat", http.StatusNotFound},
		{"missing id", http.MethodGet, "/sessions/", http.StatusNotFound},
		{"unknown sub-resource", http.MethodGet, "/sessions/" + id + "/bogus", http.StatusNotFound},
		{"chat is read only", http.MethodPost, "/sessions/" + id + "/chat", http.StatusMethodNotAllowed},
		{"input needs PUT", http.MethodPost, "/sessions/" + id + "/input", http.StatusMethodNotAllowed},
		{"submit needs POST", http.MethodGet, "/sessions/" + id + "/submit", http.StatusMethodNotAllowed},
		{"react needs POST", http.MethodGet, "/sessions/" + id + "/reactions/0", http.StatusMethodNotAllowed},
		{"session PATCH", http.MethodPatch, "/sessions/" + id, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, "")
			if rr.Code != tt.want {
				t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, rr.Code)
			}
		})
	}
}

func TestChatRange(t *testing.T) {
	env := newTestEnv(t, greeting())
	id := env.createSession(t)
	env.waitReplayDone(t, id)

	rr := env.do(t, http.MethodGet, "/sessions/"+id+"/chat", "")
	all := decodeBody[chatResponse](t, rr)
	if all.Total != 3 || len(all.Entries) != 3 {
		t.Fatalf("expected 3 entries, got total=%d len=%d", all.Total, len(all.Entries))
	}
	for i, e := range all.Entries {
		if e.Seq != i {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
		if e.Source != chat.SourceScript {
			t.Errorf("entry %d has source %q", i, e.Source)
		}
	}
	if all.Entries[1].Record.Message != "welcome" || all.Entries[1].Record.Sender.Username != "meera" {
		t.Errorf("unexpected second entry: %+v", all.Entries[1].Record)
	}

	rr = env.do(t, http.MethodGet, "/sessions/"+id+"/chat?from=1&limit=1", "")
	page := decodeBody[chatResponse](t, rr)
	if len(page.Entries) != 1 || page.Entries[0].Seq != 1 || page.Total != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}

	rr = env.do(t, http.MethodGet, "/sessions/"+id+"/chat?from=10", "")
	if past := decodeBody[chatResponse](t, rr); len(past.Entries) != 0 {
		t.Errorf("expected no entries past the end, got %d", len(past.Entries))
	}
}

func TestInputAndSubmit(t *testing.T) {
	env := newTestEnv(t, greeting())
	id := env.createSession(t)
	env.waitReplayDone(t, id)

	rr := env.do(t, http.MethodPut, "/sessions/"+id+"/input", `{"text":"hello chat"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("input: expected 200, got %d", rr.Code)
	}
	if got := decodeBody[map[string]string](t, rr)["input"]; got != "hello chat" {
		t.Errorf("expected input echo, got %q", got)
	}

	rr = env.do(t, http.MethodPost, "/sessions/"+id+"/submit", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	e := decodeBody[chat.Entry](t, rr)
	if e.Seq != 3 || e.Source != chat.SourceViewer {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Record.Message != "hello chat" || e.Record.Sender.Username != "You" || e.Record.Delay != chat.ViewerDelay {
		t.Errorf("unexpected record: %+v", e.Record)
	}

	rr = env.do(t, http.MethodGet, "/sessions/"+id, "")
	if snap := decodeBody[chat.Snapshot](t, rr); snap.Input != "" {
		t.Errorf("expected input cleared after submit, got %q", snap.Input)
	}

	// Text in the body replaces the buffer; blank messages are accepted by default.
	rr = env.do(t, http.MethodPost, "/sessions/"+id+"/submit", `{"text":"   "}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("blank submit: expected 201, got %d", rr.Code)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"input without text", http.MethodPut, "/input", `{}`},
		{"input with bad json", http.MethodPut, "/input", `{"text":`},
		{"submit with bad json", http.MethodPost, "/submit", `[`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, "/sessions/"+id+tt.path, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestSubmitRejectsBlank(t *testing.T) {
	env := newTestEnv(t, greeting(), func(_ *config.Config, m *chat.ManagerConfig) {
		m.Session.RejectBlank = true
	})
	id := env.createSession(t)

	rr := env.do(t, http.MethodPost, "/sessions/"+id+"/submit", `{"text":" \t "}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if msg := decodeBody[map[string]string](t, rr)["error"]; msg != chat.ErrBlankMessage.Error() {
		t.Errorf("unexpected error body %q", msg)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	env := newTestEnv(t, greeting())
	id := env.createSession(t)
	s, err := env.manager.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	// Closed directly, so the manager still routes to it.
	s.Close()

	rr := env.do(t, http.MethodPost, "/sessions/"+id+"/submit", `{"text":"anyone?"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestReactions(t *testing.T) {
	env := newTestEnv(t, greeting())
	id := env.createSession(t)

	rr := env.do(t, http.MethodGet, "/sessions/"+id+"/reactions", "")
	row := decodeBody[struct {
		Reactions []chat.ReactionState `json:"reactions"`
		WindowMS  int64                `json:"windowMs"`
	}](t, rr)
	if row.WindowMS != 2000 {
		t.Errorf("expected windowMs 2000, got %d", row.WindowMS)
	}
	for _, st := range row.Reactions {
		if st.Active {
			t.Errorf("reaction %d active before any press", st.Index)
		}
	}

	rr = env.do(t, http.MethodPost, "/sessions/"+id+"/reactions/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("react: expected 200, got %d", rr.Code)
	}
	if st := decodeBody[chat.ReactionState](t, rr); st.Index != 1 || !st.Active {
		t.Errorf("unexpected reaction state: %+v", st)
	}

	tests := []struct {
		index string
		want  int
	}{
		{"5", http.StatusUnprocessableEntity},
		{"-1", http.StatusUnprocessableEntity},
		{"heart", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/sessions/"+id+"/reactions/"+tt.index, "")
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestCreateSessionErrors(t *testing.T) {
	t.Run("session cap", func(t *testing.T) {
		env := newTestEnv(t, greeting(), func(_ *config.Config, m *chat.ManagerConfig) {
			m.MaxSessions = 1
		})
		env.createSession(t)
		rr := env.do(t, http.MethodPost, "/sessions", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		if rr.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}
	})

	t.Run("missing script", func(t *testing.T) {
		src := greeting()
		src.Fail(script.ErrNotFound)
		env := newTestEnv(t, src)
		if rr := env.do(t, http.MethodPost, "/sessions", ""); rr.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("broken source", func(t *testing.T) {
		src := greeting()
		src.Fail(errors.New("disk on fire"))
		env := newTestEnv(t, src)
		if rr := env.do(t, http.MethodPost, "/sessions", ""); rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
		if env.manager.Count() != 0 {
			t.Error("failed create left a session behind")
		}
	})
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, greeting())

	rr := env.do(t, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: got %d %q", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rr.Code)
	}

	env.source.Fail(script.ErrNotFound)
	rr = env.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with broken script: expected 503, got %d", rr.Code)
	}
	if check := decodeBody[map[string]string](t, rr)["failed_check"]; check != "script" {
		t.Errorf("expected failed_check=script, got %q", check)
	}

	empty := newTestEnv(t, testutil.NewFakeSource())
	if rr := empty.do(t, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with empty script: expected 503, got %d", rr.Code)
	}
}

func TestCorrelationID(t *testing.T) {
	env := newTestEnv(t, greeting())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("expected correlation id echoed, got %q", got)
	}

	rr = env.do(t, http.MethodGet, "/healthz", "")
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected a generated correlation id")
	}
}

func TestMuxCORSPreflight(t *testing.T) {
	env := newTestEnv(t, greeting(), func(c *config.Config, _ *chat.ManagerConfig) {
		c.CORS = config.CORSConfig{Env: "production", AllowedOrigins: []string{"https://ooye.live"}}
	})

	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	req.Header.Set("Origin", "https://ooye.live")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://ooye.live" {
		t.Errorf("expected allowed origin echoed, got %q", got)
	}
	if env.manager.Count() != 0 {
		t.Error("preflight created a session")
	}
}

func TestViewerWritesAreRateLimited(t *testing.T) {
	env := newTestEnv(t, greeting(), func(c *config.Config, _ *chat.ManagerConfig) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerIP: 2, Window: time.Minute}
	})
	id := env.createSession(t)

	submit := func() int {
		req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/submit", bytes.NewBufferString(`{"text":"spam"}`))
		req.RemoteAddr = "198.51.100.7:4242"
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		return rr.Code
	}
	for i := 0; i < 2; i++ {
		if code := submit(); code != http.StatusCreated {
			t.Fatalf("submit %d: expected 201, got %d", i+1, code)
		}
	}
	if code := submit(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}

	// Reads are not limited.
	for i := 0; i < 5; i++ {
		if rr := env.do(t, http.MethodGet, "/sessions/"+id+"/chat", ""); rr.Code != http.StatusOK {
			t.Fatalf("read %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}

func TestAdminSessions(t *testing.T) {
	env := newTestEnv(t, greeting(), func(c *config.Config, _ *chat.ManagerConfig) {
		c.Admin = config.AdminConfig{Token: "s3cret"}
	})
	id := env.createSession(t)

	rr := env.do(t, http.MethodGet, "/admin/sessions", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
	list := decodeBody[struct {
		Count    int `json:"count"`
		Sessions []struct {
			ID     string            `json:"id"`
			Replay chat.ReplayStatus `json:"replay"`
		} `json:"sessions"`
	}](t, rr)
	if list.Count != 1 || list.Sessions[0].ID != id || list.Sessions[0].Replay.Total != 3 {
		t.Fatalf("unexpected admin listing: %+v", list)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/scripts", nil)
	req.Header.Set("X-Admin-Token", "s3cret")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("scripts without a store: expected 503, got %d", rr.Code)
	}
}

func TestAdminScriptImportExport(t *testing.T) {
	database := testutil.SetupTestDB(t)
	testutil.CleanScripts(t, database)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := script.NewStore(database)
	manager := chat.NewManager(ctx, store.Named("greeting"), chat.ManagerConfig{})
	defer manager.CloseAll()
	handler := NewMux(ctx, Deps{
		Manager: manager,
		DB:      database,
		Store:   store,
		Config:  &config.Config{},
	})
	serve := func(req *http.Request) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	yamlBody := `description: hello world
records:
  - chatMessage: hi
    chatSender: {username: rohan}
    chatDelay: 0
  - messageType: new-member
    chatMessage: joined
    chatSender: {username: meera}
    chatDelay: 1.5s
`
	req := httptest.NewRequest(http.MethodPut, "/admin/scripts/greeting", strings.NewReader(yamlBody))
	req.Header.Set("Content-Type", "application/yaml")
	if rr := serve(req); rr.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := serve(httptest.NewRequest(http.MethodGet, "/admin/scripts/greeting?format=json", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", rr.Code)
	}
	doc, err := script.Decode(rr.Body.Bytes(), script.FormatJSON)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(doc.Records) != 2 || doc.Records[1].Delay != 1500*time.Millisecond || !doc.Records[1].IsNewMember() {
		t.Fatalf("unexpected exported script: %+v", doc.Records)
	}

	if rr := serve(httptest.NewRequest(http.MethodPost, "/sessions", nil)); rr.Code != http.StatusCreated {
		t.Fatalf("session from stored script: expected 201, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/scripts/greeting", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/csv")
	if rr := serve(req); rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("csv import: expected 415, got %d", rr.Code)
	}

	if rr := serve(httptest.NewRequest(http.MethodDelete, "/admin/scripts/greeting", nil)); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
	if rr := serve(httptest.NewRequest(http.MethodGet, "/admin/scripts/greeting", nil)); rr.Code != http.StatusNotFound {
		t.Fatalf("export after delete: expected 404, got %d", rr.Code)
	}
}
