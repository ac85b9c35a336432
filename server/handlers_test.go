package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/groupgist/groupgist/db"
	"github.com/groupgist/groupgist/summarize"
	"github.com/groupgist/groupgist/telemetry"
	"github.com/groupgist/groupgist/watchlist"
)

type fakeBridge struct{ connected bool }

func (f *fakeBridge) IsConnected() bool { return f.connected }

// fakeMessages serves canned history keyed by chat username or title.
type fakeMessages struct {
	byUsername map[string][]db.Message
	byTitle    map[string][]db.Message
	err        error
}

func (f *fakeMessages) ByChatUsername(_ context.Context, username string, limit int) ([]db.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	msgs := f.byUsername[username]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeMessages) ByChatTitle(_ context.Context, title string, limit int) ([]db.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	msgs := f.byTitle[title]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeMessages) CountByChat(_ context.Context, chatID int64) (int, error) {
	n := 0
	for _, msgs := range f.byUsername {
		for _, m := range msgs {
			if m.ChatID == chatID {
				n++
			}
		}
	}
	return n, nil
}

func (f *fakeMessages) LatestByChatUsername(_ context.Context, username string) (*db.Message, error) {
	msgs := f.byUsername[username]
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

func newTestStore(t *testing.T, groups []string) *watchlist.Store {
	t.Helper()
	store, err := watchlist.New(filepath.Join(t.TempDir(), "watchlist.json"), groups)
	if err != nil {
		t.Fatalf("watchlist.New: %v", err)
	}
	return store
}

func newTestHandlers(t *testing.T, store *watchlist.Store, msgs MessageReader, sum Summarizer) *Handlers {
	t.Helper()
	telemetry.Init()
	if msgs == nil {
		msgs = &fakeMessages{}
	}
	return NewHandlers(nil, store, &fakeBridge{connected: true}, msgs, sum, 100)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHandleStatus(t *testing.T) {
	h := newTestHandlers(t, newTestStore(t, []string{"@alpha", "@beta"}), nil, nil)

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	body := decodeBody(t, rec)
	if body["is_connected"] != true {
		t.Fatalf("is_connected = %v", body["is_connected"])
	}
	groups, _ := body["groups"].([]any)
	if len(groups) != 2 || groups[0] != "@alpha" {
		t.Fatalf("groups = %v", body["groups"])
	}
}

func TestHandleGroups(t *testing.T) {
	msgs := &fakeMessages{byUsername: map[string][]db.Message{
		"alpha": {{ChatID: 1, ChatTitle: "Alpha Group", ChatUsername: "alpha", Text: "hi"}},
	}}
	h := newTestHandlers(t, newTestStore(t, []string{"@alpha", "Title Only"}), msgs, nil)

	rec := httptest.NewRecorder()
	h.HandleGroups(rec, httptest.NewRequest(http.MethodGet, "/api/groups", nil))

	body := decodeBody(t, rec)
	groups, _ := body["groups"].([]any)
	if len(groups) != 2 {
		t.Fatalf("groups = %v", body["groups"])
	}
	first, _ := groups[0].(map[string]any)
	if first["config_name"] != "@alpha" || first["display_name"] != "Alpha Group" {
		t.Fatalf("first group = %v", first)
	}
	if first["message_count"] != float64(1) {
		t.Fatalf("message_count = %v", first["message_count"])
	}
	// Title entries have no username-keyed history; they degrade gracefully.
	second, _ := groups[1].(map[string]any)
	if second["display_name"] != "Title Only" || second["message_count"] != float64(0) {
		t.Fatalf("second group = %v", second)
	}
}

func TestHandleGroupMessages(t *testing.T) {
	msgs := &fakeMessages{byUsername: map[string][]db.Message{
		"alpha": {
			{ChatUsername: "alpha", Text: "newest", Date: time.Now()},
			{ChatUsername: "alpha", Text: "older", Date: time.Now().Add(-time.Hour)},
		},
	}}
	h := newTestHandlers(t, newTestStore(t, []string{"@alpha"}), msgs, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/groups/@alpha/messages?limit=1", nil)
	req.SetPathValue("name", "@alpha")
	rec := httptest.NewRecorder()
	h.HandleGroupMessages(rec, req)

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("body = %v", body)
	}
	if body["count"] != float64(1) {
		t.Fatalf("count = %v, want limit applied", body["count"])
	}
}

func TestHandleGroupMessagesTitleFallback(t *testing.T) {
	msgs := &fakeMessages{byTitle: map[string][]db.Message{
		"My Group": {{ChatTitle: "My Group", Text: "hello"}},
	}}
	h := newTestHandlers(t, newTestStore(t, []string{"My Group"}), msgs, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/groups/My%20Group/messages", nil)
	req.SetPathValue("name", "My Group")
	rec := httptest.NewRecorder()
	h.HandleGroupMessages(rec, req)

	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Fatalf("count = %v, want title-keyed history", body["count"])
	}
}

func TestHandleAddGroup(t *testing.T) {
	store := newTestStore(t, []string{"@alpha"})
	store.SetVerifier(func(ctx context.Context, group string) (string, error) {
		if group == "@ghost" {
			return "", errors.New("group @ghost not found")
		}
		return "Beta Group", nil
	})
	h := newTestHandlers(t, store, nil, nil)

	post := func(body string) map[string]any {
		rec := httptest.NewRecorder()
		h.HandleAddGroup(rec, httptest.NewRequest(http.MethodPost, "/api/add_group", strings.NewReader(body)))
		return decodeBody(t, rec)
	}

	if body := post(`{"group": "beta"}`); body["success"] != true {
		t.Fatalf("add beta: %v", body)
	} else if msg, _ := body["message"].(string); !strings.Contains(msg, "@beta") || !strings.Contains(msg, "Beta Group") {
		t.Fatalf("message = %q", msg)
	}
	if !store.Contains("@beta") {
		t.Fatal("@beta not in store after add")
	}

	if body := post(`{"group": "@alpha"}`); body["success"] != false || body["message"] != "group already exists" {
		t.Fatalf("duplicate add: %v", body)
	}
	if body := post(`{"group": "@ghost"}`); body["success"] != false || body["message"] != "group @ghost not found" {
		t.Fatalf("failed verify: %v", body)
	}
	if body := post(`{"group": "  "}`); body["success"] != false {
		t.Fatalf("empty name: %v", body)
	}
	if body := post(`not json`); body["success"] != false {
		t.Fatalf("bad body: %v", body)
	}
}

func TestHandleRemoveGroup(t *testing.T) {
	store := newTestStore(t, []string{"@alpha"})
	h := newTestHandlers(t, store, nil, nil)

	post := func(body string) map[string]any {
		rec := httptest.NewRecorder()
		h.HandleRemoveGroup(rec, httptest.NewRequest(http.MethodPost, "/api/remove_group", strings.NewReader(body)))
		return decodeBody(t, rec)
	}

	if body := post(`{"group": "@alpha"}`); body["success"] != true {
		t.Fatalf("remove: %v", body)
	}
	if store.Contains("@alpha") {
		t.Fatal("@alpha still in store after remove")
	}
	if body := post(`{"group": "@alpha"}`); body["success"] != false || body["message"] != "group not found" {
		t.Fatalf("remove missing: %v", body)
	}
}

func TestMuxRoutesAndCorrelationHeader(t *testing.T) {
	h := newTestHandlers(t, newTestStore(t, []string{"@alpha"}), nil, nil)
	mux := NewMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("missing X-Correlation-ID header")
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	mux.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Fatalf("correlation header = %q, want caller's id echoed", got)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d", rec.Code)
	}

	// Path parameters flow through the Go 1.22 patterns.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups/@alpha/messages", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("messages route status = %d", rec.Code)
	}
}

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=x", nil)
	if got := parseIntQuery(req, "limit", 100); got != 25 {
		t.Fatalf("limit = %d", got)
	}
	if got := parseIntQuery(req, "bad", 100); got != 100 {
		t.Fatalf("bad = %d, want default", got)
	}
	if got := parseIntQuery(req, "missing", 7); got != 7 {
		t.Fatalf("missing = %d, want default", got)
	}
}

var _ Summarizer = (*fakeSummarizer)(nil)

// fakeSummarizer replays scripted chunks; see handlers_summary_test.go.
type fakeSummarizer struct {
	chunks   []summarize.Chunk
	batch    string
	startErr error
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string, _ []db.Message) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.batch, nil
}

func (f *fakeSummarizer) Stream(_ context.Context, _ string, _ []db.Message) (<-chan summarize.Chunk, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	out := make(chan summarize.Chunk, len(f.chunks))
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	return out, nil
}
