// HTTP handler dependencies and shared response helpers.
package server

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/groupgist/groupgist/db"
	"github.com/groupgist/groupgist/summarize"
	"github.com/groupgist/groupgist/watchlist"
)

//go:embed web/index.html
var indexPage []byte

// Bridge is the slice of the client bridge the handlers need.
type Bridge interface {
	IsConnected() bool
}

// MessageReader reads stored messages; implemented by db.MessageStore and by
// fakes in tests.
type MessageReader interface {
	ByChatUsername(ctx context.Context, username string, limit int) ([]db.Message, error)
	ByChatTitle(ctx context.Context, title string, limit int) ([]db.Message, error)
	CountByChat(ctx context.Context, chatID int64) (int, error)
	LatestByChatUsername(ctx context.Context, username string) (*db.Message, error)
}

// Summarizer produces batch or streaming summaries; nil disables the endpoint.
type Summarizer interface {
	Summarize(ctx context.Context, groupTitle string, msgs []db.Message) (string, error)
	Stream(ctx context.Context, groupTitle string, msgs []db.Message) (<-chan summarize.Chunk, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db          *sql.DB
	store       *watchlist.Store
	bridge      Bridge
	messages    MessageReader
	summarizer  Summarizer
	maxMessages int
}

// NewHandlers creates a Handlers instance with the given dependencies.
// summarizer may be nil when no provider is configured.
func NewHandlers(database *sql.DB, store *watchlist.Store, bridge Bridge, messages MessageReader, summarizer Summarizer, maxMessages int) *Handlers {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Handlers{
		db:          database,
		store:       store,
		bridge:      bridge,
		messages:    messages,
		summarizer:  summarizer,
		maxMessages: maxMessages,
	}
}

// HandleIndex serves the embedded operator UI page.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexPage)
}

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

// fail reports a handled domain failure. Domain errors are part of the API
// contract, not transport errors, so the status stays 200.
func fail(w http.ResponseWriter, msg string) {
	writeJSON(w, map[string]any{"success": false, "message": msg})
}

// fetchGroupMessages reads history for a configured group name, preferring the
// @username path and falling back to title-keyed history for title entries.
func (h *Handlers) fetchGroupMessages(ctx context.Context, group string, limit int) ([]db.Message, error) {
	if strings.HasPrefix(group, "@") {
		return h.messages.ByChatUsername(ctx, strings.TrimPrefix(group, "@"), limit)
	}
	msgs, err := h.messages.ByChatUsername(ctx, group, limit)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		return msgs, nil
	}
	return h.messages.ByChatTitle(ctx, group, limit)
}
