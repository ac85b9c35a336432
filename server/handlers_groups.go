package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/groupgist/groupgist/telemetry"
	"github.com/groupgist/groupgist/watchlist"
)

// HandleStatus reports the client connection state and the raw watch-list.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"is_connected": h.bridge.IsConnected(),
		"groups":       h.store.List(),
	})
}

// HandleGroups lists the watched groups enriched with the display title and
// message count from stored history. Lookup failures degrade to the config
// name with a zero count rather than failing the listing.
func (h *Handlers) HandleGroups(w http.ResponseWriter, r *http.Request) {
	type groupInfo struct {
		ConfigName   string `json:"config_name"`
		DisplayName  string `json:"display_name"`
		MessageCount int    `json:"message_count"`
	}

	ctx := r.Context()
	groups := h.store.List()
	out := make([]groupInfo, 0, len(groups))
	for _, g := range groups {
		info := groupInfo{ConfigName: g, DisplayName: g}
		if strings.HasPrefix(g, "@") {
			latest, err := h.messages.LatestByChatUsername(ctx, strings.TrimPrefix(g, "@"))
			if err != nil {
				telemetry.LoggerWithCorr(ctx).Debug("group info lookup failed", slog.String("group", g), slog.Any("err", err))
			} else if latest != nil {
				if latest.ChatTitle != "" {
					info.DisplayName = latest.ChatTitle
				}
				if n, err := h.messages.CountByChat(ctx, latest.ChatID); err == nil {
					info.MessageCount = n
				}
			}
		}
		out = append(out, info)
	}

	writeJSON(w, map[string]any{"success": true, "groups": out})
}

// HandleGroupMessages returns stored messages for one group, newest first.
func (h *Handlers) HandleGroupMessages(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("name")
	limit := parseIntQuery(r, "limit", h.maxMessages)
	if limit <= 0 || limit > 1000 {
		limit = h.maxMessages
	}

	msgs, err := h.fetchGroupMessages(r.Context(), group, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("message fetch failed", slog.String("group", group), slog.Any("err", err))
		fail(w, fmt.Sprintf("failed to fetch messages for %s", group))
		return
	}

	writeJSON(w, map[string]any{
		"success":  true,
		"group":    group,
		"messages": msgs,
		"count":    len(msgs),
	})
}

type groupRequest struct {
	Group string `json:"group"`
}

// HandleAddGroup verifies and appends a group to the watch-list.
func (h *Handlers) HandleAddGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Group)
	if name == "" {
		fail(w, "group name must not be empty")
		return
	}

	title, err := h.store.Add(r.Context(), name)
	if err != nil {
		var verifyErr *watchlist.VerifyError
		switch {
		case errors.Is(err, watchlist.ErrDuplicateGroup):
			fail(w, "group already exists")
		case errors.As(err, &verifyErr):
			fail(w, verifyErr.Reason)
		default:
			telemetry.LoggerWithCorr(r.Context()).Error("add group failed", slog.String("group", name), slog.Any("err", err))
			fail(w, fmt.Sprintf("failed to add group: %s", err))
		}
		return
	}

	msg := fmt.Sprintf("added group %s", watchlist.Normalize(name))
	if title != "" {
		msg += fmt.Sprintf(" (%s)", title)
	}
	writeJSON(w, map[string]any{"success": true, "message": msg})
}

// HandleRemoveGroup removes a group from the watch-list.
func (h *Handlers) HandleRemoveGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, "invalid request body")
		return
	}

	if err := h.store.Remove(req.Group); err != nil {
		if errors.Is(err, watchlist.ErrGroupNotFound) {
			fail(w, "group not found")
			return
		}
		telemetry.LoggerWithCorr(r.Context()).Error("remove group failed", slog.String("group", req.Group), slog.Any("err", err))
		fail(w, fmt.Sprintf("failed to remove group: %s", err))
		return
	}

	writeJSON(w, map[string]any{"success": true, "message": "group removed"})
}
