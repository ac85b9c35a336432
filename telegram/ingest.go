package telegram

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/groupgist/groupgist/db"
	"github.com/groupgist/groupgist/telemetry"
)

const saveTimeout = 5 * time.Second

// handleUpdate runs on the client loop for every inbound update. A failure is
// logged and swallowed; one bad message must never take the loop down.
func (b *Bridge) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil {
		msg = upd.ChannelPost
	}
	if msg == nil || msg.Chat == nil {
		return
	}
	if msg.Chat.IsPrivate() {
		return
	}

	groups, _ := b.watched.Load().([]string)
	lookupCtx, lookupCancel := context.WithTimeout(ctx, opTimeout)
	defer lookupCancel()
	groupKey, ok := resolveGroupKey(groups, msg.Chat.UserName, msg.Chat.Title, msg.Chat.ID,
		func(group string) (int64, bool) { return b.lookupEntityID(lookupCtx, group) })
	if !ok {
		slog.Debug("message from unwatched chat ignored",
			slog.Int64("chat_id", msg.Chat.ID), slog.String("title", msg.Chat.Title))
		return
	}

	text := msg.Text
	if text == "" {
		text = "[non-text message]"
	}
	record := db.Message{
		MessageID:    int64(msg.MessageID),
		ChatID:       msg.Chat.ID,
		ChatTitle:    chatDisplayTitle(msg.Chat),
		ChatUsername: msg.Chat.UserName,
		Text:         text,
		Date:         msg.Time().UTC(),
	}
	if msg.From != nil {
		record.SenderID = msg.From.ID
		record.SenderUsername = msg.From.UserName
		record.SenderName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	if record.Date.IsZero() {
		record.Date = time.Now().UTC()
	}

	saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := b.messages.Save(saveCtx, record); err != nil {
		telemetry.IngestErrors.Inc()
		slog.Error("failed to save message", slog.String("group", groupKey), slog.Any("err", err))
		return
	}
	telemetry.MessagesIngested.Inc()

	preview := record.Text
	if len(preview) > 50 {
		preview = preview[:50]
	}
	slog.Debug("message stored",
		slog.String("group", groupKey),
		slog.String("sender", SenderDisplayName(record.SenderUsername, record.SenderName, record.SenderID)),
		slog.String("preview", preview))
}

// lookupEntityID resolves a configured group entry to its chat id, using the
// loop-local cache before hitting the API. Runs only on the client loop.
func (b *Bridge) lookupEntityID(ctx context.Context, group string) (int64, bool) {
	if id, ok := b.entityIDs[group]; ok {
		return id, true
	}
	if !strings.HasPrefix(group, "@") {
		// Titles can't be resolved through the API; matched by equality instead.
		return 0, false
	}
	chat, err := getChat(ctx, b.bot, group)
	if err != nil {
		slog.Debug("entity lookup failed", slog.String("group", group), slog.Any("err", err))
		return 0, false
	}
	b.entityIDs[group] = chat.ID
	return chat.ID, true
}

// resolveGroupKey maps an incoming chat to its configured watch-list entry.
// Precedence: exact @username match, configured-entry scan, live entity
// lookup, then raw title equality. The first hit wins; if a group's username
// changes after configuration an earlier entry may still claim the chat.
func resolveGroupKey(groups []string, chatUsername, chatTitle string, chatID int64, lookup func(group string) (int64, bool)) (string, bool) {
	if chatUsername != "" {
		if withAt := "@" + chatUsername; slices.Contains(groups, withAt) {
			return withAt, true
		}
		for _, g := range groups {
			if strings.HasPrefix(g, "@") && strings.EqualFold(g[1:], chatUsername) {
				return g, true
			}
		}
	}
	if lookup != nil {
		for _, g := range groups {
			if id, ok := lookup(g); ok && id == chatID {
				return g, true
			}
		}
	}
	if chatTitle != "" && slices.Contains(groups, chatTitle) {
		return chatTitle, true
	}
	return "", false
}

// SenderDisplayName picks the sender label in preference order:
// username, full name, then a synthesized ID.
func SenderDisplayName(username, name string, id int64) string {
	if username != "" {
		return "@" + username
	}
	if name != "" {
		return name
	}
	return "ID:" + strconv.FormatInt(id, 10)
}
