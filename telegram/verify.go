package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/groupgist/groupgist/telemetry"
)

// Verify resolves a group identifier to a live chat on the client loop and
// returns its display title. On failure the returned error carries a
// human-readable reason suitable for the API response. Satisfies
// watchlist.VerifyFunc.
func (b *Bridge) Verify(ctx context.Context, group string) (string, error) {
	telemetry.VerifyRequests.Inc()
	val, err := b.Submit(ctx, defaultSubmitTimeout, func(opCtx context.Context, bot *tgbotapi.BotAPI) (any, error) {
		slog.Debug("verifying group", slog.String("group", group))
		chat, err := getChat(opCtx, bot, group)
		if err != nil {
			return nil, err
		}
		b.entityIDs[group] = chat.ID
		return chatDisplayTitle(&chat), nil
	})
	if err != nil {
		telemetry.VerifyFailures.Inc()
		reason := classifyVerifyError(err, group)
		slog.Warn("group verification failed", slog.String("group", group), slog.String("reason", reason))
		return "", errors.New(reason)
	}
	title, _ := val.(string)
	slog.Info("group verified", slog.String("group", group), slog.String("title", title))
	return title, nil
}

// getChat resolves an @username identifier via the Bot API, bounded by ctx.
// The library call itself cannot be cancelled, so it runs on its own goroutine
// and the caller stops waiting when ctx expires; a late completion is
// discarded. Without this the op would hold the client loop for the full HTTP
// client timeout.
func getChat(ctx context.Context, bot *tgbotapi.BotAPI, group string) (tgbotapi.Chat, error) {
	type chatResult struct {
		chat tgbotapi.Chat
		err  error
	}
	ch := make(chan chatResult, 1)
	go func() {
		chat, err := bot.GetChat(tgbotapi.ChatInfoConfig{
			ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: group},
		})
		ch <- chatResult{chat: chat, err: err}
	}()

	select {
	case res := <-ch:
		return res.chat, res.err
	case <-ctx.Done():
		return tgbotapi.Chat{}, ctx.Err()
	}
}

func chatDisplayTitle(chat *tgbotapi.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	if chat.UserName != "" {
		return chat.UserName
	}
	return fmt.Sprintf("ID: %d", chat.ID)
}

// classifyVerifyError maps client failures to the closed reason set: not-found,
// invalid identifier, forbidden, rate-limited, timeout, other.
func classifyVerifyError(err error, group string) string {
	switch {
	case errors.Is(err, ErrClientNotReady):
		return "Telegram client not connected yet; wait for the connection to complete (usually 10-30s)"
	case errors.Is(err, ErrSubmitTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("verification timed out for %s; check network and proxy settings", group)
	}

	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		msg := strings.ToLower(tgErr.Message)
		switch {
		case tgErr.Code == 429 || tgErr.ResponseParameters.RetryAfter > 0:
			return fmt.Sprintf("rate limited by Telegram; retry in %ds", tgErr.ResponseParameters.RetryAfter)
		case tgErr.Code == 403 || strings.Contains(msg, "forbidden"):
			return fmt.Sprintf("no access to %s; make sure the bot has joined the group", group)
		case strings.Contains(msg, "not found"):
			return fmt.Sprintf("group %s not found; check the name, that it is public, and that the bot is a member", group)
		case strings.Contains(msg, "username"), strings.Contains(msg, "invalid"):
			return fmt.Sprintf("invalid group name %s; check spelling and capitalization", group)
		}
	}

	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "timeout") {
		return fmt.Sprintf("verification timed out for %s; check network and proxy settings", group)
	}
	if len(msg) > 100 {
		msg = msg[:100]
	}
	return fmt.Sprintf("verification failed: %s", msg)
}
