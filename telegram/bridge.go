// Package telegram owns the single Telegram client connection. The client
// runs on one dedicated goroutine (the client loop) that consumes the update
// stream and executes one-off operations submitted by HTTP handlers. Handlers
// never touch the client directly; Submit is the only crossing point between
// the web side and the loop.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/groupgist/groupgist/config"
	"github.com/groupgist/groupgist/db"
	"github.com/groupgist/groupgist/telemetry"
	"github.com/groupgist/groupgist/watchlist"
)

var (
	// ErrClientNotReady is returned by Submit before the connection is established.
	ErrClientNotReady = errors.New("telegram client not ready")
	// ErrSubmitTimeout is returned when a submitted operation misses the outer deadline.
	ErrSubmitTimeout = errors.New("telegram operation timed out")
)

const (
	connectTimeout       = 30 * time.Second
	defaultSubmitTimeout = 20 * time.Second
	// opTimeout bounds each operation inside the loop so a hung resolution
	// can never starve update consumption for long.
	opTimeout = 15 * time.Second

	updatePollTimeout = 30 // seconds, long-poll interval for getUpdates

	// botClientTimeout bounds every Bot API HTTP call made by the library.
	// It must exceed the getUpdates long-poll window: an idle poll holds the
	// request open for the full window server-side, and a shorter client
	// timeout would kill every idle cycle and put the update channel into
	// its error-and-sleep retry path.
	botClientTimeout = (updatePollTimeout + 15) * time.Second
)

// Op is an operation executed on the client loop with access to the bot API.
type Op func(ctx context.Context, bot *tgbotapi.BotAPI) (any, error)

type opResult struct {
	val any
	err error
}

type operation struct {
	fn Op
	// buffered so a late completion after the caller gave up is dropped
	// instead of blocking the loop
	result chan opResult
}

// Bridge owns the client connection and the cross-goroutine submission channel.
type Bridge struct {
	cfg      *config.Config
	store    *watchlist.Store
	messages *db.MessageStore

	ops   chan operation
	ready chan struct{} // closed exactly once, when the connection completes

	bot       *tgbotapi.BotAPI // written once before ready closes, read-only after
	connected atomic.Bool

	// watched is a []string snapshot refreshed on every watch-list mutation,
	// read by the ingestion path without touching the store's lock.
	watched atomic.Value

	// entityIDs caches group -> chat id resolutions made on the loop.
	entityIDs map[string]int64
}

// NewBridge wires the bridge to its collaborators. Run must be started before
// Submit can succeed.
func NewBridge(cfg *config.Config, store *watchlist.Store, messages *db.MessageStore) *Bridge {
	b := &Bridge{
		cfg:       cfg,
		store:     store,
		messages:  messages,
		ops:       make(chan operation),
		ready:     make(chan struct{}),
		entityIDs: make(map[string]int64),
	}
	b.watched.Store(store.List())
	return b
}

// IsConnected reports whether the client completed its connection.
func (b *Bridge) IsConnected() bool { return b.connected.Load() }

// Resubscribe refreshes the ingestion handler's view of the watch-list.
// Called by the store after every successful add/remove.
func (b *Bridge) Resubscribe() {
	groups := b.store.List()
	b.watched.Store(groups)
	telemetry.SetWatchlistSize(len(groups))
	slog.Info("watch-list subscription refreshed", slog.Int("groups", len(groups)))
}

// Run connects the client and drives the loop until ctx is cancelled. A
// connection failure is logged and leaves the process serving HTTP in a
// degraded state; reconnection is not attempted.
func (b *Bridge) Run(ctx context.Context) {
	bot, err := b.connect(ctx)
	if err != nil {
		slog.Error("telegram connect failed; continuing without client", slog.Any("err", err))
		return
	}
	b.bot = bot
	b.connected.Store(true)
	telemetry.UpdateConnectedGauge(true)
	close(b.ready)
	b.Resubscribe()
	slog.Info("telegram client connected", slog.String("bot", bot.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updatePollTimeout
	updates := bot.GetUpdatesChan(u)

	defer func() {
		b.connected.Store(false)
		telemetry.UpdateConnectedGauge(false)
		bot.StopReceivingUpdates()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("telegram client loop stopping")
			return
		case op := <-b.ops:
			opCtx, cancel := context.WithTimeout(ctx, opTimeout)
			val, err := op.fn(opCtx, bot)
			cancel()
			op.result <- opResult{val: val, err: err}
		case upd, ok := <-updates:
			if !ok {
				slog.Warn("telegram update channel closed")
				return
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

// Submit schedules fn onto the client loop and waits for its result. It fails
// fast with ErrClientNotReady when the connection has not completed, and with
// ErrSubmitTimeout when the outer bound elapses. A result arriving after the
// timeout is dropped.
func (b *Bridge) Submit(ctx context.Context, timeout time.Duration, fn Op) (any, error) {
	select {
	case <-b.ready:
	default:
		return nil, ErrClientNotReady
	}
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	op := operation{fn: fn, result: make(chan opResult, 1)}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b.ops <- op:
	case <-timer.C:
		telemetry.SubmitTimeouts.Inc()
		return nil, ErrSubmitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-op.result:
		return res.val, res.err
	case <-timer.C:
		telemetry.SubmitTimeouts.Inc()
		return nil, ErrSubmitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// botHTTPClient builds the long-lived HTTP client handed to the bot library.
// The connect deadline is enforced separately in connect; this client only
// needs a bound that outlives the long-poll window.
func (b *Bridge) botHTTPClient() (*http.Client, error) {
	client := &http.Client{Timeout: botClientTimeout}
	if b.cfg.UseProxy && b.cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(b.cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", b.cfg.ProxyURL, err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		slog.Info("telegram client using proxy", slog.String("proxy", proxyURL.Redacted()))
	}
	return client, nil
}

func (b *Bridge) connect(ctx context.Context) (*tgbotapi.BotAPI, error) {
	if err := b.cfg.ValidateTelegramReady(); err != nil {
		return nil, err
	}
	httpClient, err := b.botHTTPClient()
	if err != nil {
		return nil, err
	}

	type connResult struct {
		bot *tgbotapi.BotAPI
		err error
	}
	ch := make(chan connResult, 1)
	go func() {
		bot, err := tgbotapi.NewBotAPIWithClient(b.cfg.BotToken, tgbotapi.APIEndpoint, httpClient)
		ch <- connResult{bot: bot, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("telegram auth: %w", res.err)
		}
		return res.bot, nil
	case <-time.After(connectTimeout):
		return nil, fmt.Errorf("telegram connect timed out after %s", connectTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
