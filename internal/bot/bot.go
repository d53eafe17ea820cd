// Package bot implements the Telegram conversation: menus, snapshots and watch registration.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coinwatch/internal/alerting"
	"coinwatch/internal/assets"
	"coinwatch/internal/errs"
	"coinwatch/internal/fetcher"
	"coinwatch/internal/news"
	"coinwatch/internal/observability"
	"coinwatch/internal/service"
	"coinwatch/internal/storage"
	"coinwatch/internal/telegram"
)

// Messenger is the Bot API surface the conversation uses.
type Messenger interface {
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts telegram.SendOptions) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// NewsSource supplies the aggregated news snapshot.
type NewsSource interface {
	CryptoNews(ctx context.Context, perFeedLimit, finalLimit int) ([]news.Item, error)
}

// Options wire the bot's collaborators.
type Options struct {
	Messenger    Messenger
	Watches      *service.Watches
	Catalog      *assets.Catalog
	Quotes       fetcher.QuoteSource
	Sentiment    fetcher.SentimentSource
	News         NewsSource
	Metrics      *observability.Metrics
	SessionTTL   time.Duration
	NewsPerFeed  int
	NewsFinal    int
	RetryBackoff time.Duration
}

// Bot long-polls Telegram and dispatches updates.
type Bot struct {
	opts     Options
	sessions *Sessions
	logger   zerolog.Logger
}

// New constructs the conversational bot.
func New(opts Options, logger zerolog.Logger) *Bot {
	if opts.NewsPerFeed <= 0 {
		opts.NewsPerFeed = news.DefaultPerFeedLimit
	}
	if opts.NewsFinal <= 0 {
		opts.NewsFinal = news.DefaultFinalLimit
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 3 * time.Second
	}
	return &Bot{
		opts:     opts,
		sessions: NewSessions(opts.SessionTTL),
		logger:   logger.With().Str("component", "bot").Logger(),
	}
}

// Run polls for updates until ctx is cancelled. Poll failures back off and retry.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info().Msg("telegram polling started")
	var offset int64
	for {
		updates, err := b.opts.Messenger.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn().Err(err).Dur("backoff", b.opts.RetryBackoff).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.opts.RetryBackoff):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.HandleUpdate(ctx, u)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// HandleUpdate processes one update. Failures are logged and never stop polling.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Int64("update_id", u.UpdateID).Msg("update handler panicked")
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		b.opts.Metrics.RecordBotUpdate("callback")
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.Text != "":
		b.opts.Metrics.RecordBotUpdate("message")
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/") {
		cmd, arg := splitCommand(text)
		b.handleCommand(ctx, chatID, cmd, arg)
		return
	}

	sess, ok := b.sessions.Get(chatID)
	if ok && sess.Mode == ModeAwaitTarget {
		b.submitTarget(ctx, chatID, sess, text)
		return
	}
	b.send(ctx, chatID, "Pick a menu:", mainMenu())
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, cmd, arg string) {
	switch cmd {
	case "start":
		b.sessions.Clear(chatID)
		b.send(ctx, chatID, "Ready ✅\nPick a menu below:", mainMenu())
	case "help":
		b.send(ctx, chatID, helpText, nil)
	case "price":
		b.sessions.Clear(chatID)
		if arg != "" {
			b.send(ctx, chatID, b.priceSnapshot(ctx, arg), mainMenu())
			return
		}
		b.send(ctx, chatID, "Pick a coin:", coinPicker(b.opts.Catalog.Symbols()))
	case "fng":
		b.send(ctx, chatID, b.sentimentSnapshot(ctx), mainMenu())
	case "news":
		b.sendNews(ctx, chatID)
	case "alert":
		b.sessions.Clear(chatID)
		b.send(ctx, chatID, "Pick a coin for the alert:", coinPicker(b.opts.Catalog.Symbols()))
	case "alerts":
		b.sendWatchList(ctx, chatID)
	default:
		b.send(ctx, chatID, "Unknown command.\n\n"+helpText, nil)
	}
}

func (b *Bot) submitTarget(ctx context.Context, chatID int64, sess Session, text string) {
	w, err := b.opts.Watches.Create(ctx, service.CreateRequest{
		Owner:     ownerOf(chatID),
		Symbol:    sess.Symbol,
		AssetRef:  sess.AssetRef,
		Direction: string(sess.Direction),
		Target:    text,
	})
	if errors.Is(err, errs.ErrValidation) {
		b.send(ctx, chatID, "Invalid USD target. Example: 42000", cancelOnly())
		return
	}
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("create watch failed")
		b.send(ctx, chatID, failureText("Saving the alert", err), mainMenu())
		return
	}
	b.sessions.Clear(chatID)
	b.send(ctx, chatID, createdText(w), mainMenu())
}

func (b *Bot) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	if err := b.opts.Messenger.AnswerCallbackQuery(ctx, q.ID, ""); err != nil {
		b.logger.Debug().Err(err).Msg("answerCallbackQuery failed")
	}

	chatID := q.From.ID
	if q.Message != nil {
		chatID = q.Message.Chat.ID
	}
	data := q.Data

	switch {
	case data == alerting.CallbackHome:
		b.sessions.Clear(chatID)
		b.edit(ctx, q, "Pick a menu:", mainMenu())
	case data == cbMenuPrice:
		b.sessions.Clear(chatID)
		b.edit(ctx, q, "Pick a coin:", coinPicker(b.opts.Catalog.Symbols()))
	case data == cbMenuFNG:
		b.sessions.Clear(chatID)
		b.edit(ctx, q, b.sentimentSnapshot(ctx), mainMenu())
	case data == cbMenuNews:
		b.sessions.Clear(chatID)
		b.edit(ctx, q, "📰 Fetching news…", mainMenu())
		b.sendNews(ctx, chatID)
	case data == cbMenuAddAlert:
		b.sessions.Clear(chatID)
		b.edit(ctx, q, "Pick a coin for the alert:", coinPicker(b.opts.Catalog.Symbols()))
	case data == cbMenuListAlert:
		b.sessions.Clear(chatID)
		b.edit(ctx, q, "📌 Your alerts:", mainMenu())
		b.sendWatchList(ctx, chatID)
	case strings.HasPrefix(data, cbPickPrefix):
		asset, ok := b.opts.Catalog.Lookup(strings.TrimPrefix(data, cbPickPrefix))
		if !ok {
			b.edit(ctx, q, "Unknown coin.", mainMenu())
			return
		}
		b.edit(ctx, q, "You picked <b>"+asset.Symbol+"</b>.\nWhat next?", coinActions(asset.Symbol))
	case strings.HasPrefix(data, cbShowPrice):
		b.edit(ctx, q, b.priceSnapshot(ctx, strings.TrimPrefix(data, cbShowPrice)), mainMenu())
	case strings.HasPrefix(data, cbMakeAlert):
		asset, ok := b.opts.Catalog.Lookup(strings.TrimPrefix(data, cbMakeAlert))
		if !ok {
			b.edit(ctx, q, "Unknown coin.", mainMenu())
			return
		}
		b.edit(ctx, q, "Pick the alert direction for <b>"+asset.Symbol+"</b>:", directionPicker(asset.Symbol))
	case strings.HasPrefix(data, cbDirPrefix):
		b.startTargetEntry(ctx, q, chatID, data)
	case strings.HasPrefix(data, alerting.CallbackDeactivatePrefix):
		b.deactivate(ctx, q, chatID, strings.TrimPrefix(data, alerting.CallbackDeactivatePrefix))
	default:
		b.logger.Debug().Str("data", data).Msg("unknown callback")
	}
}

func (b *Bot) startTargetEntry(ctx context.Context, q *telegram.CallbackQuery, chatID int64, data string) {
	parts := strings.SplitN(data, "_", 3)
	if len(parts) != 3 {
		b.edit(ctx, q, "Unknown action.", mainMenu())
		return
	}
	asset, ok := b.opts.Catalog.Lookup(parts[1])
	if !ok {
		b.edit(ctx, q, "Unknown coin.", mainMenu())
		return
	}
	direction, err := storage.ParseDirection(parts[2])
	if err != nil {
		b.edit(ctx, q, "Unknown direction.", mainMenu())
		return
	}

	b.sessions.Set(chatID, Session{
		Mode:      ModeAwaitTarget,
		Symbol:    asset.Symbol,
		AssetRef:  asset.Ref(b.opts.Catalog.Provider()),
		Direction: direction,
	})
	b.edit(ctx, q, targetPrompt(asset.Symbol, direction), cancelOnly())
}

func (b *Bot) deactivate(ctx context.Context, q *telegram.CallbackQuery, chatID int64, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		b.edit(ctx, q, "Unknown alert.", mainMenu())
		return
	}
	if _, err := b.opts.Watches.Deactivate(ctx, ownerOf(chatID), id); err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			b.logger.Error().Err(err).Int64("watch_id", id).Msg("deactivate watch failed")
		}
		b.edit(ctx, q, failureText("Alert #"+rawID, err), mainMenu())
		return
	}
	b.edit(ctx, q, "✅ Alert #"+rawID+" switched off.", mainMenu())
}

func (b *Bot) priceSnapshot(ctx context.Context, symbol string) string {
	ref, ok := b.opts.Catalog.RefFor(symbol)
	if !ok {
		return "Unknown coin."
	}
	sym := assets.NormalizeSymbol(symbol)
	quote, err := b.opts.Quotes.FetchQuote(ctx, ref)
	if err != nil {
		b.logger.Warn().Err(err).Str("asset_ref", ref).Msg("price snapshot failed")
		return failureText(sym+" price", err)
	}
	return priceText(sym, quote)
}

func (b *Bot) sentimentSnapshot(ctx context.Context) string {
	reading, err := b.opts.Sentiment.FetchSentiment(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("sentiment snapshot failed")
		return failureText("Fear &amp; Greed", err)
	}
	return sentimentText(reading)
}

func (b *Bot) sendNews(ctx context.Context, chatID int64) {
	items, err := b.opts.News.CryptoNews(ctx, b.opts.NewsPerFeed, b.opts.NewsFinal)
	if err != nil {
		b.logger.Warn().Err(err).Msg("news snapshot failed")
		b.send(ctx, chatID, failureText("News", err), mainMenu())
		return
	}
	b.sendWith(ctx, chatID, newsText(items), telegram.SendOptions{
		ParseMode:             telegram.ParseModeHTML,
		Keyboard:              mainMenu(),
		DisableWebPagePreview: true,
	})
}

func (b *Bot) sendWatchList(ctx context.Context, chatID int64) {
	watches, err := b.opts.Watches.ListForOwner(ctx, ownerOf(chatID))
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("list watches failed")
		b.send(ctx, chatID, failureText("Your alerts", err), mainMenu())
		return
	}
	if len(watches) == 0 {
		b.send(ctx, chatID, watchListText(nil), mainMenu())
		return
	}
	if len(watches) > maxListed {
		watches = watches[:maxListed]
	}
	b.send(ctx, chatID, watchListText(watches), watchListKeyboard(watches))
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, kb *telegram.InlineKeyboardMarkup) {
	b.sendWith(ctx, chatID, text, telegram.SendOptions{ParseMode: telegram.ParseModeHTML, Keyboard: kb})
}

func (b *Bot) sendWith(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) {
	if _, err := b.opts.Messenger.SendMessage(ctx, chatID, text, opts); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("sendMessage failed")
	}
}

// edit rewrites the message carrying the pressed button, or sends a new one.
func (b *Bot) edit(ctx context.Context, q *telegram.CallbackQuery, text string, kb *telegram.InlineKeyboardMarkup) {
	if q.Message == nil {
		b.send(ctx, q.From.ID, text, kb)
		return
	}
	err := b.opts.Messenger.EditMessageText(ctx, q.Message.Chat.ID, q.Message.MessageID, text,
		telegram.SendOptions{ParseMode: telegram.ParseModeHTML, Keyboard: kb})
	if err != nil && !telegram.IsNotModified(err) {
		b.logger.Warn().Err(err).Int64("chat_id", q.Message.Chat.ID).Msg("editMessageText failed")
	}
}

// splitCommand parses "/price@coinwatch_bot btc" into ("price", "btc").
func splitCommand(text string) (string, string) {
	head, arg, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(arg)
}

func ownerOf(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
