package alerting

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinwatch/internal/fetcher"
	"coinwatch/internal/storage"
	"coinwatch/internal/telegram"
)

// Notification 封装一次触发的上下文。
type Notification struct {
	Destination string
	WatchID     int64
	Symbol      string
	Direction   storage.Direction
	Target      decimal.Decimal
	Quote       fetcher.Quote
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// MessageSender is the part of the Bot API client the notifier needs.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (telegram.Message, error)
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	sender MessageSender
	logger zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(sender MessageSender, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered notification with its action buttons.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	chatID, err := strconv.ParseInt(note.Destination, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", note.Destination, err)
	}

	msg := Render(note)
	if _, err := n.sender.SendMessage(ctx, chatID, msg.Text, telegram.SendOptions{
		ParseMode: telegram.ParseModeHTML,
		Keyboard:  Keyboard(msg.Actions),
	}); err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}

	n.logger.Info().Int64("watch_id", note.WatchID).
		Str("symbol", note.Symbol).
		Str("owner", note.Destination).
		Msg("告警已发送 (Telegram)")
	return nil
}

// Keyboard maps notification actions to inline buttons plus a home button.
func Keyboard(actions []Action) *telegram.InlineKeyboardMarkup {
	rows := make([][]telegram.InlineKeyboardButton, 0, len(actions)+1)
	for _, action := range actions {
		if action.Label == ActionDeactivate {
			rows = append(rows, []telegram.InlineKeyboardButton{{
				Text:         "🛑 Deactivate this alert",
				CallbackData: DeactivateCallback(action.WatchID),
			}})
		}
	}
	rows = append(rows, []telegram.InlineKeyboardButton{{Text: "⬅️ Back", CallbackData: CallbackHome}})
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// LogNotifier writes notifications to the log instead of a chat.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the rendered text.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	msg := Render(note)
	n.logger.Info().Int64("watch_id", note.WatchID).
		Str("owner", note.Destination).
		Str("text", msg.Text).
		Msg("watch triggered")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
