// Package telegram is a minimal Bot API client: long polling, messages, inline keyboards.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ParseModeHTML selects Telegram's HTML message formatting.
const ParseModeHTML = "HTML"

// Update is one incoming event from getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message is an incoming or sent chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Chat identifies a conversation.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// User is the sender of a message or callback.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// CallbackQuery is an inline button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data"`
}

// InlineKeyboardButton is one inline button carrying callback data.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboardMarkup is a grid of inline buttons.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// SendOptions tune outgoing text messages.
type SendOptions struct {
	ParseMode             string
	Keyboard              *InlineKeyboardMarkup
	DisableWebPagePreview bool
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// APIError is a Bot API reply with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// IsNotModified reports the harmless "message is not modified" edit error.
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

// Options parameterise the Bot API client.
type Options struct {
	Token          string
	APIBase        string
	RequestTimeout time.Duration
	PollTimeout    time.Duration
}

// Client talks to the Telegram Bot API over HTTPS.
type Client struct {
	opts   Options
	logger zerolog.Logger
	client *resty.Client
	poller *resty.Client
}

// NewClient constructs a Bot API client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 20 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	baseURL := fmt.Sprintf("%s/bot%s", base, opts.Token)

	return &Client{
		opts:   opts,
		logger: logger.With().Str("component", "telegram").Logger(),
		client: resty.New().SetBaseURL(baseURL).SetTimeout(opts.RequestTimeout),
		// long polls hold the connection for PollTimeout
		poller: resty.New().SetBaseURL(baseURL).SetTimeout(opts.PollTimeout + 10*time.Second),
	}
}

// PollTimeout is the server-side long-poll duration.
func (c *Client) PollTimeout() time.Duration {
	return c.opts.PollTimeout
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(c.opts.PollTimeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.call(ctx, c.poller, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage posts text to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (Message, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	applySendOptions(payload, opts)

	var sent Message
	if err := c.call(ctx, c.client, "sendMessage", payload, &sent); err != nil {
		return Message{}, err
	}
	return sent, nil
}

// EditMessageText replaces the text (and keyboard) of a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts SendOptions) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	applySendOptions(payload, opts)
	return c.call(ctx, c.client, "editMessageText", payload, nil)
}

// AnswerCallbackQuery acknowledges a button press; text is optional.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, c.client, "answerCallbackQuery", payload, nil)
}

func applySendOptions(payload map[string]any, opts SendOptions) {
	if opts.ParseMode != "" {
		payload["parse_mode"] = opts.ParseMode
	}
	if opts.Keyboard != nil {
		payload["reply_markup"] = opts.Keyboard
	}
	if opts.DisableWebPagePreview {
		payload["disable_web_page_preview"] = true
	}
}

func (c *Client) call(ctx context.Context, client *resty.Client, method string, payload any, out any) error {
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s request: %w", method, err)
	}

	var result apiResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return fmt.Errorf("telegram %s: status %d: decode response: %w", method, resp.StatusCode(), err)
	}
	if !result.OK {
		code := result.ErrorCode
		if code == 0 {
			code = resp.StatusCode()
		}
		c.logger.Debug().Str("method", method).Int("code", code).Str("description", result.Description).Msg("telegram api error")
		return &APIError{Method: method, Code: code, Description: result.Description}
	}
	if out != nil && len(result.Result) > 0 {
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}
