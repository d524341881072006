package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// DeliveryError reports a message the bot API did not accept.
type DeliveryError struct {
	Status      int
	Description string
	Err         error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("telegram delivery: %v", e.Err)
	case e.Description != "":
		return fmt.Sprintf("telegram delivery (%d): %s", e.Status, e.Description)
	default:
		return fmt.Sprintf("telegram delivery (%d)", e.Status)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// TelegramOptions parameterise the Telegram notifier.
type TelegramOptions struct {
	BotToken  string
	ChatID    string
	BaseURL   string
	Timeout   time.Duration
	ParseMode string
	Format    Format
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	chatID    string
	parseMode string
	format    Format
	client    *resty.Client
	logger    zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(opts TelegramOptions, logger zerolog.Logger) *TelegramNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	opts.Format.HTML = strings.EqualFold(opts.ParseMode, "HTML")

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetPathParam("token", opts.BotToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &TelegramNotifier{
		chatID:    opts.ChatID,
		parseMode: opts.ParseMode,
		format:    opts.Format,
		client:    client,
		logger:    logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify 调用 sendMessage API 推送文本，不重试。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := sendMessageRequest{
		ChatID:    n.chatID,
		Text:      n.format.Render(note),
		ParseMode: n.parseMode,
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return &DeliveryError{Err: err}
	}

	var result sendMessageResponse
	decodeErr := json.Unmarshal(resp.Body(), &result)

	if !resp.IsSuccess() {
		return &DeliveryError{Status: resp.StatusCode(), Description: result.Description}
	}
	if decodeErr == nil && !result.OK {
		return &DeliveryError{Status: resp.StatusCode(), Description: "telegram 返回 ok=false"}
	}

	n.logger.Info().
		Str("kind", note.Kind.String()).
		Int("rates", note.Rates.Len()).
		Msg("告警已发送 (Telegram)")
	return nil
}

var _ Notifier = (*TelegramNotifier)(nil)
