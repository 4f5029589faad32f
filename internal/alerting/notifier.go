package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"price-high-alerts/internal/breakthrough"
	"price-high-alerts/internal/highs"
)

// Notification 封装一次突破告警的上下文。
type Notification struct {
	AlertID     int64
	AlertName   string
	Timeframe   highs.Timeframe
	Mode        string
	Results     []breakthrough.Result
	TriggeredAt time.Time
	// MaxRows caps the rows rendered for multi-symbol reports; zero renders all.
	MaxRows int
}

// Text renders the human-readable body shared by chat channels.
func (n Notification) Text() string {
	return breakthrough.FormatMessage(n.AlertName, n.Timeframe, n.Results, n.MaxRows)
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if len(note.Results) == 0 {
		return nil
	}
	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     note.Text(),
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && result.Description != "" {
			return fmt.Errorf("telegram 响应码异常: %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}
	if decodeErr == nil && !result.OK {
		return fmt.Errorf("telegram 返回 ok=false")
	}

	n.logger.Info().
		Str("alert", note.AlertName).
		Str("timeframe", string(note.Timeframe)).
		Int("symbols", len(note.Results)).
		Msg("告警已发送 (Telegram)")
	return nil
}

// LogNotifier writes notifications to the log; used when no channel is enabled.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Str("alert", note.AlertName).
		Str("timeframe", string(note.Timeframe)).
		Int("symbols", len(note.Results)).
		Msg(note.Text())
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
