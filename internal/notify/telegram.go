// Package notify sends high-stress alerts to Telegram.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	ErrDisabled      = errors.New("telegram notifications are disabled")
	ErrNotConfigured = errors.New("telegram bot token or chat ID not configured")
	ErrCooldown      = errors.New("message cooldown period not yet elapsed")
)

// DefaultAPIBaseURL is the public Telegram Bot API
const DefaultAPIBaseURL = "https://api.telegram.org"

// Config holds Telegram bot configuration
type Config struct {
	BotToken        string
	ChatID          string
	Enabled         bool
	CooldownSeconds int
	APIBaseURL      string
}

// Response represents the response from Telegram API
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// TelegramBot sends messages through the Bot API with a send cooldown
type TelegramBot struct {
	botToken   string
	chatID     string
	baseURL    string
	enabled    bool
	httpClient *http.Client

	mu             sync.Mutex
	lastSent       time.Time
	cooldownPeriod time.Duration
}

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(config Config) *TelegramBot {
	cooldownPeriod := time.Duration(config.CooldownSeconds) * time.Second
	if cooldownPeriod == 0 {
		cooldownPeriod = 30 * time.Second
	}
	baseURL := strings.TrimRight(config.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}

	return &TelegramBot{
		botToken:       config.BotToken,
		chatID:         config.ChatID,
		baseURL:        baseURL,
		enabled:        config.Enabled,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		cooldownPeriod: cooldownPeriod,
	}
}

// IsEnabled reports whether the bot is enabled and configured
func (tb *TelegramBot) IsEnabled() bool {
	return tb.enabled && tb.botToken != "" && tb.chatID != ""
}

// SendMessage sends an HTML text message, subject to the cooldown
func (tb *TelegramBot) SendMessage(ctx context.Context, message string) error {
	if !tb.enabled {
		return ErrDisabled
	}
	if tb.botToken == "" || tb.chatID == "" {
		return ErrNotConfigured
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	if !tb.lastSent.IsZero() && time.Since(tb.lastSent) < tb.cooldownPeriod {
		return ErrCooldown
	}

	payload := map[string]interface{}{
		"chat_id":    tb.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	if err := tb.sendTelegramRequest(ctx, "sendMessage", payload); err != nil {
		return err
	}
	tb.lastSent = time.Now()
	return nil
}

// SendTestMessage sends a message to verify the bot configuration
func (tb *TelegramBot) SendTestMessage(ctx context.Context) error {
	message := fmt.Sprintf(
		"🤖 <b>stresscam test message</b>\n\n"+
			"✅ Telegram alerts are working.\n"+
			"🕐 Sent at: %s",
		formatTime(time.Now()),
	)
	return tb.SendMessage(ctx, message)
}

func (tb *TelegramBot) sendTelegramRequest(ctx context.Context, method string, payload map[string]interface{}) error {
	url := fmt.Sprintf("%s/bot%s/%s", tb.baseURL, tb.botToken, method)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return handleResponse(resp)
}

func handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp Response
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	if !telegramResp.OK {
		return fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}

	return nil
}

func formatTime(t time.Time) string {
	zoneName, _ := t.Zone()
	return fmt.Sprintf("%s %s", t.Format("2 Jan 2006, 15:04:05"), zoneName)
}
