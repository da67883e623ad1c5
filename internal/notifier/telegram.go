package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"VCPHunter/internal/model"
)

const defaultAPIBase = "https://api.telegram.org"

// Sender delivers one message to the notification sink.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
	// Backoff is the first retry delay; it doubles on every attempt.
	Backoff time.Duration
	// PollTimeout is the getUpdates long-poll timeout in seconds.
	PollTimeout int

	log *zap.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, log *zap.Logger) *TelegramNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			log.Warn("ignoring invalid proxy url", zap.Error(err))
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  defaultAPIBase,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		Backoff:     time.Second,
		PollTimeout: 30,
		log:         log,
	}
}

func (t *TelegramNotifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.BaseURL, t.BotToken, method)
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":                  t.ChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !gjson.GetBytes(respBody, "ok").Bool() {
		desc := gjson.GetBytes(respBody, "description").String()
		if desc == "" {
			desc = string(respBody)
		}
		return fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, desc)
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := t.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		backoff := t.Backoff * time.Duration(1<<uint(i))
		t.log.Warn("telegram send failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("attempts", maxRetries+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)
}

// RetryingSender adapts SendWithRetry to the Sender interface.
type RetryingSender struct {
	Notifier   *TelegramNotifier
	MaxRetries int
}

func (r RetryingSender) Send(ctx context.Context, text string) error {
	return r.Notifier.SendWithRetry(ctx, text, r.MaxRetries)
}

// SendChunks delivers chunks in order with a fixed pause between them.
// It keeps going after a failed chunk and returns how many were accepted
// together with the joined NotificationErrors.
func SendChunks(ctx context.Context, s Sender, chunks []string, pace time.Duration, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var errs []error
	delivered := 0
	for i, chunk := range chunks {
		if i > 0 && pace > 0 {
			select {
			case <-ctx.Done():
				for j := i; j < len(chunks); j++ {
					errs = append(errs, &model.NotificationError{Chunk: j, Err: ctx.Err()})
				}
				return delivered, errors.Join(errs...)
			case <-time.After(pace):
			}
		}
		if err := s.Send(ctx, chunk); err != nil {
			nerr := &model.NotificationError{Chunk: i, Err: err}
			log.Error("notification chunk not delivered", zap.Int("chunk", i), zap.Int("chunks", len(chunks)), zap.Error(err))
			errs = append(errs, nerr)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}
