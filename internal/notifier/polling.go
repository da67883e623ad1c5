package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// CommandHandler is called when a command is received and returns the reply.
type CommandHandler func(ctx context.Context, command string) string

// StartPolling begins long-polling for Telegram commands. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	offset := int64(0)
	client := &http.Client{Timeout: time.Duration(t.PollTimeout+5) * time.Second}

	for {
		if ctx.Err() != nil {
			t.log.Info("telegram polling stopped")
			return
		}

		apiURL := fmt.Sprintf("%s?offset=%d&timeout=%d", t.endpoint("getUpdates"), offset, t.PollTimeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			t.log.Error("create polling request", zap.Error(err))
			return
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn("polling request failed", zap.Error(err))
			sleepCtx(ctx, 5*time.Second)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.log.Warn("read polling response", zap.Error(err))
			continue
		}
		if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "ok").Bool() {
			t.log.Warn("unexpected polling response", zap.Int("status", resp.StatusCode))
			sleepCtx(ctx, 5*time.Second)
			continue
		}

		offset = t.dispatch(ctx, body, offset, handler)
	}
}

// dispatch handles one getUpdates payload and returns the next offset.
// Messages from chats other than the configured one are ignored.
func (t *TelegramNotifier) dispatch(ctx context.Context, body []byte, offset int64, handler CommandHandler) int64 {
	gjson.GetBytes(body, "result").ForEach(func(_, update gjson.Result) bool {
		if id := update.Get("update_id").Int(); id >= offset {
			offset = id + 1
		}
		text := strings.TrimSpace(update.Get("message.text").String())
		if text == "" {
			return true
		}
		if chat := update.Get("message.chat.id").String(); t.ChatID != "" && chat != t.ChatID {
			t.log.Warn("ignoring command from foreign chat", zap.String("chat_id", chat))
			return true
		}
		t.log.Info("received command", zap.String("command", text))
		if reply := handler(ctx, text); reply != "" {
			if err := t.Send(ctx, reply); err != nil {
				t.log.Error("send reply", zap.Error(err))
			}
		}
		return true
	})
	return offset
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
