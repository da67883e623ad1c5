package notifier

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the log instead of a chat. Used for dry runs
// and when no bot token is configured.
type LogSender struct {
	Log *zap.Logger
}

func (l LogSender) Send(_ context.Context, text string) error {
	if l.Log != nil {
		l.Log.Info("report", zap.String("text", text))
	}
	return nil
}
