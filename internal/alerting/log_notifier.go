package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the log instead of an external sink. Used when
// no Telegram transport is configured, so the pipeline stays observable in
// development.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// SendText logs the alert text.
func (n *LogNotifier) SendText(_ context.Context, recipient, text string) error {
	n.logger.Info().Str("recipient", recipient).Str("text", text).Msg("alert")
	return nil
}

// SendPhoto logs the caption and drops the attachment.
func (n *LogNotifier) SendPhoto(_ context.Context, recipient string, photo []byte, caption string) error {
	n.logger.Info().Str("recipient", recipient).Int("photo_bytes", len(photo)).Str("text", caption).Msg("alert")
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
