package alerting

import (
	"context"

	"github.com/rs/zerolog"
)

// Dispatcher fans one rendered alert out to every configured recipient. Each
// recipient is independent: one delivery failure never blocks the others, and
// a failed rich delivery falls back to plain text for that recipient only.
type Dispatcher struct {
	notifier   Notifier
	recipients []string
	logger     zerolog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(notifier Notifier, recipients []string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier:   notifier,
		recipients: recipients,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch sends text (with the optional photo attachment) to every
// recipient. Failures are logged and dropped, never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, photo []byte) {
	for _, recipient := range d.recipients {
		if len(photo) > 0 {
			if err := d.notifier.SendPhoto(ctx, recipient, photo, text); err == nil {
				continue
			} else {
				d.logger.Warn().Err(err).Str("recipient", recipient).Msg("rich delivery failed, falling back to text")
			}
		}
		if err := d.notifier.SendText(ctx, recipient, text); err != nil {
			d.logger.Error().Err(err).Str("recipient", recipient).Msg("alert delivery failed")
		}
	}
}
