package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const updatePollTimeout = 25 * time.Second

// ScoreFunc evaluates the on-demand short score for a symbol.
type ScoreFunc func(ctx context.Context, symbol string) (float64, error)

// StatusFunc renders the current service status text.
type StatusFunc func() string

// CommandPoller long-polls the Telegram getUpdates API and answers `/status`
// and `/score SYMBOL` from authorized chats. The configured recipient list
// doubles as the authorization list.
type CommandPoller struct {
	botToken   string
	baseURL    string
	client     *http.Client
	notifier   Notifier
	authorized map[string]struct{}
	status     StatusFunc
	score      ScoreFunc
	logger     zerolog.Logger
}

// NewCommandPoller constructs a command poller.
func NewCommandPoller(botToken, baseURL string, notifier Notifier, recipients []string, status StatusFunc, score ScoreFunc, logger zerolog.Logger) *CommandPoller {
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	authorized := make(map[string]struct{}, len(recipients))
	for _, r := range recipients {
		authorized[r] = struct{}{}
	}
	return &CommandPoller{
		botToken:   botToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: updatePollTimeout + 10*time.Second},
		notifier:   notifier,
		authorized: authorized,
		status:     status,
		score:      score,
		logger:     logger.With().Str("component", "command_poller").Logger(),
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Run polls for updates until ctx is cancelled. Transport failures are logged
// and retried after a short pause.
func (p *CommandPoller) Run(ctx context.Context) error {
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := p.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn().Err(err).Msg("getUpdates failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.handle(ctx, u)
		}
	}
}

func (p *CommandPoller) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d", p.baseURL, p.botToken, int(updatePollTimeout.Seconds()), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var payload struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !payload.OK {
		return nil, fmt.Errorf("telegram returned ok=false")
	}
	return payload.Result, nil
}

func (p *CommandPoller) handle(ctx context.Context, u update) {
	if u.Message == nil {
		return
	}
	chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
	if _, ok := p.authorized[chatID]; !ok {
		return
	}

	fields := strings.Fields(u.Message.Text)
	if len(fields) == 0 {
		return
	}

	switch strings.ToLower(fields[0]) {
	case "/status", "/start":
		p.reply(ctx, chatID, p.status())
	case "/score":
		if len(fields) < 2 {
			p.reply(ctx, chatID, "usage: /score SYMBOL")
			return
		}
		symbol := strings.ToUpper(fields[1])
		score, err := p.score(ctx, symbol)
		if err != nil {
			p.logger.Warn().Err(err).Str("symbol", symbol).Msg("on-demand score failed")
			p.reply(ctx, chatID, fmt.Sprintf("%s: evaluation failed", symbol))
			return
		}
		p.reply(ctx, chatID, fmt.Sprintf("%s short score: %.2f", symbol, score))
	}
}

func (p *CommandPoller) reply(ctx context.Context, chatID, text string) {
	if err := p.notifier.SendText(ctx, chatID, text); err != nil {
		p.logger.Warn().Err(err).Str("chat_id", chatID).Msg("command reply failed")
	}
}
