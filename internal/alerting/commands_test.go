package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type replyRecorder struct {
	replies map[string][]string
}

func (r *replyRecorder) SendText(_ context.Context, recipient, text string) error {
	if r.replies == nil {
		r.replies = make(map[string][]string)
	}
	r.replies[recipient] = append(r.replies[recipient], text)
	return nil
}

func (r *replyRecorder) SendPhoto(context.Context, string, []byte, string) error {
	return nil
}

func messageUpdate(chatID int64, text string) update {
	u := update{UpdateID: 1}
	u.Message = &struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	}{Text: text}
	u.Message.Chat.ID = chatID
	return u
}

func newTestPoller(n Notifier, score ScoreFunc) *CommandPoller {
	status := func() string { return "watching 500 symbols" }
	return NewCommandPoller("token", "", n, []string{"100"}, status, score, zerolog.Nop())
}

func TestHandleStatus(t *testing.T) {
	rec := &replyRecorder{}
	p := newTestPoller(rec, nil)

	p.handle(context.Background(), messageUpdate(100, "/status"))

	got := rec.replies["100"]
	if len(got) != 1 || got[0] != "watching 500 symbols" {
		t.Fatalf("unexpected replies: %v", got)
	}
}

func TestHandleStartAliasesStatus(t *testing.T) {
	rec := &replyRecorder{}
	p := newTestPoller(rec, nil)

	p.handle(context.Background(), messageUpdate(100, "/start"))

	if len(rec.replies["100"]) != 1 {
		t.Fatalf("expected a status reply, got %v", rec.replies)
	}
}

func TestHandleScore(t *testing.T) {
	rec := &replyRecorder{}
	p := newTestPoller(rec, func(ctx context.Context, symbol string) (float64, error) {
		if symbol != "BTCUSDT" {
			t.Fatalf("symbol must be upper-cased, got %s", symbol)
		}
		return 0.73, nil
	})

	p.handle(context.Background(), messageUpdate(100, "/score btcusdt"))

	got := rec.replies["100"]
	if len(got) != 1 || !strings.Contains(got[0], "0.73") {
		t.Fatalf("unexpected replies: %v", got)
	}
}

func TestHandleScoreUsage(t *testing.T) {
	rec := &replyRecorder{}
	p := newTestPoller(rec, nil)

	p.handle(context.Background(), messageUpdate(100, "/score"))

	got := rec.replies["100"]
	if len(got) != 1 || !strings.Contains(got[0], "usage") {
		t.Fatalf("expected usage hint, got %v", got)
	}
}

func TestHandleScoreFailure(t *testing.T) {
	rec := &replyRecorder{}
	p := newTestPoller(rec, func(ctx context.Context, symbol string) (float64, error) {
		return 0, errors.New("exchange down")
	})

	p.handle(context.Background(), messageUpdate(100, "/score BTCUSDT"))

	got := rec.replies["100"]
	if len(got) != 1 || !strings.Contains(got[0], "failed") {
		t.Fatalf("expected failure reply, got %v", got)
	}
}

func TestHandleIgnoresUnauthorizedChats(t *testing.T) {
	rec := &replyRecorder{}
	p := newTestPoller(rec, nil)

	p.handle(context.Background(), messageUpdate(999, "/status"))

	if len(rec.replies) != 0 {
		t.Fatalf("unauthorized chats must be ignored, got %v", rec.replies)
	}
}

func TestHandleIgnoresNonCommands(t *testing.T) {
	rec := &replyRecorder{}
	p := newTestPoller(rec, nil)

	p.handle(context.Background(), messageUpdate(100, "hello there"))
	p.handle(context.Background(), update{UpdateID: 2})

	if len(rec.replies) != 0 {
		t.Fatalf("non-commands must be ignored, got %v", rec.replies)
	}
}
