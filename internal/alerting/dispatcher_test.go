package alerting

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type fakeNotifier struct {
	textErr  map[string]error
	photoErr map[string]error

	texts  []string
	photos []string
}

func (f *fakeNotifier) SendText(_ context.Context, recipient, text string) error {
	if err := f.textErr[recipient]; err != nil {
		return err
	}
	f.texts = append(f.texts, recipient)
	return nil
}

func (f *fakeNotifier) SendPhoto(_ context.Context, recipient string, photo []byte, caption string) error {
	if err := f.photoErr[recipient]; err != nil {
		return err
	}
	f.photos = append(f.photos, recipient)
	return nil
}

func TestDispatchTextToAllRecipients(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDispatcher(n, []string{"a", "b"}, zerolog.Nop())

	d.Dispatch(context.Background(), "alert", nil)

	if len(n.texts) != 2 || len(n.photos) != 0 {
		t.Fatalf("expected text to both recipients, got texts=%v photos=%v", n.texts, n.photos)
	}
}

func TestDispatchPrefersPhoto(t *testing.T) {
	n := &fakeNotifier{}
	d := NewDispatcher(n, []string{"a"}, zerolog.Nop())

	d.Dispatch(context.Background(), "alert", []byte{1, 2, 3})

	if len(n.photos) != 1 || len(n.texts) != 0 {
		t.Fatalf("photo delivery should not be followed by text, got texts=%v photos=%v", n.texts, n.photos)
	}
}

func TestDispatchFallsBackToText(t *testing.T) {
	n := &fakeNotifier{photoErr: map[string]error{"a": errors.New("too large")}}
	d := NewDispatcher(n, []string{"a"}, zerolog.Nop())

	d.Dispatch(context.Background(), "alert", []byte{1, 2, 3})

	if len(n.texts) != 1 {
		t.Fatalf("failed photo delivery must fall back to text, got texts=%v", n.texts)
	}
}

func TestDispatchRecipientsAreIndependent(t *testing.T) {
	n := &fakeNotifier{textErr: map[string]error{"a": errors.New("blocked")}}
	d := NewDispatcher(n, []string{"a", "b"}, zerolog.Nop())

	d.Dispatch(context.Background(), "alert", nil)

	if len(n.texts) != 1 || n.texts[0] != "b" {
		t.Fatalf("one recipient failing must not block the other, got texts=%v", n.texts)
	}
}
