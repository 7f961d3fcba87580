package service

import (
	"context"
	"strings"
	"sync"

	"telegram-secret-santa/internal/domain"
)

type sentText struct {
	ChatID int64
	Text   string
}

type fakeMessenger struct {
	mu        sync.Mutex
	sent      []sentText
	admins    map[int64][]int64
	forbidden map[int64]bool
	adminErr  error
	// hook may fail a send after the forbidden check.
	hook func(chatID int64, text string) error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		admins:    map[int64][]int64{},
		forbidden: map[int64]bool{},
	}
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forbidden[chatID] {
		return domain.ErrForbidden
	}
	if f.hook != nil {
		if err := f.hook(chatID, text); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, sentText{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeMessenger) ChatAdministrators(_ context.Context, chatID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adminErr != nil {
		return nil, f.adminErr
	}
	return f.admins[chatID], nil
}

func (f *fakeMessenger) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

func (f *fakeMessenger) lastTo(chatID int64) string {
	texts := f.textsTo(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (f *fakeMessenger) sentContaining(chatID int64, substr string) bool {
	for _, text := range f.textsTo(chatID) {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

func (f *fakeMessenger) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// fakeReach is a Reachability with a fixed answer per user.
type fakeReach struct {
	unreachable map[int64]bool
	checked     []int64
	remembered  []int64
}

func (f *fakeReach) CanReach(_ context.Context, userID int64) bool {
	f.checked = append(f.checked, userID)
	return !f.unreachable[userID]
}

func (f *fakeReach) Remember(_ context.Context, userID int64) {
	f.remembered = append(f.remembered, userID)
}
