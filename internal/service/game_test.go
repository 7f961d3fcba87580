package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"telegram-secret-santa/internal/domain"

	"github.com/shopspring/decimal"
)

type gameFixture struct {
	game      *Game
	storage   *SQLStorage
	messenger *fakeMessenger
}

func newGameFixture(t *testing.T) *gameFixture {
	t.Helper()
	st := newSQLiteTestStorage(t)
	m := newFakeMessenger()
	texts := DefaultMessages()
	engine := NewPairingEngine(NewProber(st, m, texts.Probe), m, texts)
	engine.shuffle = noShuffle

	g := NewGame(st, NewRegistry(st), engine)
	rounds := 0
	g.newRoundID = func() string {
		rounds++
		return strings.Repeat("R", rounds)
	}
	return &gameFixture{game: g, storage: st, messenger: m}
}

func (f *gameFixture) join(t *testing.T, chatID int64, users ...string) {
	t.Helper()
	for i, name := range users {
		p := &domain.Participant{ChatID: chatID, UserID: int64(i + 1), Username: name}
		if err := f.game.Join(context.Background(), p); err != nil {
			t.Fatalf("Join(%s) error = %v", name, err)
		}
	}
}

func (f *gameFixture) chat(t *testing.T, chatID int64) *domain.Chat {
	t.Helper()
	c, err := f.storage.GetChat(context.Background(), chatID)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGameOpen(t *testing.T) {
	ctx := context.Background()
	f := newGameFixture(t)

	outcome, err := f.game.Open(ctx, -1, "Офис", domain.ChatKindGroup)
	if err != nil || outcome != OpenCreated {
		t.Fatalf("first Open() = %v, %v", outcome, err)
	}
	c := f.chat(t, -1)
	if c.State != domain.GameStateRegistration || c.Name != "Офис" || c.RoundID != "R" {
		t.Errorf("unexpected chat %+v", c)
	}

	outcome, err = f.game.Open(ctx, -1, "Офис", domain.ChatKindGroup)
	if err != nil || outcome != OpenAlreadyRegistration {
		t.Fatalf("second Open() = %v, %v", outcome, err)
	}
	if f.chat(t, -1).RoundID != "R" {
		t.Error("a repeated Open() must not start a new round")
	}
}

func TestGameOpenWithoutTitleUsesChatID(t *testing.T) {
	f := newGameFixture(t)
	if _, err := f.game.Open(context.Background(), -42, "", domain.ChatKindGroup); err != nil {
		t.Fatal(err)
	}
	if got := f.chat(t, -42).Name; got != "-42" {
		t.Errorf("Name = %q, want -42", got)
	}
}

func TestGameOpenInProgress(t *testing.T) {
	f := newGameFixture(t)
	seedChat(t, f.storage, -1, domain.GameStateInProgress)

	outcome, err := f.game.Open(context.Background(), -1, "", domain.ChatKindGroup)
	if err != nil || outcome != OpenAlreadyInProgress {
		t.Fatalf("Open() = %v, %v", outcome, err)
	}
}

func TestGameCloseDistributesAndCompletes(t *testing.T) {
	ctx := context.Background()
	f := newGameFixture(t)
	if _, err := f.game.Open(ctx, -1, "Офис", domain.ChatKindGroup); err != nil {
		t.Fatal(err)
	}
	f.join(t, -1, "anna", "boris", "vera")
	f.messenger.forbidden[2] = true

	dist, err := f.game.Close(ctx, -1)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if len(dist.Pairs) != 2 || len(dist.Unreachable) != 1 {
		t.Fatalf("unexpected distribution %+v", dist)
	}
	if !f.messenger.sentContaining(1, "@vera") || !f.messenger.sentContaining(3, "@anna") {
		t.Error("anna and vera should be paired with each other")
	}

	if got := f.chat(t, -1).State; got != domain.GameStateCompleted {
		t.Errorf("State = %s, want completed", got)
	}
	participants, err := f.storage.GetParticipants(ctx, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(participants) != 0 {
		t.Errorf("participants left after close: %d", len(participants))
	}
	for _, id := range []int64{1, 3} {
		known, err := f.storage.HasSentMessage(ctx, id)
		if err != nil || !known {
			t.Errorf("user %d not remembered as reachable", id)
		}
	}
}

func TestGameCloseAbortKeepsRound(t *testing.T) {
	ctx := context.Background()
	f := newGameFixture(t)
	if _, err := f.game.Open(ctx, -1, "Офис", domain.ChatKindGroup); err != nil {
		t.Fatal(err)
	}
	f.join(t, -1, "anna", "boris")
	f.messenger.forbidden[2] = true

	_, err := f.game.Close(ctx, -1)
	if !errors.Is(err, domain.ErrInsufficientReachable) {
		t.Fatalf("Close() error = %v, want ErrInsufficientReachable", err)
	}
	if got := f.chat(t, -1).State; got != domain.GameStateRegistration {
		t.Errorf("State = %s, want registration", got)
	}
	participants, err := f.storage.GetParticipants(ctx, -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(participants) != 2 {
		t.Errorf("participants = %d, want 2", len(participants))
	}
}

func TestGameClosePreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown chat", func(t *testing.T) {
		f := newGameFixture(t)
		if _, err := f.game.Close(ctx, -1); !errors.Is(err, domain.ErrChatNotRegistered) {
			t.Errorf("Close() error = %v", err)
		}
	})

	t.Run("no participants", func(t *testing.T) {
		f := newGameFixture(t)
		seedChat(t, f.storage, -1, domain.GameStateRegistration)
		if _, err := f.game.Close(ctx, -1); !errors.Is(err, domain.ErrNoParticipants) {
			t.Errorf("Close() error = %v", err)
		}
		if len(f.messenger.sent) != 0 {
			t.Error("no message may be sent before the precondition passes")
		}
	})

	for _, state := range []domain.GameState{domain.GameStateInProgress, domain.GameStateCompleted} {
		t.Run(string(state), func(t *testing.T) {
			f := newGameFixture(t)
			seedChat(t, f.storage, -1, state)
			_, err := f.game.Close(ctx, -1)
			var stateErr *domain.StateError
			if !errors.As(err, &stateErr) || stateErr.State != state {
				t.Errorf("Close() error = %v, want StateError(%s)", err, state)
			}
		})
	}
}

func TestGameNewRoundAfterCompletion(t *testing.T) {
	ctx := context.Background()
	f := newGameFixture(t)
	if _, err := f.game.Open(ctx, -1, "Офис", domain.ChatKindGroup); err != nil {
		t.Fatal(err)
	}
	f.join(t, -1, "anna", "boris")
	if _, err := f.game.Close(ctx, -1); err != nil {
		t.Fatal(err)
	}

	if err := f.game.Join(ctx, &domain.Participant{ChatID: -1, UserID: 9}); !errors.Is(err, domain.ErrNotInRegistration) {
		t.Fatalf("Join() after completion error = %v", err)
	}

	outcome, err := f.game.Open(ctx, -1, "", domain.ChatKindGroup)
	if err != nil || outcome != OpenRestarted {
		t.Fatalf("Open() = %v, %v", outcome, err)
	}
	c := f.chat(t, -1)
	if c.State != domain.GameStateRegistration || c.RoundID != "RR" || c.Name != "Офис" {
		t.Errorf("unexpected chat %+v", c)
	}
	if err := f.game.Join(ctx, &domain.Participant{ChatID: -1, UserID: 9}); err != nil {
		t.Errorf("Join() in new round error = %v", err)
	}
}

func TestGameReset(t *testing.T) {
	ctx := context.Background()
	f := newGameFixture(t)

	removed, err := f.game.Reset(ctx, -1)
	if err != nil || removed {
		t.Fatalf("Reset(unknown) = %v, %v", removed, err)
	}

	if _, err := f.game.Open(ctx, -1, "Офис", domain.ChatKindGroup); err != nil {
		t.Fatal(err)
	}
	f.join(t, -1, "anna", "boris")

	removed, err = f.game.Reset(ctx, -1)
	if err != nil || !removed {
		t.Fatalf("Reset() = %v, %v", removed, err)
	}
	chat, participants, err := f.game.Participants(ctx, -1)
	if err != nil {
		t.Fatal(err)
	}
	if chat != nil || len(participants) != 0 {
		t.Errorf("chat survived reset: %+v, %d participants", chat, len(participants))
	}
}

func TestGameSetBudget(t *testing.T) {
	ctx := context.Background()
	f := newGameFixture(t)

	if _, err := f.game.SetBudget(ctx, -1, decimal.NewFromInt(100), ""); !errors.Is(err, domain.ErrChatNotRegistered) {
		t.Fatalf("SetBudget(unknown) error = %v", err)
	}

	seedChat(t, f.storage, -1, domain.GameStateRegistration)
	chat, err := f.game.SetBudget(ctx, -1, decimal.RequireFromString("2500.5"), " eur ")
	if err != nil {
		t.Fatal(err)
	}
	if chat.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", chat.Currency)
	}
	stored := f.chat(t, -1)
	if !stored.Amount.Equal(decimal.RequireFromString("2500.5")) || stored.Currency != "EUR" {
		t.Errorf("stored budget = %s %s", stored.Amount, stored.Currency)
	}

	chat, err = f.game.SetBudget(ctx, -1, decimal.NewFromInt(1000), "")
	if err != nil {
		t.Fatal(err)
	}
	if chat.Currency != defaultCurrency {
		t.Errorf("Currency = %q, want %s", chat.Currency, defaultCurrency)
	}
}

func TestParseBudget(t *testing.T) {
	tests := []struct {
		args         string
		wantAmount   string
		wantCurrency string
		wantErr      bool
	}{
		{args: "1500", wantAmount: "1500"},
		{args: "1500 usd", wantAmount: "1500", wantCurrency: "usd"},
		{args: "  99,90   EUR ", wantAmount: "99.9", wantCurrency: "EUR"},
		{args: "", wantErr: true},
		{args: "много", wantErr: true},
		{args: "0", wantErr: true},
		{args: "-10 RUB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			amount, currency, err := ParseBudget(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseBudget(%q) expected error", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBudget(%q) error = %v", tt.args, err)
			}
			if !amount.Equal(decimal.RequireFromString(tt.wantAmount)) || currency != tt.wantCurrency {
				t.Errorf("ParseBudget(%q) = %s %q", tt.args, amount, currency)
			}
		})
	}
}

// cancellingMessenger fails sends on a cancelled context, like the Telegram
// messenger, and cancels after the first gift assignment.
type cancellingMessenger struct {
	*fakeMessenger
	cancel context.CancelFunc
}

func (m *cancellingMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.fakeMessenger.SendText(ctx, chatID, text); err != nil {
		return err
	}
	if strings.HasPrefix(text, "🎁") {
		m.cancel()
	}
	return nil
}

func TestGameCloseCommitsAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := newSQLiteTestStorage(t)
	m := &cancellingMessenger{fakeMessenger: newFakeMessenger(), cancel: cancel}
	texts := DefaultMessages()
	engine := NewPairingEngine(NewProber(st, m, texts.Probe), m, texts)
	engine.shuffle = noShuffle
	g := NewGame(st, NewRegistry(st), engine)

	seedChat(t, st, -1, domain.GameStateRegistration)
	for i, name := range []string{"anna", "boris", "vera"} {
		if err := g.Join(ctx, &domain.Participant{ChatID: -1, UserID: int64(i + 1), Username: name}); err != nil {
			t.Fatal(err)
		}
	}

	dist, err := g.Close(ctx, -1)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("context was not cancelled during the distribution")
	}
	if len(dist.Failed) != 0 {
		t.Errorf("deliveries failed after cancellation: %+v", dist.Failed)
	}
	for id := int64(1); id <= 3; id++ {
		if !m.sentContaining(id, "🎁") {
			t.Errorf("giver %d got no assignment", id)
		}
	}

	bg := context.Background()
	c, err := st.GetChat(bg, -1)
	if err != nil || c.State != domain.GameStateCompleted {
		t.Fatalf("chat after close: %+v, %v", c, err)
	}
	participants, err := st.GetParticipants(bg, -1)
	if err != nil || len(participants) != 0 {
		t.Errorf("participants after close: %d, %v", len(participants), err)
	}
}

func TestGameResetFromAnyState(t *testing.T) {
	ctx := context.Background()

	for _, state := range []domain.GameState{domain.GameStateRegistration, domain.GameStateInProgress, domain.GameStateCompleted} {
		t.Run(string(state), func(t *testing.T) {
			f := newGameFixture(t)
			seedChat(t, f.storage, -1, state)
			if _, err := f.storage.AddParticipant(ctx, &domain.Participant{ChatID: -1, UserID: 1}); err != nil {
				t.Fatal(err)
			}

			removed, err := f.game.Reset(ctx, -1)
			if err != nil || !removed {
				t.Fatalf("Reset() = %v, %v", removed, err)
			}
			if c := f.chat(t, -1); c != nil {
				t.Errorf("chat survived reset: %+v", c)
			}
			participants, err := f.storage.GetParticipants(ctx, -1)
			if err != nil || len(participants) != 0 {
				t.Errorf("participants after reset: %d, %v", len(participants), err)
			}
		})
	}
}

func TestGameOpenNewRoundStartsWithEmptyRoster(t *testing.T) {
	ctx := context.Background()
	f := newGameFixture(t)
	seedChat(t, f.storage, -1, domain.GameStateCompleted)
	if _, err := f.storage.AddParticipant(ctx, &domain.Participant{ChatID: -1, UserID: 1, Username: "anna"}); err != nil {
		t.Fatal(err)
	}

	outcome, err := f.game.Open(ctx, -1, "", domain.ChatKindGroup)
	if err != nil || outcome != OpenRestarted {
		t.Fatalf("Open() = %v, %v", outcome, err)
	}
	participants, err := f.storage.GetParticipants(ctx, -1)
	if err != nil || len(participants) != 0 {
		t.Errorf("new round kept %d participants, %v", len(participants), err)
	}
}
