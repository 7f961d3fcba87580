package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// GameState is the phase of the gift exchange in a single chat.
type GameState string

const (
	GameStateRegistration GameState = "registration"
	GameStateInProgress   GameState = "in_progress"
	GameStateCompleted    GameState = "completed"
)

func (s GameState) Valid() bool {
	switch s {
	case GameStateRegistration, GameStateInProgress, GameStateCompleted:
		return true
	}
	return false
}

// Chat kinds as reported by Telegram.
const (
	ChatKindPrivate    = "private"
	ChatKindGroup      = "group"
	ChatKindSupergroup = "supergroup"
	ChatKindChannel    = "channel"
)

func IsGroupKind(kind string) bool {
	return kind == ChatKindGroup || kind == ChatKindSupergroup
}

type Chat struct {
	ChatID   int64
	Name     string
	Kind     string
	State    GameState
	RoundID  string
	Currency string
	Amount   decimal.Decimal
}

// HasBudget reports whether a gift budget was set for the round.
func (c *Chat) HasBudget() bool {
	return c.Amount.IsPositive()
}

type Participant struct {
	ChatID   int64
	UserID   int64
	Username string
	FullName string
}

// Handle is the name used when addressing the participant in a chat.
func (p *Participant) Handle() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	if p.FullName != "" {
		return p.FullName
	}
	return "пользователь"
}

// SentMessage marks a user the bot has managed to message privately.
type SentMessage struct {
	UserID int64
	SentAt time.Time
}

type StorageInterface interface {
	// GetChat returns nil, nil when the chat is unknown.
	GetChat(ctx context.Context, chatID int64) (*Chat, error)
	SaveChat(ctx context.Context, chat *Chat) error
	// DeleteChat removes the chat and all of its participants.
	DeleteChat(ctx context.Context, chatID int64) error

	// AddParticipant reports false when the user is already registered in the chat.
	AddParticipant(ctx context.Context, p *Participant) (bool, error)
	// GetParticipants returns participants in registration order.
	GetParticipants(ctx context.Context, chatID int64) ([]*Participant, error)
	ClearParticipants(ctx context.Context, chatID int64) error
	// CompleteRound moves the chat to GameStateCompleted and clears its
	// participants in one step.
	CompleteRound(ctx context.Context, chatID int64) error

	HasSentMessage(ctx context.Context, userID int64) (bool, error)
	// SaveSentMessage keeps the first record for a user.
	SaveSentMessage(ctx context.Context, msg SentMessage) error

	Ping(ctx context.Context) error
	Close() error
}
