package service

import (
	"context"
	"fmt"
	"strings"

	"telegram-secret-santa/internal/domain"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type OpenOutcome int

const (
	OpenCreated OpenOutcome = iota
	OpenRestarted
	OpenAlreadyRegistration
	OpenAlreadyInProgress
)

const defaultCurrency = "RUB"

// Game drives the per-chat state machine:
// unknown -> registration -> completed -> registration ...
type Game struct {
	storage    domain.StorageInterface
	registry   *Registry
	engine     *PairingEngine
	newRoundID func() string
}

func NewGame(storage domain.StorageInterface, registry *Registry, engine *PairingEngine) *Game {
	return &Game{
		storage:    storage,
		registry:   registry,
		engine:     engine,
		newRoundID: func() string { return ulid.Make().String() },
	}
}

// Open registers the chat or starts a new round after a completed one.
func (g *Game) Open(ctx context.Context, chatID int64, name, kind string) (OpenOutcome, error) {
	chat, err := g.storage.GetChat(ctx, chatID)
	if err != nil {
		return 0, err
	}

	if chat == nil {
		if name == "" {
			name = fmt.Sprint(chatID)
		}
		chat = &domain.Chat{
			ChatID:  chatID,
			Name:    name,
			Kind:    kind,
			State:   domain.GameStateRegistration,
			RoundID: g.newRoundID(),
		}
		if err := g.storage.SaveChat(ctx, chat); err != nil {
			return 0, fmt.Errorf("failed to register chat: %w", err)
		}
		log.Info().Int64("chat_id", chatID).Str("round_id", chat.RoundID).Msg("Open: chat registered")
		return OpenCreated, nil
	}

	switch chat.State {
	case domain.GameStateRegistration:
		return OpenAlreadyRegistration, nil
	case domain.GameStateInProgress:
		return OpenAlreadyInProgress, nil
	}

	if err := g.registry.Clear(ctx, chatID); err != nil {
		return 0, fmt.Errorf("failed to clear previous round: %w", err)
	}
	chat.State = domain.GameStateRegistration
	chat.RoundID = g.newRoundID()
	if name != "" {
		chat.Name = name
	}
	if err := g.storage.SaveChat(ctx, chat); err != nil {
		return 0, fmt.Errorf("failed to start new round: %w", err)
	}
	log.Info().Int64("chat_id", chatID).Str("round_id", chat.RoundID).Msg("Open: new round started")
	return OpenRestarted, nil
}

func (g *Game) Join(ctx context.Context, p *domain.Participant) error {
	return g.registry.Register(ctx, p)
}

// Close distributes pairs and completes the round. The round stays open when
// the engine aborts, so the chat can retry after fixing reachability.
func (g *Game) Close(ctx context.Context, chatID int64) (*Distribution, error) {
	chat, err := g.storage.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, domain.ErrChatNotRegistered
	}
	if chat.State != domain.GameStateRegistration {
		return nil, &domain.StateError{State: chat.State}
	}

	participants, err := g.registry.List(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, domain.ErrNoParticipants
	}

	// Once notification starts the round must be committed, even if the
	// caller gives up.
	ctx = context.WithoutCancel(ctx)
	dist, err := g.engine.Distribute(ctx, chat, participants)
	if err != nil {
		return dist, err
	}

	if err := g.storage.CompleteRound(ctx, chatID); err != nil {
		return dist, fmt.Errorf("failed to complete round: %w", err)
	}
	return dist, nil
}

// Reset forgets the chat and its participants. It reports false when the
// chat was not registered.
func (g *Game) Reset(ctx context.Context, chatID int64) (bool, error) {
	chat, err := g.storage.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	if chat == nil {
		return false, nil
	}
	if err := g.storage.DeleteChat(ctx, chatID); err != nil {
		return false, err
	}
	log.Info().Int64("chat_id", chatID).Str("round_id", chat.RoundID).Msg("Reset: chat removed")
	return true, nil
}

func (g *Game) Participants(ctx context.Context, chatID int64) (*domain.Chat, []*domain.Participant, error) {
	chat, err := g.storage.GetChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if chat == nil {
		return nil, nil, nil
	}
	participants, err := g.registry.List(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	return chat, participants, nil
}

// SetBudget stores the gift budget shown to givers.
func (g *Game) SetBudget(ctx context.Context, chatID int64, amount decimal.Decimal, currency string) (*domain.Chat, error) {
	chat, err := g.storage.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, domain.ErrChatNotRegistered
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultCurrency
	}
	chat.Amount = amount
	chat.Currency = currency
	if err := g.storage.SaveChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("failed to save budget: %w", err)
	}
	return chat, nil
}

// ParseBudget reads "<amount> [currency]".
func ParseBudget(args string) (decimal.Decimal, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return decimal.Zero, "", fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(fields[0], ",", "."))
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid amount %q: %w", fields[0], err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, "", fmt.Errorf("amount must be positive")
	}
	currency := ""
	if len(fields) > 1 {
		currency = fields[1]
	}
	return amount, currency, nil
}
