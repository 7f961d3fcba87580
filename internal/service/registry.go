package service

import (
	"context"
	"fmt"

	"telegram-secret-santa/internal/domain"
)

// Registry records who joined the current round of a chat.
type Registry struct {
	storage domain.StorageInterface
}

func NewRegistry(storage domain.StorageInterface) *Registry {
	return &Registry{storage: storage}
}

// Register adds the participant to an open round. It returns
// domain.ErrChatNotRegistered, a *domain.StateError or
// domain.ErrAlreadyRegistered when the user cannot be added.
func (r *Registry) Register(ctx context.Context, p *domain.Participant) error {
	chat, err := r.storage.GetChat(ctx, p.ChatID)
	if err != nil {
		return err
	}
	if chat == nil {
		return domain.ErrChatNotRegistered
	}
	if chat.State != domain.GameStateRegistration {
		return &domain.StateError{State: chat.State}
	}

	added, err := r.storage.AddParticipant(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to register participant: %w", err)
	}
	if !added {
		return domain.ErrAlreadyRegistered
	}
	return nil
}

func (r *Registry) List(ctx context.Context, chatID int64) ([]*domain.Participant, error) {
	return r.storage.GetParticipants(ctx, chatID)
}

func (r *Registry) Clear(ctx context.Context, chatID int64) error {
	return r.storage.ClearParticipants(ctx, chatID)
}
