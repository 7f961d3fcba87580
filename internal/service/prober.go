package service

import (
	"context"
	"errors"
	"time"

	"telegram-secret-santa/internal/domain"

	"github.com/rs/zerolog/log"
)

// Prober answers whether the bot can message a user privately.
//
// A positive answer is remembered for the user across all chats and rounds,
// so a user proven reachable once is never probed again.
type Prober struct {
	storage   domain.StorageInterface
	messenger Messenger
	probeText string
	now       func() time.Time
}

func NewProber(storage domain.StorageInterface, messenger Messenger, probeText string) *Prober {
	return &Prober{
		storage:   storage,
		messenger: messenger,
		probeText: probeText,
		now:       time.Now,
	}
}

// CanReach sends a probe message the first time a user is checked.
func (p *Prober) CanReach(ctx context.Context, userID int64) bool {
	known, err := p.storage.HasSentMessage(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("CanReach: failed to read reachability record, probing")
	}
	if known {
		return true
	}

	if err := p.messenger.SendText(ctx, userID, p.probeText); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			log.Info().Int64("user_id", userID).Msg("CanReach: bot is blocked or was never started by user")
		} else {
			log.Warn().Err(err).Int64("user_id", userID).Msg("CanReach: probe failed")
		}
		return false
	}

	p.Remember(ctx, userID)
	return true
}

// Remember records a successful private delivery.
func (p *Prober) Remember(ctx context.Context, userID int64) {
	err := p.storage.SaveSentMessage(ctx, domain.SentMessage{UserID: userID, SentAt: p.now()})
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Remember: failed to save reachability record")
	}
}
