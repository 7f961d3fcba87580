package service

import (
	"context"
	"math/rand/v2"
	"strings"

	"telegram-secret-santa/internal/domain"

	"github.com/rs/zerolog/log"
)

type Reachability interface {
	CanReach(ctx context.Context, userID int64) bool
	Remember(ctx context.Context, userID int64)
}

type Pair struct {
	Giver    *domain.Participant
	Receiver *domain.Participant
}

// Distribution is the outcome of one pairing run.
type Distribution struct {
	Pairs       []Pair
	Unreachable []*domain.Participant
	Failed      []*domain.DeliveryError
}

type PairingEngine struct {
	reach     Reachability
	messenger Messenger
	texts     *Messages
	shuffle   func(n int, swap func(i, j int))
}

func NewPairingEngine(reach Reachability, messenger Messenger, texts *Messages) *PairingEngine {
	return &PairingEngine{
		reach:     reach,
		messenger: messenger,
		texts:     texts,
		shuffle:   rand.Shuffle,
	}
}

// BuildCycle shuffles participants and links each one to the next, the last
// one giving to the first. With two or more participants nobody gives to
// themselves.
func BuildCycle(participants []*domain.Participant, shuffle func(n int, swap func(i, j int))) []Pair {
	if len(participants) < 2 {
		return nil
	}
	order := make([]*domain.Participant, len(participants))
	copy(order, participants)
	shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	pairs := make([]Pair, len(order))
	for i, giver := range order {
		pairs[i] = Pair{Giver: giver, Receiver: order[(i+1)%len(order)]}
	}
	return pairs
}

// Distribute filters out unreachable participants, builds the gift cycle and
// notifies every giver. It returns domain.ErrInsufficientReachable without
// sending any assignment when fewer than two participants can be reached.
// A failed notification is reported to the chat and does not stop the run.
func (e *PairingEngine) Distribute(ctx context.Context, chat *domain.Chat, participants []*domain.Participant) (*Distribution, error) {
	logger := log.With().Int64("chat_id", chat.ChatID).Str("round_id", chat.RoundID).Logger()
	dist := &Distribution{}

	reachable := make([]*domain.Participant, 0, len(participants))
	for _, p := range participants {
		if e.reach.CanReach(ctx, p.UserID) {
			reachable = append(reachable, p)
		} else {
			dist.Unreachable = append(dist.Unreachable, p)
		}
	}

	if len(dist.Unreachable) > 0 {
		handles := make([]string, 0, len(dist.Unreachable))
		for _, p := range dist.Unreachable {
			handles = append(handles, p.Handle())
		}
		logger.Info().Strs("unreachable", handles).Msg("Distribute: some participants cannot be messaged")
		sendLogged(ctx, e.messenger, chat.ChatID, render(e.texts.UnreachableParticipants, "users", strings.Join(handles, ", ")))
	}

	if len(reachable) < 2 {
		distributionsAborted.Add(1)
		logger.Info().Int("reachable", len(reachable)).Msg("Distribute: not enough reachable participants")
		sendLogged(ctx, e.messenger, chat.ChatID, e.texts.NotEnoughReachable)
		return dist, domain.ErrInsufficientReachable
	}

	dist.Pairs = BuildCycle(reachable, e.shuffle)

	for _, pair := range dist.Pairs {
		text := render(e.texts.GiftAssignment, "receiver", pair.Receiver.Handle())
		if chat.HasBudget() {
			text += "\n" + render(e.texts.GiftBudget, "amount", chat.Amount.String(), "currency", chat.Currency)
		}

		if err := e.messenger.SendText(ctx, pair.Giver.UserID, text); err != nil {
			deliveryFailuresTotal.Add(1)
			derr := &domain.DeliveryError{UserID: pair.Giver.UserID, Err: err}
			dist.Failed = append(dist.Failed, derr)
			logger.Warn().Err(err).Int64("user_id", pair.Giver.UserID).Msg("Distribute: failed to notify giver")
			sendLogged(ctx, e.messenger, chat.ChatID, render(e.texts.NotifyFailed, "user", pair.Giver.Handle()))
			continue
		}
		e.reach.Remember(ctx, pair.Giver.UserID)
	}

	distributionsTotal.Add(1)
	logger.Info().
		Int("pairs", len(dist.Pairs)).
		Int("unreachable", len(dist.Unreachable)).
		Int("failed", len(dist.Failed)).
		Msg("Distribute: pairs distributed")
	sendLogged(ctx, e.messenger, chat.ChatID, e.texts.PairsDistributed)
	return dist, nil
}

// sendLogged sends a chat reply; failures are only logged.
func sendLogged(ctx context.Context, m Messenger, chatID int64, text string) {
	if err := m.SendText(ctx, chatID, text); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}
