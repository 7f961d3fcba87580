package service

import (
	"context"
	"errors"
	"strings"

	"telegram-secret-santa/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Command is one inbound bot command, already stripped of transport details.
type Command struct {
	ChatID    int64
	ChatKind  string
	ChatTitle string
	From      UserRef
	Word      string
	Mention   string
	Args      string
	ReplyTo   *UserRef
}

func (c Command) IsGroup() bool {
	return domain.IsGroupKind(c.ChatKind)
}

type SecretSantaBot struct {
	Messenger   Messenger
	Storage     domain.StorageInterface
	Texts       *Messages
	Game        *Game
	Prober      *Prober
	Snowball    *Snowball
	BotUsername string
}

func NewSecretSantaBot(messenger Messenger, storage domain.StorageInterface, texts *Messages, hitChance float64) *SecretSantaBot {
	prober := NewProber(storage, messenger, texts.Probe)
	engine := NewPairingEngine(prober, messenger, texts)
	return &SecretSantaBot{
		Messenger: messenger,
		Storage:   storage,
		Texts:     texts,
		Game:      NewGame(storage, NewRegistry(storage), engine),
		Prober:    prober,
		Snowball:  NewSnowball(texts, hitChance),
	}
}

// ParseCommand extracts the lower-cased command word, an optional @bot
// mention and the remaining arguments. ok is false for non-command text.
func ParseCommand(text string) (word, mention, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", "", false
	}
	first := strings.Fields(text)[0]
	args = strings.TrimSpace(strings.TrimPrefix(text, first))
	word, mention, _ = strings.Cut(strings.ToLower(strings.TrimPrefix(first, "/")), "@")
	if word == "" {
		return "", "", "", false
	}
	return word, mention, args, true
}

func userRef(u *tgbotapi.User) UserRef {
	fullName := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return UserRef{ID: u.ID, Username: u.UserName, FullName: fullName, IsBot: u.IsBot}
}

// CommandFromMessage converts a Telegram message into a Command.
func CommandFromMessage(msg *tgbotapi.Message) (Command, bool) {
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return Command{}, false
	}
	word, mention, args, ok := ParseCommand(msg.Text)
	if !ok {
		return Command{}, false
	}
	cmd := Command{
		ChatID:    msg.Chat.ID,
		ChatKind:  msg.Chat.Type,
		ChatTitle: msg.Chat.Title,
		From:      userRef(msg.From),
		Word:      word,
		Mention:   mention,
		Args:      args,
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		target := userRef(msg.ReplyToMessage.From)
		cmd.ReplyTo = &target
	}
	return cmd, true
}

// HandleCommand processes one command to completion. Unexpected failures,
// panics included, are logged and answered with a generic error text.
func (s *SecretSantaBot) HandleCommand(ctx context.Context, cmd Command) {
	if cmd.Mention != "" && s.BotUsername != "" && !strings.EqualFold(cmd.Mention, s.BotUsername) {
		return
	}
	updatesTotal.Add(1)

	logger := log.With().Int64("chat_id", cmd.ChatID).Int64("user_id", cmd.From.ID).Str("command", cmd.Word).Logger()
	defer func() {
		if r := recover(); r != nil {
			updatePanicsTotal.Add(1)
			logger.Error().Interface("panic", r).Msg("HandleCommand: recovered from panic")
			s.sendMessage(ctx, cmd.ChatID, s.Texts.GenericError)
		}
	}()

	logger.Debug().Str("chat_kind", cmd.ChatKind).Msg("HandleCommand: received")

	var err error
	switch cmd.Word {
	case "start":
		err = s.handleOpen(ctx, cmd)
	case "join":
		err = s.handleJoin(ctx, cmd)
	case "stop":
		err = s.handleClose(ctx, cmd)
	case "reset":
		err = s.handleReset(ctx, cmd)
	case "info":
		err = s.handleListParticipants(ctx, cmd)
	case "budget":
		err = s.handleBudget(ctx, cmd)
	case "snowball":
		s.handleSnowball(ctx, cmd)
	case "help":
		s.sendMessage(ctx, cmd.ChatID, s.Texts.Help)
	default:
		s.sendMessage(ctx, cmd.ChatID, s.Texts.UnknownCommand)
	}

	if err != nil {
		logger.Error().Err(err).Msg("HandleCommand: command failed")
		s.sendMessage(ctx, cmd.ChatID, s.Texts.GenericError)
	}
}

// IsAdmin asks the transport for the current administrators of the chat.
func (s *SecretSantaBot) IsAdmin(ctx context.Context, chatID, userID int64) bool {
	admins, err := s.Messenger.ChatAdministrators(ctx, chatID)
	if err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("IsAdmin: failed to get administrators")
		return false
	}
	for _, id := range admins {
		if id == userID {
			return true
		}
	}
	return false
}

// authorize checks that a privileged command comes from an administrator of
// a group chat and tells the chat when it does not.
func (s *SecretSantaBot) authorize(ctx context.Context, cmd Command) error {
	if !cmd.IsGroup() {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.GroupOnly)
		return domain.ErrGroupOnly
	}
	if !s.IsAdmin(ctx, cmd.ChatID, cmd.From.ID) {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.NotAdmin)
		return domain.ErrNotAuthorized
	}
	return nil
}

func (s *SecretSantaBot) handleOpen(ctx context.Context, cmd Command) error {
	if cmd.ChatKind == domain.ChatKindPrivate {
		s.handlePrivateStart(ctx, cmd)
		return nil
	}
	if s.authorize(ctx, cmd) != nil {
		return nil
	}

	outcome, err := s.Game.Open(ctx, cmd.ChatID, cmd.ChatTitle, cmd.ChatKind)
	if err != nil {
		return err
	}
	switch outcome {
	case OpenCreated:
		s.sendMessage(ctx, cmd.ChatID, s.Texts.ChatRegistered)
	case OpenRestarted:
		s.sendMessage(ctx, cmd.ChatID, s.Texts.NewRound)
	case OpenAlreadyRegistration:
		s.sendMessage(ctx, cmd.ChatID, s.Texts.RegistrationAlreadyOpen)
	case OpenAlreadyInProgress:
		s.sendMessage(ctx, cmd.ChatID, s.Texts.GameAlreadyStarted)
	}
	return nil
}

// handlePrivateStart greets a user in a private chat. A delivered greeting
// proves the user is reachable.
func (s *SecretSantaBot) handlePrivateStart(ctx context.Context, cmd Command) {
	if err := s.Messenger.SendText(ctx, cmd.ChatID, s.Texts.PrivateWelcome); err != nil {
		log.Warn().Err(err).Int64("user_id", cmd.From.ID).Msg("handlePrivateStart: failed to greet user")
		return
	}
	s.Prober.Remember(ctx, cmd.From.ID)
}

func (s *SecretSantaBot) handleJoin(ctx context.Context, cmd Command) error {
	if !cmd.IsGroup() {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.GroupOnly)
		return nil
	}

	p := &domain.Participant{
		ChatID:   cmd.ChatID,
		UserID:   cmd.From.ID,
		Username: cmd.From.Username,
		FullName: cmd.From.FullName,
	}
	handle := p.Handle()

	err := s.Game.Join(ctx, p)
	var stateErr *domain.StateError
	switch {
	case err == nil:
		s.sendMessage(ctx, cmd.ChatID, render(s.Texts.Joined, "user", handle))
		known, err := s.Storage.HasSentMessage(ctx, p.UserID)
		if err != nil {
			log.Warn().Err(err).Int64("user_id", p.UserID).Msg("handleJoin: failed to check reachability record")
		}
		if !known {
			s.sendMessage(ctx, cmd.ChatID, render(s.Texts.AskToMessageBot, "user", handle))
		}
	case errors.Is(err, domain.ErrChatNotRegistered):
		s.sendMessage(ctx, cmd.ChatID, s.Texts.ChatNotRegistered)
	case errors.As(err, &stateErr):
		if stateErr.State == domain.GameStateInProgress {
			s.sendMessage(ctx, cmd.ChatID, s.Texts.JoinInProgress)
		} else {
			s.sendMessage(ctx, cmd.ChatID, s.Texts.JoinRegistrationClosed)
		}
	case errors.Is(err, domain.ErrAlreadyRegistered):
		s.sendMessage(ctx, cmd.ChatID, render(s.Texts.AlreadyJoined, "user", handle))
	default:
		return err
	}
	return nil
}

func (s *SecretSantaBot) handleClose(ctx context.Context, cmd Command) error {
	if s.authorize(ctx, cmd) != nil {
		return nil
	}

	_, err := s.Game.Close(ctx, cmd.ChatID)
	var stateErr *domain.StateError
	switch {
	case err == nil:
		s.sendMessage(ctx, cmd.ChatID, s.Texts.RoundClosed)
	case errors.Is(err, domain.ErrChatNotRegistered):
		s.sendMessage(ctx, cmd.ChatID, s.Texts.ChatNotRegistered)
	case errors.Is(err, domain.ErrNoParticipants):
		s.sendMessage(ctx, cmd.ChatID, s.Texts.NoParticipants)
	case errors.As(err, &stateErr):
		if stateErr.State == domain.GameStateInProgress {
			s.sendMessage(ctx, cmd.ChatID, s.Texts.StopInProgress)
		} else {
			s.sendMessage(ctx, cmd.ChatID, s.Texts.StopCompleted)
		}
	case errors.Is(err, domain.ErrInsufficientReachable):
		// the engine has already explained the problem to the chat
	default:
		return err
	}
	return nil
}

func (s *SecretSantaBot) handleReset(ctx context.Context, cmd Command) error {
	if s.authorize(ctx, cmd) != nil {
		return nil
	}

	removed, err := s.Game.Reset(ctx, cmd.ChatID)
	if err != nil {
		return err
	}
	if removed {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.ResetDone)
	} else {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.ResetUnknown)
	}
	return nil
}

func (s *SecretSantaBot) handleListParticipants(ctx context.Context, cmd Command) error {
	if !cmd.IsGroup() {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.GroupOnly)
		return nil
	}

	chat, participants, err := s.Game.Participants(ctx, cmd.ChatID)
	if err != nil {
		return err
	}
	if len(participants) == 0 {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.ParticipantsEmpty)
		return nil
	}

	var b strings.Builder
	b.WriteString(s.Texts.ParticipantsHeader)
	for _, p := range participants {
		b.WriteString("\n")
		b.WriteString(render(s.Texts.ParticipantLine, "user", p.Handle(), "name", p.FullName))
	}
	if chat.HasBudget() {
		b.WriteString("\n\n")
		b.WriteString(render(s.Texts.BudgetLine, "amount", chat.Amount.String(), "currency", chat.Currency))
	}
	s.sendMessage(ctx, cmd.ChatID, b.String())
	return nil
}

func (s *SecretSantaBot) handleBudget(ctx context.Context, cmd Command) error {
	if s.authorize(ctx, cmd) != nil {
		return nil
	}

	amount, currency, err := ParseBudget(cmd.Args)
	if err != nil {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.BudgetUsage)
		return nil
	}

	chat, err := s.Game.SetBudget(ctx, cmd.ChatID, amount, currency)
	if errors.Is(err, domain.ErrChatNotRegistered) {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.ChatNotRegistered)
		return nil
	}
	if err != nil {
		return err
	}
	s.sendMessage(ctx, cmd.ChatID, render(s.Texts.BudgetSet, "amount", chat.Amount.String(), "currency", chat.Currency))
	return nil
}

func (s *SecretSantaBot) handleSnowball(ctx context.Context, cmd Command) {
	if cmd.ReplyTo == nil {
		s.sendMessage(ctx, cmd.ChatID, s.Texts.SnowballNeedsReply)
		return
	}
	snowballsTotal.Add(1)
	s.sendMessage(ctx, cmd.ChatID, s.Snowball.Throw(cmd.From, *cmd.ReplyTo))
}

func (s *SecretSantaBot) sendMessage(ctx context.Context, chatID int64, text string) {
	sendLogged(ctx, s.Messenger, chatID, text)
}
