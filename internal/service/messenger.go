package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"telegram-secret-santa/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Messenger is the part of the chat transport the game logic talks to.
// Private messages are sent to the user id as chat id.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	ChatAdministrators(ctx context.Context, chatID int64) ([]int64, error)
}

type TelegramMessenger struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramMessenger(bot *tgbotapi.BotAPI) *TelegramMessenger {
	return &TelegramMessenger{bot: bot}
}

func (m *TelegramMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := m.bot.Send(msg); err != nil {
		return classifySendError(err)
	}
	return nil
}

func (m *TelegramMessenger) ChatAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	members, err := m.bot.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get administrators: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		if member.User != nil {
			ids = append(ids, member.User.ID)
		}
	}
	return ids, nil
}

// SetGroupCommands publishes the command menu shown in group chats.
func (m *TelegramMessenger) SetGroupCommands(texts *Messages) error {
	commands := make([]tgbotapi.BotCommand, 0, len(texts.Commands))
	for _, c := range texts.Commands {
		commands = append(commands, tgbotapi.BotCommand{Command: c.Command, Description: c.Description})
	}
	cfg := tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeAllGroupChats(), commands...)
	if _, err := m.bot.Request(cfg); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

// classifySendError maps permission failures to domain.ErrForbidden.
func classifySendError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %s", domain.ErrForbidden, apiErr.Message)
	}
	msg := err.Error()
	if strings.Contains(msg, "Forbidden") || strings.Contains(msg, "bot was blocked by the user") {
		return fmt.Errorf("%w: %s", domain.ErrForbidden, msg)
	}
	return err
}
