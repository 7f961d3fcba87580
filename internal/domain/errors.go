package domain

import (
	"errors"
	"fmt"
)

var (
	ErrChatNotRegistered     = errors.New("chat is not registered")
	ErrNotInRegistration     = errors.New("game is not in registration state")
	ErrAlreadyRegistered     = errors.New("participant already registered")
	ErrNoParticipants        = errors.New("no participants registered")
	ErrInsufficientReachable = errors.New("not enough reachable participants")
	ErrNotAuthorized         = errors.New("user is not a chat administrator")
	ErrGroupOnly             = errors.New("command is available in group chats only")
	ErrForbidden             = errors.New("bot is not allowed to message the user")
	ErrChatNotFound          = errors.New("chat not found")
)

// StateError is returned when a command does not fit the current game state.
type StateError struct {
	State GameState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("game is in %s state", e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrNotInRegistration
}

// DeliveryError describes a failed private notification to a single user.
type DeliveryError struct {
	UserID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver message to user %d: %v", e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
