package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"telegram-secret-santa/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Storage keeps chats, participants and reachability records in Redis.
type Storage struct {
	client *redis.Client
}

func NewStorage(ctx context.Context, host, port, password string, db int) (*Storage, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Storage{client: rdb}, nil
}

func NewStorageWithClient(client *redis.Client) *Storage {
	return &Storage{client: client}
}

func chatKey(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

func participantsKey(chatID int64) string {
	return fmt.Sprintf("participants:%d", chatID)
}

func participantOrderKey(chatID int64) string {
	return fmt.Sprintf("participants_order:%d", chatID)
}

func sentMessageKey(userID int64) string {
	return fmt.Sprintf("sent_message:%d", userID)
}

// addParticipantScript registers a user once and remembers the join order.
var addParticipantScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

type chatRecord struct {
	ChatID   int64  `json:"chat_id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	State    string `json:"state"`
	RoundID  string `json:"round_id,omitempty"`
	Currency string `json:"currency,omitempty"`
	Amount   string `json:"amount,omitempty"`
}

func marshalChat(c *domain.Chat) ([]byte, error) {
	rec := chatRecord{
		ChatID:   c.ChatID,
		Name:     c.Name,
		Kind:     c.Kind,
		State:    string(c.State),
		RoundID:  c.RoundID,
		Currency: c.Currency,
	}
	if !c.Amount.IsZero() {
		rec.Amount = c.Amount.String()
	}
	return json.Marshal(rec)
}

func unmarshalChat(data []byte) (*domain.Chat, error) {
	var rec chatRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	c := &domain.Chat{
		ChatID:   rec.ChatID,
		Name:     rec.Name,
		Kind:     rec.Kind,
		State:    domain.GameState(rec.State),
		RoundID:  rec.RoundID,
		Currency: rec.Currency,
	}
	if !c.State.Valid() {
		return nil, fmt.Errorf("unknown game state %q", rec.State)
	}
	if rec.Amount != "" {
		if err := c.Amount.UnmarshalText([]byte(rec.Amount)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (s *Storage) GetChat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	data, err := s.client.Get(ctx, chatKey(chatID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	c, err := unmarshalChat(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize chat: %w", err)
	}
	return c, nil
}

func (s *Storage) SaveChat(ctx context.Context, c *domain.Chat) error {
	data, err := marshalChat(c)
	if err != nil {
		return fmt.Errorf("failed to serialize chat: %w", err)
	}
	return s.client.Set(ctx, chatKey(c.ChatID), data, 0).Err()
}

func (s *Storage) DeleteChat(ctx context.Context, chatID int64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, chatKey(chatID), participantsKey(chatID), participantOrderKey(chatID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

func (s *Storage) AddParticipant(ctx context.Context, p *domain.Participant) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("failed to serialize participant: %w", err)
	}

	keys := []string{participantsKey(p.ChatID), participantOrderKey(p.ChatID)}
	added, err := addParticipantScript.Run(ctx, s.client, keys, strconv.FormatInt(p.UserID, 10), data).Int()
	if err != nil {
		return false, fmt.Errorf("failed to save participant: %w", err)
	}
	return added == 1, nil
}

func (s *Storage) GetParticipants(ctx context.Context, chatID int64) ([]*domain.Participant, error) {
	order, err := s.client.LRange(ctx, participantOrderKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get participant order: %w", err)
	}
	if len(order) == 0 {
		return nil, nil
	}

	values, err := s.client.HMGet(ctx, participantsKey(chatID), order...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}

	participants := make([]*domain.Participant, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to deserialize participant: %w", err)
		}
		participants = append(participants, &p)
	}
	return participants, nil
}

func (s *Storage) ClearParticipants(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, participantsKey(chatID), participantOrderKey(chatID)).Err()
}

func (s *Storage) CompleteRound(ctx context.Context, chatID int64) error {
	c, err := s.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if c == nil {
		return domain.ErrChatNotFound
	}

	c.State = domain.GameStateCompleted
	data, err := marshalChat(c)
	if err != nil {
		return fmt.Errorf("failed to serialize chat: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, chatKey(chatID), data, 0)
		pipe.Del(ctx, participantsKey(chatID), participantOrderKey(chatID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete round: %w", err)
	}
	return nil
}

func (s *Storage) HasSentMessage(ctx context.Context, userID int64) (bool, error) {
	exists, err := s.client.Exists(ctx, sentMessageKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check sent message: %w", err)
	}
	return exists > 0, nil
}

func (s *Storage) SaveSentMessage(ctx context.Context, msg domain.SentMessage) error {
	err := s.client.SetNX(ctx, sentMessageKey(msg.UserID), msg.SentAt.UTC().Format(time.RFC3339), 0).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to save sent message: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Storage) Close() error {
	return s.client.Close()
}
