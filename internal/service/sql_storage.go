package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"telegram-secret-santa/internal/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chats (
    chat_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    chat_type TEXT NOT NULL,
    game_state TEXT NOT NULL,
    round_id TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL DEFAULT '',
    amount TEXT NOT NULL DEFAULT '0',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS participants (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL REFERENCES chats(chat_id) ON DELETE CASCADE,
    telegram_id INTEGER NOT NULL,
    username TEXT NOT NULL DEFAULT '',
    full_name TEXT NOT NULL DEFAULT '',
    joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (chat_id, telegram_id)
);

CREATE INDEX IF NOT EXISTS idx_participants_chat_id ON participants(chat_id);

CREATE TABLE IF NOT EXISTS sent_messages (
    telegram_id INTEGER PRIMARY KEY,
    sent_at DATETIME NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chats (
    chat_id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    chat_type TEXT NOT NULL,
    game_state TEXT NOT NULL,
    round_id TEXT NOT NULL DEFAULT '',
    currency TEXT NOT NULL DEFAULT '',
    amount TEXT NOT NULL DEFAULT '0',
    created_at TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS participants (
    id BIGSERIAL PRIMARY KEY,
    chat_id BIGINT NOT NULL REFERENCES chats(chat_id) ON DELETE CASCADE,
    telegram_id BIGINT NOT NULL,
    username TEXT NOT NULL DEFAULT '',
    full_name TEXT NOT NULL DEFAULT '',
    joined_at TIMESTAMPTZ DEFAULT now(),
    UNIQUE (chat_id, telegram_id)
);

CREATE INDEX IF NOT EXISTS idx_participants_chat_id ON participants(chat_id);

CREATE TABLE IF NOT EXISTS sent_messages (
    telegram_id BIGINT PRIMARY KEY,
    sent_at TIMESTAMPTZ NOT NULL
);
`

// SQLStorage is the relational StorageInterface implementation shared by
// SQLite and PostgreSQL.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
}

func OpenSQLite(ctx context.Context, path string) (*SQLStorage, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = path + "?_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps a :memory: database in one piece.
	db.SetMaxOpenConns(1)
	return newSQLStorage(ctx, db, DialectSQLite)
}

func OpenPostgres(ctx context.Context, dsn string) (*SQLStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLStorage(ctx, db, DialectPostgres)
}

func newSQLStorage(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStorage, error) {
	s := &SQLStorage{db: db, dialect: dialect}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStorage) InitSchema(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *SQLStorage) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStorage) GetChat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	var (
		c      domain.Chat
		state  string
		amount string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT chat_id, name, chat_type, game_state, round_id, currency, amount
		FROM chats WHERE chat_id = ?`), chatID).
		Scan(&c.ChatID, &c.Name, &c.Kind, &state, &c.RoundID, &c.Currency, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	c.State = domain.GameState(state)
	if !c.State.Valid() {
		return nil, fmt.Errorf("unknown game state %q for chat %d", state, chatID)
	}
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse chat amount: %w", err)
	}
	return &c, nil
}

func (s *SQLStorage) SaveChat(ctx context.Context, c *domain.Chat) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO chats (chat_id, name, chat_type, game_state, round_id, currency, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			name = excluded.name,
			chat_type = excluded.chat_type,
			game_state = excluded.game_state,
			round_id = excluded.round_id,
			currency = excluded.currency,
			amount = excluded.amount`),
		c.ChatID, c.Name, c.Kind, string(c.State), c.RoundID, c.Currency, c.Amount.String())
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

func (s *SQLStorage) DeleteChat(ctx context.Context, chatID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM participants WHERE chat_id = ?`), chatID); err != nil {
			return fmt.Errorf("failed to delete participants: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM chats WHERE chat_id = ?`), chatID); err != nil {
			return fmt.Errorf("failed to delete chat: %w", err)
		}
		return nil
	})
}

func (s *SQLStorage) AddParticipant(ctx context.Context, p *domain.Participant) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO participants (chat_id, telegram_id, username, full_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id, telegram_id) DO NOTHING`),
		p.ChatID, p.UserID, p.Username, p.FullName)
	if err != nil {
		return false, fmt.Errorf("failed to save participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to save participant: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStorage) GetParticipants(ctx context.Context, chatID int64) ([]*domain.Participant, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT chat_id, telegram_id, username, full_name
		FROM participants WHERE chat_id = ? ORDER BY id`), chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []*domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ChatID, &p.UserID, &p.Username, &p.FullName); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, &p)
	}
	return participants, rows.Err()
}

func (s *SQLStorage) ClearParticipants(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM participants WHERE chat_id = ?`), chatID); err != nil {
		return fmt.Errorf("failed to clear participants: %w", err)
	}
	return nil
}

func (s *SQLStorage) CompleteRound(ctx context.Context, chatID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`UPDATE chats SET game_state = ? WHERE chat_id = ?`),
			string(domain.GameStateCompleted), chatID)
		if err != nil {
			return fmt.Errorf("failed to update game state: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.ErrChatNotFound
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM participants WHERE chat_id = ?`), chatID); err != nil {
			return fmt.Errorf("failed to clear participants: %w", err)
		}
		return nil
	})
}

func (s *SQLStorage) HasSentMessage(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT EXISTS(SELECT 1 FROM sent_messages WHERE telegram_id = ?)`), userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check sent message: %w", err)
	}
	return exists, nil
}

func (s *SQLStorage) SaveSentMessage(ctx context.Context, msg domain.SentMessage) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sent_messages (telegram_id, sent_at) VALUES (?, ?)
		ON CONFLICT (telegram_id) DO NOTHING`),
		msg.UserID, msg.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save sent message: %w", err)
	}
	return nil
}

func (s *SQLStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
