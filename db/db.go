// Package db provides the Postgres connection, schema migration, and the
// message store used by ingestion and the HTTP API.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty db dsn")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for all required tables and indices.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			message_id BIGINT NOT NULL,
			chat_id BIGINT NOT NULL,
			chat_title TEXT,
			chat_username TEXT,
			sender_id BIGINT,
			sender_username TEXT,
			sender_name TEXT,
			message_text TEXT,
			message_date TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_chat_msg ON messages(chat_id, message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_username_date ON messages(chat_username, message_date)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// Message is one stored group message.
type Message struct {
	MessageID      int64     `json:"message_id"`
	ChatID         int64     `json:"chat_id"`
	ChatTitle      string    `json:"chat_title"`
	ChatUsername   string    `json:"chat_username,omitempty"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username,omitempty"`
	SenderName     string    `json:"sender_name,omitempty"`
	Text           string    `json:"message_text"`
	Date           time.Time `json:"message_date"`
}

// MessageStore wraps message persistence on top of the shared *sql.DB.
type MessageStore struct{ DB *sql.DB }

// Save inserts a message. Re-delivery of the same (chat_id, message_id) is a no-op.
func (s *MessageStore) Save(ctx context.Context, m Message) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO messages (message_id, chat_id, chat_title, chat_username, sender_id, sender_username, sender_name, message_text, message_date)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (chat_id, message_id) DO NOTHING`,
		m.MessageID, m.ChatID, m.ChatTitle, nullable(m.ChatUsername), m.SenderID,
		nullable(m.SenderUsername), nullable(m.SenderName), m.Text, m.Date.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ByChatUsername returns the most recent messages for a chat username (without
// the @ prefix), newest first.
func (s *MessageStore) ByChatUsername(ctx context.Context, username string, limit int) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT message_id, chat_id, COALESCE(chat_title,''), COALESCE(chat_username,''), COALESCE(sender_id,0),
		        COALESCE(sender_username,''), COALESCE(sender_name,''), COALESCE(message_text,''), message_date
		 FROM messages WHERE chat_username=$1 ORDER BY message_date DESC LIMIT $2`, username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ByChatTitle is the fallback read path for groups configured by display title
// rather than @username.
func (s *MessageStore) ByChatTitle(ctx context.Context, title string, limit int) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT message_id, chat_id, COALESCE(chat_title,''), COALESCE(chat_username,''), COALESCE(sender_id,0),
		        COALESCE(sender_username,''), COALESCE(sender_name,''), COALESCE(message_text,''), message_date
		 FROM messages WHERE chat_title=$1 ORDER BY message_date DESC LIMIT $2`, title, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CountByChat returns the number of stored messages for a chat id.
func (s *MessageStore) CountByChat(ctx context.Context, chatID int64) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id=$1`, chatID).Scan(&n)
	return n, err
}

// LatestByChatUsername returns the newest stored message for a chat username,
// or nil when the group has no history yet.
func (s *MessageStore) LatestByChatUsername(ctx context.Context, username string) (*Message, error) {
	msgs, err := s.ByChatUsername(ctx, username, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.MessageID, &m.ChatID, &m.ChatTitle, &m.ChatUsername, &m.SenderID,
			&m.SenderUsername, &m.SenderName, &m.Text, &m.Date); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
