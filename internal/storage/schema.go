package storage

import (
	"context"
	"fmt"
)

// schema is written in the sqlite flavour, dialect.ddl adapts it for postgres.
// All timestamps are unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		session_id TEXT NOT NULL UNIQUE,
		is_online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS users_username_idx ON users (username)`,
	`CREATE INDEX IF NOT EXISTS users_online_idx ON users (is_online, last_seen)`,

	`CREATE TABLE IF NOT EXISTS chat_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT,
		is_private BOOLEAN NOT NULL DEFAULT FALSE,
		password_hash TEXT,
		created_by BIGINT NOT NULL,
		member_count BIGINT NOT NULL DEFAULT 0 CHECK (member_count >= 0),
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_groups_private_idx ON chat_groups (is_private)`,

	`CREATE TABLE IF NOT EXISTS group_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		joined_at BIGINT NOT NULL,
		UNIQUE (group_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS group_members_user_idx ON group_members (user_id)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_key TEXT NOT NULL,
		content TEXT NOT NULL,
		sender_id BIGINT NOT NULL,
		recipient_id BIGINT,
		group_id BIGINT,
		sent_at BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'sent',
		CHECK ((recipient_id IS NULL) <> (group_id IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS messages_chat_idx ON messages (chat_key, sent_at)`,
	`CREATE INDEX IF NOT EXISTS messages_sender_idx ON messages (sender_id)`,
	`CREATE INDEX IF NOT EXISTS messages_recipient_idx ON messages (recipient_id)`,

	`CREATE TABLE IF NOT EXISTS active_chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id BIGINT NOT NULL,
		chat_key TEXT NOT NULL,
		chat_type TEXT NOT NULL,
		last_message_at BIGINT NOT NULL,
		peer_user_id BIGINT,
		group_id BIGINT,
		UNIQUE (user_id, chat_key)
	)`,
	`CREATE INDEX IF NOT EXISTS active_chats_user_time_idx ON active_chats (user_id, last_message_at)`,

	`CREATE TABLE IF NOT EXISTS typing_indicators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id BIGINT NOT NULL,
		chat_key TEXT NOT NULL,
		is_typing BOOLEAN NOT NULL DEFAULT FALSE,
		last_update BIGINT NOT NULL,
		UNIQUE (user_id, chat_key)
	)`,
	`CREATE INDEX IF NOT EXISTS typing_indicators_chat_idx ON typing_indicators (chat_key)`,
	`CREATE INDEX IF NOT EXISTS typing_indicators_update_idx ON typing_indicators (last_update)`,

	`CREATE TABLE IF NOT EXISTS scheduled_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		run_at BIGINT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS scheduled_tasks_run_at_idx ON scheduled_tasks (run_at)`,
}

// Migrate creates missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, s.dialect.ddl(stmt)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
