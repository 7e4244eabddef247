package database

import (
	"database/sql"
	"fmt"
)

// Timestamps are unix milliseconds in UTC so both drivers order them identically.
var mysqlTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          VARCHAR(36) PRIMARY KEY,
		username    VARCHAR(32) NOT NULL,
		nickname    VARCHAR(100) NOT NULL DEFAULT '',
		avatar      VARCHAR(255) NOT NULL DEFAULT '',
		password    VARCHAR(255) NOT NULL,
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL,
		UNIQUE KEY uk_username (username)
	)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		id            VARCHAR(36) PRIMARY KEY,
		requester_id  VARCHAR(36) NOT NULL,
		recipient_id  VARCHAR(36) NOT NULL,
		pair_key      VARCHAR(73) NOT NULL,
		status        VARCHAR(16) NOT NULL,
		created_at    BIGINT NOT NULL,
		updated_at    BIGINT NOT NULL,
		UNIQUE KEY uk_pair (pair_key),
		INDEX idx_recipient_status (recipient_id, status),
		INDEX idx_requester_status (requester_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id               VARCHAR(36) PRIMARY KEY,
		pair_key         VARCHAR(73) NOT NULL,
		last_message_id  VARCHAR(36) NOT NULL DEFAULT '',
		last_message_at  BIGINT NOT NULL DEFAULT 0,
		created_at       BIGINT NOT NULL,
		updated_at       BIGINT NOT NULL,
		UNIQUE KEY uk_pair (pair_key),
		INDEX idx_last_message (last_message_at)
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id  VARCHAR(36) NOT NULL,
		user_id          VARCHAR(36) NOT NULL,
		created_at       BIGINT NOT NULL,
		PRIMARY KEY (conversation_id, user_id),
		INDEX idx_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id               VARCHAR(36) PRIMARY KEY,
		conversation_id  VARCHAR(36) NOT NULL,
		sender_id        VARCHAR(36) NOT NULL,
		content          TEXT NOT NULL,
		created_at       BIGINT NOT NULL,
		INDEX idx_conv_time (conversation_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS message_reads (
		message_id  VARCHAR(36) NOT NULL,
		user_id     VARCHAR(36) NOT NULL,
		read_at     BIGINT NOT NULL,
		PRIMARY KEY (message_id, user_id),
		INDEX idx_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id            VARCHAR(36) PRIMARY KEY,
		recipient_id  VARCHAR(36) NOT NULL,
		sender_id     VARCHAR(36) NOT NULL DEFAULT '',
		type          VARCHAR(32) NOT NULL,
		title         VARCHAR(200) NOT NULL,
		message       VARCHAR(1000) NOT NULL DEFAULT '',
		link          VARCHAR(500) NOT NULL DEFAULT '',
		related_id    VARCHAR(36) NOT NULL DEFAULT '',
		is_read       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    BIGINT NOT NULL,
		INDEX idx_recipient_time (recipient_id, created_at),
		INDEX idx_correlation (recipient_id, related_id, type)
	)`,
}

var sqliteTables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		username    TEXT NOT NULL UNIQUE,
		nickname    TEXT NOT NULL DEFAULT '',
		avatar      TEXT NOT NULL DEFAULT '',
		password    TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		id            TEXT PRIMARY KEY,
		requester_id  TEXT NOT NULL,
		recipient_id  TEXT NOT NULL,
		pair_key      TEXT NOT NULL UNIQUE,
		status        TEXT NOT NULL,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_friendships_recipient ON friendships (recipient_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_friendships_requester ON friendships (requester_id, status)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id               TEXT PRIMARY KEY,
		pair_key         TEXT NOT NULL UNIQUE,
		last_message_id  TEXT NOT NULL DEFAULT '',
		last_message_at  INTEGER NOT NULL DEFAULT 0,
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id  TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		created_at       INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants (user_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id               TEXT PRIMARY KEY,
		conversation_id  TEXT NOT NULL,
		sender_id        TEXT NOT NULL,
		content          TEXT NOT NULL,
		created_at       INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conv_time ON messages (conversation_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS message_reads (
		message_id  TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		read_at     INTEGER NOT NULL,
		PRIMARY KEY (message_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id            TEXT PRIMARY KEY,
		recipient_id  TEXT NOT NULL,
		sender_id     TEXT NOT NULL DEFAULT '',
		type          TEXT NOT NULL,
		title         TEXT NOT NULL,
		message       TEXT NOT NULL DEFAULT '',
		link          TEXT NOT NULL DEFAULT '',
		related_id    TEXT NOT NULL DEFAULT '',
		is_read       INTEGER NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_correlation ON notifications (recipient_id, related_id, type)`,
}

func CreateTables(db *sql.DB, driver string) error {
	var tables []string
	switch driver {
	case DriverMySQL:
		tables = mysqlTables
	case DriverSQLite:
		tables = sqliteTables
	default:
		return fmt.Errorf("unsupported driver %q", driver)
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}
