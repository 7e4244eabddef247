package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinship/database"
	"kinship/models"
	"kinship/utils"
)

// InsertMessage persists the message together with its initial read set.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	created := toMillis(msg.CreatedAt)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO messages (id, conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, created,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for _, uid := range msg.ReadBy {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)",
			msg.ID, uid, created,
		); err != nil {
			return fmt.Errorf("insert read receipt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, conversation_id, sender_id, content, created_at FROM messages WHERE id = ?", id,
	).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NotFound("message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	msg.CreatedAt = fromMillis(createdAt)

	readers, err := s.readers(ctx, []string{msg.ID})
	if err != nil {
		return nil, err
	}
	msg.ReadBy = readers[msg.ID]
	return &msg, nil
}

// ListMessages returns up to limit messages of a conversation, newest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	var ids []string
	for rows.Next() {
		var msg models.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
		ids = append(ids, msg.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	rows.Close()

	readers, err := s.readers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].ReadBy = readers[messages[i].ID]
	}
	return messages, nil
}

func (s *Store) readers(ctx context.Context, messageIDs []string) (map[string][]string, error) {
	readers := make(map[string][]string, len(messageIDs))
	if len(messageIDs) == 0 {
		return readers, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT message_id, user_id FROM message_reads WHERE message_id IN ("+placeholders(len(messageIDs))+") ORDER BY read_at, user_id",
		stringArgs(messageIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list read receipts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, userID string
		if err := rows.Scan(&messageID, &userID); err != nil {
			return nil, fmt.Errorf("scan read receipt: %w", err)
		}
		readers[messageID] = append(readers[messageID], userID)
	}
	return readers, rows.Err()
}

// MarkConversationRead adds readerID to the read set of every message in the
// conversation that lacks it and returns how many messages were newly marked.
// Receipts are only ever inserted, so the read set grows monotonically.
func (s *Store) MarkConversationRead(ctx context.Context, conversationID, readerID string, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.id, ?, ?
		FROM messages m
		WHERE m.conversation_id = ?
		AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)`,
		readerID, toMillis(now), conversationID, readerID,
	)
	if database.IsDuplicateKey(err) {
		// a concurrent mark for the same reader got there first
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}
