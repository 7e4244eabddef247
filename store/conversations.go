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

// FindConversationByPair returns the conversation whose participants are exactly {a, b}.
func (s *Store) FindConversationByPair(ctx context.Context, a, b string) (*models.Conversation, error) {
	return s.queryConversation(ctx, "pair_key = ?", models.PairKey(a, b))
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return s.queryConversation(ctx, "id = ?", id)
}

func (s *Store) queryConversation(ctx context.Context, where string, args ...interface{}) (*models.Conversation, error) {
	var conv models.Conversation
	var lastMessageAt, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, last_message_id, last_message_at, created_at, updated_at FROM conversations WHERE "+where, args...,
	).Scan(&conv.ID, &conv.LastMessageID, &lastMessageAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.LastMessageAt = fromMillis(lastMessageAt)
	conv.CreatedAt = fromMillis(createdAt)
	conv.UpdatedAt = fromMillis(updatedAt)

	participants, err := s.participants(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.Participants = participants
	return &conv, nil
}

func (s *Store) participants(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateConversation inserts the conversation and its participants atomically.
// It returns ErrDuplicate when a conversation for the same pair already exists.
func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if len(conv.Participants) != 2 {
		return fmt.Errorf("conversation needs exactly 2 participants, got %d", len(conv.Participants))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	created := toMillis(conv.CreatedAt)
	_, err = tx.ExecContext(ctx,
		"INSERT INTO conversations (id, pair_key, last_message_id, last_message_at, created_at, updated_at) VALUES (?, ?, '', 0, ?, ?)",
		conv.ID, models.PairKey(conv.Participants[0], conv.Participants[1]), created, created,
	)
	if database.IsDuplicateKey(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for _, uid := range conv.Participants {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conversation_participants (conversation_id, user_id, created_at) VALUES (?, ?, ?)",
			conv.ID, uid, created,
		); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// TouchLastMessage moves the last-message pointer forward. The single guarded UPDATE
// keeps the pointer and timestamp consistent and never rewinds to an older message.
func (s *Store) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	ms := toMillis(at)
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = ?, last_message_at = ?, updated_at = ?
		WHERE id = ? AND last_message_at <= ?`,
		messageID, ms, ms, conversationID, ms,
	)
	if err != nil {
		return fmt.Errorf("touch last message: %w", err)
	}
	return nil
}

// ListConversationSummaries returns userID's conversations, most recently active first,
// with the peer's profile, the last message and the number of messages userID has not read.
func (s *Store) ListConversationSummaries(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.last_message_at,
			u.id, u.username, u.nickname, u.avatar, u.created_at,
			COALESCE(m.id, ''), COALESCE(m.sender_id, ''), COALESCE(m.content, ''), COALESCE(m.created_at, 0),
			(SELECT COUNT(*) FROM messages um
				WHERE um.conversation_id = c.id AND um.sender_id <> ?
				AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = um.id AND r.user_id = ?))
		FROM conversation_participants me
		JOIN conversations c ON c.id = me.conversation_id
		JOIN conversation_participants peer ON peer.conversation_id = c.id AND peer.user_id <> me.user_id
		JOIN users u ON u.id = peer.user_id
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE me.user_id = ?
		ORDER BY c.last_message_at DESC, c.created_at DESC`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var sum models.ConversationSummary
		var lastMessageAt, peerCreatedAt, msgCreatedAt int64
		var msg models.Message
		if err := rows.Scan(&sum.ID, &lastMessageAt,
			&sum.Peer.ID, &sum.Peer.Username, &sum.Peer.Nickname, &sum.Peer.Avatar, &peerCreatedAt,
			&msg.ID, &msg.SenderID, &msg.Content, &msgCreatedAt,
			&sum.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		sum.LastMessageAt = fromMillis(lastMessageAt)
		sum.Peer.CreatedAt = fromMillis(peerCreatedAt)
		if msg.ID != "" {
			msg.ConversationID = sum.ID
			msg.CreatedAt = fromMillis(msgCreatedAt)
			resp := msg.ToResponse(userID)
			resp.IsRead = resp.IsSent || sum.UnreadCount == 0
			sum.LastMessage = resp
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
