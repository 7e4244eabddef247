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

const friendshipColumns = "f.id, f.requester_id, f.recipient_id, f.status, f.created_at, f.updated_at"

func scanFriendship(dest *models.Friendship, createdAt, updatedAt *int64) []interface{} {
	return []interface{}{&dest.ID, &dest.RequesterID, &dest.RecipientID, &dest.Status, createdAt, updatedAt}
}

// CreateFriendship inserts a friendship. A second friendship for the same unordered pair returns ErrDuplicate.
func (s *Store) CreateFriendship(ctx context.Context, f *models.Friendship) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO friendships (id, requester_id, recipient_id, pair_key, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		f.ID, f.RequesterID, f.RecipientID, models.PairKey(f.RequesterID, f.RecipientID), f.Status,
		toMillis(f.CreatedAt), toMillis(f.UpdatedAt),
	)
	if database.IsDuplicateKey(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert friendship: %w", err)
	}
	return nil
}

func (s *Store) queryFriendship(ctx context.Context, where string, args ...interface{}) (*models.Friendship, error) {
	var f models.Friendship
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT "+friendshipColumns+" FROM friendships f WHERE "+where, args...,
	).Scan(scanFriendship(&f, &createdAt, &updatedAt)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NotFound("friendship not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get friendship: %w", err)
	}
	f.CreatedAt = fromMillis(createdAt)
	f.UpdatedAt = fromMillis(updatedAt)
	return &f, nil
}

// FindFriendshipBetween looks up the friendship for the pair in either direction.
func (s *Store) FindFriendshipBetween(ctx context.Context, a, b string) (*models.Friendship, error) {
	return s.queryFriendship(ctx, "f.pair_key = ?", models.PairKey(a, b))
}

func (s *Store) GetFriendship(ctx context.Context, id string) (*models.Friendship, error) {
	return s.queryFriendship(ctx, "f.id = ?", id)
}

// GetPendingRequest returns the pending friendship id addressed to recipientID.
func (s *Store) GetPendingRequest(ctx context.Context, id, recipientID string) (*models.Friendship, error) {
	f, err := s.queryFriendship(ctx, "f.id = ? AND f.recipient_id = ? AND f.status = ?", id, recipientID, models.FriendshipPending)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.NotFound("friend request not found")
	}
	return f, err
}

// AcceptFriendship moves a pending request to accepted. It reports false when the
// request was no longer pending, which makes concurrent accepts resolve to a single winner.
func (s *Store) AcceptFriendship(ctx context.Context, id, recipientID string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE friendships SET status = ?, updated_at = ? WHERE id = ? AND recipient_id = ? AND status = ?",
		models.FriendshipAccepted, toMillis(now), id, recipientID, models.FriendshipPending,
	)
	if err != nil {
		return false, fmt.Errorf("accept friendship: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accept friendship: %w", err)
	}
	return n > 0, nil
}

func (s *Store) DeletePendingRequest(ctx context.Context, id, recipientID string) (bool, error) {
	return s.deleteFriendship(ctx,
		"DELETE FROM friendships WHERE id = ? AND recipient_id = ? AND status = ?",
		id, recipientID, models.FriendshipPending,
	)
}

// DeleteAcceptedFriendship removes an accepted friendship that userID is a party to.
func (s *Store) DeleteAcceptedFriendship(ctx context.Context, id, userID string) (bool, error) {
	return s.deleteFriendship(ctx,
		"DELETE FROM friendships WHERE id = ? AND status = ? AND (requester_id = ? OR recipient_id = ?)",
		id, models.FriendshipAccepted, userID, userID,
	)
}

func (s *Store) deleteFriendship(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete friendship: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete friendship: %w", err)
	}
	return n > 0, nil
}

// FriendshipFilter selects which side of the relationship a listing is for.
type FriendshipFilter int

const (
	// Incoming pending requests addressed to the user.
	FilterIncoming FriendshipFilter = iota
	// Outgoing pending requests sent by the user.
	FilterOutgoing
	// Accepted friendships in either direction.
	FilterAccepted
)

// ListFriendships returns friendships of userID joined with the other party's profile.
func (s *Store) ListFriendships(ctx context.Context, userID string, filter FriendshipFilter, search string) ([]models.FriendWithUser, error) {
	var where string
	var args []interface{}
	switch filter {
	case FilterIncoming:
		where = "f.recipient_id = ? AND f.status = ? AND u.id = f.requester_id"
		args = []interface{}{userID, models.FriendshipPending}
	case FilterOutgoing:
		where = "f.requester_id = ? AND f.status = ? AND u.id = f.recipient_id"
		args = []interface{}{userID, models.FriendshipPending}
	case FilterAccepted:
		where = `f.status = ? AND (
			(f.requester_id = ? AND u.id = f.recipient_id) OR
			(f.recipient_id = ? AND u.id = f.requester_id))`
		args = []interface{}{models.FriendshipAccepted, userID, userID}
	default:
		return nil, fmt.Errorf("unknown friendship filter %d", filter)
	}

	if search != "" {
		pattern := "%" + escapeLikePattern(search) + "%"
		where += " AND (u.username LIKE ? ESCAPE '!' OR u.nickname LIKE ? ESCAPE '!')"
		args = append(args, pattern, pattern)
	}

	order := "u.nickname, u.username"
	if filter != FilterAccepted {
		order = "f.created_at DESC"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+friendshipColumns+`, u.id, u.username, u.nickname, u.avatar, u.created_at
		FROM friendships f
		JOIN users u ON `+where+`
		ORDER BY `+order, args...)
	if err != nil {
		return nil, fmt.Errorf("list friendships: %w", err)
	}
	defer rows.Close()

	friends := []models.FriendWithUser{}
	for rows.Next() {
		var fw models.FriendWithUser
		var createdAt, updatedAt, userCreatedAt int64
		dest := append(scanFriendship(&fw.Friendship, &createdAt, &updatedAt),
			&fw.Friend.ID, &fw.Friend.Username, &fw.Friend.Nickname, &fw.Friend.Avatar, &userCreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		fw.CreatedAt = fromMillis(createdAt)
		fw.UpdatedAt = fromMillis(updatedAt)
		fw.Friend.CreatedAt = fromMillis(userCreatedAt)
		friends = append(friends, fw)
	}
	return friends, rows.Err()
}

// AreFriends reports whether an accepted friendship exists between a and b.
func (s *Store) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM friendships WHERE pair_key = ? AND status = ?)",
		models.PairKey(a, b), models.FriendshipAccepted,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

func (s *Store) CountFriendships(ctx context.Context, userID string) (models.FriendCounts, error) {
	var counts models.FriendCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? AND recipient_id = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? AND requester_id = ? THEN 1 ELSE 0 END), 0)
		FROM friendships
		WHERE requester_id = ? OR recipient_id = ?`,
		models.FriendshipAccepted,
		models.FriendshipPending, userID,
		models.FriendshipPending, userID,
		userID, userID,
	).Scan(&counts.Friends, &counts.PendingReceived, &counts.PendingSent)
	if err != nil {
		return counts, fmt.Errorf("count friendships: %w", err)
	}
	return counts, nil
}
