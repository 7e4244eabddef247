package store

import (
	"context"
	"fmt"

	"kinship/models"
)

const notificationColumns = "id, recipient_id, sender_id, type, title, message, link, related_id, is_read, created_at"

func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO notifications ("+notificationColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		n.ID, n.RecipientID, n.SenderID, n.Type, n.Title, n.Message, n.Link, n.RelatedID, n.IsRead, toMillis(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns recipientID's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit, offset int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		recipientID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.Title, &n.Message,
			&n.Link, &n.RelatedID, &n.IsRead, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.CreatedAt = fromMillis(createdAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *Store) CountNotifications(ctx context.Context, recipientID string) (total, unread int, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_read THEN 0 ELSE 1 END), 0) FROM notifications WHERE recipient_id = ?",
		recipientID,
	).Scan(&total, &unread)
	if err != nil {
		return 0, 0, fmt.Errorf("count notifications: %w", err)
	}
	return total, unread, nil
}

func (s *Store) exec(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// MarkNotificationRead reports false when the notification does not exist or belongs to someone else.
func (s *Store) MarkNotificationRead(ctx context.Context, id, recipientID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM notifications WHERE id = ? AND recipient_id = ?)", id, recipientID,
	).Scan(&exists)
	if err != nil || !exists {
		if err != nil {
			err = fmt.Errorf("mark notification read: %w", err)
		}
		return false, err
	}
	_, err = s.exec(ctx, "mark notification read",
		"UPDATE notifications SET is_read = ? WHERE id = ? AND recipient_id = ?", true, id, recipientID)
	return err == nil, err
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	return s.exec(ctx, "mark all notifications read",
		"UPDATE notifications SET is_read = ? WHERE recipient_id = ? AND is_read = ?", true, recipientID, false)
}

func (s *Store) DeleteNotification(ctx context.Context, id, recipientID string) (bool, error) {
	n, err := s.exec(ctx, "delete notification",
		"DELETE FROM notifications WHERE id = ? AND recipient_id = ?", id, recipientID)
	return n > 0, err
}

func (s *Store) DeleteReadNotifications(ctx context.Context, recipientID string) (int64, error) {
	return s.exec(ctx, "clear read notifications",
		"DELETE FROM notifications WHERE recipient_id = ? AND is_read = ?", recipientID, true)
}

// DeleteNotificationsByCorrelation retracts the notifications announcing relatedID.
func (s *Store) DeleteNotificationsByCorrelation(ctx context.Context, recipientID, relatedID string, typ models.NotificationType) (int64, error) {
	return s.exec(ctx, "delete notifications by correlation",
		"DELETE FROM notifications WHERE recipient_id = ? AND related_id = ? AND type = ?", recipientID, relatedID, typ)
}
