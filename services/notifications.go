package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"kinship/models"
	"kinship/utils"
)

type NotificationService struct {
	base
}

// Create persists n and pushes it to the recipient. A notification about a
// user's own action is dropped and Create returns nil, nil.
func (s *NotificationService) Create(ctx context.Context, n models.Notification) (*models.Notification, error) {
	if n.RecipientID == "" {
		return nil, utils.InvalidInput("recipient is required")
	}
	if !n.Type.Valid() {
		return nil, utils.InvalidInput("invalid notification type")
	}
	if n.RecipientID == n.SenderID {
		return nil, nil
	}

	n.ID = utils.GenerateUUID()
	n.IsRead = false
	n.CreatedAt = s.now().UTC()
	if err := s.store.InsertNotification(ctx, &n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	s.emitter.Emit(n.RecipientID, models.EventNewNotification, &n)
	return &n, nil
}

// DeleteByCorrelation retracts the recipient's notifications of type typ that
// point at relatedID. Nothing matching is not an error.
func (s *NotificationService) DeleteByCorrelation(ctx context.Context, recipientID, relatedID string, typ models.NotificationType) error {
	if relatedID == "" {
		return nil
	}
	if _, err := s.store.DeleteNotificationsByCorrelation(ctx, recipientID, relatedID, typ); err != nil {
		return fmt.Errorf("retract notification: %w", err)
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, recipientID string, page, pageSize int) (*models.NotificationPage, error) {
	items, err := s.store.ListNotifications(ctx, recipientID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	total, unread, err := s.store.CountNotifications(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	return &models.NotificationPage{
		Notifications: items,
		Page:          page,
		PageSize:      pageSize,
		Total:         total,
		UnreadCount:   unread,
	}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, recipientID, id string) error {
	ok, err := s.store.MarkNotificationRead(ctx, id, recipientID)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NotFound("notification not found")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, recipientID)
}

func (s *NotificationService) Delete(ctx context.Context, recipientID, id string) error {
	ok, err := s.store.DeleteNotification(ctx, id, recipientID)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NotFound("notification not found")
	}
	return nil
}

// ClearRead deletes every notification the recipient has already read.
func (s *NotificationService) ClearRead(ctx context.Context, recipientID string) (int64, error) {
	return s.store.DeleteReadNotifications(ctx, recipientID)
}

// NotifyPostLiked tells the post's owner that actorID liked it.
func (s *NotificationService) NotifyPostLiked(ctx context.Context, actorID, ownerID, postID string) error {
	return s.notifyPost(ctx, actorID, ownerID, postID, models.NotificationPostLike, "New like", "liked your post")
}

// NotifyPostCommented tells the post's owner that actorID commented on it.
func (s *NotificationService) NotifyPostCommented(ctx context.Context, actorID, ownerID, postID string) error {
	return s.notifyPost(ctx, actorID, ownerID, postID, models.NotificationPostComment, "New comment", "commented on your post")
}

func (s *NotificationService) notifyPost(ctx context.Context, actorID, ownerID, postID string, typ models.NotificationType, title, verb string) error {
	if actorID == ownerID {
		return nil
	}
	actor, err := s.store.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.NotFound("user not found")
		}
		return err
	}

	_, err = s.Create(ctx, models.Notification{
		RecipientID: ownerID,
		SenderID:    actorID,
		Type:        typ,
		Title:       title,
		Message:     displayName(actor) + " " + verb,
		Link:        "/posts/" + postID,
		RelatedID:   postID,
	})
	if err != nil {
		s.log.Warn("post notification failed",
			zap.String("type", string(typ)),
			zap.String("post_id", postID),
			zap.Error(err),
		)
	}
	return nil
}
