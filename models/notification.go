package models

import "time"

type NotificationType string

const (
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationFriendAccept  NotificationType = "friend_accept"
	NotificationPostLike      NotificationType = "post_like"
	NotificationPostComment   NotificationType = "post_comment"
	NotificationJobAlert      NotificationType = "job_alert"
	NotificationSystemMessage NotificationType = "system_message"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationFriendRequest, NotificationFriendAccept, NotificationPostLike,
		NotificationPostComment, NotificationJobAlert, NotificationSystemMessage:
		return true
	}
	return false
}

type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	SenderID    string           `json:"sender_id,omitempty"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Link        string           `json:"link,omitempty"`
	RelatedID   string           `json:"related_id,omitempty"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}

type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	Total         int            `json:"total"`
	UnreadCount   int            `json:"unread_count"`
}
