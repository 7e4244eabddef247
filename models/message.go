package models

import "time"

const MaxMessageLength = 2000

// SeedMessage opens the conversation created when a friend request is accepted.
const SeedMessage = "Hi! 👋"

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	ReadBy         []string  `json:"read_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsReadBy reports whether userID is in the read set.
func (m *Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

type MessageResponse struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Sender         *SenderInfo `json:"sender,omitempty"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	ReadBy         []string    `json:"read_by"`
	IsSent         bool        `json:"is_sent"`
	IsRead         bool        `json:"is_read"`
	CreatedAt      time.Time   `json:"created_at"`
}

type SenderInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// ToResponse annotates the message from viewerID's point of view.
func (m *Message) ToResponse(viewerID string) *MessageResponse {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		ReadBy:         readBy,
		IsSent:         m.SenderID == viewerID,
		IsRead:         m.IsReadBy(viewerID),
		CreatedAt:      m.CreatedAt,
	}
}

type MessagePage struct {
	Messages []MessageResponse `json:"messages"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	HasMore  bool              `json:"has_more"`
}
