package models

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

type Friendship struct {
	ID          string           `json:"id"`
	RequesterID string           `json:"requester_id"`
	RecipientID string           `json:"recipient_id"`
	Status      FriendshipStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type FriendWithUser struct {
	Friendship
	Friend   UserResponse `json:"friend"`
	Online   bool         `json:"online"`
	LastSeen *time.Time   `json:"last_seen,omitempty"`
}

// FriendshipState is the answer to a status lookup between two users.
type FriendshipState struct {
	Status       string `json:"status"` // self, not_friends, pending, accepted, blocked
	FriendshipID string `json:"friendship_id,omitempty"`
	Direction    string `json:"direction,omitempty"` // sent, received
}

const (
	StateSelf       = "self"
	StateNotFriends = "not_friends"
	DirectionSent   = "sent"
	DirectionRecv   = "received"
)

type FriendCounts struct {
	Friends         int `json:"friends"`
	PendingReceived int `json:"pending_received"`
	PendingSent     int `json:"pending_sent"`
}

type RespondAction string

const (
	ActionAccept RespondAction = "accept"
	ActionReject RespondAction = "reject"
)

type RespondResult struct {
	Friendship     Friendship `json:"friendship"`
	ConversationID string     `json:"conversation_id,omitempty"`
}
