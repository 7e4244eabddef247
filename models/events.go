package models

// Push channel event names.
const (
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventMarkRead    = "mark_read"
	EventPing        = "ping"

	EventNewMessage      = "new_message"
	EventMessageSent     = "message_sent"
	EventUserTyping      = "user_typing"
	EventUserStopTyping  = "user_stop_typing"
	EventMessagesRead    = "messages_read"
	EventNewNotification = "new_notification"
	EventPong            = "pong"
	EventError           = "error"
)

type MessagesReadPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}
