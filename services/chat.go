package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"kinship/models"
	"kinship/store"
	"kinship/utils"
)

type ChatService struct {
	base
}

// FindOrCreate returns the conversation between a and b, creating it if absent.
// Concurrent callers for the same pair converge on a single conversation.
func (s *ChatService) FindOrCreate(ctx context.Context, a, b string) (*models.Conversation, error) {
	if a == b {
		return nil, utils.InvalidInput("a conversation needs two different users")
	}

	conv, err := s.store.FindConversationByPair(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	conv = &models.Conversation{
		ID:           utils.GenerateUUID(),
		Participants: []string{a, b},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.CreateConversation(ctx, conv)
	if errors.Is(err, store.ErrDuplicate) {
		return s.store.FindConversationByPair(ctx, a, b)
	}
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *ChatService) TouchLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	return s.store.TouchLastMessage(ctx, conversationID, messageID, at)
}

// conversationFor loads the conversation and checks that userID takes part in it.
func (s *ChatService) conversationFor(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, utils.Forbidden("you are not a participant of this conversation")
	}
	return conv, nil
}

// Append stores a message from senderID. The sender has always read their own message.
func (s *ChatService) Append(ctx context.Context, conversationID, senderID, content string) (*models.Message, error) {
	conv, err := s.conversationFor(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, conv, senderID, content)
}

func (s *ChatService) append(ctx context.Context, conv *models.Conversation, senderID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.InvalidInput("message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		return nil, utils.InvalidInput(fmt.Sprintf("message content cannot exceed %d characters", models.MaxMessageLength))
	}

	msg := &models.Message{
		ID:             utils.GenerateUUID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		ReadBy:         []string{senderID},
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// SendMessage appends a message and pushes it: new_message to the other
// participant and message_sent to the sender. recipientID is optional; when
// given it must name the other participant. The sender's view is returned.
func (s *ChatService) SendMessage(ctx context.Context, senderID, conversationID, content, recipientID string) (*models.MessageResponse, error) {
	conv, err := s.conversationFor(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}
	peerID := conv.OtherParticipant(senderID)
	if recipientID != "" && recipientID != peerID {
		return nil, utils.InvalidInput("recipient is not part of this conversation")
	}

	msg, err := s.append(ctx, conv, senderID, content)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, msg)

	sender := s.lookupSender(ctx, senderID)
	return s.deliver(msg, sender, peerID), nil
}

func (s *ChatService) touch(ctx context.Context, msg *models.Message) {
	if err := s.store.TouchLastMessage(ctx, msg.ConversationID, msg.ID, msg.CreatedAt); err != nil {
		s.log.Warn("touch last message failed",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

// deliver emits new_message to the peer and message_sent to the sender.
func (s *ChatService) deliver(msg *models.Message, sender *models.SenderInfo, peerID string) *models.MessageResponse {
	incoming := msg.ToResponse(peerID)
	incoming.Sender = sender
	s.emitter.Emit(peerID, models.EventNewMessage, incoming)

	sent := msg.ToResponse(msg.SenderID)
	sent.Sender = sender
	s.emitter.Emit(msg.SenderID, models.EventMessageSent, sent)
	return sent
}

func (s *ChatService) lookupSender(ctx context.Context, userID string) *models.SenderInfo {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		s.log.Warn("sender lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return senderInfo(u)
}

// ListPage returns a page of messages in chronological order, annotated for
// requesterID, then marks the conversation read for them.
func (s *ChatService) ListPage(ctx context.Context, conversationID, requesterID string, page, pageSize int) (*models.MessagePage, error) {
	conv, err := s.conversationFor(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, conv.ID, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	hasMore := len(messages) > pageSize
	if hasMore {
		messages = messages[:pageSize]
	}

	users, err := s.store.GetUsersByIDs(ctx, conv.Participants)
	if err != nil {
		return nil, err
	}

	result := make([]models.MessageResponse, len(messages))
	for i := range messages {
		msg := &messages[len(messages)-1-i]
		resp := msg.ToResponse(requesterID)
		resp.Sender = senderInfo(users[msg.SenderID])
		result[i] = *resp
	}

	if _, err := s.markRead(ctx, conv, requesterID); err != nil {
		s.log.Warn("mark read on view failed",
			zap.String("conversation_id", conv.ID),
			zap.String("user_id", requesterID),
			zap.Error(err),
		)
	}

	return &models.MessagePage{
		Messages: result,
		Page:     page,
		PageSize: pageSize,
		HasMore:  hasMore,
	}, nil
}

// MarkRead adds readerID to the read set of every message in the conversation
// and returns how many messages were newly marked.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	conv, err := s.conversationFor(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return s.markRead(ctx, conv, readerID)
}

func (s *ChatService) markRead(ctx context.Context, conv *models.Conversation, readerID string) (int64, error) {
	n, err := s.store.MarkConversationRead(ctx, conv.ID, readerID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.emitter.Emit(conv.OtherParticipant(readerID), models.EventMessagesRead, &models.MessagesReadPayload{
			ConversationID: conv.ID,
			UserID:         readerID,
		})
	}
	return n, nil
}

// Typing forwards a typing indicator to the other participant.
func (s *ChatService) Typing(ctx context.Context, userID, conversationID, recipientID string, typing bool) error {
	conv, err := s.conversationFor(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	peerID := conv.OtherParticipant(userID)
	if recipientID != "" && recipientID != peerID {
		return utils.InvalidInput("recipient is not part of this conversation")
	}

	event := models.EventUserTyping
	if !typing {
		event = models.EventUserStopTyping
	}
	s.emitter.Emit(peerID, event, &models.TypingPayload{ConversationID: conv.ID, UserID: userID})
	return nil
}

// IsOnline reports whether userID has a live push connection.
func (s *ChatService) IsOnline(userID string) bool {
	return s.isOnline(userID)
}

func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	summaries, err := s.store.ListConversationSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].Online = s.isOnline(summaries[i].Peer.ID)
	}
	return summaries, nil
}

// Contacts lists the friends userID can message, optionally filtered by a
// substring of their handle or display name.
func (s *ChatService) Contacts(ctx context.Context, userID, search string) ([]models.FriendWithUser, error) {
	friends, err := s.store.ListFriendships(ctx, userID, store.FilterAccepted, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	for i := range friends {
		friends[i].Online = s.isOnline(friends[i].Friend.ID)
	}
	return friends, nil
}

// StartConversation finds or creates the conversation with a friend.
func (s *ChatService) StartConversation(ctx context.Context, userID, peerID string) (*models.Conversation, error) {
	if userID == peerID {
		return nil, utils.InvalidInput("cannot start a conversation with yourself")
	}
	if _, err := s.store.GetUserByID(ctx, peerID); err != nil {
		return nil, err
	}
	friends, err := s.store.AreFriends(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, utils.Forbidden("you can only message your friends")
	}
	return s.FindOrCreate(ctx, userID, peerID)
}
