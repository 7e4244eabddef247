package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kinship/models"
	"kinship/store"
	"kinship/utils"
)

type FriendService struct {
	base
	chat          *ChatService
	notifications *NotificationService
}

// SendRequest creates a pending friendship from requesterID to the user with
// the given handle and notifies the recipient.
func (s *FriendService) SendRequest(ctx context.Context, requesterID, username string) (*models.Friendship, error) {
	username = strings.TrimSpace(username)
	if !models.ValidUsername(username) {
		return nil, utils.InvalidInput("invalid username")
	}
	recipient, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if recipient.ID == requesterID {
		return nil, utils.InvalidInput("cannot send a friend request to yourself")
	}

	existing, err := s.store.FindFriendshipBetween(ctx, requesterID, recipient.ID)
	switch {
	case err == nil:
		return nil, existingFriendshipError(existing, requesterID)
	case !errors.Is(err, utils.ErrNotFound):
		return nil, err
	}

	now := s.now().UTC()
	f := &models.Friendship{
		ID:          utils.GenerateUUID(),
		RequesterID: requesterID,
		RecipientID: recipient.ID,
		Status:      models.FriendshipPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateFriendship(ctx, f); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// lost a race with a request for the same pair
			if existing, findErr := s.store.FindFriendshipBetween(ctx, requesterID, recipient.ID); findErr == nil {
				return nil, existingFriendshipError(existing, requesterID)
			}
			return nil, utils.Conflict("friend request already sent")
		}
		return nil, err
	}

	requester, err := s.store.GetUserByID(ctx, requesterID)
	if err != nil {
		s.log.Warn("requester lookup failed", zap.String("user_id", requesterID), zap.Error(err))
		return f, nil
	}
	if _, err := s.notifications.Create(ctx, models.Notification{
		RecipientID: recipient.ID,
		SenderID:    requesterID,
		Type:        models.NotificationFriendRequest,
		Title:       "New friend request",
		Message:     displayName(requester) + " sent you a friend request",
		Link:        "/friends/requests",
		RelatedID:   f.ID,
	}); err != nil {
		s.log.Warn("friend request notification failed", zap.String("friendship_id", f.ID), zap.Error(err))
	}
	return f, nil
}

func existingFriendshipError(f *models.Friendship, requesterID string) error {
	switch f.Status {
	case models.FriendshipAccepted:
		return utils.Conflict("already friends")
	case models.FriendshipBlocked:
		return utils.Forbidden("cannot send a friend request to this user")
	case models.FriendshipPending:
		if f.RequesterID != requesterID {
			return utils.Conflict("this user already sent you a friend request")
		}
	}
	return utils.Conflict("friend request already sent")
}

// Respond accepts or rejects a pending request addressed to recipientID.
func (s *FriendService) Respond(ctx context.Context, recipientID, requestID string, action models.RespondAction) (*models.RespondResult, error) {
	if action != models.ActionAccept && action != models.ActionReject {
		return nil, utils.InvalidInput("action must be accept or reject")
	}
	f, err := s.store.GetPendingRequest(ctx, requestID, recipientID)
	if err != nil {
		return nil, err
	}

	if action == models.ActionReject {
		return s.reject(ctx, f)
	}

	now := s.now().UTC()
	ok, err := s.store.AcceptFriendship(ctx, f.ID, recipientID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.NotFound("friend request not found")
	}
	f.Status = models.FriendshipAccepted
	f.UpdatedAt = now

	return &models.RespondResult{
		Friendship:     *f,
		ConversationID: s.acceptCascade(ctx, f),
	}, nil
}

func (s *FriendService) reject(ctx context.Context, f *models.Friendship) (*models.RespondResult, error) {
	if err := s.notifications.DeleteByCorrelation(ctx, f.RecipientID, f.ID, models.NotificationFriendRequest); err != nil {
		s.log.Warn("retract friend request notification failed", zap.String("friendship_id", f.ID), zap.Error(err))
	}
	ok, err := s.store.DeletePendingRequest(ctx, f.ID, f.RecipientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.NotFound("friend request not found")
	}
	f.Status = models.FriendshipRejected
	return &models.RespondResult{Friendship: *f}, nil
}

// acceptCascade runs the side effects of an accepted request. The friendship is
// already accepted, so each step only logs when it fails. It returns the
// conversation id, or "" if the conversation could not be obtained.
func (s *FriendService) acceptCascade(ctx context.Context, f *models.Friendship) string {
	log := s.log.With(zap.String("friendship_id", f.ID))
	accepterID, requesterID := f.RecipientID, f.RequesterID

	var convID string
	conv, err := s.chat.FindOrCreate(ctx, requesterID, accepterID)
	if err != nil {
		log.Error("create conversation for accepted friendship failed", zap.Error(err))
	} else {
		convID = conv.ID
		s.seed(ctx, log, conv, accepterID, requesterID)
	}

	accepter, err := s.store.GetUserByID(ctx, accepterID)
	if err != nil {
		log.Warn("accepter lookup failed", zap.Error(err))
	} else if _, err := s.notifications.Create(ctx, models.Notification{
		RecipientID: requesterID,
		SenderID:    accepterID,
		Type:        models.NotificationFriendAccept,
		Title:       "Friend request accepted",
		Message:     displayName(accepter) + " accepted your friend request",
		Link:        "/messages/" + convID,
		RelatedID:   convID,
	}); err != nil {
		log.Warn("friend accept notification failed", zap.Error(err))
	}

	if err := s.notifications.DeleteByCorrelation(ctx, accepterID, f.ID, models.NotificationFriendRequest); err != nil {
		log.Warn("retract friend request notification failed", zap.Error(err))
	}
	return convID
}

// seed opens the conversation with a greeting from the accepter and pushes it to the requester.
func (s *FriendService) seed(ctx context.Context, log *zap.Logger, conv *models.Conversation, accepterID, requesterID string) {
	msg, err := s.chat.append(ctx, conv, accepterID, models.SeedMessage)
	if err != nil {
		log.Error("seed message failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return
	}
	s.chat.touch(ctx, msg)

	resp := msg.ToResponse(requesterID)
	resp.Sender = s.chat.lookupSender(ctx, accepterID)
	s.emitter.Emit(requesterID, models.EventNewMessage, resp)
}

// Remove ends an accepted friendship. The conversation and its history stay.
func (s *FriendService) Remove(ctx context.Context, userID, friendshipID string) error {
	ok, err := s.store.DeleteAcceptedFriendship(ctx, friendshipID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return utils.NotFound("friendship not found")
	}
	return nil
}

// Status describes the relationship between userID and the user with the given handle.
func (s *FriendService) Status(ctx context.Context, userID, otherUsername string) (*models.FriendshipState, error) {
	other, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(otherUsername))
	if err != nil {
		return nil, err
	}
	if other.ID == userID {
		return &models.FriendshipState{Status: models.StateSelf}, nil
	}

	f, err := s.store.FindFriendshipBetween(ctx, userID, other.ID)
	if errors.Is(err, utils.ErrNotFound) {
		return &models.FriendshipState{Status: models.StateNotFriends}, nil
	}
	if err != nil {
		return nil, err
	}

	direction := models.DirectionRecv
	if f.RequesterID == userID {
		direction = models.DirectionSent
	}
	return &models.FriendshipState{
		Status:       string(f.Status),
		FriendshipID: f.ID,
		Direction:    direction,
	}, nil
}

// ListPending returns requests waiting for userID's answer.
func (s *FriendService) ListPending(ctx context.Context, userID string) ([]models.FriendWithUser, error) {
	return s.store.ListFriendships(ctx, userID, store.FilterIncoming, "")
}

// ListSent returns userID's requests that have not been answered yet.
func (s *FriendService) ListSent(ctx context.Context, userID string) ([]models.FriendWithUser, error) {
	return s.store.ListFriendships(ctx, userID, store.FilterOutgoing, "")
}

// ListFriends returns accepted friends with their presence.
func (s *FriendService) ListFriends(ctx context.Context, userID, search string) ([]models.FriendWithUser, error) {
	friends, err := s.store.ListFriendships(ctx, userID, store.FilterAccepted, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}
	if len(friends) == 0 {
		return friends, nil
	}

	ids := make([]string, len(friends))
	for i := range friends {
		ids[i] = friends[i].Friend.ID
		friends[i].Online = s.isOnline(ids[i])
	}
	if s.presence == nil {
		return friends, nil
	}

	seen, err := s.presence.LastSeen(ctx, ids)
	if err != nil {
		s.log.Warn("last seen lookup failed", zap.Error(err))
		return friends, nil
	}
	for i := range friends {
		if friends[i].Online {
			continue
		}
		if t, ok := seen[friends[i].Friend.ID]; ok {
			friends[i].LastSeen = &t
		}
	}
	return friends, nil
}

func (s *FriendService) Counts(ctx context.Context, userID string) (models.FriendCounts, error) {
	counts, err := s.store.CountFriendships(ctx, userID)
	if err != nil {
		return counts, fmt.Errorf("friend counts: %w", err)
	}
	return counts, nil
}
