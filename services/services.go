// Package services composes the stores into the friendship, messaging and
// notification flows and pushes the resulting events to connected users.
package services

import (
	"time"

	"go.uber.org/zap"

	"kinship/models"
	"kinship/presence"
	"kinship/store"
)

// Emitter delivers an event to every live connection of a user.
// Delivery is best-effort; emitting to an offline user is a no-op.
type Emitter interface {
	Emit(userID, event string, payload interface{})
}

// OnlineChecker reports whether a user currently has a live connection.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

type Deps struct {
	Store    *store.Store
	Emitter  Emitter
	Online   OnlineChecker
	Presence presence.Tracker
	Logger   *zap.Logger
	Now      func() time.Time
}

type Services struct {
	Friends       *FriendService
	Chat          *ChatService
	Notifications *NotificationService
}

type base struct {
	store    *store.Store
	emitter  Emitter
	online   OnlineChecker
	presence presence.Tracker
	log      *zap.Logger
	now      func() time.Time
}

func (b *base) isOnline(userID string) bool {
	return b.online != nil && b.online.IsOnline(userID)
}

func New(d Deps) *Services {
	b := base{
		store:    d.Store,
		emitter:  d.Emitter,
		online:   d.Online,
		presence: d.Presence,
		log:      d.Logger,
		now:      d.Now,
	}
	if b.emitter == nil {
		b.emitter = nopEmitter{}
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.now == nil {
		b.now = time.Now
	}

	notifications := &NotificationService{base: b}
	chat := &ChatService{base: b}
	friends := &FriendService{base: b, chat: chat, notifications: notifications}
	return &Services{Friends: friends, Chat: chat, Notifications: notifications}
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, string, interface{}) {}

func senderInfo(u *models.User) *models.SenderInfo {
	if u == nil {
		return nil
	}
	return &models.SenderInfo{ID: u.ID, Username: u.Username, Nickname: u.Nickname, Avatar: u.Avatar}
}

func displayName(u *models.User) string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}
