package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinship/models"
	"kinship/testutil"
	"kinship/utils"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.NewDB(t))
}

func createUser(t *testing.T, s *Store, username string) *models.User {
	t.Helper()
	now := time.Now()
	u := &models.User{
		ID:        utils.GenerateUUID(),
		Username:  username,
		Nickname:  username,
		Password:  "x",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestUsers(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = s.GetUserByID(ctx, "missing")
	assert.True(t, errors.Is(err, utils.ErrNotFound))

	err = s.CreateUser(ctx, &models.User{ID: utils.GenerateUUID(), Username: "alice", Password: "x"})
	assert.True(t, errors.Is(err, utils.ErrConflict))

	users, err := s.GetUsersByIDs(ctx, []string{alice.ID, bob.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "bob", users[bob.ID].Username)
}

func TestFriendshipPairIsUniqueInBothDirections(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	now := time.Now()

	require.NoError(t, s.CreateFriendship(ctx, &models.Friendship{
		ID: utils.GenerateUUID(), RequesterID: alice.ID, RecipientID: bob.ID,
		Status: models.FriendshipPending, CreatedAt: now, UpdatedAt: now,
	}))

	err := s.CreateFriendship(ctx, &models.Friendship{
		ID: utils.GenerateUUID(), RequesterID: bob.ID, RecipientID: alice.ID,
		Status: models.FriendshipPending, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	f, err := s.FindFriendshipBetween(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, f.RequesterID)
	assert.Equal(t, models.FriendshipPending, f.Status)
}

func TestAcceptFriendshipIsCompareAndSwap(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	now := time.Now()
	f := &models.Friendship{
		ID: utils.GenerateUUID(), RequesterID: alice.ID, RecipientID: bob.ID,
		Status: models.FriendshipPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateFriendship(ctx, f))

	ok, err := s.AcceptFriendship(ctx, f.ID, alice.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "only the recipient may accept")

	ok, err = s.AcceptFriendship(ctx, f.ID, bob.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcceptFriendship(ctx, f.ID, bob.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "second accept must lose")

	friends, err := s.AreFriends(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, friends)

	counts, err := s.CountFriendships(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendCounts{Friends: 1}, counts)

	list, err := s.ListFriendships(ctx, alice.ID, FilterAccepted, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].Friend.Username)

	list, err = s.ListFriendships(ctx, alice.ID, FilterAccepted, "zzz")
	require.NoError(t, err)
	assert.Empty(t, list)

	ok, err = s.DeleteAcceptedFriendship(ctx, f.ID, "stranger")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DeleteAcceptedFriendship(ctx, f.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListFriendshipsSearchEscapesWildcards(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	now := time.Now()
	for _, name := range []string{"bob_smith", "bobXsmith"} {
		u := createUser(t, s, name)
		f := &models.Friendship{
			ID: utils.GenerateUUID(), RequesterID: alice.ID, RecipientID: u.ID,
			Status: models.FriendshipAccepted, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, s.CreateFriendship(ctx, f))
	}

	list, err := s.ListFriendships(ctx, alice.ID, FilterAccepted, "b_s")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob_smith", list[0].Friend.Username)
}

func TestCreateConversationConcurrentlyYieldsOneRow(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			participants := []string{alice.ID, bob.ID}
			if i%2 == 1 {
				participants = []string{bob.ID, alice.ID}
			}
			errs[i] = s.CreateConversation(ctx, &models.Conversation{
				ID:           utils.GenerateUUID(),
				Participants: participants,
				CreatedAt:    time.Now(),
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicate)
	}
	assert.Equal(t, 1, created)

	var rows int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM conversations").Scan(&rows))
	assert.Equal(t, 1, rows)
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM conversation_participants").Scan(&rows))
	assert.Equal(t, 2, rows)
}

func seedConversation(t *testing.T, s *Store, a, b *models.User) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{ID: utils.GenerateUUID(), Participants: []string{a.ID, b.ID}, CreatedAt: time.Now()}
	require.NoError(t, s.CreateConversation(context.Background(), conv))
	got, err := s.FindConversationByPair(context.Background(), b.ID, a.ID)
	require.NoError(t, err)
	return got
}

func TestMarkConversationReadIsMonotoneAndIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	conv := seedConversation(t, s, alice, bob)

	base := time.Now()
	for i, content := range []string{"one", "two", "three"} {
		require.NoError(t, s.InsertMessage(ctx, &models.Message{
			ID: utils.GenerateUUID(), ConversationID: conv.ID, SenderID: alice.ID,
			Content: content, ReadBy: []string{alice.ID}, CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	n, err := s.MarkConversationRead(ctx, conv.ID, bob.ID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = s.MarkConversationRead(ctx, conv.ID, bob.ID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	messages, err := s.ListMessages(ctx, conv.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "three", messages[0].Content, "newest first")
	for _, m := range messages {
		assert.ElementsMatch(t, []string{alice.ID, bob.ID}, m.ReadBy)
	}
}

func TestTouchLastMessageNeverRewinds(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	conv := seedConversation(t, s, alice, bob)

	later := time.Now()
	earlier := later.Add(-time.Minute)
	require.NoError(t, s.TouchLastMessage(ctx, conv.ID, "m-late", later))
	require.NoError(t, s.TouchLastMessage(ctx, conv.ID, "m-early", earlier))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "m-late", got.LastMessageID)
	assert.Equal(t, later.UnixMilli(), got.LastMessageAt.UnixMilli())
}

func TestListConversationSummaries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	carol := createUser(t, s, "carol")
	withBob := seedConversation(t, s, alice, bob)
	withCarol := seedConversation(t, s, alice, carol)

	now := time.Now()
	msg := &models.Message{
		ID: utils.GenerateUUID(), ConversationID: withBob.ID, SenderID: bob.ID,
		Content: "hey", ReadBy: []string{bob.ID}, CreatedAt: now,
	}
	require.NoError(t, s.InsertMessage(ctx, msg))
	require.NoError(t, s.TouchLastMessage(ctx, withBob.ID, msg.ID, now))

	summaries, err := s.ListConversationSummaries(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, withBob.ID, summaries[0].ID)
	assert.Equal(t, "bob", summaries[0].Peer.Username)
	assert.Equal(t, 1, summaries[0].UnreadCount)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "hey", summaries[0].LastMessage.Content)
	assert.False(t, summaries[0].LastMessage.IsRead)

	assert.Equal(t, withCarol.ID, summaries[1].ID)
	assert.Nil(t, summaries[1].LastMessage)
	assert.Zero(t, summaries[1].UnreadCount)
}

func TestNotifications(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now()

	insert := func(id string, typ models.NotificationType, related string, read bool, at time.Time) {
		require.NoError(t, s.InsertNotification(ctx, &models.Notification{
			ID: id, RecipientID: "bob", SenderID: "alice", Type: typ, Title: "t",
			RelatedID: related, IsRead: read, CreatedAt: at,
		}))
	}
	insert("n1", models.NotificationFriendRequest, "f1", false, now)
	insert("n2", models.NotificationSystemMessage, "", true, now.Add(time.Second))
	insert("n3", models.NotificationPostLike, "p1", false, now.Add(2*time.Second))

	total, unread, err := s.CountNotifications(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, unread)

	list, err := s.ListNotifications(ctx, "bob", 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n3", list[0].ID)

	ok, err := s.MarkNotificationRead(ctx, "n1", "mallory")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.MarkNotificationRead(ctx, "n1", "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkNotificationRead(ctx, "n1", "bob")
	require.NoError(t, err)
	assert.True(t, ok, "marking twice is fine")

	n, err := s.DeleteNotificationsByCorrelation(ctx, "bob", "f1", models.NotificationFriendRequest)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = s.DeleteNotificationsByCorrelation(ctx, "bob", "f1", models.NotificationFriendRequest)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteReadNotifications(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.MarkAllNotificationsRead(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	ok, err = s.DeleteNotification(ctx, "n3", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	total, unread, err = s.CountNotifications(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, unread)
}
