package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinship/identity"
	"kinship/middleware"
	"kinship/models"
	"kinship/services"
	"kinship/store"
	"kinship/testutil"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.New(testutil.NewDB(t))
	svc := services.New(services.Deps{Store: st})
	tokens := identity.NewJWT("test-secret", time.Hour)

	r := gin.New()
	New(st, svc, tokens, nil).Mount(r, middleware.AuthMiddleware(tokens))
	return &api{t: t, router: r}
}

func (a *api) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (a *api) decode(env envelope, dest interface{}) {
	a.t.Helper()
	require.NoError(a.t, json.Unmarshal(env.Data, dest))
}

func (a *api) register(username string) (string, models.UserResponse) {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/auth/register", "", gin.H{"username": username, "password": "secret1"})
	require.Equal(a.t, http.StatusCreated, code, env.Message)
	var res AuthResponse
	a.decode(env, &res)
	return res.Token, res.User
}

func TestRegisterAndLogin(t *testing.T) {
	a := newAPI(t)
	a.register("alice")

	code, env := a.do(http.MethodPost, "/api/auth/register", "", gin.H{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "username already exists", env.Message)

	code, _ = a.do(http.MethodPost, "/api/auth/register", "", gin.H{"username": "a b", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = a.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, code)
	var res AuthResponse
	a.decode(env, &res)
	assert.NotEmpty(t, res.Token)

	code, env = a.do(http.MethodGet, "/api/users/me", res.Token, nil)
	require.Equal(t, http.StatusOK, code)
	var me models.UserResponse
	a.decode(env, &me)
	assert.Equal(t, "alice", me.Username)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newAPI(t)
	for _, path := range []string{"/api/friends", "/api/conversations", "/api/notifications", "/api/users/me"} {
		code, env := a.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, http.StatusUnauthorized, env.Code, path)
	}
}

func TestFriendshipToConversationFlow(t *testing.T) {
	a := newAPI(t)
	aliceToken, _ := a.register("alice")
	bobToken, bob := a.register("bob")
	carolToken, _ := a.register("carol")

	code, env := a.do(http.MethodPost, "/api/friends/requests", aliceToken, gin.H{"username": "bob"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var request models.Friendship
	a.decode(env, &request)

	code, _ = a.do(http.MethodPost, "/api/friends/requests", aliceToken, gin.H{"username": "bob"})
	assert.Equal(t, http.StatusConflict, code)
	code, _ = a.do(http.MethodPost, "/api/friends/requests", aliceToken, gin.H{"username": "nobody"})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = a.do(http.MethodGet, "/api/friends/requests", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var pending []models.FriendWithUser
	a.decode(env, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, "alice", pending[0].Friend.Username)

	code, env = a.do(http.MethodGet, "/api/notifications", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var inbox models.NotificationPage
	a.decode(env, &inbox)
	assert.Equal(t, 1, inbox.UnreadCount)

	code, _ = a.do(http.MethodPost, "/api/friends/requests/"+request.ID+"/respond", bobToken, gin.H{"action": "maybe"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(http.MethodPost, "/api/friends/requests/"+request.ID+"/respond", bobToken, gin.H{"action": "accept"})
	require.Equal(t, http.StatusOK, code, env.Message)
	var result models.RespondResult
	a.decode(env, &result)
	require.NotEmpty(t, result.ConversationID)

	code, _ = a.do(http.MethodPost, "/api/friends/requests/"+request.ID+"/respond", bobToken, gin.H{"action": "accept"})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = a.do(http.MethodGet, "/api/friends/status/bob", aliceToken, nil)
	require.Equal(t, http.StatusOK, code)
	var state models.FriendshipState
	a.decode(env, &state)
	assert.Equal(t, "accepted", state.Status)

	code, env = a.do(http.MethodGet, "/api/conversations", aliceToken, nil)
	require.Equal(t, http.StatusOK, code)
	var convs []models.ConversationSummary
	a.decode(env, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, result.ConversationID, convs[0].ID)
	assert.Equal(t, 1, convs[0].UnreadCount)

	messagesPath := "/api/conversations/" + result.ConversationID + "/messages"
	code, env = a.do(http.MethodGet, messagesPath, aliceToken, nil)
	require.Equal(t, http.StatusOK, code)
	var page models.MessagePage
	a.decode(env, &page)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, models.SeedMessage, page.Messages[0].Content)
	assert.Equal(t, bob.ID, page.Messages[0].SenderID)

	code, env = a.do(http.MethodPost, messagesPath, aliceToken, gin.H{"content": "hello"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var sent models.MessageResponse
	a.decode(env, &sent)
	assert.True(t, sent.IsSent)

	code, _ = a.do(http.MethodPost, messagesPath, carolToken, gin.H{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodGet, messagesPath, carolToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = a.do(http.MethodPost, "/api/conversations/"+result.ConversationID+"/read", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var marked map[string]int
	a.decode(env, &marked)
	assert.Equal(t, 1, marked["marked"])

	code, env = a.do(http.MethodGet, "/api/friends/counts", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var counts models.FriendCounts
	a.decode(env, &counts)
	assert.Equal(t, 1, counts.Friends)

	code, env = a.do(http.MethodGet, "/api/conversations/contacts?q=ali", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var contacts []models.FriendWithUser
	a.decode(env, &contacts)
	require.Len(t, contacts, 1)

	code, _ = a.do(http.MethodDelete, "/api/friends/"+request.ID, carolToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(http.MethodDelete, "/api/friends/"+request.ID, aliceToken, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodPost, "/api/conversations", aliceToken, gin.H{"user_id": bob.ID})
	assert.Equal(t, http.StatusForbidden, code, "only friends can start a conversation")
}

func TestNotificationRoutes(t *testing.T) {
	a := newAPI(t)
	aliceToken, _ := a.register("alice")
	bobToken, _ := a.register("bob")

	code, _ := a.do(http.MethodPost, "/api/friends/requests", aliceToken, gin.H{"username": "bob"})
	require.Equal(t, http.StatusCreated, code)

	_, env := a.do(http.MethodGet, "/api/notifications?page=1&page_size=5", bobToken, nil)
	var inbox models.NotificationPage
	a.decode(env, &inbox)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, 5, inbox.PageSize)
	id := inbox.Notifications[0].ID

	code, _ = a.do(http.MethodPut, "/api/notifications/"+id+"/read", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, code, "only the recipient owns it")
	code, _ = a.do(http.MethodPut, "/api/notifications/"+id+"/read", bobToken, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodPut, "/api/notifications/read-all", bobToken, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = a.do(http.MethodDelete, "/api/notifications/read", bobToken, nil)
	require.Equal(t, http.StatusOK, code)
	var deleted map[string]int
	a.decode(env, &deleted)
	assert.Equal(t, 1, deleted["deleted"])

	code, _ = a.do(http.MethodDelete, "/api/notifications/"+id, bobToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
