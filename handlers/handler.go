package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kinship/identity"
	"kinship/services"
	"kinship/store"
	"kinship/utils"
)

// Handler serves the JSON API. Handlers are thin: they bind input, call a
// service and write the response envelope.
type Handler struct {
	store  *store.Store
	svc    *services.Services
	tokens *identity.JWT
	log    *zap.Logger
}

func New(st *store.Store, svc *services.Services, tokens *identity.JWT, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: st, svc: svc, tokens: tokens, log: log}
}

// Mount registers every API route on r. auth guards everything except register and login.
func (h *Handler) Mount(r gin.IRouter, auth gin.HandlerFunc) {
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", auth, h.RefreshToken)
	}

	users := r.Group("/api/users")
	users.Use(auth)
	{
		users.GET("/me", h.GetCurrentUser)
		users.GET("/:username", h.GetUser)
	}

	friends := r.Group("/api/friends")
	friends.Use(auth)
	{
		friends.GET("", h.GetFriends)
		friends.GET("/counts", h.GetFriendCounts)
		friends.GET("/status/:username", h.GetFriendshipStatus)
		friends.POST("/requests", h.SendFriendRequest)
		friends.GET("/requests", h.GetFriendRequests)
		friends.GET("/requests/sent", h.GetSentFriendRequests)
		friends.POST("/requests/:id/respond", h.RespondFriendRequest)
		friends.DELETE("/:id", h.DeleteFriend)
	}

	conversations := r.Group("/api/conversations")
	conversations.Use(auth)
	{
		conversations.GET("", h.GetConversations)
		conversations.POST("", h.StartConversation)
		conversations.GET("/contacts", h.GetContacts)
		conversations.GET("/:id/messages", h.GetMessages)
		conversations.POST("/:id/messages", h.SendMessage)
		conversations.POST("/:id/read", h.MarkConversationRead)
	}

	notifications := r.Group("/api/notifications")
	notifications.Use(auth)
	{
		notifications.GET("", h.GetNotifications)
		notifications.PUT("/read-all", h.MarkAllNotificationsRead)
		notifications.PUT("/:id/read", h.MarkNotificationRead)
		notifications.DELETE("/read", h.ClearReadNotifications)
		notifications.DELETE("/:id", h.DeleteNotification)
	}
}

// fail writes err and logs it when it is not a domain error.
func (h *Handler) fail(c *gin.Context, err error) {
	if utils.Kind(err) == nil {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	utils.Fail(c, err)
}
