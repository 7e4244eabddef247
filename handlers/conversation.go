package handlers

import (
	"github.com/gin-gonic/gin"

	"kinship/middleware"
	"kinship/utils"
)

type StartConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) GetConversations(c *gin.Context) {
	conversations, err := h.svc.Chat.ListConversations(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, conversations)
}

// StartConversation finds or creates the conversation with a friend.
func (h *Handler) StartConversation(c *gin.Context) {
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	conv, err := h.svc.Chat.StartConversation(c.Request.Context(), middleware.GetUserID(c), req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, conv)
}

// GetContacts lists friends the caller can message, filtered by ?q=.
func (h *Handler) GetContacts(c *gin.Context) {
	contacts, err := h.svc.Chat.Contacts(c.Request.Context(), middleware.GetUserID(c), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, contacts)
}

func (h *Handler) MarkConversationRead(c *gin.Context) {
	n, err := h.svc.Chat.MarkRead(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, gin.H{"marked": n})
}
