package handlers

import (
	"github.com/gin-gonic/gin"

	"kinship/middleware"
	"kinship/utils"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 100
)

type SendMessageRequest struct {
	Content     string `json:"content" binding:"required"`
	RecipientID string `json:"recipient_id"`
}

// GetMessages returns a page of the conversation and marks it read for the caller.
func (h *Handler) GetMessages(c *gin.Context) {
	page, pageSize := utils.Pagination(c, defaultMessagePageSize, maxMessagePageSize)

	result, err := h.svc.Chat.ListPage(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, result)
}

// SendMessage is the HTTP twin of the send_message push event.
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	msg, err := h.svc.Chat.SendMessage(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Content, req.RecipientID)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Created(c, msg)
}
