package handlers

import (
	"github.com/gin-gonic/gin"

	"kinship/middleware"
	"kinship/utils"
)

func (h *Handler) GetCurrentUser(c *gin.Context) {
	user, err := h.store.GetUserByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, user.ToResponse())
}

// GetUser returns a profile by handle together with the caller's relationship to it.
func (h *Handler) GetUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.store.GetUserByUsername(ctx, c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	state, err := h.svc.Friends.Status(ctx, middleware.GetUserID(c), user.Username)
	if err != nil {
		h.fail(c, err)
		return
	}

	utils.Success(c, gin.H{
		"user":       user.ToResponse(),
		"friendship": state,
		"online":     h.svc.Chat.IsOnline(user.ID),
	})
}
