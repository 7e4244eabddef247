package handlers

import (
	"github.com/gin-gonic/gin"

	"kinship/middleware"
	"kinship/utils"
)

const (
	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 100
)

func (h *Handler) GetNotifications(c *gin.Context) {
	page, pageSize := utils.Pagination(c, defaultNotificationPageSize, maxNotificationPageSize)

	result, err := h.svc.Notifications.List(c.Request.Context(), middleware.GetUserID(c), page, pageSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, result)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.svc.Notifications.MarkRead(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, nil)
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.svc.Notifications.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, gin.H{"updated": n})
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	if err := h.svc.Notifications.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, nil)
}

// ClearReadNotifications deletes every notification the caller has read.
func (h *Handler) ClearReadNotifications(c *gin.Context) {
	n, err := h.svc.Notifications.ClearRead(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, gin.H{"deleted": n})
}
