package handlers

import (
	"github.com/gin-gonic/gin"

	"kinship/middleware"
	"kinship/models"
	"kinship/utils"
)

type FriendRequest struct {
	Username string `json:"username" binding:"required"`
}

type RespondRequest struct {
	Action models.RespondAction `json:"action" binding:"required"`
}

func (h *Handler) GetFriends(c *gin.Context) {
	friends, err := h.svc.Friends.ListFriends(c.Request.Context(), middleware.GetUserID(c), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, friends)
}

func (h *Handler) GetFriendRequests(c *gin.Context) {
	requests, err := h.svc.Friends.ListPending(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, requests)
}

func (h *Handler) GetSentFriendRequests(c *gin.Context) {
	requests, err := h.svc.Friends.ListSent(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, requests)
}

func (h *Handler) SendFriendRequest(c *gin.Context) {
	var req FriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	friendship, err := h.svc.Friends.SendRequest(c.Request.Context(), middleware.GetUserID(c), req.Username)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Created(c, friendship)
}

func (h *Handler) RespondFriendRequest(c *gin.Context) {
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	result, err := h.svc.Friends.Respond(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), req.Action)
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, result)
}

func (h *Handler) DeleteFriend(c *gin.Context) {
	if err := h.svc.Friends.Remove(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, nil)
}

func (h *Handler) GetFriendshipStatus(c *gin.Context) {
	state, err := h.svc.Friends.Status(c.Request.Context(), middleware.GetUserID(c), c.Param("username"))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, state)
}

func (h *Handler) GetFriendCounts(c *gin.Context) {
	counts, err := h.svc.Friends.Counts(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	utils.Success(c, counts)
}
