package rest

import (
	"net/http"

	"github.com/floradex-app/server/cache"
	"github.com/floradex-app/server/friendship"
	mw "github.com/floradex-app/server/middleware"
	"github.com/floradex-app/server/notify"
	"github.com/floradex-app/server/repository"
	"github.com/gin-gonic/gin"
)

// SocialHandler handles friend REST endpoints.
type SocialHandler struct {
	repo     repository.UserRepository
	svc      *friendship.Service
	notifier *notify.Notifier
	cache    cache.Cache
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(repo repository.UserRepository, svc *friendship.Service, notifier *notify.Notifier, c cache.Cache) *SocialHandler {
	return &SocialHandler{repo: repo, svc: svc, notifier: notifier, cache: c}
}

// ListFriends handles GET /api/social/friends.
func (h *SocialHandler) ListFriends(c *gin.Context) {
	user, err := h.repo.Get(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}

	type friendInfo struct {
		UserID string `json:"user_id"`
		Online bool   `json:"online"`
	}
	result := make([]friendInfo, 0, len(user.Friends))
	for _, id := range user.Friends {
		online, _ := h.cache.Exists(c.Request.Context(), "online:"+id)
		result = append(result, friendInfo{UserID: id, Online: online})
	}
	c.JSON(http.StatusOK, gin.H{"friends": result})
}

// ListRequests handles GET /api/social/requests.
// Returns pending requests in both directions.
func (h *SocialHandler) ListRequests(c *gin.Context) {
	user, err := h.repo.Get(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": user.PendingFriends})
}

// SendRequest handles POST /api/social/requests.
func (h *SocialHandler) SendRequest(c *gin.Context) {
	var req struct {
		ReceiverID string `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	senderID := mw.GetUserID(c)
	_, _, err := h.svc.SendRequest(c.Request.Context(), senderID, req.ReceiverID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	h.notifier.Push(c.Request.Context(), req.ReceiverID, notify.Event{
		Type: notify.EventFriendRequest,
		From: senderID,
	})
	c.JSON(http.StatusCreated, gin.H{"message": "request sent"})
}

// AcceptRequest handles POST /api/social/requests/:uid/accept.
// :uid is the sender whose request the caller accepts.
func (h *SocialHandler) AcceptRequest(c *gin.Context) {
	currentID := mw.GetUserID(c)
	senderID := c.Param("uid")

	_, _, err := h.svc.Accept(c.Request.Context(), currentID, senderID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	h.notifier.Push(c.Request.Context(), senderID, notify.Event{
		Type: notify.EventFriendAccept,
		From: currentID,
	})
	c.JSON(http.StatusOK, gin.H{"message": "accepted"})
}

// DeclineRequest handles POST /api/social/requests/:uid/decline.
func (h *SocialHandler) DeclineRequest(c *gin.Context) {
	currentID := mw.GetUserID(c)
	senderID := c.Param("uid")

	_, _, err := h.svc.Decline(c.Request.Context(), currentID, senderID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	h.notifier.Push(c.Request.Context(), senderID, notify.Event{
		Type: notify.EventFriendDecline,
		From: currentID,
	})
	c.JSON(http.StatusOK, gin.H{"message": "declined"})
}
