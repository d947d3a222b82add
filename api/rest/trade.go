package rest

import (
	"net/http"

	mw "github.com/floradex-app/server/middleware"
	"github.com/floradex-app/server/notify"
	"github.com/floradex-app/server/repository"
	"github.com/floradex-app/server/trade"
	"github.com/gin-gonic/gin"
)

// TradeHandler handles trade offer REST endpoints.
type TradeHandler struct {
	repo     repository.UserRepository
	svc      *trade.Service
	notifier *notify.Notifier
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(repo repository.UserRepository, svc *trade.Service, notifier *notify.Notifier) *TradeHandler {
	return &TradeHandler{repo: repo, svc: svc, notifier: notifier}
}

// ListOffers handles GET /api/trades.
// Open offers live on the offering user's aggregate, so this lists the
// caller's outgoing offers. Incoming offers arrive as trade_offer events.
func (h *TradeHandler) ListOffers(c *gin.Context) {
	user, err := h.repo.Get(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": user.Trading})
}

type createOfferRequest struct {
	OfferedCardID   string `json:"offered_card_id" binding:"required"`
	CounterpartID   string `json:"counterpart_id" binding:"required"`
	RequestedCardID string `json:"requested_card_id" binding:"required"`
}

// CreateOffer handles POST /api/trades.
func (h *TradeHandler) CreateOffer(c *gin.Context) {
	var req createOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := mw.GetUserID(c)
	offer, err := h.svc.CreateOffer(c.Request.Context(), userID,
		req.OfferedCardID, req.CounterpartID, req.RequestedCardID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	h.notifier.Push(c.Request.Context(), req.CounterpartID, notify.Event{
		Type:    notify.EventTradeOffer,
		From:    userID,
		OfferID: offer.ID,
		CardID:  offer.OfferedCard.ID,
	})
	c.JSON(http.StatusCreated, gin.H{"offer": offer})
}

// AcceptOffer handles POST /api/trades/:uid/:offer_id/accept.
// :uid is the offering user; the caller must be the offer's counterpart.
func (h *TradeHandler) AcceptOffer(c *gin.Context) {
	userID := mw.GetUserID(c)
	offeringID := c.Param("uid")
	offerID := c.Param("offer_id")

	_, _, err := h.svc.AcceptTrade(c.Request.Context(), userID, offeringID, offerID)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	h.notifier.Push(c.Request.Context(), offeringID, notify.Event{
		Type:    notify.EventTradeAccept,
		From:    userID,
		OfferID: offerID,
	})
	c.JSON(http.StatusOK, gin.H{"message": "trade completed"})
}

// DeclineOffer handles POST /api/trades/:uid/:offer_id/decline.
// Either party may decline; a repeat decline still reports success.
func (h *TradeHandler) DeclineOffer(c *gin.Context) {
	userID := mw.GetUserID(c)
	offeringID := c.Param("uid")
	offerID := c.Param("offer_id")

	if err := h.svc.DeclineTrade(c.Request.Context(), userID, offeringID, offerID); err != nil {
		writeEngineError(c, err)
		return
	}

	if userID != offeringID {
		h.notifier.Push(c.Request.Context(), offeringID, notify.Event{
			Type:    notify.EventTradeDecline,
			From:    userID,
			OfferID: offerID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"message": "declined"})
}
