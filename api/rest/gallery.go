package rest

import (
	"errors"
	"net/http"
	"time"

	mw "github.com/floradex-app/server/middleware"
	"github.com/floradex-app/server/model"
	"github.com/floradex-app/server/reconcile"
	"github.com/floradex-app/server/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GalleryHandler handles card collection REST endpoints.
type GalleryHandler struct {
	repo      repository.UserRepository
	committer *reconcile.Committer
}

// NewGalleryHandler creates a new GalleryHandler.
func NewGalleryHandler(repo repository.UserRepository, committer *reconcile.Committer) *GalleryHandler {
	return &GalleryHandler{repo: repo, committer: committer}
}

// ListCards handles GET /api/gallery/cards.
func (h *GalleryHandler) ListCards(c *gin.Context) {
	user, err := h.repo.Get(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": user.Cards})
}

type mintRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=64"`
	Fact     string `json:"fact" binding:"max=512"`
	Location string `json:"location" binding:"max=128"`
	Rarity   string `json:"rarity" binding:"max=32"`
	ImageURL string `json:"image_url" binding:"max=512"`
	InfoURL  string `json:"info_url" binding:"max=512"`
}

// MintCard handles POST /api/gallery/cards.
// The minting user is both creator and first owner of the new card.
func (h *GalleryHandler) MintCard(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := mw.GetUserID(c)
	card := model.Card{
		ID:          uuid.New().String(),
		Creator:     userID,
		Owner:       userID,
		TradeStatus: false,
		Name:        req.Name,
		Fact:        req.Fact,
		Location:    req.Location,
		Rarity:      req.Rarity,
		ImageURL:    req.ImageURL,
		InfoURL:     req.InfoURL,
		CreatedAt:   time.Now(),
	}
	_, err := h.committer.Update(c.Request.Context(), "card_mint", userID,
		func(u *model.User) error {
			u.Cards = append(u.Cards, card)
			return nil
		})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"card": card})
}

type tradeStatusRequest struct {
	Tradeable *bool `json:"tradeable" binding:"required"`
}

// SetTradeStatus handles PUT /api/gallery/cards/:id/trade-status.
// This is the only card mutation outside an accepted trade.
func (h *GalleryHandler) SetTradeStatus(c *gin.Context) {
	var req tradeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := mw.GetUserID(c)
	cardID := c.Param("id")
	var updated model.Card
	_, err := h.committer.Update(c.Request.Context(), "card_trade_status", userID,
		func(u *model.User) error {
			card := u.FindCard(cardID)
			if card == nil {
				return errCardMissing
			}
			card.TradeStatus = *req.Tradeable
			updated = *card
			return nil
		})
	if err != nil {
		if errors.Is(err, errCardMissing) {
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
			return
		}
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"card": updated})
}

var errCardMissing = errors.New("card not found")
