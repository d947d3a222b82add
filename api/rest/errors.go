package rest

import (
	"errors"
	"net/http"

	"github.com/floradex-app/server/friendship"
	"github.com/floradex-app/server/reconcile"
	"github.com/floradex-app/server/repository"
	"github.com/floradex-app/server/trade"
	"github.com/gin-gonic/gin"
)

// writeEngineError maps engine errors to HTTP responses. A partial
// failure reports 502: the request neither fully succeeded nor fully
// failed and the client must not blindly retry.
func writeEngineError(c *gin.Context, err error) {
	var pf *reconcile.PartialFailureError
	switch {
	case errors.As(err, &pf):
		c.JSON(http.StatusBadGateway, gin.H{"error": "operation partially applied, contact support"})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, friendship.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
	case errors.Is(err, trade.ErrOfferNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "offer not found"})
	case errors.Is(err, friendship.ErrInvalidTarget),
		errors.Is(err, trade.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target"})
	case errors.Is(err, friendship.ErrAlreadyFriends):
		c.JSON(http.StatusConflict, gin.H{"error": "already friends"})
	case errors.Is(err, friendship.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, gin.H{"error": "request already pending"})
	case errors.Is(err, trade.ErrCardNotOwned):
		c.JSON(http.StatusConflict, gin.H{"error": "card not owned"})
	case errors.Is(err, trade.ErrCardNotTradeable):
		c.JSON(http.StatusConflict, gin.H{"error": "card not tradeable"})
	case errors.Is(err, trade.ErrOwnershipChanged):
		c.JSON(http.StatusConflict, gin.H{"error": "card ownership changed, refresh the offer"})
	case errors.Is(err, reconcile.ErrRetriesExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too much contention, try again"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
