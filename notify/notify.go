package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/floradex-app/server/cache"
	"go.uber.org/zap"
)

// Event types pushed to users over their SSE stream.
const (
	EventFriendRequest = "friend_request"
	EventFriendAccept  = "friend_accept"
	EventFriendDecline = "friend_decline"
	EventTradeOffer    = "trade_offer"
	EventTradeAccept   = "trade_accept"
	EventTradeDecline  = "trade_decline"
)

// Event is the JSON payload published to a user's event channel.
type Event struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	OfferID string `json:"offer_id,omitempty"`
	CardID  string `json:"card_id,omitempty"`
	At      int64  `json:"at"`
}

// Notifier publishes per-user events over pub/sub. Delivery is
// best-effort: the aggregates are the source of truth and a missed event
// only delays the UI until its next poll.
type Notifier struct {
	pubsub cache.PubSub
	logger *zap.Logger
}

// New creates a Notifier.
func New(pubsub cache.PubSub, logger *zap.Logger) *Notifier {
	return &Notifier{pubsub: pubsub, logger: logger}
}

// UserChannel returns the pub/sub channel carrying a user's events.
func UserChannel(userID string) string {
	return "events:" + userID
}

// Push publishes ev to userID's channel. Failures are logged, not returned.
func (n *Notifier) Push(ctx context.Context, userID string, ev Event) {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("notify marshal failed", zap.Error(err))
		return
	}
	if err := n.pubsub.Publish(ctx, UserChannel(userID), string(payload)); err != nil {
		n.logger.Warn("notify publish failed",
			zap.String("user_id", userID),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
	}
}
