package trade

import (
	"context"
	"errors"
	"time"

	"github.com/floradex-app/server/model"
	"github.com/floradex-app/server/reconcile"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidTarget is returned for self-trades and for accepts by a
	// user who is not the offer's counterpart.
	ErrInvalidTarget = errors.New("trade: invalid target")
	// ErrCardNotOwned is returned when either card is not held by the
	// expected side at offer-creation time.
	ErrCardNotOwned = errors.New("trade: card not owned by expected user")
	// ErrCardNotTradeable is returned when either card's trade flag is off.
	ErrCardNotTradeable = errors.New("trade: card not tradeable")
	// ErrOfferNotFound is returned when the offer no longer exists.
	// A second accept of the same offer reports this.
	ErrOfferNotFound = errors.New("trade: offer not found")
	// ErrOwnershipChanged is returned when a card moved hands after the
	// offer snapshot was taken. This is a hard failure: resolving the
	// offer anyway would duplicate a card.
	ErrOwnershipChanged = errors.New("trade: card ownership changed since offer")
)

// Service creates and resolves card trade offers. An open offer lives on
// the offering user's aggregate; accepting it swaps card ownership across
// two aggregates through the reconcile committer.
//
// Creating an offer deliberately leaves both cards' trade flags on, so a
// card keeps listing as tradeable while offers referencing it are open.
// Stale offers are caught at accept time by comparing current ownership
// against the snapshots taken here.
type Service struct {
	committer *reconcile.Committer
	logger    *zap.Logger
}

// NewService creates a trade Service.
func NewService(committer *reconcile.Committer, logger *zap.Logger) *Service {
	return &Service{committer: committer, logger: logger}
}

// CreateOffer snapshots both cards and appends an open offer to the
// offering user's aggregate. Both aggregates commit, so a concurrent trade
// touching either card conflicts and re-validates.
func (s *Service) CreateOffer(ctx context.Context, offeringUserID, offeredCardID, counterpartID, requestedCardID string) (*model.TradeOffer, error) {
	if offeringUserID == counterpartID {
		return nil, ErrInvalidTarget
	}

	var created model.TradeOffer
	_, _, err := s.committer.UpdatePair(ctx, "trade_create", offeringUserID, counterpartID,
		func(offering, counterpart *model.User) error {
			offered := offering.FindCard(offeredCardID)
			if offered == nil || offered.Owner != offeringUserID {
				return ErrCardNotOwned
			}
			requested := counterpart.FindCard(requestedCardID)
			if requested == nil || requested.Owner != counterpartID {
				return ErrCardNotOwned
			}
			if !offered.TradeStatus || !requested.TradeStatus {
				return ErrCardNotTradeable
			}
			created = model.TradeOffer{
				ID:            uuid.New().String(),
				OfferedCard:   *offered,
				RequestedCard: *requested,
				CreatedAt:     time.Now(),
			}
			offering.Trading = append(offering.Trading, created)
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trade offer created",
		zap.String("offer_id", created.ID),
		zap.String("offering_user", offeringUserID),
		zap.String("counterpart", counterpartID),
		zap.String("offered_card", offeredCardID),
		zap.String("requested_card", requestedCardID),
	)
	return &created, nil
}

// AcceptTrade swaps ownership of the two cards referenced by the offer and
// removes the offer, as one logical unit across both aggregates. Only the
// offer's counterpart may accept. If either card's current owner no longer
// matches the snapshot, the accept fails with ErrOwnershipChanged and
// nothing moves.
func (s *Service) AcceptTrade(ctx context.Context, resolvingUserID, offeringUserID, offerID string) (*model.User, *model.User, error) {
	if resolvingUserID == offeringUserID {
		return nil, nil, ErrInvalidTarget
	}

	offering, resolving, err := s.committer.UpdatePair(ctx, "trade_accept", offeringUserID, resolvingUserID,
		func(offering, resolving *model.User) error {
			offer := offering.FindOffer(offerID)
			if offer == nil {
				return ErrOfferNotFound
			}
			if offer.Counterpart() != resolvingUserID {
				return ErrInvalidTarget
			}

			offered := offering.FindCard(offer.OfferedCard.ID)
			requested := resolving.FindCard(offer.RequestedCard.ID)
			if offered == nil || offered.Owner != offeringUserID ||
				requested == nil || requested.Owner != resolvingUserID {
				return ErrOwnershipChanged
			}

			moved := offering.RemoveCard(offered.ID)
			received := resolving.RemoveCard(requested.ID)
			moved.Owner = resolvingUserID
			received.Owner = offeringUserID
			resolving.Cards = append(resolving.Cards, *moved)
			offering.Cards = append(offering.Cards, *received)

			offering.RemoveOffer(offerID)
			return nil
		})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("trade accepted",
		zap.String("offer_id", offerID),
		zap.String("offering_user", offeringUserID),
		zap.String("resolving_user", resolvingUserID),
	)
	return offering, resolving, nil
}

// DeclineTrade removes the offer from the offering user's aggregate. Both
// the offering user (withdrawing) and the counterpart (rejecting) may
// decline. Declining an offer that is already gone is a no-op success, not
// an error: decline is a pure withdrawal and needs no exactly-once signal.
func (s *Service) DeclineTrade(ctx context.Context, resolvingUserID, offeringUserID, offerID string) error {
	_, err := s.committer.Update(ctx, "trade_decline", offeringUserID,
		func(offering *model.User) error {
			offer := offering.FindOffer(offerID)
			if offer == nil {
				return nil
			}
			if resolvingUserID != offeringUserID && resolvingUserID != offer.Counterpart() {
				return ErrInvalidTarget
			}
			offering.RemoveOffer(offerID)
			return nil
		})
	if err != nil {
		return err
	}

	s.logger.Info("trade declined",
		zap.String("offer_id", offerID),
		zap.String("offering_user", offeringUserID),
		zap.String("resolving_user", resolvingUserID),
	)
	return nil
}
