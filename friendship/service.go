package friendship

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
	// ErrInvalidTarget is returned for self-requests and for accept/decline
	// attempted by the side that sent the request.
	ErrInvalidTarget = errors.New("friendship: invalid target")
	// ErrAlreadyFriends is returned when the two users are already linked.
	ErrAlreadyFriends = errors.New("friendship: already friends")
	// ErrDuplicateRequest is returned when a request between the pair is
	// already pending, in either direction.
	ErrDuplicateRequest = errors.New("friendship: request already pending")
	// ErrRequestNotFound is returned when no pending request matches.
	// A second accept or decline of the same request reports this too.
	ErrRequestNotFound = errors.New("friendship: request not found")
)

// Service creates and resolves friend requests. Requests and friendships
// are recorded on both users' aggregates; every operation goes through the
// reconcile committer so the two copies never diverge observably.
type Service struct {
	committer *reconcile.Committer
	logger    *zap.Logger
}

// NewService creates a friendship Service.
func NewService(committer *reconcile.Committer, logger *zap.Logger) *Service {
	return &Service{committer: committer, logger: logger}
}

// SendRequest records a pending friend request from sender to receiver on
// both aggregates. The pair check is direction-agnostic: a pending request
// from the receiver back to the sender counts as a duplicate.
func (s *Service) SendRequest(ctx context.Context, senderID, receiverID string) (*model.User, *model.User, error) {
	if senderID == receiverID {
		return nil, nil, ErrInvalidTarget
	}

	req := model.FriendRequest{
		ID:        uuid.New().String(),
		Sender:    senderID,
		Receiver:  receiverID,
		CreatedAt: time.Now(),
	}

	sender, receiver, err := s.committer.UpdatePair(ctx, "friend_request", senderID, receiverID,
		func(sender, receiver *model.User) error {
			if sender.HasFriend(receiverID) || receiver.HasFriend(senderID) {
				return ErrAlreadyFriends
			}
			if receiver.PendingWith(senderID) != nil || sender.PendingWith(receiverID) != nil {
				return ErrDuplicateRequest
			}
			sender.PendingFriends = append(sender.PendingFriends, req)
			receiver.PendingFriends = append(receiver.PendingFriends, req)
			return nil
		})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("friend request sent",
		zap.String("request_id", req.ID),
		zap.String("sender", senderID),
		zap.String("receiver", receiverID),
	)
	return sender, receiver, nil
}

// Accept resolves the pending request sent by counterpartID to
// currentUserID: the request is removed from both aggregates and each user
// joins the other's friends set. Only the receiving side may accept; the
// sender accepting their own request is an invalid target, and a request
// already resolved reports ErrRequestNotFound.
func (s *Service) Accept(ctx context.Context, currentUserID, counterpartID string) (*model.User, *model.User, error) {
	return s.resolve(ctx, "friend_accept", currentUserID, counterpartID, true)
}

// Decline resolves the pending request by removing it from both aggregates
// without creating a friendship. Same side and idempotency rules as Accept.
func (s *Service) Decline(ctx context.Context, currentUserID, counterpartID string) (*model.User, *model.User, error) {
	return s.resolve(ctx, "friend_decline", currentUserID, counterpartID, false)
}

func (s *Service) resolve(ctx context.Context, op, currentUserID, counterpartID string, befriend bool) (*model.User, *model.User, error) {
	if currentUserID == counterpartID {
		return nil, nil, ErrInvalidTarget
	}

	current, counterpart, err := s.committer.UpdatePair(ctx, op, currentUserID, counterpartID,
		func(current, counterpart *model.User) error {
			req := current.PendingWith(counterpartID)
			if req == nil {
				return ErrRequestNotFound
			}
			if req.Receiver != currentUserID {
				return ErrInvalidTarget
			}
			id := req.ID
			current.RemovePending(id)
			counterpart.RemovePending(id)
			if befriend {
				current.AddFriend(counterpartID)
				counterpart.AddFriend(currentUserID)
			}
			return nil
		})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("friend request resolved",
		zap.String("op", op),
		zap.String("receiver", currentUserID),
		zap.String("sender", counterpartID),
	)
	return current, counterpart, nil
}
