package reconcile

import (
	"context"
	"fmt"

	"github.com/floradex-app/server/model"
	"github.com/floradex-app/server/repository"
	"go.uber.org/zap"
)

// Violation is one detected breach of the cross-aggregate invariants.
type Violation struct {
	Kind    string `json:"kind"`
	UserID  string `json:"user_id"`
	OtherID string `json:"other_id"`
	Detail  string `json:"detail"`
}

const (
	ViolationSelfFriendship       = "self_friendship"
	ViolationDuplicateFriend      = "duplicate_friend"
	ViolationAsymmetricFriendship = "asymmetric_friendship"
	ViolationOrphanedRequest      = "orphaned_request"
	ViolationDuplicateRequest     = "duplicate_request"
)

// Sweeper scans every aggregate and reports friendship-symmetry and
// pending-request violations. It only detects; repair is an operator
// decision since any automated fix would have to pick a side.
type Sweeper struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(repo repository.UserRepository, logger *zap.Logger) *Sweeper {
	return &Sweeper{repo: repo, logger: logger}
}

// Sweep visits all aggregates and returns every violation found. Each
// violation is also logged at error level.
func (s *Sweeper) Sweep(ctx context.Context) ([]Violation, error) {
	users := make(map[string]*model.User)
	err := s.repo.Scan(ctx, func(u *model.User) error {
		users[u.ID] = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []Violation
	for _, u := range users {
		out = append(out, checkFriends(u, users)...)
		out = append(out, checkPending(u, users)...)
	}

	for _, v := range out {
		s.logger.Error("consistency violation",
			zap.String("kind", v.Kind),
			zap.String("user_id", v.UserID),
			zap.String("other_id", v.OtherID),
			zap.String("detail", v.Detail),
		)
	}
	return out, nil
}

func checkFriends(u *model.User, users map[string]*model.User) []Violation {
	var out []Violation
	seen := make(map[string]bool)
	for _, fid := range u.Friends {
		if fid == u.ID {
			out = append(out, Violation{
				Kind:   ViolationSelfFriendship,
				UserID: u.ID,
				Detail: "user appears in own friends set",
			})
			continue
		}
		if seen[fid] {
			out = append(out, Violation{
				Kind:    ViolationDuplicateFriend,
				UserID:  u.ID,
				OtherID: fid,
				Detail:  "friend listed more than once",
			})
			continue
		}
		seen[fid] = true

		other, ok := users[fid]
		if !ok || !other.HasFriend(u.ID) {
			out = append(out, Violation{
				Kind:    ViolationAsymmetricFriendship,
				UserID:  u.ID,
				OtherID: fid,
				Detail:  "friendship recorded on one side only",
			})
		}
	}
	return out
}

func checkPending(u *model.User, users map[string]*model.User) []Violation {
	var out []Violation
	pairSeen := make(map[string]bool)
	for _, req := range u.PendingFriends {
		other := req.Sender
		if other == u.ID {
			other = req.Receiver
		}

		key := pairKey(req.Sender, req.Receiver)
		if pairSeen[key] {
			out = append(out, Violation{
				Kind:    ViolationDuplicateRequest,
				UserID:  u.ID,
				OtherID: other,
				Detail:  fmt.Sprintf("more than one pending request for pair %s", key),
			})
			continue
		}
		pairSeen[key] = true

		counterpart, ok := users[other]
		if !ok {
			out = append(out, Violation{
				Kind:    ViolationOrphanedRequest,
				UserID:  u.ID,
				OtherID: other,
				Detail:  "pending request references a missing user",
			})
			continue
		}
		if counterpart.PendingWith(u.ID) == nil {
			out = append(out, Violation{
				Kind:    ViolationOrphanedRequest,
				UserID:  u.ID,
				OtherID: other,
				Detail:  "pending request recorded on one side only",
			})
		}
	}
	return out
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}
