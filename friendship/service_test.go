package friendship

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/floradex-app/server/cache/local"
	"github.com/floradex-app/server/model"
	"github.com/floradex-app/server/reconcile"
	"github.com/floradex-app/server/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func newService(t *testing.T) (*Service, *repository.MemoryUserRepository) {
	t.Helper()
	repo := repository.NewMemoryUserRepository()
	locks, err := local.NewCache(local.Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(locks.Close)
	committer := reconcile.NewCommitter(repo, locks, nil,
		reconcile.Options{MaxRetries: 5, Backoff: time.Millisecond}, nop())
	return NewService(committer, nop()), repo
}

func seedUsers(t *testing.T, repo *repository.MemoryUserRepository, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, repo.Create(context.Background(), &model.User{ID: id, Username: "user-" + id}))
	}
}

func TestSendRequest_StoredOnBothSides(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	sender, receiver, err := svc.SendRequest(context.Background(), "a", "b")
	require.NoError(t, err)
	require.Len(t, sender.PendingFriends, 1)
	require.Len(t, receiver.PendingFriends, 1)
	assert.Equal(t, sender.PendingFriends[0].ID, receiver.PendingFriends[0].ID)
	assert.Equal(t, "a", sender.PendingFriends[0].Sender)
	assert.Equal(t, "b", sender.PendingFriends[0].Receiver)

	storedB, _ := repo.Get(context.Background(), "b")
	require.NotNil(t, storedB.PendingWith("a"))
}

func TestSendRequest_SelfTarget(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a")

	_, _, err := svc.SendRequest(context.Background(), "a", "a")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestSendRequest_UnknownReceiver(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a")

	_, _, err := svc.SendRequest(context.Background(), "a", "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSendRequest_DuplicateSameDirection(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	_, _, err := svc.SendRequest(context.Background(), "a", "b")
	require.NoError(t, err)
	_, _, err = svc.SendRequest(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestSendRequest_DuplicateOppositeDirection(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	// A prior request in the opposite direction is the same unordered pair.
	_, _, err := svc.SendRequest(context.Background(), "a", "b")
	require.NoError(t, err)
	_, _, err = svc.SendRequest(context.Background(), "b", "a")
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestSendRequest_AlreadyFriends(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	_, _, err := svc.SendRequest(context.Background(), "a", "b")
	require.NoError(t, err)
	_, _, err = svc.Accept(context.Background(), "b", "a")
	require.NoError(t, err)

	_, _, err = svc.SendRequest(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrAlreadyFriends)
}

func TestAccept_CreatesSymmetricFriendship(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	_, _, err := svc.SendRequest(context.Background(), "a", "b")
	require.NoError(t, err)

	receiver, sender, err := svc.Accept(context.Background(), "b", "a")
	require.NoError(t, err)
	assert.True(t, receiver.HasFriend("a"))
	assert.True(t, sender.HasFriend("b"))
	assert.Empty(t, receiver.PendingFriends)
	assert.Empty(t, sender.PendingFriends)

	storedA, _ := repo.Get(context.Background(), "a")
	storedB, _ := repo.Get(context.Background(), "b")
	assert.True(t, storedA.HasFriend("b"))
	assert.True(t, storedB.HasFriend("a"))
}

func TestAccept_SecondAcceptReportsNotFound(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	_, _, err := svc.SendRequest(context.Background(), "a", "b")
	require.NoError(t, err)
	_, _, err = svc.Accept(context.Background(), "b", "a")
	require.NoError(t, err)

	// Double accept must not re-add a duplicate friendship.
	_, _, err = svc.Accept(context.Background(), "b", "a")
	assert.ErrorIs(t, err, ErrRequestNotFound)

	storedB, _ := repo.Get(context.Background(), "b")
	assert.Equal(t, []string{"a"}, storedB.Friends)
}

func TestAccept_SenderCannotAcceptOwnRequest(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	_, _, err := svc.SendRequest(context.Background(), "a", "b")
	require.NoError(t, err)

	_, _, err = svc.Accept(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	// The request stays pending for the real receiver.
	storedB, _ := repo.Get(context.Background(), "b")
	require.NotNil(t, storedB.PendingWith("a"))
}

func TestAccept_NoRequest(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	_, _, err := svc.Accept(context.Background(), "b", "a")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestDecline_RemovesRequestWithoutFriendship(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	_, _, err := svc.SendRequest(context.Background(), "a", "b")
	require.NoError(t, err)

	receiver, sender, err := svc.Decline(context.Background(), "b", "a")
	require.NoError(t, err)
	assert.Empty(t, receiver.Friends)
	assert.Empty(t, sender.Friends)
	assert.Empty(t, receiver.PendingFriends)
	assert.Empty(t, sender.PendingFriends)

	_, _, err = svc.Decline(context.Background(), "b", "a")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestAcceptDeclineRace_ExactlyOneWins(t *testing.T) {
	svc, repo := newService(t)
	seedUsers(t, repo, "a", "b")

	_, _, err := svc.SendRequest(context.Background(), "a", "b")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _, results[0] = svc.Accept(context.Background(), "b", "a")
	}()
	go func() {
		defer wg.Done()
		_, _, results[1] = svc.Decline(context.Background(), "b", "a")
	}()
	wg.Wait()

	var wins, notFound int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrRequestNotFound):
			notFound++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, notFound)

	// Whatever won, the two aggregates agree and no request remains.
	storedA, _ := repo.Get(context.Background(), "a")
	storedB, _ := repo.Get(context.Background(), "b")
	assert.Equal(t, storedA.HasFriend("b"), storedB.HasFriend("a"))
	assert.Empty(t, storedA.PendingFriends)
	assert.Empty(t, storedB.PendingFriends)
}
