package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/floradex-app/server/cache"
	"github.com/floradex-app/server/model"
	"github.com/floradex-app/server/repository"
	"go.uber.org/zap"
)

// ErrRetriesExhausted is returned when a commit keeps losing version races
// beyond the configured retry budget.
var ErrRetriesExhausted = errors.New("reconcile: retries exhausted")

// PartialFailureError reports the one genuinely dangerous outcome: the
// first of two writes committed, the second failed, and rolling the first
// back failed too. The two aggregates disagree until an operator intervenes.
// It is never produced for ordinary conflicts, which are retried.
type PartialFailureError struct {
	Op          string
	CommittedID string
	FailedID    string
	Cause       error
	RollbackErr error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("reconcile: partial failure in %s: committed %s, failed %s: %v (rollback: %v)",
		e.Op, e.CommittedID, e.FailedID, e.Cause, e.RollbackErr)
}

func (e *PartialFailureError) Unwrap() error { return e.Cause }

// Alerter receives partial-failure reports on a durable alerting path.
type Alerter interface {
	PartialFailure(ctx context.Context, op, committedID, failedID string, cause error)
}

// Options tunes the commit protocol.
type Options struct {
	// MaxRetries bounds how many times a commit restarts after a conflict.
	MaxRetries int
	// Backoff is the base delay before a retry; it doubles per attempt.
	Backoff time.Duration
	// LockTTL bounds how long a pair lock may be held.
	LockTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.Backoff <= 0 {
		o.Backoff = 20 * time.Millisecond
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Second
	}
	return o
}

// Committer applies engine mutations to one or two User aggregates with
// optimistic-concurrency retry. For two-aggregate operations it writes in
// deterministic lexicographic id order, guarded by a TTL-bounded pair lock,
// and rolls the first write back when the second one fails so that no
// half-applied state stays committed.
type Committer struct {
	repo    repository.UserRepository
	locks   cache.Cache // nil disables pair locking
	alerter Alerter     // nil disables the durable alert path
	opts    Options
	logger  *zap.Logger
}

// NewCommitter creates a Committer.
func NewCommitter(repo repository.UserRepository, locks cache.Cache, alerter Alerter, opts Options, logger *zap.Logger) *Committer {
	return &Committer{
		repo:    repo,
		locks:   locks,
		alerter: alerter,
		opts:    opts.withDefaults(),
		logger:  logger,
	}
}

// Update reads one aggregate, applies fn to a fresh copy, and writes it
// back, retrying on version conflicts. Errors returned by fn abort the
// operation without touching storage.
func (c *Committer) Update(ctx context.Context, op, id string, fn func(u *model.User) error) (*model.User, error) {
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		u, err := c.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(u); err != nil {
			return nil, err
		}
		err = c.repo.Put(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		if err := c.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
	c.logger.Warn("single-aggregate commit exhausted retries",
		zap.String("op", op), zap.String("user_id", id))
	return nil, ErrRetriesExhausted
}

// UpdatePair reads both aggregates, applies fn to fresh copies (a always
// corresponds to idA), and writes both back. Writes go out in lexicographic
// id order; a conflict on either write rewinds any committed half and
// restarts the whole operation from fresh reads.
func (c *Committer) UpdatePair(ctx context.Context, op, idA, idB string, fn func(a, b *model.User) error) (*model.User, *model.User, error) {
	if idA == idB {
		return nil, nil, fmt.Errorf("reconcile: %s: pair commit needs two distinct aggregates", op)
	}

	unlock, err := c.lockPair(ctx, idA, idB)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		a, err := c.repo.Get(ctx, idA)
		if err != nil {
			return nil, nil, err
		}
		b, err := c.repo.Get(ctx, idB)
		if err != nil {
			return nil, nil, err
		}

		// Keep the committed image of the first-ordered aggregate around
		// so a failed second write can be compensated.
		first, second := a, b
		if idB < idA {
			first, second = b, a
		}
		priorFirst := first.Clone()

		// Compute both new states locally before any write.
		if err := fn(a, b); err != nil {
			return nil, nil, err
		}

		retry, err := c.writePair(ctx, op, priorFirst, first, second)
		if err != nil {
			return nil, nil, err
		}
		if !retry {
			return a, b, nil
		}
		if err := c.backoff(ctx, attempt); err != nil {
			return nil, nil, err
		}
	}
	c.logger.Warn("pair commit exhausted retries",
		zap.String("op", op), zap.String("id_a", idA), zap.String("id_b", idB))
	return nil, nil, ErrRetriesExhausted
}

// writePair performs the ordered two-write sequence. It returns retry=true
// when the attempt lost a version race and left storage as it found it.
func (c *Committer) writePair(ctx context.Context, op string, priorFirst, first, second *model.User) (retry bool, err error) {
	if err := c.repo.Put(ctx, first); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return true, nil
		}
		return false, err
	}

	err = c.repo.Put(ctx, second)
	if err == nil {
		return false, nil
	}

	// The first write is committed; undo it before deciding anything else.
	// Put advanced first.Version to the committed stamp, so the rollback
	// write targets exactly the state this attempt produced.
	priorFirst.Version = first.Version
	if rbErr := c.repo.Put(ctx, priorFirst); rbErr != nil {
		pf := &PartialFailureError{
			Op:          op,
			CommittedID: first.ID,
			FailedID:    second.ID,
			Cause:       err,
			RollbackErr: rbErr,
		}
		c.logger.Error("PARTIAL FAILURE: two-write commit left aggregates inconsistent",
			zap.String("op", op),
			zap.String("committed_id", first.ID),
			zap.String("failed_id", second.ID),
			zap.NamedError("cause", err),
			zap.NamedError("rollback_error", rbErr),
		)
		if c.alerter != nil {
			c.alerter.PartialFailure(ctx, op, first.ID, second.ID, err)
		}
		return false, pf
	}

	if errors.Is(err, repository.ErrConflict) {
		return true, nil
	}
	return false, err
}

func (c *Committer) lockPair(ctx context.Context, idA, idB string) (func(), error) {
	if c.locks == nil {
		return func() {}, nil
	}
	lo, hi := idA, idB
	if hi < lo {
		lo, hi = hi, lo
	}
	key := "lock:pair:" + lo + "_" + hi

	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		ok, err := c.locks.SetNX(ctx, key, "1", c.opts.LockTTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = c.locks.Del(dctx, key)
			}, nil
		}
		if err := c.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return nil, ErrRetriesExhausted
}

func (c *Committer) backoff(ctx context.Context, attempt int) error {
	delay := c.opts.Backoff << uint(attempt)
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
