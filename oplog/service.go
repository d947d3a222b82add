package oplog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/floradex-app/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry holds one operation outcome to be logged.
type Entry struct {
	TraceID    string
	ActorID    string
	Action     string
	Detail     interface{}
	Error      string
	DurationMs int
}

// Service logs operation entries asynchronously in batches. Partial
// failures bypass the batch and are written synchronously: they are the
// alert trail for real data corruption and must not sit in a buffer.
type Service struct {
	db     *gorm.DB
	ch     chan *model.OpLog
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a new oplog Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.OpLog, 1024),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an entry for async DB write.
func (svc *Service) Log(entry Entry) {
	detailJSON, _ := json.Marshal(entry.Detail)
	record := &model.OpLog{
		TraceID:    entry.TraceID,
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		Detail:     datatypes.JSON(detailJSON),
		Error:      entry.Error,
		DurationMs: entry.DurationMs,
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("oplog channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// PartialFailure writes a durable partial-failure record immediately.
// It implements reconcile.Alerter.
func (svc *Service) PartialFailure(ctx context.Context, op, committedID, failedID string, cause error) {
	detail, _ := json.Marshal(map[string]string{
		"op":           op,
		"committed_id": committedID,
		"failed_id":    failedID,
	})
	record := &model.OpLog{
		Action: "partial_failure",
		Detail: datatypes.JSON(detail),
		Error:  fmt.Sprintf("%v", cause),
	}
	if err := svc.db.WithContext(ctx).Create(record).Error; err != nil {
		// Last resort: the failure still reaches operators via the log.
		svc.logger.Error("failed to persist partial-failure record",
			zap.String("op", op),
			zap.String("committed_id", committedID),
			zap.String("failed_id", failedID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

// Stop flushes remaining entries and shuts down the worker.
// It blocks until the worker goroutine has finished.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	batch := make([]*model.OpLog, 0, 100)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("oplog batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
