package model

import (
	"time"

	"gorm.io/datatypes"
)

// OpLog records the outcome of one engine operation. Partial-failure
// records (action "partial_failure") are the durable alert trail for the
// one case where the two-write protocol can leave committed inconsistency.
type OpLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_oplog_trace;size:36;not null" json:"trace_id"`
	ActorID    string         `gorm:"index:idx_oplog_actor;size:36" json:"actor_id"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Detail     datatypes.JSON `json:"detail"`
	Error      string         `gorm:"type:text" json:"error"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_oplog_created;autoCreateTime:milli" json:"created_at"`
}
