package model

import (
	"time"

	"gorm.io/datatypes"
)

// UserDocument is the storage row for one User aggregate. The whole
// aggregate is serialized into Data; Version is the optimistic-concurrency
// stamp checked on every write.
type UserDocument struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Version   int64          `gorm:"not null;default:1" json:"version"`
	Data      datatypes.JSON `json:"data"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
