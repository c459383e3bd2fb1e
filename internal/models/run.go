package models

import (
	"time"

	"gorm.io/datatypes"
)

// SchedulerRun is one monitoring cycle as recorded by the scheduler.
type SchedulerRun struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	RunID string `gorm:"type:varchar(36);not null;uniqueIndex"`

	Policy  string `gorm:"type:varchar(30);not null;index"`
	Status  string `gorm:"type:varchar(20);not null;index"`
	Trigger string `gorm:"type:varchar(20);not null"`

	MinScoreUsed  int `gorm:"not null"`
	AlertCount    int `gorm:"not null"`
	StocksScanned int `gorm:"not null"`
	ArticlesSeen  int `gorm:"not null"`
	StaleSources  int `gorm:"not null"`

	Adjustment datatypes.JSON `gorm:"type:jsonb"`
	Error      string         `gorm:"type:text"`

	StartedAt  time.Time  `gorm:"type:timestamptz;not null;index"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
	DurationMs int64      `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (SchedulerRun) TableName() string {
	return "scheduler_runs"
}
