package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlertSnapshot is one scored stock alert emitted by a monitoring run.
type AlertSnapshot struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	RunID string `gorm:"type:varchar(36);not null;index"`

	StockCode string `gorm:"type:varchar(20);not null;index"`
	StockName string `gorm:"type:varchar(100);not null"`

	Score     int    `gorm:"not null;index"`
	Priority  string `gorm:"type:varchar(10);not null"`
	Channel   string `gorm:"type:varchar(20);not null;index"`
	Sentiment string `gorm:"type:varchar(10);not null"`

	ArticleCount int `gorm:"not null"`
	UniqueTopics int `gorm:"not null"`
	SourceCount  int `gorm:"not null"`

	Reasons datatypes.JSON `gorm:"type:jsonb"`
	Preview datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (AlertSnapshot) TableName() string {
	return "alert_snapshots"
}
