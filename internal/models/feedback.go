package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeedbackVote is one tester vote on an alerted article. A re-vote by the
// same user on the same article updates the row in place.
type FeedbackVote struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	UserIDHash  string `gorm:"type:varchar(64);not null;uniqueIndex:idx_vote_user_article,priority:1"`
	ArticleLink string `gorm:"type:varchar(500);not null;uniqueIndex:idx_vote_user_article,priority:2"`
	StockCode   string `gorm:"type:varchar(20);not null;index"`

	Label   string `gorm:"type:varchar(10);not null"`
	AILabel string `gorm:"type:varchar(10);not null"`

	// Confidence is the tester's self-reported strength, clamped to 1..5.
	// WeightedScore = Confidence * Weight is what consensus sums; it is
	// re-derived whenever the effective trust weight changes.
	Confidence    int             `gorm:"not null;default:3"`
	Weight        decimal.Decimal `gorm:"type:numeric(6,3);not null"`
	WeightedScore decimal.Decimal `gorm:"type:numeric(8,3);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (FeedbackVote) TableName() string {
	return "feedback_votes"
}

// TrustProfile is a manual trust-weight override for one tester.
type TrustProfile struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement"`
	UserIDHash string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	Weight     decimal.Decimal `gorm:"type:numeric(6,3);not null"`
	Reason     string          `gorm:"type:varchar(200)"`
	UpdatedAt  time.Time       `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TrustProfile) TableName() string {
	return "trust_profiles"
}

// TesterTier assigns a tester to a weight tier (core/general/observer).
type TesterTier struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	UserIDHash string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	Tier       string    `gorm:"type:varchar(20);not null"`
	AssignedBy string    `gorm:"type:varchar(20);not null"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TesterTier) TableName() string {
	return "tester_tiers"
}

// KeywordRule is a feedback-derived sentiment keyword adjustment.
type KeywordRule struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	Keyword  string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Polarity string `gorm:"type:varchar(10);not null"`
	Weight   int    `gorm:"not null"`
	Active   bool   `gorm:"not null;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (KeywordRule) TableName() string {
	return "keyword_rules"
}
