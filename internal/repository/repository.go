package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Duinho/SignalWatch/internal/models"
)

// RunStore is the durable side of the dual-backed run history.
type RunStore interface {
	AppendRun(ctx context.Context, item *models.SchedulerRun) error
	ListRuns(ctx context.Context, params ListRunsParams) ([]models.SchedulerRun, error)
	CountRuns(ctx context.Context, params ListRunsParams) (int64, error)
	RunMetrics(ctx context.Context, since *time.Time) (RunMetrics, error)
	PruneRuns(ctx context.Context, before time.Time, maxRows int) (int64, error)
}

type AlertStore interface {
	AppendAlertSnapshots(ctx context.Context, items []models.AlertSnapshot) error
	ListAlerts(ctx context.Context, params ListAlertsParams) ([]models.AlertSnapshot, error)
	CountAlerts(ctx context.Context, params ListAlertsParams) (int64, error)
	AlertMetrics(ctx context.Context, since *time.Time) (AlertMetrics, error)
	PruneAlerts(ctx context.Context, before time.Time, maxRows int) (int64, error)
}

type FeedbackStore interface {
	// Votes. UpsertVote keys on (user_id_hash, article_link): a re-vote
	// replaces label, ai_label, confidence and weights in place.
	// ReweightUserVotes swaps the trust weight and re-derives
	// weighted_score (confidence * weight) for every vote of the user.
	UpsertVote(ctx context.Context, item *models.FeedbackVote) error
	ListVotes(ctx context.Context, params ListVotesParams) ([]models.FeedbackVote, error)
	StockVotesSince(ctx context.Context, stockCode string, since time.Time) ([]models.FeedbackVote, error)
	ArticleVotes(ctx context.Context, articleLink string) ([]models.FeedbackVote, error)
	ReweightUserVotes(ctx context.Context, userIDHash string, weight decimal.Decimal) (int64, error)

	// Trust overrides.
	GetTrustProfile(ctx context.Context, userIDHash string) (*models.TrustProfile, error)
	UpsertTrustProfile(ctx context.Context, item *models.TrustProfile) error
	DeleteTrustProfile(ctx context.Context, userIDHash string) error
	ListTrustProfiles(ctx context.Context) ([]models.TrustProfile, error)

	// Tiers.
	GetTesterTier(ctx context.Context, userIDHash string) (*models.TesterTier, error)
	UpsertTesterTier(ctx context.Context, item *models.TesterTier) error
	ListTesterTiers(ctx context.Context) ([]models.TesterTier, error)

	// Keyword rules.
	UpsertKeywordRule(ctx context.Context, item *models.KeywordRule) error
	SetKeywordRuleActive(ctx context.Context, keyword string, active bool) error
	ListKeywordRules(ctx context.Context, activeOnly bool) ([]models.KeywordRule, error)

	// Per-tester vote quality over a window, for tier auto-apply.
	TesterQualityRows(ctx context.Context, since time.Time, minVotes int) ([]TesterQualityRow, error)
}

// Repository is the unified store consumed by the scheduler and the
// feedback service.
type Repository interface {
	RunStore
	AlertStore
	FeedbackStore
}

type ListRunsParams struct {
	Limit   int
	Offset  int
	Policy  *string
	Status  *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListAlertsParams struct {
	Limit     int
	Offset    int
	RunID     *string
	StockCode *string
	Channel   *string
	MinScore  *int
	Since     *time.Time
	OrderBy   string
	Asc       *bool
}

type ListVotesParams struct {
	Limit      int
	Offset     int
	UserIDHash *string
	StockCode  *string
	Label      *string
	Since      *time.Time
	OrderBy    string
	Asc        *bool
}

type RunMetrics struct {
	TotalRuns     int64
	ByStatus      map[string]int64
	ByPolicy      map[string]int64
	AvgDurationMs float64
	AvgAlertCount float64
	LastRunAt     *time.Time
}

type AlertMetrics struct {
	TotalAlerts int64
	ByChannel   map[string]int64
	AvgScore    float64
	MaxScore    int
}

type TesterQualityRow struct {
	UserIDHash string
	Votes      int64
	Matches    int64
	MatchRate  float64
}
