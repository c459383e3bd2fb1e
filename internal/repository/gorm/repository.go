package gormrepository

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Duinho/SignalWatch/internal/models"
	"github.com/Duinho/SignalWatch/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- runs --------------------------------------------------------------------

func (s *Store) AppendRun(ctx context.Context, item *models.SchedulerRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.RunID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListRuns(ctx context.Context, params repository.ListRunsParams) ([]models.SchedulerRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.runsQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "started_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.SchedulerRun
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountRuns(ctx context.Context, params repository.ListRunsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	if err := s.runsQuery(ctx, params).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) runsQuery(ctx context.Context, params repository.ListRunsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.SchedulerRun{})
	if params.Policy != nil && strings.TrimSpace(*params.Policy) != "" {
		query = query.Where("policy = ?", strings.TrimSpace(*params.Policy))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("started_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) RunMetrics(ctx context.Context, since *time.Time) (repository.RunMetrics, error) {
	metrics := repository.RunMetrics{
		ByStatus: map[string]int64{},
		ByPolicy: map[string]int64{},
	}
	if s == nil || s.db == nil {
		return metrics, nil
	}

	base := s.db.WithContext(ctx).Model(&models.SchedulerRun{})
	if since != nil && !since.IsZero() {
		base = base.Where("started_at >= ?", *since)
	}

	var totals struct {
		TotalRuns     int64
		AvgDurationMs float64
		AvgAlertCount float64
		LastRunAt     *time.Time
	}
	if err := base.Session(&gorm.Session{}).
		Select(`
			COUNT(*) AS total_runs,
			COALESCE(AVG(duration_ms),0) AS avg_duration_ms,
			COALESCE(AVG(alert_count),0) AS avg_alert_count,
			MAX(started_at) AS last_run_at
		`).
		Scan(&totals).Error; err != nil {
		return metrics, err
	}
	metrics.TotalRuns = totals.TotalRuns
	metrics.AvgDurationMs = totals.AvgDurationMs
	metrics.AvgAlertCount = totals.AvgAlertCount
	metrics.LastRunAt = totals.LastRunAt

	type groupRow struct {
		Key   string
		Count int64
	}
	var statusRows []groupRow
	if err := base.Session(&gorm.Session{}).
		Select("status AS key, COUNT(*) AS count").
		Group("status").
		Scan(&statusRows).Error; err != nil {
		return metrics, err
	}
	for _, row := range statusRows {
		metrics.ByStatus[row.Key] = row.Count
	}
	var policyRows []groupRow
	if err := base.Session(&gorm.Session{}).
		Select("policy AS key, COUNT(*) AS count").
		Group("policy").
		Scan(&policyRows).Error; err != nil {
		return metrics, err
	}
	for _, row := range policyRows {
		metrics.ByPolicy[row.Key] = row.Count
	}
	return metrics, nil
}

func (s *Store) PruneRuns(ctx context.Context, before time.Time, maxRows int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var removed int64
	if !before.IsZero() {
		res := s.db.WithContext(ctx).
			Where("started_at < ?", before).
			Delete(&models.SchedulerRun{})
		if res.Error != nil {
			return removed, res.Error
		}
		removed += res.RowsAffected
	}
	if maxRows > 0 {
		res := s.db.WithContext(ctx).
			Where("id NOT IN (?)", s.db.
				Model(&models.SchedulerRun{}).
				Select("id").
				Order("started_at desc").
				Limit(maxRows)).
			Delete(&models.SchedulerRun{})
		if res.Error != nil {
			return removed, res.Error
		}
		removed += res.RowsAffected
	}
	return removed, nil
}

// --- alerts ------------------------------------------------------------------

func (s *Store) AppendAlertSnapshots(ctx context.Context, items []models.AlertSnapshot) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return createInBatches(s.db.WithContext(ctx), items, 100)
}

func (s *Store) ListAlerts(ctx context.Context, params repository.ListAlertsParams) ([]models.AlertSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.alertsQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.AlertSnapshot
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAlerts(ctx context.Context, params repository.ListAlertsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	if err := s.alertsQuery(ctx, params).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) alertsQuery(ctx context.Context, params repository.ListAlertsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.AlertSnapshot{})
	if params.RunID != nil && strings.TrimSpace(*params.RunID) != "" {
		query = query.Where("run_id = ?", strings.TrimSpace(*params.RunID))
	}
	if params.StockCode != nil && strings.TrimSpace(*params.StockCode) != "" {
		query = query.Where("stock_code = ?", strings.TrimSpace(*params.StockCode))
	}
	if params.Channel != nil && strings.TrimSpace(*params.Channel) != "" {
		query = query.Where("channel = ?", strings.TrimSpace(*params.Channel))
	}
	if params.MinScore != nil {
		query = query.Where("score >= ?", *params.MinScore)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) AlertMetrics(ctx context.Context, since *time.Time) (repository.AlertMetrics, error) {
	metrics := repository.AlertMetrics{ByChannel: map[string]int64{}}
	if s == nil || s.db == nil {
		return metrics, nil
	}

	base := s.db.WithContext(ctx).Model(&models.AlertSnapshot{})
	if since != nil && !since.IsZero() {
		base = base.Where("created_at >= ?", *since)
	}

	var totals struct {
		TotalAlerts int64
		AvgScore    float64
		MaxScore    int
	}
	if err := base.Session(&gorm.Session{}).
		Select("COUNT(*) AS total_alerts, COALESCE(AVG(score),0) AS avg_score, COALESCE(MAX(score),0) AS max_score").
		Scan(&totals).Error; err != nil {
		return metrics, err
	}
	metrics.TotalAlerts = totals.TotalAlerts
	metrics.AvgScore = totals.AvgScore
	metrics.MaxScore = totals.MaxScore

	type channelRow struct {
		Channel string
		Count   int64
	}
	var rows []channelRow
	if err := base.Session(&gorm.Session{}).
		Select("channel, COUNT(*) AS count").
		Group("channel").
		Scan(&rows).Error; err != nil {
		return metrics, err
	}
	for _, row := range rows {
		metrics.ByChannel[row.Channel] = row.Count
	}
	return metrics, nil
}

func (s *Store) PruneAlerts(ctx context.Context, before time.Time, maxRows int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var removed int64
	if !before.IsZero() {
		res := s.db.WithContext(ctx).
			Where("created_at < ?", before).
			Delete(&models.AlertSnapshot{})
		if res.Error != nil {
			return removed, res.Error
		}
		removed += res.RowsAffected
	}
	if maxRows > 0 {
		res := s.db.WithContext(ctx).
			Where("id NOT IN (?)", s.db.
				Model(&models.AlertSnapshot{}).
				Select("id").
				Order("created_at desc").
				Limit(maxRows)).
			Delete(&models.AlertSnapshot{})
		if res.Error != nil {
			return removed, res.Error
		}
		removed += res.RowsAffected
	}
	return removed, nil
}

// --- feedback votes ----------------------------------------------------------

func (s *Store) UpsertVote(ctx context.Context, item *models.FeedbackVote) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.UserIDHash) == "" || strings.TrimSpace(item.ArticleLink) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id_hash"}, {Name: "article_link"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stock_code",
			"label",
			"ai_label",
			"confidence",
			"weight",
			"weighted_score",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListVotes(ctx context.Context, params repository.ListVotesParams) ([]models.FeedbackVote, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.FeedbackVote{})
	if params.UserIDHash != nil && strings.TrimSpace(*params.UserIDHash) != "" {
		query = query.Where("user_id_hash = ?", strings.TrimSpace(*params.UserIDHash))
	}
	if params.StockCode != nil && strings.TrimSpace(*params.StockCode) != "" {
		query = query.Where("stock_code = ?", strings.TrimSpace(*params.StockCode))
	}
	if params.Label != nil && strings.TrimSpace(*params.Label) != "" {
		query = query.Where("label = ?", strings.TrimSpace(*params.Label))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("updated_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "updated_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.FeedbackVote
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) StockVotesSince(ctx context.Context, stockCode string, since time.Time) ([]models.FeedbackVote, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	stockCode = strings.TrimSpace(stockCode)
	if stockCode == "" {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.FeedbackVote{}).
		Where("stock_code = ?", stockCode)
	if !since.IsZero() {
		query = query.Where("updated_at >= ?", since)
	}
	var items []models.FeedbackVote
	if err := query.Order("updated_at desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ArticleVotes(ctx context.Context, articleLink string) ([]models.FeedbackVote, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	articleLink = strings.TrimSpace(articleLink)
	if articleLink == "" {
		return nil, nil
	}
	var items []models.FeedbackVote
	if err := s.db.WithContext(ctx).
		Model(&models.FeedbackVote{}).
		Where("article_link = ?", articleLink).
		Order("updated_at desc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ReweightUserVotes(ctx context.Context, userIDHash string, weight decimal.Decimal) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	userIDHash = strings.TrimSpace(userIDHash)
	if userIDHash == "" {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.FeedbackVote{}).
		Where("user_id_hash = ?", userIDHash).
		Updates(map[string]any{
			"weight":         weight,
			"weighted_score": gorm.Expr("confidence * ?", weight),
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// --- trust overrides ---------------------------------------------------------

func (s *Store) GetTrustProfile(ctx context.Context, userIDHash string) (*models.TrustProfile, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	userIDHash = strings.TrimSpace(userIDHash)
	if userIDHash == "" {
		return nil, nil
	}
	var item models.TrustProfile
	err := s.db.WithContext(ctx).
		Model(&models.TrustProfile{}).
		Where("user_id_hash = ?", userIDHash).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertTrustProfile(ctx context.Context, item *models.TrustProfile) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.UserIDHash) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"weight",
			"reason",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) DeleteTrustProfile(ctx context.Context, userIDHash string) error {
	if s == nil || s.db == nil {
		return nil
	}
	userIDHash = strings.TrimSpace(userIDHash)
	if userIDHash == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id_hash = ?", userIDHash).
		Delete(&models.TrustProfile{}).
		Error
}

func (s *Store) ListTrustProfiles(ctx context.Context) ([]models.TrustProfile, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TrustProfile
	if err := s.db.WithContext(ctx).
		Model(&models.TrustProfile{}).
		Order("user_id_hash asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- tiers -------------------------------------------------------------------

func (s *Store) GetTesterTier(ctx context.Context, userIDHash string) (*models.TesterTier, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	userIDHash = strings.TrimSpace(userIDHash)
	if userIDHash == "" {
		return nil, nil
	}
	var item models.TesterTier
	err := s.db.WithContext(ctx).
		Model(&models.TesterTier{}).
		Where("user_id_hash = ?", userIDHash).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertTesterTier(ctx context.Context, item *models.TesterTier) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.UserIDHash) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tier",
			"assigned_by",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListTesterTiers(ctx context.Context) ([]models.TesterTier, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TesterTier
	if err := s.db.WithContext(ctx).
		Model(&models.TesterTier{}).
		Order("user_id_hash asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- keyword rules -----------------------------------------------------------

func (s *Store) UpsertKeywordRule(ctx context.Context, item *models.KeywordRule) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Keyword) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "keyword"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"polarity",
			"weight",
			"active",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) SetKeywordRuleActive(ctx context.Context, keyword string, active bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.KeywordRule{}).
		Where("keyword = ?", keyword).
		Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()}).
		Error
}

func (s *Store) ListKeywordRules(ctx context.Context, activeOnly bool) ([]models.KeywordRule, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.KeywordRule{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var items []models.KeywordRule
	if err := query.Order("keyword asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- tester quality ----------------------------------------------------------

func (s *Store) TesterQualityRows(ctx context.Context, since time.Time, minVotes int) ([]repository.TesterQualityRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if minVotes <= 0 {
		minVotes = 1
	}
	query := s.db.WithContext(ctx).
		Model(&models.FeedbackVote{}).
		Select(`
			user_id_hash,
			COUNT(*) AS votes,
			SUM(CASE WHEN label = ai_label THEN 1 ELSE 0 END) AS matches,
			AVG(CASE WHEN label = ai_label THEN 1.0 ELSE 0.0 END) AS match_rate
		`).
		Group("user_id_hash").
		Having("COUNT(*) >= ?", minVotes)
	if !since.IsZero() {
		query = query.Where("updated_at >= ?", since)
	}
	var rows []repository.TesterQualityRow
	if err := query.Order("user_id_hash asc").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
