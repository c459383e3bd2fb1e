package feedback

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Duinho/SignalWatch/internal/config"
	"github.com/Duinho/SignalWatch/internal/models"
	"github.com/Duinho/SignalWatch/internal/repository"
	"github.com/Duinho/SignalWatch/internal/scoring"
)

var (
	ErrInvalidVote   = errors.New("invalid vote")
	ErrInvalidTier   = errors.New("invalid tier")
	ErrInvalidWeight = errors.New("invalid trust weight")
)

var validLabels = map[string]struct{}{
	scoring.LabelPositive: {},
	scoring.LabelNegative: {},
	scoring.LabelNeutral:  {},
}

var validTiers = map[string]struct{}{
	TierCore:     {},
	TierGeneral:  {},
	TierObserver: {},
}

// Service manages votes, trust overrides, tiers and keyword rules. Weight
// changes re-weight the tester's existing votes so the consensus reflects
// the new trust immediately.
type Service struct {
	cfg        config.FeedbackConfig
	store      repository.FeedbackStore
	trust      *TrustResolver
	classifier *scoring.SentimentClassifier
	logger     *zap.Logger
}

func NewService(cfg config.FeedbackConfig, store repository.FeedbackStore, trust *TrustResolver, classifier *scoring.SentimentClassifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		store:      store,
		trust:      trust,
		classifier: classifier,
		logger:     logger.Named("feedback"),
	}
}

type VoteInput struct {
	UserIDHash  string `json:"user_id_hash"`
	ArticleLink string `json:"article_link"`
	StockCode   string `json:"stock_code"`
	Label       string `json:"label"`
	AILabel     string `json:"ai_label"`
	Confidence  int    `json:"confidence"`
}

const defaultConfidence = 3

// clampConfidence bounds a vote's confidence to 1..5; an omitted value
// defaults to 3.
func clampConfidence(confidence int) int {
	if confidence == 0 {
		return defaultConfidence
	}
	if confidence < 1 {
		return 1
	}
	if confidence > 5 {
		return 5
	}
	return confidence
}

func (s *Service) SubmitVote(ctx context.Context, input VoteInput) (*models.FeedbackVote, error) {
	input.UserIDHash = strings.TrimSpace(input.UserIDHash)
	input.ArticleLink = strings.TrimSpace(input.ArticleLink)
	input.StockCode = strings.TrimSpace(input.StockCode)
	if input.UserIDHash == "" || input.ArticleLink == "" || input.StockCode == "" {
		return nil, ErrInvalidVote
	}
	if _, ok := validLabels[input.Label]; !ok {
		return nil, ErrInvalidVote
	}
	if _, ok := validLabels[input.AILabel]; !ok {
		input.AILabel = scoring.LabelNeutral
	}

	weight, source, err := s.trust.Resolve(ctx, input.UserIDHash)
	if err != nil {
		return nil, err
	}
	confidence := clampConfidence(input.Confidence)
	vote := &models.FeedbackVote{
		UserIDHash:    input.UserIDHash,
		ArticleLink:   input.ArticleLink,
		StockCode:     input.StockCode,
		Label:         input.Label,
		AILabel:       input.AILabel,
		Confidence:    confidence,
		Weight:        weight,
		WeightedScore: weight.Mul(decimal.NewFromInt(int64(confidence))),
	}
	if err := s.store.UpsertVote(ctx, vote); err != nil {
		return nil, err
	}
	s.logger.Debug("vote recorded",
		zap.String("stock_code", input.StockCode),
		zap.String("label", input.Label),
		zap.String("trust_source", source))
	return vote, nil
}

func (s *Service) ListVotes(ctx context.Context, params repository.ListVotesParams) ([]models.FeedbackVote, error) {
	return s.store.ListVotes(ctx, params)
}

// --- trust overrides ---------------------------------------------------------

func (s *Service) SetTrustOverride(ctx context.Context, userIDHash string, weight float64, reason string) error {
	userIDHash = strings.TrimSpace(userIDHash)
	if userIDHash == "" || weight <= 0 || weight > 10 {
		return ErrInvalidWeight
	}
	value := decimal.NewFromFloat(weight)
	if err := s.store.UpsertTrustProfile(ctx, &models.TrustProfile{
		UserIDHash: userIDHash,
		Weight:     value,
		Reason:     strings.TrimSpace(reason),
	}); err != nil {
		return err
	}
	return s.reweight(ctx, userIDHash, value)
}

func (s *Service) ClearTrustOverride(ctx context.Context, userIDHash string) error {
	userIDHash = strings.TrimSpace(userIDHash)
	if userIDHash == "" {
		return ErrInvalidWeight
	}
	if err := s.store.DeleteTrustProfile(ctx, userIDHash); err != nil {
		return err
	}
	weight, _, err := s.trust.Resolve(ctx, userIDHash)
	if err != nil {
		return err
	}
	return s.reweight(ctx, userIDHash, weight)
}

func (s *Service) GetTrust(ctx context.Context, userIDHash string) (weight float64, source string, err error) {
	value, src, err := s.trust.Resolve(ctx, userIDHash)
	if err != nil {
		return 0, "", err
	}
	out, _ := value.Float64()
	return out, src, nil
}

func (s *Service) ListTrustProfiles(ctx context.Context) ([]models.TrustProfile, error) {
	return s.store.ListTrustProfiles(ctx)
}

// --- tiers -------------------------------------------------------------------

func (s *Service) SetTier(ctx context.Context, userIDHash, tier, assignedBy string) error {
	userIDHash = strings.TrimSpace(userIDHash)
	tier = strings.TrimSpace(strings.ToLower(tier))
	if userIDHash == "" {
		return ErrInvalidTier
	}
	if _, ok := validTiers[tier]; !ok {
		return ErrInvalidTier
	}
	if assignedBy == "" {
		assignedBy = "manual"
	}
	if err := s.store.UpsertTesterTier(ctx, &models.TesterTier{
		UserIDHash: userIDHash,
		Tier:       tier,
		AssignedBy: assignedBy,
	}); err != nil {
		return err
	}

	// A manual override outranks the tier; only reweight when none is set.
	profile, err := s.store.GetTrustProfile(ctx, userIDHash)
	if err != nil {
		return err
	}
	if profile == nil {
		if weight, ok := s.cfg.TierWeights[tier]; ok {
			return s.reweight(ctx, userIDHash, decimal.NewFromFloat(weight))
		}
	}
	return nil
}

func (s *Service) GetTier(ctx context.Context, userIDHash string) (*models.TesterTier, error) {
	return s.store.GetTesterTier(ctx, userIDHash)
}

func (s *Service) ListTiers(ctx context.Context) ([]models.TesterTier, error) {
	return s.store.ListTesterTiers(ctx)
}

// TierChange is one proposed (or applied) tier move from auto-apply.
type TierChange struct {
	UserIDHash string  `json:"user_id_hash"`
	Votes      int64   `json:"votes"`
	MatchRate  float64 `json:"match_rate"`
	FromTier   string  `json:"from_tier"`
	ToTier     string  `json:"to_tier"`
	Applied    bool    `json:"applied"`
}

// AutoApplyTiers proposes tier moves from recent vote quality; dryRun only
// reports them.
func (s *Service) AutoApplyTiers(ctx context.Context, dryRun bool) ([]TierChange, error) {
	lookback := time.Duration(s.cfg.LookbackHours) * time.Hour
	since := time.Now().UTC().Add(-lookback)
	rows, err := s.store.TesterQualityRows(ctx, since, s.cfg.MinVotes)
	if err != nil {
		return nil, err
	}

	changes := []TierChange{}
	for _, row := range rows {
		proposed := tierForMatchRate(row.MatchRate)
		current := TierGeneral
		tier, err := s.store.GetTesterTier(ctx, row.UserIDHash)
		if err != nil {
			return nil, err
		}
		if tier != nil {
			current = tier.Tier
		}
		if proposed == current {
			continue
		}
		change := TierChange{
			UserIDHash: row.UserIDHash,
			Votes:      row.Votes,
			MatchRate:  row.MatchRate,
			FromTier:   current,
			ToTier:     proposed,
		}
		if !dryRun {
			if err := s.SetTier(ctx, row.UserIDHash, proposed, "auto"); err != nil {
				return nil, err
			}
			change.Applied = true
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func tierForMatchRate(rate float64) string {
	switch {
	case rate >= 0.8:
		return TierCore
	case rate >= 0.5:
		return TierGeneral
	default:
		return TierObserver
	}
}

// --- keyword rules -----------------------------------------------------------

func (s *Service) ApplyKeywordRule(ctx context.Context, keyword, polarity string, weight int) error {
	keyword = strings.TrimSpace(strings.ToLower(keyword))
	if keyword == "" {
		return ErrInvalidVote
	}
	if polarity != scoring.LabelPositive && polarity != scoring.LabelNegative {
		return ErrInvalidVote
	}
	if weight <= 0 {
		weight = s.cfg.RuleBoost
	}
	if err := s.store.UpsertKeywordRule(ctx, &models.KeywordRule{
		Keyword:  keyword,
		Polarity: polarity,
		Weight:   weight,
		Active:   true,
	}); err != nil {
		return err
	}
	return s.RefreshRules(ctx)
}

func (s *Service) DisableKeywordRule(ctx context.Context, keyword string) error {
	keyword = strings.TrimSpace(strings.ToLower(keyword))
	if keyword == "" {
		return ErrInvalidVote
	}
	if err := s.store.SetKeywordRuleActive(ctx, keyword, false); err != nil {
		return err
	}
	return s.RefreshRules(ctx)
}

func (s *Service) ListKeywordRules(ctx context.Context, activeOnly bool) ([]models.KeywordRule, error) {
	return s.store.ListKeywordRules(ctx, activeOnly)
}

// RefreshRules pushes the active rule set into the sentiment classifier.
func (s *Service) RefreshRules(ctx context.Context) error {
	if s.classifier == nil {
		return nil
	}
	rules, err := s.store.ListKeywordRules(ctx, true)
	if err != nil {
		return err
	}
	applied := make([]scoring.KeywordRule, 0, len(rules))
	for _, rule := range rules {
		applied = append(applied, scoring.KeywordRule{
			Keyword:  rule.Keyword,
			Polarity: rule.Polarity,
			Weight:   rule.Weight,
		})
	}
	s.classifier.SetRules(applied)
	return nil
}

func (s *Service) TesterQuality(ctx context.Context) ([]repository.TesterQualityRow, error) {
	lookback := time.Duration(s.cfg.LookbackHours) * time.Hour
	since := time.Now().UTC().Add(-lookback)
	return s.store.TesterQualityRows(ctx, since, 1)
}

func (s *Service) reweight(ctx context.Context, userIDHash string, weight decimal.Decimal) error {
	updated, err := s.store.ReweightUserVotes(ctx, userIDHash, weight)
	if err != nil {
		return err
	}
	if updated > 0 {
		s.logger.Info("votes reweighted",
			zap.String("user_id_hash", userIDHash),
			zap.Int64("votes", updated))
	}
	return nil
}
