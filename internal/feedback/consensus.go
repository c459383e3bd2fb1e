package feedback

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Duinho/SignalWatch/internal/config"
	"github.com/Duinho/SignalWatch/internal/repository"
	"github.com/Duinho/SignalWatch/internal/scoring"
)

// Consensus aggregates tester votes into the per-stock signal the scoring
// engine consumes. Each vote counts as confidence * effective trust weight;
// the signal is only Ready once the vote count clears the configured
// minimum.
type Consensus struct {
	cfg    config.FeedbackConfig
	store  repository.FeedbackStore
	logger *zap.Logger
}

func NewConsensus(cfg config.FeedbackConfig, store repository.FeedbackStore, logger *zap.Logger) *Consensus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consensus{cfg: cfg, store: store, logger: logger.Named("consensus")}
}

func (c *Consensus) StockSignal(ctx context.Context, stockCode string) (scoring.ConsensusSignal, error) {
	lookback := time.Duration(c.cfg.LookbackHours) * time.Hour
	since := time.Now().UTC().Add(-lookback)
	votes, err := c.store.StockVotesSince(ctx, stockCode, since)
	if err != nil {
		return scoring.ConsensusSignal{}, err
	}

	signal := scoring.ConsensusSignal{TotalVotes: len(votes)}
	if len(votes) == 0 {
		return signal, nil
	}

	users := map[string]struct{}{}
	weights := map[string]decimal.Decimal{}
	totalWeight := decimal.Zero
	matches := 0
	for _, vote := range votes {
		users[vote.UserIDHash] = struct{}{}
		weights[vote.Label] = weights[vote.Label].Add(vote.WeightedScore)
		totalWeight = totalWeight.Add(vote.WeightedScore)
		if vote.Label == vote.AILabel {
			matches++
		}
	}
	signal.UniqueUsers = len(users)

	topLabel := ""
	topWeight := decimal.Zero
	for label, weight := range weights {
		if weight.GreaterThan(topWeight) || (weight.Equal(topWeight) && label < topLabel) {
			topLabel = label
			topWeight = weight
		}
	}
	signal.ConsensusLabel = topLabel
	if totalWeight.IsPositive() {
		signal.ConsensusRatio, _ = topWeight.Div(totalWeight).Float64()
	}
	signal.AIMatchRatio = float64(matches) / float64(len(votes))
	signal.Ready = len(votes) >= c.cfg.MinVotes
	return signal, nil
}

// ArticleSummary is the per-article view backing the feedback API.
type ArticleSummary struct {
	ArticleLink string             `json:"article_link"`
	TotalVotes  int                `json:"total_votes"`
	ByLabel     map[string]int     `json:"by_label"`
	WeightSums  map[string]float64 `json:"weight_sums"`
	AIMatches   int                `json:"ai_matches"`
}

func (c *Consensus) Article(ctx context.Context, articleLink string) (ArticleSummary, error) {
	summary := ArticleSummary{
		ArticleLink: articleLink,
		ByLabel:     map[string]int{},
		WeightSums:  map[string]float64{},
	}
	votes, err := c.store.ArticleVotes(ctx, articleLink)
	if err != nil {
		return summary, err
	}
	sums := map[string]decimal.Decimal{}
	for _, vote := range votes {
		summary.TotalVotes++
		summary.ByLabel[vote.Label]++
		sums[vote.Label] = sums[vote.Label].Add(vote.WeightedScore)
		if vote.Label == vote.AILabel {
			summary.AIMatches++
		}
	}
	for label, sum := range sums {
		summary.WeightSums[label], _ = sum.Float64()
	}
	return summary, nil
}
