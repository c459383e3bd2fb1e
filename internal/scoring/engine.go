package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Duinho/SignalWatch/internal/config"
	"github.com/Duinho/SignalWatch/internal/newsfeed"
)

const (
	ChannelPushImmediate = "push_immediate"
	ChannelInApp         = "in_app"
	ChannelDailyDigest   = "daily_digest"

	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// ConsensusSignal is the per-stock feedback aggregate consumed at scoring
// time. Ready gates both deltas.
type ConsensusSignal struct {
	Ready          bool    `json:"ready"`
	TotalVotes     int     `json:"total_votes"`
	UniqueUsers    int     `json:"unique_users"`
	ConsensusLabel string  `json:"consensus_label"`
	ConsensusRatio float64 `json:"consensus_ratio"`
	AIMatchRatio   float64 `json:"ai_match_ratio"`
}

type ConsensusReader interface {
	StockSignal(ctx context.Context, stockCode string) (ConsensusSignal, error)
}

// Evaluation is the scored outcome for one stock's article batch.
type Evaluation struct {
	StockCode    string             `json:"stock_code"`
	StockName    string             `json:"stock_name"`
	Score        int                `json:"score"`
	Sentiment    string             `json:"sentiment"`
	Channel      string             `json:"channel"`
	Priority     string             `json:"priority"`
	Reasons      []string           `json:"reasons"`
	ArticleCount int                `json:"article_count"`
	UniqueTopics int                `json:"unique_topics"`
	SourceCount  int                `json:"source_count"`
	DupRatio     float64            `json:"dup_ratio"`
	Preview      []newsfeed.Article `json:"preview"`
}

// Engine composes the importance score from volume surge, source breadth,
// impact keywords, polarity concentration, feedback consensus and the
// duplicate-topic penalty, clamped to 0..100.
type Engine struct {
	cfg        config.ScoringConfig
	fbCfg      config.FeedbackConfig
	classifier *SentimentClassifier
	logger     *zap.Logger

	mu        sync.Mutex
	baselines map[string]*countRing
}

func NewEngine(cfg config.ScoringConfig, fbCfg config.FeedbackConfig, classifier *SentimentClassifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = NewSentimentClassifier(cfg.PositiveKeywords, cfg.NegativeKeywords)
	}
	return &Engine{
		cfg:        cfg,
		fbCfg:      fbCfg,
		classifier: classifier,
		logger:     logger.Named("scoring"),
		baselines:  map[string]*countRing{},
	}
}

func (e *Engine) Classifier() *SentimentClassifier {
	return e.classifier
}

func (e *Engine) Evaluate(stockCode, stockName string, articles []newsfeed.Article, consensus ConsensusSignal) Evaluation {
	titles := make([]string, 0, len(articles))
	for _, article := range articles {
		titles = append(titles, article.Title)
	}

	uniqueTopics := UniqueTopics(titles)
	dupRatio := DuplicateRatio(titles)
	sourceCount := countSources(articles)
	baseline := e.observeBaseline(stockCode, uniqueTopics)

	score := 0
	reasons := []string{}

	// Volume surge against the rolling per-stock baseline.
	surgeRatio := 0.0
	if baseline > 0 {
		surgeRatio = float64(uniqueTopics) / baseline
	}
	switch {
	case uniqueTopics >= 6 && surgeRatio >= 3.0:
		score += 30
		reasons = append(reasons, fmt.Sprintf("volume_surge(+30, %.1fx)", surgeRatio))
	case uniqueTopics >= 10:
		score += 20
		reasons = append(reasons, "high_volume(+20)")
	}

	switch {
	case sourceCount >= 5:
		score += 20
		reasons = append(reasons, fmt.Sprintf("multi_source(+20, %d)", sourceCount))
	case sourceCount >= 3:
		score += 10
		reasons = append(reasons, fmt.Sprintf("multi_source(+10, %d)", sourceCount))
	}

	if impact, hits := e.impactScore(titles); impact > 0 {
		score += impact
		reasons = append(reasons, fmt.Sprintf("impact_keywords(+%d, %s)", impact, strings.Join(hits, ",")))
	}

	positives, negatives, sentiment := e.polarity(titles)
	switch {
	case negatives >= 4:
		score += 10
		reasons = append(reasons, fmt.Sprintf("negative_cluster(+10, %d)", negatives))
	case positives >= 5:
		score += 5
		reasons = append(reasons, fmt.Sprintf("positive_cluster(+5, %d)", positives))
	}

	if consensus.Ready {
		if consensus.ConsensusRatio >= e.fbCfg.ConsensusThreshold {
			score += e.fbCfg.DeltaConsensus
			reasons = append(reasons, fmt.Sprintf("feedback_consensus(+%d)", e.fbCfg.DeltaConsensus))
		}
		if consensus.AIMatchRatio < e.fbCfg.AIMismatchThreshold {
			score += e.fbCfg.DeltaAIMismatch
			reasons = append(reasons, fmt.Sprintf("ai_mismatch(+%d)", e.fbCfg.DeltaAIMismatch))
		}
	}

	if len(articles) >= e.cfg.DupMinBatch {
		if penalty := int(math.Round(dupRatio * float64(e.cfg.DupPenaltyScale))); penalty > 0 {
			score -= penalty
			reasons = append(reasons, fmt.Sprintf("duplicate_topics(-%d, %.2f)", penalty, dupRatio))
		}
	}

	score = clampScore(score)
	channel, priority := Route(score)

	preview := articles
	if e.cfg.PreviewLimit > 0 && len(preview) > e.cfg.PreviewLimit {
		preview = preview[:e.cfg.PreviewLimit]
	}

	return Evaluation{
		StockCode:    stockCode,
		StockName:    stockName,
		Score:        score,
		Sentiment:    sentiment,
		Channel:      channel,
		Priority:     priority,
		Reasons:      reasons,
		ArticleCount: len(articles),
		UniqueTopics: uniqueTopics,
		SourceCount:  sourceCount,
		DupRatio:     dupRatio,
		Preview:      preview,
	}
}

// Route maps a score to its delivery channel and priority.
func Route(score int) (channel string, priority string) {
	switch {
	case score >= 70:
		return ChannelPushImmediate, PriorityHigh
	case score >= 40:
		return ChannelInApp, PriorityMedium
	default:
		return ChannelDailyDigest, PriorityLow
	}
}

// observeBaseline returns the rolling average of past unique-topic counts
// for the stock, then records the current count.
func (e *Engine) observeBaseline(stockCode string, uniqueTopics int) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ring, ok := e.baselines[stockCode]
	if !ok {
		size := e.cfg.BaselineSamples
		if size <= 0 {
			size = 40
		}
		ring = newCountRing(size)
		e.baselines[stockCode] = ring
	}
	baseline := ring.average()
	ring.push(uniqueTopics)
	return baseline
}

func (e *Engine) impactScore(titles []string) (int, []string) {
	total := 0
	hits := []string{}
	for keyword, weight := range e.cfg.ImpactPositive {
		if containsAny(titles, keyword) {
			total += weight
			hits = append(hits, keyword)
		}
	}
	for keyword, weight := range e.cfg.ImpactNegative {
		if containsAny(titles, keyword) {
			total += weight
			hits = append(hits, keyword)
		}
	}
	if total > 30 {
		total = 30
	}
	return total, hits
}

// polarity counts unique positive/negative headlines and picks the dominant
// batch label.
func (e *Engine) polarity(titles []string) (positives, negatives int, sentiment string) {
	seenPos := map[string]struct{}{}
	seenNeg := map[string]struct{}{}
	for _, title := range titles {
		label, _ := e.classifier.Classify(title)
		fp := TopicFingerprint(title)
		switch label {
		case LabelPositive:
			seenPos[fp] = struct{}{}
		case LabelNegative:
			seenNeg[fp] = struct{}{}
		}
	}
	positives = len(seenPos)
	negatives = len(seenNeg)
	switch {
	case negatives > positives:
		sentiment = LabelNegative
	case positives > negatives:
		sentiment = LabelPositive
	default:
		sentiment = LabelNeutral
	}
	return positives, negatives, sentiment
}

func containsAny(titles []string, keyword string) bool {
	keyword = strings.ToLower(keyword)
	for _, title := range titles {
		if strings.Contains(strings.ToLower(title), keyword) {
			return true
		}
	}
	return false
}

func countSources(articles []newsfeed.Article) int {
	seen := map[string]struct{}{}
	for _, article := range articles {
		source := strings.TrimSpace(article.Source)
		if source == "" {
			continue
		}
		seen[source] = struct{}{}
	}
	return len(seen)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// countRing keeps the last N unique-topic counts per stock.
type countRing struct {
	values []int
	next   int
	filled int
}

func newCountRing(size int) *countRing {
	return &countRing{values: make([]int, size)}
}

func (r *countRing) push(value int) {
	r.values[r.next] = value
	r.next = (r.next + 1) % len(r.values)
	if r.filled < len(r.values) {
		r.filled++
	}
}

func (r *countRing) average() float64 {
	if r.filled == 0 {
		return 0
	}
	sum := 0
	for i := 0; i < r.filled; i++ {
		sum += r.values[i]
	}
	return float64(sum) / float64(r.filled)
}
