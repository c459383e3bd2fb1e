package scoring

import (
	"strings"
	"sync"
)

const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// KeywordRule is a feedback-derived adjustment layered on top of the
// configured keyword sets.
type KeywordRule struct {
	Keyword  string
	Polarity string
	Weight   int
}

// SentimentClassifier labels headlines by keyword hits. The base keyword
// sets come from configuration; applied keyword rules are swapped in whole
// under the lock.
type SentimentClassifier struct {
	positive []string
	negative []string

	mu    sync.RWMutex
	rules []KeywordRule
}

func NewSentimentClassifier(positive, negative []string) *SentimentClassifier {
	return &SentimentClassifier{
		positive: lowerAll(positive),
		negative: lowerAll(negative),
	}
}

// SetRules replaces the active rule set.
func (s *SentimentClassifier) SetRules(rules []KeywordRule) {
	normalized := make([]KeywordRule, 0, len(rules))
	for _, rule := range rules {
		keyword := strings.ToLower(strings.TrimSpace(rule.Keyword))
		if keyword == "" || rule.Weight == 0 {
			continue
		}
		normalized = append(normalized, KeywordRule{
			Keyword:  keyword,
			Polarity: rule.Polarity,
			Weight:   rule.Weight,
		})
	}
	s.mu.Lock()
	s.rules = normalized
	s.mu.Unlock()
}

// Classify returns the label and the signed keyword score of one headline.
func (s *SentimentClassifier) Classify(title string) (string, int) {
	lowered := strings.ToLower(title)
	score := 0
	for _, keyword := range s.positive {
		if strings.Contains(lowered, keyword) {
			score++
		}
	}
	for _, keyword := range s.negative {
		if strings.Contains(lowered, keyword) {
			score--
		}
	}

	s.mu.RLock()
	rules := s.rules
	s.mu.RUnlock()
	for _, rule := range rules {
		if !strings.Contains(lowered, rule.Keyword) {
			continue
		}
		if rule.Polarity == LabelNegative {
			score -= rule.Weight
		} else {
			score += rule.Weight
		}
	}

	switch {
	case score > 0:
		return LabelPositive, score
	case score < 0:
		return LabelNegative, score
	default:
		return LabelNeutral, 0
	}
}

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
