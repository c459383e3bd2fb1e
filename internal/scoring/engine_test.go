package scoring

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Duinho/SignalWatch/internal/config"
	"github.com/Duinho/SignalWatch/internal/newsfeed"
)

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		PreviewLimit:    3,
		BaselineSamples: 40,
		DupPenaltyScale: 15,
		DupMinBatch:     10,
		ImpactPositive: map[string]int{
			"contract": 10,
			"approval": 10,
		},
		ImpactNegative: map[string]int{
			"lawsuit": 10,
			"recall":  10,
		},
	}
}

func testFeedbackConfig() config.FeedbackConfig {
	return config.FeedbackConfig{
		ConsensusThreshold:  0.75,
		AIMismatchThreshold: 0.5,
		DeltaConsensus:      5,
		DeltaAIMismatch:     4,
	}
}

func articlesWithSources(titles []string) []newsfeed.Article {
	sources := []string{"yonhap", "hankyung", "mk", "edaily", "newsis"}
	out := make([]newsfeed.Article, 0, len(titles))
	for i, title := range titles {
		out = append(out, newsfeed.Article{
			Title:  title,
			Link:   fmt.Sprintf("https://example.com/a/%d", i),
			Source: sources[i%len(sources)],
		})
	}
	return out
}

func TestEvaluate_DuplicatePenaltyProportional(t *testing.T) {
	engine := NewEngine(testScoringConfig(), testFeedbackConfig(), nil, nil)

	// 5 duplicate pairs plus 20 unique headlines: 30 articles, dup ratio 1/3.
	titles := make([]string, 0, 30)
	for i := 0; i < 5; i++ {
		titles = append(titles,
			fmt.Sprintf("company wins large contract number %d", i),
			fmt.Sprintf("[photo] company wins large contract, number %d!", i),
		)
	}
	for i := 0; i < 20; i++ {
		titles = append(titles, fmt.Sprintf("distinct approval story variant %d", i))
	}

	eval := engine.Evaluate("005930", "Samsung Electronics", articlesWithSources(titles), ConsensusSignal{})

	// high_volume(+20) + multi_source(+20) + impact contract/approval(+20)
	// minus round(1/3 * 15) = 5.
	if eval.Score != 55 {
		t.Fatalf("score=%d want=55 (reasons=%v)", eval.Score, eval.Reasons)
	}
	if eval.Channel != ChannelInApp || eval.Priority != PriorityMedium {
		t.Fatalf("route=%s/%s want=in_app/medium", eval.Channel, eval.Priority)
	}
	if eval.UniqueTopics != 25 {
		t.Fatalf("unique_topics=%d want=25", eval.UniqueTopics)
	}
	found := false
	for _, reason := range eval.Reasons {
		if strings.HasPrefix(reason, "duplicate_topics(-5") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing duplicate_topics(-5 reason: %v", eval.Reasons)
	}
	if len(eval.Preview) != 3 {
		t.Fatalf("preview=%d want=3", len(eval.Preview))
	}
}

func TestEvaluate_SmallBatchSkipsPenalty(t *testing.T) {
	engine := NewEngine(testScoringConfig(), testFeedbackConfig(), nil, nil)

	articles := articlesWithSources([]string{
		"company wins large contract",
		"[photo] company wins large contract!",
		"company wins large contract.",
	})
	eval := engine.Evaluate("005930", "Samsung Electronics", articles, ConsensusSignal{})
	for _, reason := range eval.Reasons {
		if strings.HasPrefix(reason, "duplicate_topics") {
			t.Fatalf("penalty applied below batch threshold: %v", eval.Reasons)
		}
	}
}

func TestEvaluate_VolumeSurge(t *testing.T) {
	engine := NewEngine(testScoringConfig(), testFeedbackConfig(), nil, nil)

	quiet := []newsfeed.Article{
		{Title: "calm morning headline one"},
		{Title: "calm morning headline two"},
	}
	engine.Evaluate("005930", "Samsung Electronics", quiet, ConsensusSignal{})

	burst := make([]newsfeed.Article, 0, 6)
	for i := 0; i < 6; i++ {
		burst = append(burst, newsfeed.Article{Title: fmt.Sprintf("sudden story %d", i)})
	}
	eval := engine.Evaluate("005930", "Samsung Electronics", burst, ConsensusSignal{})

	// baseline avg is 2, 6 unique topics is a 3.0x surge.
	if eval.Score != 30 {
		t.Fatalf("score=%d want=30 (reasons=%v)", eval.Score, eval.Reasons)
	}
	found := false
	for _, reason := range eval.Reasons {
		if strings.HasPrefix(reason, "volume_surge(+30") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing volume_surge reason: %v", eval.Reasons)
	}
}

func TestEvaluate_ConsensusDeltas(t *testing.T) {
	engine := NewEngine(testScoringConfig(), testFeedbackConfig(), nil, nil)

	eval := engine.Evaluate("005930", "Samsung Electronics", nil, ConsensusSignal{
		Ready:          true,
		ConsensusRatio: 0.8,
		AIMatchRatio:   0.4,
	})
	if eval.Score != 9 {
		t.Fatalf("score=%d want=9 (consensus+5, mismatch+4)", eval.Score)
	}

	eval = engine.Evaluate("005930", "Samsung Electronics", nil, ConsensusSignal{
		Ready:          false,
		ConsensusRatio: 0.9,
		AIMatchRatio:   0.1,
	})
	if eval.Score != 0 {
		t.Fatalf("score=%d want=0 when consensus not ready", eval.Score)
	}

	eval = engine.Evaluate("005930", "Samsung Electronics", nil, ConsensusSignal{
		Ready:          true,
		ConsensusRatio: 0.6,
		AIMatchRatio:   0.9,
	})
	if eval.Score != 0 {
		t.Fatalf("score=%d want=0 below consensus threshold", eval.Score)
	}
}

func TestEvaluate_ImpactCapped(t *testing.T) {
	cfg := testScoringConfig()
	cfg.ImpactPositive = map[string]int{
		"contract": 15,
		"approval": 15,
	}
	cfg.ImpactNegative = map[string]int{
		"lawsuit": 15,
	}
	engine := NewEngine(cfg, testFeedbackConfig(), nil, nil)

	eval := engine.Evaluate("005930", "Samsung Electronics", []newsfeed.Article{
		{Title: "contract signed after approval despite lawsuit"},
	}, ConsensusSignal{})
	if eval.Score != 30 {
		t.Fatalf("score=%d want impact capped at 30 (reasons=%v)", eval.Score, eval.Reasons)
	}
}

func TestEvaluate_ClampsAtZero(t *testing.T) {
	engine := NewEngine(testScoringConfig(), testFeedbackConfig(), nil, nil)

	// 10 copies of one headline: penalty 15 against a zero base score.
	titles := make([]string, 10)
	for i := range titles {
		titles[i] = "same story everywhere"
	}
	articles := make([]newsfeed.Article, len(titles))
	for i, title := range titles {
		articles[i] = newsfeed.Article{Title: title}
	}
	eval := engine.Evaluate("005930", "Samsung Electronics", articles, ConsensusSignal{})
	if eval.Score != 0 {
		t.Fatalf("score=%d want clamped to 0", eval.Score)
	}
	if eval.Channel != ChannelDailyDigest || eval.Priority != PriorityLow {
		t.Fatalf("route=%s/%s want=daily_digest/low", eval.Channel, eval.Priority)
	}
}

func TestEvaluate_PolarityClusters(t *testing.T) {
	cfg := testScoringConfig()
	cfg.NegativeKeywords = []string{"plunge"}
	cfg.PositiveKeywords = []string{"surge"}
	engine := NewEngine(cfg, testFeedbackConfig(), nil, nil)

	negatives := make([]newsfeed.Article, 0, 4)
	for i := 0; i < 4; i++ {
		negatives = append(negatives, newsfeed.Article{Title: fmt.Sprintf("shares plunge on report %d", i)})
	}
	eval := engine.Evaluate("005930", "Samsung Electronics", negatives, ConsensusSignal{})
	if eval.Score != 10 || eval.Sentiment != LabelNegative {
		t.Fatalf("score=%d sentiment=%s want 10/negative", eval.Score, eval.Sentiment)
	}

	positives := make([]newsfeed.Article, 0, 5)
	for i := 0; i < 5; i++ {
		positives = append(positives, newsfeed.Article{Title: fmt.Sprintf("shares surge on report %d", i)})
	}
	eval = engine.Evaluate("000660", "SK Hynix", positives, ConsensusSignal{})
	if eval.Score != 5 || eval.Sentiment != LabelPositive {
		t.Fatalf("score=%d sentiment=%s want 5/positive", eval.Score, eval.Sentiment)
	}
}

func TestRoute_Ladder(t *testing.T) {
	cases := []struct {
		score    int
		channel  string
		priority string
	}{
		{100, ChannelPushImmediate, PriorityHigh},
		{70, ChannelPushImmediate, PriorityHigh},
		{69, ChannelInApp, PriorityMedium},
		{40, ChannelInApp, PriorityMedium},
		{39, ChannelDailyDigest, PriorityLow},
		{0, ChannelDailyDigest, PriorityLow},
	}
	for _, tc := range cases {
		channel, priority := Route(tc.score)
		if channel != tc.channel || priority != tc.priority {
			t.Fatalf("Route(%d)=%s/%s want=%s/%s", tc.score, channel, priority, tc.channel, tc.priority)
		}
	}
}
