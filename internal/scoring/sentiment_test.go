package scoring

import "testing"

func TestClassify_BaseKeywords(t *testing.T) {
	c := NewSentimentClassifier([]string{"surge", "record high"}, []string{"plunge", "lawsuit"})

	label, score := c.Classify("Shares surge to record high")
	if label != LabelPositive || score != 2 {
		t.Fatalf("got %s/%d want positive/2", label, score)
	}
	label, score = c.Classify("Shares plunge after lawsuit filed")
	if label != LabelNegative || score != -2 {
		t.Fatalf("got %s/%d want negative/-2", label, score)
	}
	label, score = c.Classify("Company holds annual meeting")
	if label != LabelNeutral || score != 0 {
		t.Fatalf("got %s/%d want neutral/0", label, score)
	}
	// Mixed hits cancel out.
	label, _ = c.Classify("Shares surge despite lawsuit")
	if label != LabelNeutral {
		t.Fatalf("got %s want neutral for mixed hits", label)
	}
}

func TestClassify_AppliedRules(t *testing.T) {
	c := NewSentimentClassifier(nil, []string{"plunge"})
	c.SetRules([]KeywordRule{
		{Keyword: "Turnaround", Polarity: LabelPositive, Weight: 3},
		{Keyword: "  ", Polarity: LabelNegative, Weight: 5},
		{Keyword: "noise", Polarity: LabelPositive, Weight: 0},
	})

	// Rule weight outvotes the base negative keyword.
	label, score := c.Classify("turnaround hopes even as shares plunge")
	if label != LabelPositive || score != 2 {
		t.Fatalf("got %s/%d want positive/2", label, score)
	}

	// Replacing the rule set drops the old rules.
	c.SetRules(nil)
	label, _ = c.Classify("turnaround hopes even as shares plunge")
	if label != LabelNegative {
		t.Fatalf("got %s want negative after rules cleared", label)
	}
}
