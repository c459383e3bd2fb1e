package scoring

import (
	"regexp"
	"strings"
)

var (
	bracketPattern = regexp.MustCompile(`[\[(][^\])]*[\])]`)
	punctPattern   = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// TopicFingerprint normalizes a headline so near-duplicate phrasings of the
// same story collapse to one key: lowercase, bracketed segments and
// punctuation stripped, whitespace collapsed.
func TopicFingerprint(title string) string {
	out := strings.ToLower(title)
	out = bracketPattern.ReplaceAllString(out, " ")
	out = punctPattern.ReplaceAllString(out, " ")
	out = spacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// UniqueTopics counts distinct fingerprints in a batch of titles.
func UniqueTopics(titles []string) int {
	seen := map[string]struct{}{}
	for _, title := range titles {
		fp := TopicFingerprint(title)
		if fp == "" {
			continue
		}
		seen[fp] = struct{}{}
	}
	return len(seen)
}

// DuplicateRatio is the share of the batch that belongs to a duplicate
// cluster: every member of a fingerprint group of size >= 2 counts.
func DuplicateRatio(titles []string) float64 {
	if len(titles) == 0 {
		return 0
	}
	groups := map[string]int{}
	total := 0
	for _, title := range titles {
		fp := TopicFingerprint(title)
		if fp == "" {
			continue
		}
		groups[fp]++
		total++
	}
	if total == 0 {
		return 0
	}
	duplicated := 0
	for _, size := range groups {
		if size >= 2 {
			duplicated += size
		}
	}
	return float64(duplicated) / float64(total)
}
