package monitor

import (
	"sync"
	"time"
)

const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// RunRecord is the in-memory form of one monitoring run.
type RunRecord struct {
	RunID         string      `json:"run_id"`
	Policy        string      `json:"policy"`
	Status        string      `json:"status"`
	Trigger       string      `json:"trigger"`
	MinScoreUsed  int         `json:"min_score_used"`
	AlertCount    int         `json:"alert_count"`
	StocksScanned int         `json:"stocks_scanned"`
	ArticlesSeen  int         `json:"articles_seen"`
	StaleSources  int         `json:"stale_sources"`
	Adjustment    *Adjustment `json:"adjustment,omitempty"`
	Error         string      `json:"error,omitempty"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
	DurationMs    int64       `json:"duration_ms"`
}

// runRing keeps the most recent runs in memory. Only the run completion
// path writes; readers get copies.
type runRing struct {
	mu      sync.RWMutex
	records []RunRecord
	next    int
	filled  int
}

func newRunRing(size int) *runRing {
	if size <= 0 {
		size = 200
	}
	return &runRing{records: make([]RunRecord, size)}
}

func (r *runRing) push(record RunRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[r.next] = record
	r.next = (r.next + 1) % len(r.records)
	if r.filled < len(r.records) {
		r.filled++
	}
}

// recent returns up to limit records, newest first.
func (r *runRing) recent(limit int) []RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > r.filled {
		limit = r.filled
	}
	out := make([]RunRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.next - 1 - i + len(r.records)) % len(r.records)
		out = append(out, r.records[idx])
	}
	return out
}

func (r *runRing) last() (RunRecord, bool) {
	records := r.recent(1)
	if len(records) == 0 {
		return RunRecord{}, false
	}
	return records[0], true
}

func (r *runRing) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filled
}
