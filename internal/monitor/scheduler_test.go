package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Duinho/SignalWatch/internal/config"
	"github.com/Duinho/SignalWatch/internal/models"
	"github.com/Duinho/SignalWatch/internal/newsfeed"
	"github.com/Duinho/SignalWatch/internal/repository"
	"github.com/Duinho/SignalWatch/internal/scoring"
)

type stubFetcher struct {
	fn func(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error)
}

func (s *stubFetcher) Fetch(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error) {
	return s.fn(ctx, stockCode, limit)
}

type stubStore struct {
	mu    sync.Mutex
	runs  []models.SchedulerRun
	snaps []models.AlertSnapshot
}

func (s *stubStore) AppendRun(ctx context.Context, item *models.SchedulerRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *item)
	return nil
}

func (s *stubStore) ListRuns(ctx context.Context, params repository.ListRunsParams) ([]models.SchedulerRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SchedulerRun, len(s.runs))
	copy(out, s.runs)
	return out, nil
}

func (s *stubStore) CountRuns(ctx context.Context, params repository.ListRunsParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.runs)), nil
}

func (s *stubStore) RunMetrics(ctx context.Context, since *time.Time) (repository.RunMetrics, error) {
	return repository.RunMetrics{}, nil
}

func (s *stubStore) PruneRuns(ctx context.Context, before time.Time, maxRows int) (int64, error) {
	return 0, nil
}

func (s *stubStore) AppendAlertSnapshots(ctx context.Context, items []models.AlertSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, items...)
	return nil
}

func (s *stubStore) ListAlerts(ctx context.Context, params repository.ListAlertsParams) ([]models.AlertSnapshot, error) {
	return nil, nil
}

func (s *stubStore) CountAlerts(ctx context.Context, params repository.ListAlertsParams) (int64, error) {
	return 0, nil
}

func (s *stubStore) AlertMetrics(ctx context.Context, since *time.Time) (repository.AlertMetrics, error) {
	return repository.AlertMetrics{}, nil
}

func (s *stubStore) PruneAlerts(ctx context.Context, before time.Time, maxRows int) (int64, error) {
	return 0, nil
}

func liveResult(stockCode string, titles ...string) newsfeed.Result {
	articles := make([]newsfeed.Article, 0, len(titles))
	for i, title := range titles {
		articles = append(articles, newsfeed.Article{
			Title:  title,
			Link:   "https://example.com/" + stockCode + "/" + title,
			Source: []string{"alpha", "beta", "gamma"}[i%3],
		})
	}
	return newsfeed.Result{StockCode: stockCode, Articles: articles, Origin: newsfeed.OriginLive, FetchedAt: time.Now().UTC()}
}

func newTestScheduler(t *testing.T, fetcher newsfeed.Fetcher, store *stubStore, cfg config.MonitoringConfig, watchlist []config.WatchlistEntry) *Scheduler {
	t.Helper()
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 5 * time.Second
	}
	if cfg.Windows == nil {
		cfg.Windows = []config.WindowConfig{
			{Name: "all_day", Start: "00:00", End: "23:59", Interval: time.Hour},
		}
	}
	policies, err := NewPolicySet(cfg.Windows)
	if err != nil {
		t.Fatalf("policy set: %v", err)
	}
	engine := scoring.NewEngine(config.ScoringConfig{
		PreviewLimit:    3,
		BaselineSamples: 40,
		DupPenaltyScale: 15,
		DupMinBatch:     10,
	}, config.FeedbackConfig{}, nil, nil)
	return NewScheduler(cfg, watchlist, 30, SchedulerDeps{
		Fetcher:    fetcher,
		Engine:     engine,
		Policies:   policies,
		Controller: NewController(cfg, policies.Names(), nil),
		Runs:       store,
		Alerts:     store,
	})
}

func TestRunOnce_RecordsAndPersists(t *testing.T) {
	store := &stubStore{}
	fetcher := &stubFetcher{fn: func(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error) {
		return liveResult(stockCode, "quarterly results beat estimates", "new factory announced"), nil
	}}
	s := newTestScheduler(t, fetcher, store, config.MonitoringConfig{}, []config.WatchlistEntry{
		{Code: "005930", Name: "Samsung Electronics"},
		{Code: "000660", Name: "SK Hynix"},
	})

	record, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if record.Status != StatusSuccess {
		t.Fatalf("status=%s want=success", record.Status)
	}
	if record.StocksScanned != 2 || record.ArticlesSeen != 4 {
		t.Fatalf("scanned=%d articles=%d want 2/4", record.StocksScanned, record.ArticlesSeen)
	}
	if record.AlertCount != 2 {
		t.Fatalf("alerts=%d want=2", record.AlertCount)
	}
	if record.RunID == "" || record.FinishedAt.IsZero() {
		t.Fatalf("record not finalized: %+v", record)
	}

	if len(store.runs) != 1 {
		t.Fatalf("persisted runs=%d want=1", len(store.runs))
	}
	if store.runs[0].RunID != record.RunID {
		t.Fatalf("persisted run_id=%s want=%s", store.runs[0].RunID, record.RunID)
	}
	if len(store.snaps) != 2 {
		t.Fatalf("persisted snapshots=%d want=2", len(store.snaps))
	}
}

func TestRunOnce_BusySignal(t *testing.T) {
	store := &stubStore{}
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	fetcher := &stubFetcher{fn: func(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error) {
		once.Do(func() { close(started) })
		<-release
		return liveResult(stockCode, "headline"), nil
	}}
	s := newTestScheduler(t, fetcher, store, config.MonitoringConfig{}, []config.WatchlistEntry{
		{Code: "005930", Name: "Samsung Electronics"},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.RunOnce(context.Background()); err != nil {
			t.Errorf("first run: %v", err)
		}
	}()

	<-started
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err=%v want ErrRunInProgress", err)
	}
	close(release)
	<-done

	if got := s.Status().BusySkips; got != 1 {
		t.Fatalf("busy_skips=%d want=1", got)
	}
}

func TestRunOnce_FailureKeepsSchedulerUsable(t *testing.T) {
	store := &stubStore{}
	failing := true
	fetcher := &stubFetcher{fn: func(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error) {
		if failing {
			return newsfeed.Result{}, errors.New("feed unreachable")
		}
		return liveResult(stockCode, "headline"), nil
	}}
	s := newTestScheduler(t, fetcher, store, config.MonitoringConfig{}, []config.WatchlistEntry{
		{Code: "005930", Name: "Samsung Electronics"},
	})

	record, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if record.Status != StatusFailed || record.Error == "" {
		t.Fatalf("record=%+v want failed with error", record)
	}

	failing = false
	record, err = s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if record.Status != StatusSuccess {
		t.Fatalf("status=%s want=success after recovery", record.Status)
	}
	if got := s.Status().FailedRuns; got != 1 {
		t.Fatalf("failed_runs=%d want=1", got)
	}
}

func TestRunOnce_StaleFetchIsPartial(t *testing.T) {
	store := &stubStore{}
	fetcher := &stubFetcher{fn: func(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error) {
		result := liveResult(stockCode, "headline")
		if stockCode == "000660" {
			result.Origin = newsfeed.OriginStaleCache
			result.Stale = true
		}
		return result, nil
	}}
	s := newTestScheduler(t, fetcher, store, config.MonitoringConfig{}, []config.WatchlistEntry{
		{Code: "005930", Name: "Samsung Electronics"},
		{Code: "000660", Name: "SK Hynix"},
	})

	record, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if record.Status != StatusPartial {
		t.Fatalf("status=%s want=partial", record.Status)
	}
	if record.StaleSources != 1 {
		t.Fatalf("stale_sources=%d want=1", record.StaleSources)
	}
}

func TestRunOnce_DeadlineMarksFailed(t *testing.T) {
	store := &stubStore{}
	fetcher := &stubFetcher{fn: func(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error) {
		select {
		case <-ctx.Done():
			return newsfeed.Result{}, ctx.Err()
		case <-time.After(time.Second):
			return liveResult(stockCode, "headline"), nil
		}
	}}
	s := newTestScheduler(t, fetcher, store, config.MonitoringConfig{
		RunTimeout: 20 * time.Millisecond,
	}, []config.WatchlistEntry{
		{Code: "005930", Name: "Samsung Electronics"},
	})

	record, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if record.Status != StatusFailed {
		t.Fatalf("status=%s want=failed on deadline", record.Status)
	}
}

func TestRunOnce_CapsAlerts(t *testing.T) {
	store := &stubStore{}
	fetcher := &stubFetcher{fn: func(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error) {
		return liveResult(stockCode, "headline about "+stockCode), nil
	}}
	s := newTestScheduler(t, fetcher, store, config.MonitoringConfig{
		AlertLimit: 2,
	}, []config.WatchlistEntry{
		{Code: "005930", Name: "Samsung Electronics"},
		{Code: "000660", Name: "SK Hynix"},
		{Code: "035720", Name: "Kakao"},
	})

	record, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if record.AlertCount != 2 {
		t.Fatalf("alerts=%d want capped to 2", record.AlertCount)
	}
	if len(store.snaps) != 2 {
		t.Fatalf("snapshots=%d want=2", len(store.snaps))
	}
}

func TestRecentRuns_Sources(t *testing.T) {
	store := &stubStore{}
	fetcher := &stubFetcher{fn: func(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error) {
		return liveResult(stockCode, "headline"), nil
	}}
	s := newTestScheduler(t, fetcher, store, config.MonitoringConfig{}, []config.WatchlistEntry{
		{Code: "005930", Name: "Samsung Electronics"},
	})

	records, source, err := s.RecentRuns(context.Background(), 10, SourceAuto)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if source != SourcePersistent || len(records) != 0 {
		t.Fatalf("empty ring should fall back to persistent, got source=%s n=%d", source, len(records))
	}

	first, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	second, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}

	records, source, err = s.RecentRuns(context.Background(), 10, SourceAuto)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if source != SourceMemory {
		t.Fatalf("source=%s want=memory", source)
	}
	if len(records) != 2 || records[0].RunID != second.RunID || records[1].RunID != first.RunID {
		t.Fatalf("records out of order: %+v", records)
	}

	records, source, err = s.RecentRuns(context.Background(), 10, SourcePersistent)
	if err != nil {
		t.Fatalf("recent runs persistent: %v", err)
	}
	if source != SourcePersistent || len(records) != 2 {
		t.Fatalf("persistent read got source=%s n=%d", source, len(records))
	}
}

func TestNextWait_AccountsForRunDuration(t *testing.T) {
	cases := []struct {
		interval time.Duration
		elapsed  time.Duration
		want     time.Duration
	}{
		{time.Minute, 0, time.Minute},
		{time.Minute, 10 * time.Second, 50 * time.Second},
		{time.Minute, time.Minute, 0},
		{time.Minute, 90 * time.Second, 0},
	}
	for _, tc := range cases {
		if got := nextWait(tc.interval, tc.elapsed); got != tc.want {
			t.Fatalf("nextWait(%v, %v)=%v want=%v", tc.interval, tc.elapsed, got, tc.want)
		}
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	store := &stubStore{}
	fetcher := &stubFetcher{fn: func(ctx context.Context, stockCode string, limit int) (newsfeed.Result, error) {
		return liveResult(stockCode, "headline"), nil
	}}
	s := newTestScheduler(t, fetcher, store, config.MonitoringConfig{}, []config.WatchlistEntry{
		{Code: "005930", Name: "Samsung Electronics"},
	})

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	if !s.Running() {
		t.Fatalf("scheduler should be running")
	}
	s.Stop()
	if s.Running() {
		t.Fatalf("scheduler should be stopped")
	}
	s.Stop()
}
