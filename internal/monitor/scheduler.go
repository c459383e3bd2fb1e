package monitor

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/Duinho/SignalWatch/internal/config"
	"github.com/Duinho/SignalWatch/internal/models"
	"github.com/Duinho/SignalWatch/internal/newsfeed"
	"github.com/Duinho/SignalWatch/internal/repository"
	"github.com/Duinho/SignalWatch/internal/scoring"
)

const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"

	PolicyManual = "manual"

	SourceAuto       = "auto"
	SourceMemory     = "memory"
	SourcePersistent = "persistent"
)

// idleRecheck is how often the loop re-resolves the active policy while no
// window covers the current time.
const idleRecheck = time.Minute

// Scheduler drives monitoring cycles inside policy windows. At most one run
// executes at a time; a second entrant gets ErrRunInProgress.
type Scheduler struct {
	cfg        config.MonitoringConfig
	watchlist  []config.WatchlistEntry
	fetchLimit int

	fetcher    newsfeed.Fetcher
	engine     *scoring.Engine
	consensus  scoring.ConsensusReader
	policies   *PolicySet
	controller *Controller
	runs       repository.RunStore
	alerts     repository.AlertStore
	logger     *zap.Logger

	runMu sync.Mutex

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	ring *runRing

	totalRuns  atomic.Int64
	failedRuns atomic.Int64
	busySkips  atomic.Int64
}

type SchedulerDeps struct {
	Fetcher    newsfeed.Fetcher
	Engine     *scoring.Engine
	Consensus  scoring.ConsensusReader
	Policies   *PolicySet
	Controller *Controller
	Runs       repository.RunStore
	Alerts     repository.AlertStore
	Logger     *zap.Logger
}

func NewScheduler(cfg config.MonitoringConfig, watchlist []config.WatchlistEntry, fetchLimit int, deps SchedulerDeps) *Scheduler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if fetchLimit <= 0 {
		fetchLimit = 30
	}
	return &Scheduler{
		cfg:        cfg,
		watchlist:  watchlist,
		fetchLimit: fetchLimit,
		fetcher:    deps.Fetcher,
		engine:     deps.Engine,
		consensus:  deps.Consensus,
		policies:   deps.Policies,
		controller: deps.Controller,
		runs:       deps.Runs,
		alerts:     deps.Alerts,
		logger:     logger.Named("scheduler"),
		ring:       newRunRing(cfg.HistoryLimit),
	}
}

// Start launches the polling loop. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)
	s.logger.Info("scheduler started")
}

// Stop cancels the wait loop. An in-flight run finishes on its own deadline.
func (s *Scheduler) Stop() {
	s.stateMu.Lock()
	if !s.running {
		s.stateMu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.stateMu.Unlock()

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		wait := idleRecheck
		if window, ok := s.policies.Active(time.Now()); ok {
			cycleStart := time.Now()
			if _, err := s.execute(ctx, window.Name, TriggerScheduled); err != nil && err != ErrRunInProgress {
				s.logger.Error("scheduled run failed", zap.String("policy", window.Name), zap.Error(err))
			}
			wait = nextWait(window.Interval, time.Since(cycleStart))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// nextWait times the next wake from cycle start, so run duration does not
// stretch the cadence. A run longer than the interval starts the next cycle
// immediately; sequential execution still keeps runs from overlapping.
func nextWait(interval, elapsed time.Duration) time.Duration {
	wait := interval - elapsed
	if wait < 0 {
		return 0
	}
	return wait
}

// RunOnce executes one cycle synchronously, whether or not the loop is
// running. Outside every window it runs under the manual policy, which uses
// the floor threshold and skips adaptive feedback.
func (s *Scheduler) RunOnce(ctx context.Context) (RunRecord, error) {
	policy := PolicyManual
	if window, ok := s.policies.Active(time.Now()); ok {
		policy = window.Name
	}
	return s.execute(ctx, policy, TriggerManual)
}

func (s *Scheduler) execute(ctx context.Context, policy, trigger string) (RunRecord, error) {
	if !s.runMu.TryLock() {
		s.busySkips.Add(1)
		return RunRecord{}, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout())
	defer cancel()

	record := RunRecord{
		RunID:        uuid.NewString(),
		Policy:       policy,
		Trigger:      trigger,
		MinScoreUsed: s.controller.EffectiveMinScore(policy),
		StartedAt:    time.Now().UTC(),
	}

	evaluations := s.scan(runCtx, &record)

	if record.Error == "" {
		sort.SliceStable(evaluations, func(i, j int) bool {
			return evaluations[i].Score > evaluations[j].Score
		})
		if s.cfg.AlertLimit > 0 && len(evaluations) > s.cfg.AlertLimit {
			evaluations = evaluations[:s.cfg.AlertLimit]
		}
		record.AlertCount = len(evaluations)

		if adjustment, err := s.controller.Apply(policy, record.AlertCount); err == nil {
			record.Adjustment = adjustment
		}

		if record.StaleSources > 0 || record.ArticlesSeen == 0 {
			record.Status = StatusPartial
		} else {
			record.Status = StatusSuccess
		}
	}

	record.FinishedAt = time.Now().UTC()
	record.DurationMs = record.FinishedAt.Sub(record.StartedAt).Milliseconds()

	s.persist(runCtx, record, evaluations)
	s.ring.push(record)
	s.totalRuns.Add(1)
	if record.Status == StatusFailed {
		s.failedRuns.Add(1)
	}

	s.logger.Info("run finished",
		zap.String("run_id", record.RunID),
		zap.String("policy", policy),
		zap.String("status", record.Status),
		zap.Int("alerts", record.AlertCount),
		zap.Int64("duration_ms", record.DurationMs))
	return record, nil
}

// scan walks the watchlist, scoring each stock's batch against the
// effective threshold. A deadline hit marks the run failed and stops the
// walk; stale or empty fetches only degrade the run to partial.
func (s *Scheduler) scan(ctx context.Context, record *RunRecord) []scoring.Evaluation {
	evaluations := []scoring.Evaluation{}
	for _, entry := range s.watchlist {
		if ctx.Err() != nil {
			record.Status = StatusFailed
			record.Error = "run deadline exceeded"
			return evaluations
		}

		result, err := s.fetcher.Fetch(ctx, entry.Code, s.fetchLimit)
		if err != nil {
			record.Status = StatusFailed
			record.Error = err.Error()
			return evaluations
		}
		record.StocksScanned++
		record.ArticlesSeen += len(result.Articles)
		if result.Stale {
			record.StaleSources++
		}
		if len(result.Articles) == 0 {
			continue
		}

		signal := scoring.ConsensusSignal{}
		if s.consensus != nil {
			if sig, err := s.consensus.StockSignal(ctx, entry.Code); err == nil {
				signal = sig
			} else {
				s.logger.Warn("consensus lookup failed",
					zap.String("stock_code", entry.Code), zap.Error(err))
			}
		}

		evaluation := s.engine.Evaluate(entry.Code, entry.Name, result.Articles, signal)
		if evaluation.Score >= record.MinScoreUsed {
			evaluations = append(evaluations, evaluation)
		}
	}
	return evaluations
}

// persist writes the run and its alert snapshots to the durable store.
// Storage failures are logged, not fatal: the in-memory ring still records
// the run.
func (s *Scheduler) persist(ctx context.Context, record RunRecord, evaluations []scoring.Evaluation) {
	if s.runs != nil {
		if err := s.runs.AppendRun(ctx, runToModel(record)); err != nil {
			s.logger.Error("run persist failed", zap.String("run_id", record.RunID), zap.Error(err))
		}
	}
	if s.alerts == nil || len(evaluations) == 0 {
		return
	}
	snapshots := make([]models.AlertSnapshot, 0, len(evaluations))
	for _, evaluation := range evaluations {
		snapshots = append(snapshots, evaluationToModel(record.RunID, evaluation))
	}
	if err := s.alerts.AppendAlertSnapshots(ctx, snapshots); err != nil {
		s.logger.Error("alert persist failed", zap.String("run_id", record.RunID), zap.Error(err))
	}
}

// SchedulerStatus is the observability snapshot.
type SchedulerStatus struct {
	Running         bool          `json:"running"`
	ActivePolicy    string        `json:"active_policy"`
	AdaptiveEnabled bool          `json:"adaptive_enabled"`
	TotalRuns       int64         `json:"total_runs"`
	FailedRuns      int64         `json:"failed_runs"`
	BusySkips       int64         `json:"busy_skips"`
	RingSize        int           `json:"ring_size"`
	LastRun         *RunRecord    `json:"last_run,omitempty"`
	Policies        []PolicyState `json:"policies"`
}

func (s *Scheduler) Status() SchedulerStatus {
	status := SchedulerStatus{
		Running:         s.Running(),
		AdaptiveEnabled: s.controller.Enabled(),
		TotalRuns:       s.totalRuns.Load(),
		FailedRuns:      s.failedRuns.Load(),
		BusySkips:       s.busySkips.Load(),
		RingSize:        s.ring.size(),
		Policies:        s.controller.Snapshot(),
	}
	if window, ok := s.policies.Active(time.Now()); ok {
		status.ActivePolicy = window.Name
	}
	if last, ok := s.ring.last(); ok {
		status.LastRun = &last
	}
	return status
}

// RecentRuns reads run history. Source memory reads only the ring,
// persistent only the durable store; auto prefers the ring and falls back
// to the store when the ring is empty.
func (s *Scheduler) RecentRuns(ctx context.Context, limit int, source string) ([]RunRecord, string, error) {
	if limit <= 0 {
		limit = 50
	}
	switch source {
	case SourceMemory:
		return s.ring.recent(limit), SourceMemory, nil
	case SourcePersistent:
		records, err := s.persistentRuns(ctx, limit)
		return records, SourcePersistent, err
	default:
		if s.ring.size() > 0 {
			return s.ring.recent(limit), SourceMemory, nil
		}
		records, err := s.persistentRuns(ctx, limit)
		return records, SourcePersistent, err
	}
}

func (s *Scheduler) persistentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.runs == nil {
		return nil, nil
	}
	items, err := s.runs.ListRuns(ctx, repository.ListRunsParams{Limit: limit})
	if err != nil {
		return nil, err
	}
	records := make([]RunRecord, 0, len(items))
	for _, item := range items {
		records = append(records, runFromModel(item))
	}
	return records, nil
}

func (s *Scheduler) runTimeout() time.Duration {
	if s.cfg.RunTimeout <= 0 {
		return 2 * time.Minute
	}
	return s.cfg.RunTimeout
}

// --- model conversion --------------------------------------------------------

func runToModel(record RunRecord) *models.SchedulerRun {
	item := &models.SchedulerRun{
		RunID:         record.RunID,
		Policy:        record.Policy,
		Status:        record.Status,
		Trigger:       record.Trigger,
		MinScoreUsed:  record.MinScoreUsed,
		AlertCount:    record.AlertCount,
		StocksScanned: record.StocksScanned,
		ArticlesSeen:  record.ArticlesSeen,
		StaleSources:  record.StaleSources,
		Error:         record.Error,
		StartedAt:     record.StartedAt,
		DurationMs:    record.DurationMs,
	}
	if !record.FinishedAt.IsZero() {
		finished := record.FinishedAt
		item.FinishedAt = &finished
	}
	if record.Adjustment != nil {
		if raw, err := json.Marshal(record.Adjustment); err == nil {
			item.Adjustment = datatypes.JSON(raw)
		}
	}
	return item
}

func runFromModel(item models.SchedulerRun) RunRecord {
	record := RunRecord{
		RunID:         item.RunID,
		Policy:        item.Policy,
		Status:        item.Status,
		Trigger:       item.Trigger,
		MinScoreUsed:  item.MinScoreUsed,
		AlertCount:    item.AlertCount,
		StocksScanned: item.StocksScanned,
		ArticlesSeen:  item.ArticlesSeen,
		StaleSources:  item.StaleSources,
		Error:         item.Error,
		StartedAt:     item.StartedAt,
		DurationMs:    item.DurationMs,
	}
	if item.FinishedAt != nil {
		record.FinishedAt = *item.FinishedAt
	}
	if len(item.Adjustment) > 0 {
		var adjustment Adjustment
		if err := json.Unmarshal(item.Adjustment, &adjustment); err == nil {
			record.Adjustment = &adjustment
		}
	}
	return record
}

func evaluationToModel(runID string, evaluation scoring.Evaluation) models.AlertSnapshot {
	item := models.AlertSnapshot{
		RunID:        runID,
		StockCode:    evaluation.StockCode,
		StockName:    evaluation.StockName,
		Score:        evaluation.Score,
		Priority:     evaluation.Priority,
		Channel:      evaluation.Channel,
		Sentiment:    evaluation.Sentiment,
		ArticleCount: evaluation.ArticleCount,
		UniqueTopics: evaluation.UniqueTopics,
		SourceCount:  evaluation.SourceCount,
	}
	if raw, err := json.Marshal(evaluation.Reasons); err == nil {
		item.Reasons = datatypes.JSON(raw)
	}
	if raw, err := json.Marshal(evaluation.Preview); err == nil {
		item.Preview = datatypes.JSON(raw)
	}
	return item
}
