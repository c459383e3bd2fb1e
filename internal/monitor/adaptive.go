package monitor

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Duinho/SignalWatch/internal/config"
)

// Profile is the per-policy controller configuration.
type Profile struct {
	Enabled          bool `json:"enabled"`
	TargetAlertCount int  `json:"target_alert_count"`
	AlertBand        int  `json:"alert_band"`
	ScoreStep        int  `json:"score_step"`
	MinBound         int  `json:"min_bound"`
	MaxBound         int  `json:"max_bound"`
}

func (p Profile) validate() error {
	if p.ScoreStep < 1 {
		return fmt.Errorf("%w: score_step must be >= 1", ErrInvalidProfile)
	}
	if p.MinBound < 0 || p.MaxBound > 100 || p.MinBound > p.MaxBound {
		return fmt.Errorf("%w: bounds must satisfy 0 <= min <= max <= 100", ErrInvalidProfile)
	}
	if p.TargetAlertCount < 0 || p.AlertBand < 0 {
		return fmt.Errorf("%w: target and band must be non-negative", ErrInvalidProfile)
	}
	return nil
}

// Adjustment records one controller decision.
type Adjustment struct {
	Policy     string    `json:"policy"`
	AlertCount int       `json:"alert_count"`
	Before     int       `json:"before"`
	After      int       `json:"after"`
	Direction  string    `json:"direction"`
	At         time.Time `json:"at"`
}

// PolicyState is a read snapshot of one policy's controller state.
type PolicyState struct {
	Policy         string      `json:"policy"`
	Profile        Profile     `json:"profile"`
	MinScore       int         `json:"min_score"`
	LastAdjustment *Adjustment `json:"last_adjustment,omitempty"`
}

type policyState struct {
	profile    Profile
	minScore   int
	lastAdjust *Adjustment
}

// Controller is the per-policy dead-band step controller over min_score.
// All state lives behind one mutex; profile updates swap whole profiles.
type Controller struct {
	mu       sync.RWMutex
	enabled  bool
	floor    int
	defaults map[string]Profile
	states   map[string]*policyState
	logger   *zap.Logger
}

func NewController(cfg config.MonitoringConfig, policies []string, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		enabled:  cfg.Adaptive.Enabled,
		floor:    cfg.MinScore,
		defaults: map[string]Profile{},
		states:   map[string]*policyState{},
		logger:   logger.Named("adaptive"),
	}
	for _, policy := range policies {
		profile := Profile{Enabled: true, ScoreStep: 5, MaxBound: 100}
		if raw, ok := cfg.Adaptive.Profiles[policy]; ok {
			profile = Profile{
				Enabled:          true,
				TargetAlertCount: raw.TargetAlertCount,
				AlertBand:        raw.AlertBand,
				ScoreStep:        raw.ScoreStep,
				MinBound:         raw.MinBound,
				MaxBound:         raw.MaxBound,
			}
		}
		if err := profile.validate(); err != nil {
			c.logger.Warn("invalid configured profile, using safe defaults",
				zap.String("policy", policy), zap.Error(err))
			profile = Profile{Enabled: false, ScoreStep: 5, MaxBound: 100}
		}
		c.defaults[policy] = profile
		c.states[policy] = &policyState{
			profile:  profile,
			minScore: clampInt(cfg.MinScore, profile.MinBound, profile.MaxBound),
		}
	}
	return c
}

func (c *Controller) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// EffectiveMinScore is the threshold the scheduler should use for a policy.
// Unknown or disabled policies fall back to the configured floor.
func (c *Controller) EffectiveMinScore(policy string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.states[policy]
	if !ok || !c.enabled || !state.profile.Enabled {
		return c.floor
	}
	return state.minScore
}

// Apply feeds one run's alert count back into the controller. It returns a
// non-nil adjustment only when min_score actually moved.
func (c *Controller) Apply(policy string, alertCount int) (*Adjustment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[policy]
	if !ok {
		return nil, ErrUnknownPolicy
	}
	if !c.enabled || !state.profile.Enabled {
		return nil, nil
	}

	diff := alertCount - state.profile.TargetAlertCount
	if abs(diff) <= state.profile.AlertBand {
		return nil, nil
	}

	before := state.minScore
	direction := "raise"
	if diff > 0 {
		state.minScore += state.profile.ScoreStep
	} else {
		state.minScore -= state.profile.ScoreStep
		direction = "lower"
	}
	state.minScore = clampInt(state.minScore, state.profile.MinBound, state.profile.MaxBound)
	if state.minScore == before {
		return nil, nil
	}

	adjustment := &Adjustment{
		Policy:     policy,
		AlertCount: alertCount,
		Before:     before,
		After:      state.minScore,
		Direction:  direction,
		At:         time.Now().UTC(),
	}
	state.lastAdjust = adjustment
	c.logger.Info("min_score adjusted",
		zap.String("policy", policy),
		zap.Int("alert_count", alertCount),
		zap.Int("before", before),
		zap.Int("after", state.minScore))
	return adjustment, nil
}

// Update replaces a policy's profile. An invalid profile is rejected and the
// prior profile stays in force.
func (c *Controller) Update(policy string, profile Profile) error {
	if err := profile.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[policy]
	if !ok {
		return ErrUnknownPolicy
	}
	state.profile = profile
	state.minScore = clampInt(state.minScore, profile.MinBound, profile.MaxBound)
	return nil
}

// Reset restores a policy to its configured default profile and threshold.
func (c *Controller) Reset(policy string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[policy]
	if !ok {
		return ErrUnknownPolicy
	}
	profile := c.defaults[policy]
	state.profile = profile
	state.minScore = clampInt(c.floor, profile.MinBound, profile.MaxBound)
	state.lastAdjust = nil
	return nil
}

func (c *Controller) State(policy string) (PolicyState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.states[policy]
	if !ok {
		return PolicyState{}, ErrUnknownPolicy
	}
	return snapshotState(policy, state), nil
}

func (c *Controller) Snapshot() []PolicyState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PolicyState, 0, len(c.states))
	for policy, state := range c.states {
		out = append(out, snapshotState(policy, state))
	}
	return out
}

func snapshotState(policy string, state *policyState) PolicyState {
	snap := PolicyState{
		Policy:   policy,
		Profile:  state.profile,
		MinScore: state.minScore,
	}
	if state.lastAdjust != nil {
		copied := *state.lastAdjust
		snap.LastAdjustment = &copied
	}
	return snap
}

func clampInt(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func abs(value int) int {
	if value < 0 {
		return -value
	}
	return value
}
