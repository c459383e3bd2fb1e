package monitor

import (
	"errors"
	"testing"

	"github.com/Duinho/SignalWatch/internal/config"
)

func testControllerConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		MinScore: 20,
		Adaptive: config.AdaptiveConfig{
			Enabled: true,
			Profiles: map[string]config.AdaptiveProfileConfig{
				"market_open": {TargetAlertCount: 3, AlertBand: 1, ScoreStep: 5, MinBound: 0, MaxBound: 80},
			},
		},
	}
}

func TestApply_RaisesAboveBand(t *testing.T) {
	c := NewController(testControllerConfig(), []string{"market_open"}, nil)

	adj, err := c.Apply("market_open", 6)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if adj == nil {
		t.Fatalf("expected adjustment, got nil")
	}
	if adj.Before != 20 || adj.After != 25 || adj.Direction != "raise" {
		t.Fatalf("adj=%+v want before=20 after=25 raise", adj)
	}
	if got := c.EffectiveMinScore("market_open"); got != 25 {
		t.Fatalf("min_score=%d want=25", got)
	}
}

func TestApply_WithinDeadBandNoChange(t *testing.T) {
	c := NewController(testControllerConfig(), []string{"market_open"}, nil)

	for _, count := range []int{2, 3, 4} {
		adj, err := c.Apply("market_open", count)
		if err != nil {
			t.Fatalf("apply(%d): %v", count, err)
		}
		if adj != nil {
			t.Fatalf("apply(%d)=%+v want nil adjustment", count, adj)
		}
	}
	if got := c.EffectiveMinScore("market_open"); got != 20 {
		t.Fatalf("min_score=%d want=20", got)
	}
}

func TestApply_StaysWithinBounds(t *testing.T) {
	c := NewController(testControllerConfig(), []string{"market_open"}, nil)

	for i := 0; i < 50; i++ {
		c.Apply("market_open", 100)
	}
	if got := c.EffectiveMinScore("market_open"); got != 80 {
		t.Fatalf("min_score=%d want clamped to 80", got)
	}
	for i := 0; i < 50; i++ {
		c.Apply("market_open", 0)
	}
	if got := c.EffectiveMinScore("market_open"); got != 0 {
		t.Fatalf("min_score=%d want clamped to 0", got)
	}
}

func TestApply_UnknownPolicy(t *testing.T) {
	c := NewController(testControllerConfig(), []string{"market_open"}, nil)
	if _, err := c.Apply("overnight", 5); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("err=%v want ErrUnknownPolicy", err)
	}
}

func TestUpdate_InvalidProfileRejected(t *testing.T) {
	c := NewController(testControllerConfig(), []string{"market_open"}, nil)

	bad := Profile{Enabled: true, TargetAlertCount: 3, AlertBand: 1, ScoreStep: 5, MinBound: 50, MaxBound: 10}
	if err := c.Update("market_open", bad); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("err=%v want ErrInvalidProfile", err)
	}
	bad = Profile{Enabled: true, TargetAlertCount: 3, AlertBand: 1, ScoreStep: 0, MinBound: 0, MaxBound: 80}
	if err := c.Update("market_open", bad); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("err=%v want ErrInvalidProfile", err)
	}

	state, err := c.State("market_open")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Profile.ScoreStep != 5 || state.Profile.MinBound != 0 || state.Profile.MaxBound != 80 {
		t.Fatalf("profile changed after rejected update: %+v", state.Profile)
	}
}

func TestUpdate_ReclampsMinScore(t *testing.T) {
	c := NewController(testControllerConfig(), []string{"market_open"}, nil)

	c.Apply("market_open", 10)
	c.Apply("market_open", 10)
	if got := c.EffectiveMinScore("market_open"); got != 30 {
		t.Fatalf("min_score=%d want=30", got)
	}

	tight := Profile{Enabled: true, TargetAlertCount: 3, AlertBand: 1, ScoreStep: 5, MinBound: 0, MaxBound: 25}
	if err := c.Update("market_open", tight); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := c.EffectiveMinScore("market_open"); got != 25 {
		t.Fatalf("min_score=%d want reclamped to 25", got)
	}
}

func TestReset_RestoresDefaults(t *testing.T) {
	c := NewController(testControllerConfig(), []string{"market_open"}, nil)

	c.Apply("market_open", 10)
	wide := Profile{Enabled: true, TargetAlertCount: 9, AlertBand: 3, ScoreStep: 10, MinBound: 10, MaxBound: 90}
	if err := c.Update("market_open", wide); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.Reset("market_open"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	state, err := c.State("market_open")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Profile.TargetAlertCount != 3 || state.Profile.ScoreStep != 5 || state.Profile.MaxBound != 80 {
		t.Fatalf("profile=%+v want configured default", state.Profile)
	}
	if state.MinScore != 20 {
		t.Fatalf("min_score=%d want=20", state.MinScore)
	}
	if state.LastAdjustment != nil {
		t.Fatalf("last adjustment not cleared")
	}
}

func TestDisabled_UsesFloorAndSkipsAdjustment(t *testing.T) {
	c := NewController(testControllerConfig(), []string{"market_open"}, nil)

	disabled := Profile{Enabled: false, TargetAlertCount: 3, AlertBand: 1, ScoreStep: 5, MinBound: 0, MaxBound: 80}
	if err := c.Update("market_open", disabled); err != nil {
		t.Fatalf("update: %v", err)
	}
	adj, err := c.Apply("market_open", 50)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if adj != nil {
		t.Fatalf("adjustment=%+v want nil while disabled", adj)
	}
	if got := c.EffectiveMinScore("market_open"); got != 20 {
		t.Fatalf("min_score=%d want floor 20", got)
	}

	c.SetEnabled(false)
	if got := c.EffectiveMinScore("market_open"); got != 20 {
		t.Fatalf("min_score=%d want floor 20 with controller off", got)
	}
}
