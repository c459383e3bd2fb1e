package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Duinho/SignalWatch/internal/config"
)

const minutesPerDay = 24 * 60

// Window is one named monitoring policy: a daily time range and the polling
// interval used inside it. A window whose end precedes its start wraps past
// midnight.
type Window struct {
	Name     string
	StartMin int
	EndMin   int
	Interval time.Duration
}

func (w Window) contains(minute int) bool {
	if w.StartMin == w.EndMin {
		return false
	}
	if w.StartMin < w.EndMin {
		return minute >= w.StartMin && minute < w.EndMin
	}
	return minute >= w.StartMin || minute < w.EndMin
}

// spans returns the window as non-wrapping [start, end) intervals in day
// minutes; a wrap-around window yields two.
func (w Window) spans() [][2]int {
	if w.StartMin < w.EndMin {
		return [][2]int{{w.StartMin, w.EndMin}}
	}
	return [][2]int{{w.StartMin, minutesPerDay}, {0, w.EndMin}}
}

// PolicySet holds the configured windows. Overlapping windows are a
// configuration error and rejected at construction.
type PolicySet struct {
	windows []Window
}

func NewPolicySet(cfgs []config.WindowConfig) (*PolicySet, error) {
	windows := make([]Window, 0, len(cfgs))
	for _, cfg := range cfgs {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			return nil, fmt.Errorf("policy window without a name")
		}
		start, err := parseDayMinute(cfg.Start)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		end, err := parseDayMinute(cfg.End)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		if cfg.Interval <= 0 {
			return nil, fmt.Errorf("policy %s: interval must be positive", name)
		}
		windows = append(windows, Window{
			Name:     name,
			StartMin: start,
			EndMin:   end,
			Interval: cfg.Interval,
		})
	}

	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			if windowsOverlap(windows[i], windows[j]) {
				return nil, fmt.Errorf("%w: %s and %s", ErrWindowOverlap, windows[i].Name, windows[j].Name)
			}
		}
	}

	return &PolicySet{windows: windows}, nil
}

// Active resolves which policy covers the given time.
func (p *PolicySet) Active(t time.Time) (Window, bool) {
	minute := t.Hour()*60 + t.Minute()
	for _, window := range p.windows {
		if window.contains(minute) {
			return window, true
		}
	}
	return Window{}, false
}

func (p *PolicySet) Window(name string) (Window, bool) {
	for _, window := range p.windows {
		if window.Name == name {
			return window, true
		}
	}
	return Window{}, false
}

func (p *PolicySet) Names() []string {
	names := make([]string, 0, len(p.windows))
	for _, window := range p.windows {
		names = append(names, window.Name)
	}
	return names
}

func (p *PolicySet) Windows() []Window {
	out := make([]Window, len(p.windows))
	copy(out, p.windows)
	return out
}

func windowsOverlap(a, b Window) bool {
	for _, sa := range a.spans() {
		for _, sb := range b.spans() {
			if sa[0] < sb[1] && sb[0] < sa[1] {
				return true
			}
		}
	}
	return false
}

func parseDayMinute(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	return hour*60 + minute, nil
}
