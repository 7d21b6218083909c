package detection

import (
	"time"

	"github.com/drowsyguard/backend/internal/models"
)

// DebounceConfig controls when sustained drowsiness evidence raises an alarm.
type DebounceConfig struct {
	// TriggerFrames is the consecutive drowsy-frame count required to fire.
	TriggerFrames int
	// Cooldown is the minimum time between two alarms for the same session.
	Cooldown time.Duration
}

func (c DebounceConfig) withDefaults() DebounceConfig {
	if c.TriggerFrames <= 0 {
		c.TriggerFrames = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 10 * time.Second
	}
	return c
}

// Debouncer tracks the per-session drowsy streak and alarm cooldown. A single
// misclassified frame never alarms; while the condition persists, the cooldown
// prevents alarm flooding.
//
// Debouncer is not safe for concurrent use; the session registry serializes
// access per session.
type Debouncer struct {
	cfg       DebounceConfig
	streak    int
	lastAlarm time.Time
}

// NewDebouncer creates a debouncer with zero-value fields defaulted.
func NewDebouncer(cfg DebounceConfig) *Debouncer {
	return &Debouncer{cfg: cfg.withDefaults()}
}

// Observe advances the streak for one stabilized detection and reports whether
// the alarm fires on this frame. Any non-drowsy class resets the streak.
func (d *Debouncer) Observe(class string, now time.Time) bool {
	if class != models.ClassDrowsy {
		d.streak = 0
		return false
	}
	d.streak++
	if d.streak < d.cfg.TriggerFrames {
		return false
	}
	if !d.lastAlarm.IsZero() && now.Sub(d.lastAlarm) < d.cfg.Cooldown {
		return false
	}
	d.lastAlarm = now
	return true
}

// Streak returns the current consecutive drowsy-frame count.
func (d *Debouncer) Streak() int { return d.streak }
