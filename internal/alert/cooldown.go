package alert

import (
	"sync"
	"time"
)

// Kind identifies an alert category. Cooldowns are enforced per
// (camera, kind) pair.
type Kind string

const (
	KindDetection  Kind = "detection"
	KindTampering  Kind = "tampering"
	KindLingering  Kind = "lingering"
	KindMovement   Kind = "suspicious_movement"
	KindNight      Kind = "night_intruder"
)

type cooldownKey struct {
	cameraID string
	kind     Kind
}

// Cooldowns suppresses repeat alerts of the same kind for the same
// camera inside a fixed window. The table is shared between the intruder
// monitor and the dispatcher so both gate against the same timestamps.
type Cooldowns struct {
	window  time.Duration
	mu      sync.Mutex
	last    map[cooldownKey]time.Time
	perKind map[Kind]time.Duration
	now     func() time.Time
}

// NewCooldowns creates a cooldown table with the given default window.
func NewCooldowns(window time.Duration) *Cooldowns {
	return &Cooldowns{
		window:  window,
		last:    make(map[cooldownKey]time.Time),
		perKind: make(map[Kind]time.Duration),
		now:     time.Now,
	}
}

// SetKindWindow overrides the window for one alert kind. Plain object
// detections repeat far more often than intruder alerts, so they get a
// shorter window.
func (c *Cooldowns) SetKindWindow(kind Kind, window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perKind[kind] = window
}

// SetNowFunc overrides the clock, for tests.
func (c *Cooldowns) SetNowFunc(now func() time.Time) {
	c.now = now
}

// Allow reports whether an alert of kind may fire for cameraID, and if
// so records the firing time. Check and set happen under one lock.
func (c *Cooldowns) Allow(cameraID string, kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	window := c.window
	if w, ok := c.perKind[kind]; ok {
		window = w
	}

	key := cooldownKey{cameraID: cameraID, kind: kind}
	now := c.now()
	if last, ok := c.last[key]; ok && now.Sub(last) < window {
		return false
	}
	c.last[key] = now
	return true
}
