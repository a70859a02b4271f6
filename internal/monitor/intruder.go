package monitor

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/Vivek9454/FalconEye/internal/alert"
	"github.com/Vivek9454/FalconEye/internal/detect"
)

const (
	// DefaultLingerThreshold is how long a person must be continuously
	// observed before the lingering alert fires.
	DefaultLingerThreshold = 30 * time.Second
	// DefaultSpeedThreshold is the center-point speed (px/s) above which
	// movement counts as suspicious.
	DefaultSpeedThreshold = 5.0
	// movementWindow bounds the position history used for speed analysis.
	movementWindow = 5 * time.Second
)

// IntruderConfig tunes the intruder monitor.
type IntruderConfig struct {
	LingerThreshold time.Duration
	SpeedThreshold  float64
	NightStartHour  int // inclusive, default 22
	NightEndHour    int // exclusive, default 6
}

type positionSample struct {
	cx, cy float64
	at     time.Time
}

// personTrack follows one positional track. Tracks are keyed by the
// detection's index within the frame, which is not temporally robust:
// index reuse across frames can attribute history to the wrong person.
type personTrack struct {
	firstSeen time.Time
	lastSeen  time.Time
	samples   []positionSample
}

// IntruderMonitor evaluates person detections per camera for lingering
// presence, rapid movement, and night-time presence. All three
// sub-detectors are independent; each consumes its own cooldown key from
// the shared table when it fires.
type IntruderMonitor struct {
	cfg       IntruderConfig
	cooldowns *alert.Cooldowns
	now       func() time.Time

	mu     sync.Mutex
	tracks map[string]*personTrack
}

// NewIntruderMonitor creates an intruder monitor sharing the given
// cooldown table with the alert dispatcher.
func NewIntruderMonitor(cfg IntruderConfig, cooldowns *alert.Cooldowns) *IntruderMonitor {
	if cfg.LingerThreshold <= 0 {
		cfg.LingerThreshold = DefaultLingerThreshold
	}
	if cfg.SpeedThreshold <= 0 {
		cfg.SpeedThreshold = DefaultSpeedThreshold
	}
	if cfg.NightStartHour == 0 {
		cfg.NightStartHour = 22
	}
	if cfg.NightEndHour == 0 {
		cfg.NightEndHour = 6
	}
	return &IntruderMonitor{
		cfg:       cfg,
		cooldowns: cooldowns,
		now:       time.Now,
		tracks:    make(map[string]*personTrack),
	}
}

// SetNowFunc overrides the clock, for tests.
func (m *IntruderMonitor) SetNowFunc(now func() time.Time) {
	m.now = now
}

// Evaluate updates tracks from this cycle's filtered detections and
// returns the alert kinds that fired. Several kinds may fire in one
// evaluation when conditions hold simultaneously.
func (m *IntruderMonitor) Evaluate(cameraID string, detections []detect.Detection) []alert.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var fired []alert.Kind

	for i, d := range detections {
		if d.Class != "person" {
			continue
		}

		key := fmt.Sprintf("%s_person_%d", cameraID, i)
		track, ok := m.tracks[key]
		if !ok {
			track = &personTrack{firstSeen: now}
			m.tracks[key] = track
		}
		track.lastSeen = now

		if now.Sub(track.firstSeen) >= m.cfg.LingerThreshold {
			if m.cooldowns.Allow(cameraID, alert.KindLingering) {
				log.Printf("[Intruder] %s: lingering person detected", cameraID)
				fired = append(fired, alert.KindLingering)
			}
		}

		cx, cy := d.BBox.Center()
		track.samples = append(track.samples, positionSample{cx: float64(cx), cy: float64(cy), at: now})
		track.samples = trimWindow(track.samples, now, movementWindow)

		if speed, ok := trackSpeed(track.samples); ok && speed > m.cfg.SpeedThreshold {
			if m.cooldowns.Allow(cameraID, alert.KindMovement) {
				log.Printf("[Intruder] %s: suspicious movement (%.1f px/s)", cameraID, speed)
				fired = append(fired, alert.KindMovement)
			}
		}

		if m.isNight(now) {
			if m.cooldowns.Allow(cameraID, alert.KindNight) {
				log.Printf("[Intruder] %s: person present during night hours", cameraID)
				fired = append(fired, alert.KindNight)
			}
		}
	}

	m.gc(now)
	return fired
}

func (m *IntruderMonitor) isNight(now time.Time) bool {
	hour := now.Hour()
	return hour >= m.cfg.NightStartHour || hour < m.cfg.NightEndHour
}

// gc purges tracks idle beyond twice the lingering threshold.
func (m *IntruderMonitor) gc(now time.Time) {
	maxIdle := 2 * m.cfg.LingerThreshold
	for key, track := range m.tracks {
		if now.Sub(track.lastSeen) > maxIdle {
			delete(m.tracks, key)
		}
	}
}

func trimWindow(samples []positionSample, now time.Time, window time.Duration) []positionSample {
	cut := 0
	for cut < len(samples) && now.Sub(samples[cut].at) >= window {
		cut++
	}
	return samples[cut:]
}

// trackSpeed computes displacement between the oldest and newest sample
// divided by elapsed time. Needs more than two samples, like the
// original heuristic.
func trackSpeed(samples []positionSample) (float64, bool) {
	if len(samples) <= 2 {
		return 0, false
	}
	first, last := samples[0], samples[len(samples)-1]
	dt := last.at.Sub(first.at).Seconds()
	if dt <= 0 {
		return 0, false
	}
	dx := last.cx - first.cx
	dy := last.cy - first.cy
	return math.Sqrt(dx*dx+dy*dy) / dt, true
}
