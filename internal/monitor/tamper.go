package monitor

import (
	"image"
	"log"
	"sync"
	"time"
)

const (
	// DefaultTamperThreshold is the mean grayscale brightness (0-255)
	// below which a frame counts as dark.
	DefaultTamperThreshold = 30.0
	// DefaultTamperDwell is how long darkness must persist before the
	// tamper alert fires.
	DefaultTamperDwell = 5 * time.Second
)

// tamperState tracks one camera's darkness episode.
type tamperState struct {
	startTime time.Time
	alertSent bool
}

// TamperMonitor detects prolonged darkness per camera: Normal →
// Darkening (first sub-threshold reading) → Tampered (continuously dark
// for the dwell time, fires exactly one alert). Brightness recovery
// resets to Normal immediately; the alert re-arms only via Normal.
type TamperMonitor struct {
	threshold float64
	dwell     time.Duration
	now       func() time.Time

	mu     sync.Mutex
	states map[string]*tamperState
}

// NewTamperMonitor creates a tamper monitor with the given brightness
// threshold and darkness dwell time.
func NewTamperMonitor(threshold float64, dwell time.Duration) *TamperMonitor {
	if threshold <= 0 {
		threshold = DefaultTamperThreshold
	}
	if dwell <= 0 {
		dwell = DefaultTamperDwell
	}
	return &TamperMonitor{
		threshold: threshold,
		dwell:     dwell,
		now:       time.Now,
		states:    make(map[string]*tamperState),
	}
}

// SetNowFunc overrides the clock, for tests.
func (m *TamperMonitor) SetNowFunc(now func() time.Time) {
	m.now = now
}

// Evaluate feeds one frame's brightness through the state machine and
// reports whether the tamper alert fired on this evaluation.
func (m *TamperMonitor) Evaluate(cameraID string, frame image.Image) bool {
	return m.EvaluateBrightness(cameraID, MeanBrightness(frame))
}

// EvaluateBrightness is Evaluate with a precomputed brightness value.
func (m *TamperMonitor) EvaluateBrightness(cameraID string, brightness float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if brightness >= m.threshold {
		// Recovered: clear all timers, no alert.
		delete(m.states, cameraID)
		return false
	}

	state, ok := m.states[cameraID]
	if !ok {
		m.states[cameraID] = &tamperState{startTime: now}
		return false
	}

	if now.Sub(state.startTime) >= m.dwell && !state.alertSent {
		state.alertSent = true
		log.Printf("[Tamper] %s: camera tampering detected (brightness %.1f)", cameraID, brightness)
		return true
	}
	return false
}

// MeanBrightness returns the mean grayscale brightness of img in 0-255.
func MeanBrightness(img image.Image) float64 {
	bounds := img.Bounds()
	if bounds.Empty() {
		return 0
	}

	var sum float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma on 16-bit channel values.
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			sum += luma / 257.0
		}
	}
	return sum / float64(bounds.Dx()*bounds.Dy())
}
