package monitor

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTamper(clock *fakeClock) *TamperMonitor {
	m := NewTamperMonitor(30, 5*time.Second)
	m.SetNowFunc(clock.now)
	return m
}

func TestTamperFiresOnceAfterDwell(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestTamper(clock)

	fired := 0
	// Dark frames at 1s intervals for 6 seconds.
	for i := 0; i <= 6; i++ {
		if m.EvaluateBrightness("cam1", 10) {
			fired++
		}
		clock.advance(time.Second)
	}
	assert.Equal(t, 1, fired, "exactly one tamper alert per dark episode")
}

func TestTamperNoAlertBeforeDwell(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestTamper(clock)

	for i := 0; i < 4; i++ {
		assert.False(t, m.EvaluateBrightness("cam1", 10))
		clock.advance(time.Second)
	}
}

func TestTamperRecoveryClearsState(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestTamper(clock)

	// Dark for 6s, fires once.
	fired := 0
	for i := 0; i <= 6; i++ {
		if m.EvaluateBrightness("cam1", 10) {
			fired++
		}
		clock.advance(time.Second)
	}
	assert.Equal(t, 1, fired)

	// Brightness recovers: state clears, no alert.
	assert.False(t, m.EvaluateBrightness("cam1", 200))

	// Dark again: timer restarts from zero, so no immediate alert.
	assert.False(t, m.EvaluateBrightness("cam1", 10))
	clock.advance(6 * time.Second)
	assert.True(t, m.EvaluateBrightness("cam1", 10), "re-armed after recovery")
}

func TestTamperCannotRefireWhileContinuouslyDark(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestTamper(clock)

	fired := 0
	for i := 0; i < 120; i++ {
		if m.EvaluateBrightness("cam1", 5) {
			fired++
		}
		clock.advance(time.Second)
	}
	assert.Equal(t, 1, fired)
}

func TestTamperStateIsPerCamera(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestTamper(clock)

	m.EvaluateBrightness("cam1", 10)
	m.EvaluateBrightness("cam2", 10)
	clock.advance(6 * time.Second)

	assert.True(t, m.EvaluateBrightness("cam1", 10))
	assert.True(t, m.EvaluateBrightness("cam2", 10))
}

func TestMeanBrightness(t *testing.T) {
	dark := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			dark.Set(x, y, color.RGBA{10, 10, 10, 255})
		}
	}
	assert.InDelta(t, 10, MeanBrightness(dark), 1.5)

	bright := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			bright.Set(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	assert.InDelta(t, 200, MeanBrightness(bright), 1.5)
}

func TestTamperScenarioSixDarkSecondsThenRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := newTestTamper(clock)

	fired := 0
	for second := 0; second < 6; second++ {
		if m.EvaluateBrightness("cam1", 10) {
			fired++
		}
		clock.advance(time.Second)
	}
	assert.Equal(t, 1, fired)

	// Second 7: brightness 200 clears tamper state.
	assert.False(t, m.EvaluateBrightness("cam1", 200))
	m.mu.Lock()
	_, tracked := m.states["cam1"]
	m.mu.Unlock()
	assert.False(t, tracked)
}
