package camera

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// Kind selects the frame acquisition strategy for a camera.
type Kind string

const (
	// KindSnapshot polls a single-JPEG HTTP endpoint at a fixed interval.
	KindSnapshot Kind = "snapshot"
	// KindMJPEG reads a continuous multipart JPEG stream.
	KindMJPEG Kind = "mjpeg"
)

// Frame is one decoded camera frame. A published frame is immutable:
// consumers that draw on it must work on their own decoded copy.
type Frame struct {
	CameraID  string
	JPEG      []byte
	Image     image.Image
	Timestamp time.Time
}

// Source produces the latest decoded frame for one camera on demand.
type Source interface {
	// Latest returns the most recent frame, or ok=false when no frame is
	// available (never connected, or the held frame went stale).
	Latest() (*Frame, bool)

	// Stop halts the capture loop. Safe to call once.
	Stop()
}

// Config describes one camera.
type Config struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Kind Kind   `json:"kind"`
}

// cell is the single-slot latest-frame holder shared by both source
// kinds: one writer per camera, many readers, staleness bound on reads.
type cell struct {
	mu     sync.Mutex
	frame  *Frame
	maxAge time.Duration
	now    func() time.Time
}

func newCell(maxAge time.Duration) *cell {
	return &cell{maxAge: maxAge, now: time.Now}
}

func (c *cell) set(f *Frame) {
	c.mu.Lock()
	c.frame = f
	c.mu.Unlock()
}

func (c *cell) get() (*Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame == nil {
		return nil, false
	}
	if c.maxAge > 0 && c.now().Sub(c.frame.Timestamp) > c.maxAge {
		return nil, false
	}
	return c.frame, true
}

// Manager owns one running source per configured camera.
type Manager struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewManager creates an empty camera manager.
func NewManager() *Manager {
	return &Manager{sources: make(map[string]Source)}
}

// Start creates and runs a source for the camera configuration. Starting
// an already-running camera id is an error.
func (m *Manager) Start(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sources[cfg.ID]; exists {
		return fmt.Errorf("camera %s already started", cfg.ID)
	}

	var src Source
	switch cfg.Kind {
	case KindMJPEG:
		src = NewMJPEGSource(cfg.ID, cfg.URL)
	case KindSnapshot:
		src = NewSnapshotSource(cfg.ID, cfg.URL)
	default:
		return fmt.Errorf("camera %s: unknown kind %q", cfg.ID, cfg.Kind)
	}

	m.sources[cfg.ID] = src
	return nil
}

// Source returns the running source for a camera id.
func (m *Manager) Source(cameraID string) (Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[cameraID]
	return src, ok
}

// IDs returns the ids of all running cameras.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	return ids
}

// StopAll stops every source. Used when swapping camera profiles.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, src := range m.sources {
		src.Stop()
		delete(m.sources, id)
	}
}
