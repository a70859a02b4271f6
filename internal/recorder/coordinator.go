package recorder

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Vivek9454/FalconEye/internal/camera"
	"github.com/Vivek9454/FalconEye/internal/detect"
	"github.com/Vivek9454/FalconEye/internal/store"
)

const (
	// recordConfThreshold is intentionally high so tags burned into the
	// archived clip carry few false positives.
	recordConfThreshold = 0.9
	// recordMinArea is the box area floor used while recording.
	recordMinArea = 1000
	// stallTimeout aborts a session when the source yields no fresh
	// frame for this long.
	stallTimeout = 2 * time.Second
	// frameInterval paces frame acquisition (~10 fps).
	frameInterval = 100 * time.Millisecond
)

// Annotator renders detections onto a JPEG frame. A nil annotator
// records raw frames.
type Annotator func(jpegFrame []byte, detections []detect.Detection) []byte

// Config wires a Coordinator.
type Config struct {
	OutputDir     string
	FPS           float64
	Detector      detect.Detector
	Store         *store.Store
	WriterFactory WriterFactory
	Annotate      Annotator
	// OnClipSaved is invoked after metadata is persisted, typically to
	// trigger a background upload. May be nil.
	OnClipSaved func(clip store.ClipMetadata)
}

// Coordinator enforces at most one active recording per camera and
// manages the clip lifecycle.
type Coordinator struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	active map[string]bool
}

// NewCoordinator creates a recording coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	return &Coordinator{
		cfg:    cfg,
		now:    time.Now,
		active: make(map[string]bool),
	}
}

// SetNowFunc overrides the clock, for tests.
func (c *Coordinator) SetNowFunc(now func() time.Time) {
	c.now = now
}

// IsRecording reports whether a session is active for the camera.
func (c *Coordinator) IsRecording(cameraID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[cameraID]
}

// StartIfIdle atomically claims the camera and spawns a recording
// session. Returns false when a session is already active; there is no
// queuing and no preemption.
func (c *Coordinator) StartIfIdle(cameraID string, src camera.Source, duration time.Duration, initialTags []string, filterOpts detect.FilterOptions) bool {
	c.mu.Lock()
	if c.active[cameraID] {
		c.mu.Unlock()
		return false
	}
	c.active[cameraID] = true
	c.mu.Unlock()

	go func() {
		defer func() {
			// Release unconditionally, whatever the session outcome.
			c.mu.Lock()
			delete(c.active, cameraID)
			c.mu.Unlock()
		}()
		c.runSession(cameraID, src, duration, initialTags, filterOpts)
	}()
	return true
}

func (c *Coordinator) runSession(cameraID string, src camera.Source, duration time.Duration, initialTags []string, filterOpts detect.FilterOptions) {
	start := c.now()
	filename := clipFilename(start)
	path := filepath.Join(c.cfg.OutputDir, filename)

	log.Printf("[Recorder] %s: starting %s recording", cameraID, duration)

	tags := make(map[string]bool, len(initialTags))
	for _, t := range initialTags {
		tags[t] = true
	}

	var writer ClipWriter
	var firstFrame []byte
	framesWritten := 0
	lastFrameAt := c.now()
	lastSeen := time.Time{}

	defer func() {
		if writer != nil {
			if err := writer.Close(); err != nil {
				log.Printf("[Recorder] %s: close error: %v", cameraID, err)
			}
		}
		if framesWritten == 0 {
			// Nothing captured: discard output, persist nothing.
			discardClip(path)
			log.Printf("[Recorder] %s: no frames captured, clip discarded", cameraID)
			return
		}
		c.finishClip(cameraID, filename, path, start, duration, tags, firstFrame)
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for c.now().Sub(start) < duration {
		<-ticker.C

		frame, ok := src.Latest()
		if !ok || !frame.Timestamp.After(lastSeen) {
			if c.now().Sub(lastFrameAt) > stallTimeout {
				log.Printf("[Recorder] %s: stream stalled >%s, ending clip early", cameraID, stallTimeout)
				return
			}
			continue
		}
		lastSeen = frame.Timestamp
		lastFrameAt = c.now()

		if writer == nil {
			w, err := c.cfg.WriterFactory(path, c.cfg.FPS)
			if err != nil {
				log.Printf("[Recorder] %s: could not open clip writer: %v", cameraID, err)
				return
			}
			writer = w
			firstFrame = frame.JPEG
		}

		out := frame.JPEG
		if detections := c.detectTags(frame.JPEG, tags, filterOpts); detections != nil && c.cfg.Annotate != nil {
			out = c.cfg.Annotate(frame.JPEG, detections)
		}

		if err := writer.WriteFrame(out); err != nil {
			log.Printf("[Recorder] %s: write error, aborting session: %v", cameraID, err)
			return
		}
		framesWritten++
	}

	log.Printf("[Recorder] %s: captured %d frames", cameraID, framesWritten)
}

// detectTags runs high-confidence detection and folds the filtered
// classes into the tag set. A detector error skips tagging for the
// frame only.
func (c *Coordinator) detectTags(jpegFrame []byte, tags map[string]bool, filterOpts detect.FilterOptions) []detect.Detection {
	if c.cfg.Detector == nil {
		return nil
	}
	detections, err := c.cfg.Detector.Detect(context.Background(), jpegFrame, recordConfThreshold)
	if err != nil {
		return nil
	}
	if filterOpts.MinArea < recordMinArea {
		filterOpts.MinArea = recordMinArea
	}
	filtered := detect.FilterSurveillance(detections, filterOpts)
	for _, d := range filtered {
		tags[d.Class] = true
	}
	return filtered
}

func (c *Coordinator) finishClip(cameraID, filename, path string, start time.Time, duration time.Duration, tags map[string]bool, firstFrame []byte) {
	tagList := make([]string, 0, len(tags))
	for t := range tags {
		tagList = append(tagList, t)
	}
	sort.Strings(tagList)

	clip := store.ClipMetadata{
		Filename:  filename,
		CameraID:  cameraID,
		Tags:      tagList,
		Timestamp: start,
		Duration:  duration,
	}
	if c.cfg.Store != nil {
		if err := c.cfg.Store.SaveClip(clip); err != nil {
			log.Printf("[Recorder] %s: failed to persist clip metadata: %v", cameraID, err)
		}
	}

	c.saveThumbnail(path, firstFrame)

	if c.cfg.OnClipSaved != nil {
		c.cfg.OnClipSaved(clip)
	}
}

// saveThumbnail stores the first frame beside the clip for list views.
func (c *Coordinator) saveThumbnail(clipPath string, firstFrame []byte) {
	if len(firstFrame) == 0 {
		return
	}
	dir := filepath.Join(filepath.Dir(clipPath), "thumbnails")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[Recorder] Failed to create thumbnail dir: %v", err)
		return
	}
	name := strings.TrimSuffix(filepath.Base(clipPath), filepath.Ext(clipPath)) + ".jpg"
	if err := os.WriteFile(filepath.Join(dir, name), firstFrame, 0o644); err != nil {
		log.Printf("[Recorder] Failed to write thumbnail: %v", err)
	}
}

// clipFilename formats the clip name the mobile clients expect,
// e.g. clip_20250901_020304pm.mp4.
func clipFilename(t time.Time) string {
	return "clip_" + strings.ToLower(t.Format("20060102_030405PM")) + ".mp4"
}
