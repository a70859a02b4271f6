package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Vivek9454/FalconEye/internal/alert"
	"github.com/Vivek9454/FalconEye/internal/annotate"
	"github.com/Vivek9454/FalconEye/internal/camera"
	"github.com/Vivek9454/FalconEye/internal/detect"
	"github.com/Vivek9454/FalconEye/internal/faces"
	"github.com/Vivek9454/FalconEye/internal/metrics"
	"github.com/Vivek9454/FalconEye/internal/monitor"
	"github.com/Vivek9454/FalconEye/internal/recorder"
	"github.com/Vivek9454/FalconEye/internal/vision"
	"github.com/Vivek9454/FalconEye/internal/ws"
)

const (
	// liveConfThreshold is deliberately permissive; the live loop wants
	// to see things early, recording re-checks at high confidence.
	liveConfThreshold = 0.5
	// liveMinArea drops speckle-sized boxes from the live view.
	liveMinArea = 500
	// loopInterval paces each camera loop (~10 Hz).
	loopInterval = 100 * time.Millisecond
	// errorLogEvery throttles repeated detector error logs.
	errorLogEvery = 50
)

// Config wires a detection loop. Faces, Hub and Metrics may be nil.
type Config struct {
	Detector     detect.Detector
	Settings     *vision.Store
	Tamper       *monitor.TamperMonitor
	Intruder     *monitor.IntruderMonitor
	Dispatcher   *alert.Dispatcher
	Recorder     *recorder.Coordinator
	Faces        *faces.Service
	Hub          *ws.Hub
	Metrics      *metrics.Metrics
	ClipDuration time.Duration
}

// Loop runs the per-camera detection cycle: frame in, tamper check,
// object detection, face recognition, intruder analysis, alert out,
// recording trigger.
type Loop struct {
	cfg Config

	mu        sync.Mutex
	cams      map[string]*camState
	annotated map[string][]byte
}

type camState struct {
	src        camera.Source
	stop       chan struct{}
	lastTS     time.Time
	frameCount int
	errorCount int
	lastNames  []string
}

// NewLoop creates a detection loop.
func NewLoop(cfg Config) *Loop {
	if cfg.ClipDuration <= 0 {
		cfg.ClipDuration = 12 * time.Second
	}
	return &Loop{
		cfg:       cfg,
		cams:      make(map[string]*camState),
		annotated: make(map[string][]byte),
	}
}

// Watch starts the detection cycle for one camera.
func (l *Loop) Watch(cameraID string, src camera.Source) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.cams[cameraID]; ok {
		return fmt.Errorf("camera %s is already being watched", cameraID)
	}

	st := &camState{src: src, stop: make(chan struct{})}
	l.cams[cameraID] = st

	go l.run(cameraID, st)
	log.Printf("[Pipeline] Watching camera %s", cameraID)
	return nil
}

// Stop halts all camera loops.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, st := range l.cams {
		close(st.stop)
		delete(l.cams, id)
	}
}

// AnnotatedFrame returns the latest overlay-rendered frame for live
// viewing, if one has been produced yet.
func (l *Loop) AnnotatedFrame(cameraID string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	frame, ok := l.annotated[cameraID]
	return frame, ok
}

func (l *Loop) run(cameraID string, st *camState) {
	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			l.step(cameraID, st)
		}
	}
}

// step processes at most one new frame.
func (l *Loop) step(cameraID string, st *camState) {
	frame, ok := st.src.Latest()
	if !ok || !frame.Timestamp.After(st.lastTS) {
		return
	}
	st.lastTS = frame.Timestamp
	st.frameCount++

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.FramesProcessed.WithLabelValues(cameraID).Inc()
	}

	settings := l.cfg.Settings.Snapshot()

	// Camera tampering is checked on every frame, detections or not: a
	// covered lens produces no detections at all.
	if frame.Image != nil && l.cfg.Tamper.Evaluate(cameraID, frame.Image) {
		l.fire(cameraID, alert.KindTampering, nil)
	}

	detections, err := l.cfg.Detector.Detect(context.Background(), frame.JPEG, liveConfThreshold)
	if err != nil {
		st.errorCount++
		if st.errorCount%errorLogEvery == 1 {
			log.Printf("[Pipeline] %s: detection failed (%d errors): %v", cameraID, st.errorCount, err)
		}
		return
	}
	st.errorCount = 0

	filtered := detect.FilterSurveillance(detections, detect.FilterOptions{
		MinArea:        liveMinArea,
		EnabledClasses: settings.EnabledClasses,
	})

	if l.cfg.Metrics != nil {
		for _, d := range filtered {
			l.cfg.Metrics.Detections.WithLabelValues(cameraID, d.Class).Inc()
		}
	}

	names := l.recognizeFaces(cameraID, st, frame, filtered, settings)

	// Behavioral analysis has consumed its own cooldowns; fire directly.
	for _, kind := range l.cfg.Intruder.Evaluate(cameraID, filtered) {
		l.fire(cameraID, kind, detect.ClassSet(filtered))
	}

	l.maybeAlertAndRecord(cameraID, st, filtered, names, settings)
	l.publish(cameraID, frame, filtered, names, settings)
}

// recognizeFaces samples person crops through the recognition worker
// and returns the identities seen on this frame. Recognition runs every
// Nth frame; in between, the previous result is reused so overlays and
// tags do not flicker.
func (l *Loop) recognizeFaces(cameraID string, st *camState, frame *camera.Frame, detections []detect.Detection, settings vision.Settings) []string {
	if l.cfg.Faces == nil || !settings.Faces.Enabled || !l.cfg.Faces.Enabled() {
		return nil
	}

	sampleEvery := settings.Faces.SampleEvery
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	if st.frameCount%sampleEvery != 0 {
		return st.lastNames
	}

	var names []string
	seen := make(map[string]bool)
	for _, d := range detections {
		if d.Class != "person" || frame.Image == nil {
			continue
		}
		crop, err := faces.CropRegion(frame.Image, d.BBox)
		if err != nil {
			continue
		}
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.FaceLookups.Inc()
		}
		for _, name := range l.cfg.Faces.Identify(crop, settings.Faces.Tolerance) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	st.lastNames = names
	return names
}

// maybeAlertAndRecord raises the plain detection alert and starts a
// clip when something alert-worthy is in frame.
func (l *Loop) maybeAlertAndRecord(cameraID string, st *camState, detections []detect.Detection, names []string, settings vision.Settings) {
	alertWorthy := false
	for _, d := range detections {
		if d.BBox.Area() >= settings.MinArea {
			alertWorthy = true
			break
		}
	}
	if !alertWorthy {
		return
	}

	tags := detect.ClassSet(detections)
	if len(names) > 0 && settings.Faces.HidePersonIfNamed {
		// A named face makes the generic person tag redundant.
		kept := tags[:0]
		for _, t := range tags {
			if t != "person" {
				kept = append(kept, t)
			}
		}
		tags = kept
	}
	for _, name := range names {
		tags = append(tags, "face:"+name)
	}

	l.cfg.Dispatcher.Notify(cameraID, alert.KindDetection, tags)

	if l.cfg.Recorder != nil {
		started := l.cfg.Recorder.StartIfIdle(cameraID, st.src, l.cfg.ClipDuration, tags, detect.FilterOptions{
			EnabledClasses: settings.EnabledClasses,
		})
		if started && l.cfg.Metrics != nil {
			l.cfg.Metrics.Recordings.WithLabelValues(cameraID).Inc()
		}
	}
}

// fire dispatches an alert whose cooldown was already consumed by the
// monitor that produced it.
func (l *Loop) fire(cameraID string, kind alert.Kind, tags []string) {
	l.cfg.Dispatcher.Send(cameraID, kind, tags)
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.Alerts.WithLabelValues(cameraID, string(kind)).Inc()
	}
}

// publish renders the annotated frame for live viewers and pushes the
// detection result to WebSocket subscribers.
func (l *Loop) publish(cameraID string, frame *camera.Frame, detections []detect.Detection, names []string, settings vision.Settings) {
	boxes := make([]annotate.Box, 0, len(detections))
	for _, d := range detections {
		box := annotate.Box{Detection: d}
		if d.Class == "person" && len(names) > 0 && settings.Faces.Overlay {
			if settings.Faces.HidePersonIfNamed {
				box.Label = names[0]
			} else {
				box.Label = fmt.Sprintf("%s (person %.0f%%)", names[0], d.Confidence*100)
			}
		}
		boxes = append(boxes, box)
	}

	rendered := annotate.DrawDetections(frame.JPEG, boxes, settings)
	l.mu.Lock()
	l.annotated[cameraID] = rendered
	l.mu.Unlock()

	if l.cfg.Hub != nil {
		l.cfg.Hub.BroadcastDetections(cameraID, detections, names)
	}
}
