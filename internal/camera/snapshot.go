package camera

import (
	"bytes"
	"image/jpeg"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	snapshotInterval = 100 * time.Millisecond // ~10 Hz
	snapshotTimeout  = 1500 * time.Millisecond
	frameMaxAge      = 10 * time.Second
	failureLogEvery  = 20
)

// SnapshotSource polls a camera that serves a single JPEG per GET.
// A dedicated loop fetches, decodes, and publishes into the latest-frame
// cell; readers see either a complete frame or nothing.
type SnapshotSource struct {
	cameraID string
	url      string
	client   *http.Client
	cell     *cell
	stopCh   chan struct{}
}

// NewSnapshotSource starts the capture loop for a pull camera.
func NewSnapshotSource(cameraID, url string) *SnapshotSource {
	s := &SnapshotSource{
		cameraID: cameraID,
		url:      url,
		client:   &http.Client{Timeout: snapshotTimeout},
		cell:     newCell(frameMaxAge),
		stopCh:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Latest returns the most recent frame within the staleness bound.
func (s *SnapshotSource) Latest() (*Frame, bool) {
	return s.cell.get()
}

// Stop halts the capture loop.
func (s *SnapshotSource) Stop() {
	close(s.stopCh)
}

func (s *SnapshotSource) run() {
	log.Printf("[Capture] %s: starting snapshot capture from %s", s.cameraID, s.url)

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	failures := 0
	captured := 0

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			frame, err := s.fetch()
			if err != nil {
				failures++
				if failures%failureLogEvery == 0 {
					log.Printf("[Capture] %s: fetch error (attempt %d): %v", s.cameraID, failures, err)
				}
				continue
			}
			failures = 0
			captured++
			s.cell.set(frame)
			if captured%50 == 0 {
				log.Printf("[Capture] %s: captured %d frames", s.cameraID, captured)
			}
		}
	}
}

func (s *SnapshotSource) fetch() (*Frame, error) {
	resp, err := s.client.Get(s.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return &Frame{
		CameraID:  s.cameraID,
		JPEG:      data,
		Image:     img,
		Timestamp: time.Now(),
	}, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}
