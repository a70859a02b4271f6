package camera

import (
	"bytes"
	"image/jpeg"
	"log"
	"net/http"
	"time"
)

const (
	mjpegChunkSize   = 16 * 1024
	mjpegBufferCap   = 200 * 1024
	mjpegBufferKeep  = 100 * 1024
	mjpegRetryDelay  = 2 * time.Second
	mjpegConnTimeout = 5 * time.Second
)

// MJPEGSource reads a continuous multipart JPEG stream and publishes each
// complete frame. Connection failures retry indefinitely; only Stop (or a
// profile swap) ends the loop.
type MJPEGSource struct {
	cameraID string
	url      string
	client   *http.Client
	cell     *cell
	stopCh   chan struct{}
}

// NewMJPEGSource starts the stream reader for a push camera.
func NewMJPEGSource(cameraID, url string) *MJPEGSource {
	s := &MJPEGSource{
		cameraID: cameraID,
		url:      url,
		client:   &http.Client{Timeout: 0}, // streaming body, no overall deadline
		cell:     newCell(frameMaxAge),
		stopCh:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Latest returns the most recent frame within the staleness bound.
func (s *MJPEGSource) Latest() (*Frame, bool) {
	return s.cell.get()
}

// Stop halts the stream reader.
func (s *MJPEGSource) Stop() {
	close(s.stopCh)
}

func (s *MJPEGSource) run() {
	log.Printf("[Capture] %s: starting MJPEG stream from %s", s.cameraID, s.url)

	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.consumeStream(); err != nil {
			failures++
			if failures%failureLogEvery == 0 {
				log.Printf("[Capture] %s: stream error (attempt %d): %v", s.cameraID, failures, err)
			}
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(mjpegRetryDelay):
		}
	}
}

func (s *MJPEGSource) consumeStream() error {
	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	buffer := make([]byte, 0, mjpegBufferCap)
	chunk := make([]byte, mjpegChunkSize)

	for {
		select {
		case <-s.stopCh:
			return nil
		default:
		}

		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			for {
				frame := ExtractJPEG(&buffer)
				if frame == nil {
					break
				}
				s.publish(frame)
			}
			// Bound the partial-frame buffer so a stalled or corrupt
			// stream cannot grow it without limit.
			if len(buffer) > mjpegBufferCap {
				buffer = append(buffer[:0:0], buffer[len(buffer)-mjpegBufferKeep:]...)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (s *MJPEGSource) publish(jpegData []byte) {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		// Decode failure means no frame this cycle; keep reading.
		return
	}
	s.cell.set(&Frame{
		CameraID:  s.cameraID,
		JPEG:      jpegData,
		Image:     img,
		Timestamp: time.Now(),
	})
}

// ExtractJPEG extracts one complete JPEG (SOI 0xFFD8 .. EOI 0xFFD9) from
// the buffer, consuming it. Returns nil when no complete frame is present.
func ExtractJPEG(buffer *[]byte) []byte {
	b := *buffer
	if len(b) < 4 {
		return nil
	}

	startIdx := -1
	for i := 0; i < len(b)-1; i++ {
		if b[i] == 0xFF && b[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	endIdx := -1
	for i := startIdx + 2; i < len(b)-1; i++ {
		if b[i] == 0xFF && b[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, b[startIdx:endIdx])
	*buffer = b[endIdx:]
	return frame
}
