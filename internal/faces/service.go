package faces

import (
	"log"
	"sync"
	"time"
)

const (
	// identifyTimeout bounds how long a caller waits on the worker; the
	// detection loop must not stall behind slow inference.
	identifyTimeout = 6 * time.Second
	// maxConsecutiveFailures trips the breaker. Once tripped the
	// service stays off until an operator re-enables it.
	maxConsecutiveFailures = 3
)

type identifyJob struct {
	image []byte
	reply chan identifyResult
}

type identifyResult struct {
	encodings [][]float32
	err       error
}

// Service runs face recognition requests through a single worker
// goroutine so the encoder only ever sees one image at a time.
type Service struct {
	encoder Encoder
	db      *DB
	timeout time.Duration

	jobs chan identifyJob
	done chan struct{}

	mu       sync.Mutex
	enabled  bool
	tripped  bool
	failures int
}

// NewService starts the recognition worker. The service begins enabled.
func NewService(encoder Encoder, db *DB) *Service {
	s := &Service{
		encoder: encoder,
		db:      db,
		timeout: identifyTimeout,
		jobs:    make(chan identifyJob),
		done:    make(chan struct{}),
		enabled: true,
	}
	go s.worker()
	return s
}

func (s *Service) worker() {
	for {
		select {
		case <-s.done:
			return
		case job := <-s.jobs:
			encodings, err := s.encoder.Encode(job.image)
			s.recordOutcome(err)
			job.reply <- identifyResult{encodings: encodings, err: err}
		}
	}
}

func (s *Service) recordOutcome(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.failures = 0
		return
	}
	s.failures++
	if s.failures >= maxConsecutiveFailures && !s.tripped {
		s.tripped = true
		s.enabled = false
		log.Printf("[Faces] Worker failed %d times in a row, disabling face recognition until re-enabled", s.failures)
	}
}

// Enabled reports whether the service accepts requests.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Tripped reports whether the breaker shut the service down.
func (s *Service) Tripped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tripped
}

// SetEnabled turns the service on or off. Enabling resets a tripped
// breaker; this is the only way back after repeated worker failures.
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
	if enabled {
		s.tripped = false
		s.failures = 0
	}
}

// encode pushes one image through the worker, bounded by the timeout.
func (s *Service) encode(jpegImage []byte) ([][]float32, error) {
	job := identifyJob{image: jpegImage, reply: make(chan identifyResult, 1)}

	select {
	case s.jobs <- job:
	case <-time.After(s.timeout):
		return nil, errWorkerBusy
	case <-s.done:
		return nil, errServiceClosed
	}

	select {
	case res := <-job.reply:
		return res.encodings, res.err
	case <-time.After(s.timeout):
		return nil, errWorkerBusy
	case <-s.done:
		return nil, errServiceClosed
	}
}

// Identify matches a face crop against the known-face database and
// returns the recognized names, deduplicated. A disabled service, a
// busy worker, or an encoder error all degrade to "nobody recognized"
// rather than failing the caller.
func (s *Service) Identify(jpegCrop []byte, tolerance float64) []string {
	if !s.Enabled() {
		return nil
	}

	encodings, err := s.encode(jpegCrop)
	if err != nil {
		if err != errWorkerBusy {
			log.Printf("[Faces] Encode failed: %v", err)
		}
		return nil
	}
	if len(encodings) == 0 {
		return nil
	}

	known := s.db.Snapshot()
	seen := make(map[string]bool)
	var names []string
	for _, enc := range encodings {
		name, _ := BestMatch(enc, known, tolerance)
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Register encodes a sample photo and stores its embeddings under the
// given name. The photo must contain at least one detectable face.
func (s *Service) Register(name string, jpegImage []byte) error {
	encodings, err := s.encode(jpegImage)
	if err != nil {
		return err
	}
	if len(encodings) == 0 {
		return errNoFaceFound
	}
	return s.db.Register(name, encodings)
}

// Close stops the worker and the underlying encoder.
func (s *Service) Close() error {
	close(s.done)
	return s.encoder.Close()
}
