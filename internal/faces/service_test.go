package faces

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEncoder returns canned encodings keyed by image content.
type stubEncoder struct {
	responses map[string][][]float32
	err       error
	block     chan struct{}
}

func (e *stubEncoder) Encode(jpegImage []byte) ([][]float32, error) {
	if e.block != nil {
		<-e.block
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.responses[string(jpegImage)], nil
}

func (e *stubEncoder) Close() error { return nil }

func vec128(seed float32) []float32 {
	v := make([]float32, 128)
	for i := range v {
		v[i] = seed
	}
	return v
}

func newTestService(t *testing.T, enc Encoder) *Service {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "faces.json"))
	require.NoError(t, err)
	s := NewService(enc, db)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterThenIdentify(t *testing.T) {
	alice := vec128(0.5)
	enc := &stubEncoder{responses: map[string][][]float32{
		"alice-sample": {alice},
		"alice-later":  {vec128(0.501)},
		"stranger":     {vec128(-0.5)},
	}}
	s := newTestService(t, enc)

	require.NoError(t, s.Register("Alice", []byte("alice-sample")))

	assert.Equal(t, []string{"Alice"}, s.Identify([]byte("alice-later"), DefaultTolerance))
	assert.Empty(t, s.Identify([]byte("stranger"), DefaultTolerance))
}

func TestRegisterRequiresAFace(t *testing.T) {
	enc := &stubEncoder{responses: map[string][][]float32{}}
	s := newTestService(t, enc)

	err := s.Register("Nobody", []byte("empty-room"))
	require.Error(t, err)
	assert.True(t, ErrNoFaceFound(err))
}

func TestBreakerTripsAfterRepeatedFailures(t *testing.T) {
	enc := &stubEncoder{err: errors.New("model crashed")}
	s := newTestService(t, enc)

	for i := 0; i < maxConsecutiveFailures; i++ {
		assert.Empty(t, s.Identify([]byte("frame"), DefaultTolerance))
	}

	assert.True(t, s.Tripped())
	assert.False(t, s.Enabled())

	// While tripped, requests are rejected without touching the worker.
	assert.Empty(t, s.Identify([]byte("frame"), DefaultTolerance))

	// Only an explicit re-enable resets the breaker.
	s.SetEnabled(true)
	assert.False(t, s.Tripped())
	assert.True(t, s.Enabled())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	enc := &stubEncoder{err: errors.New("flaky")}
	s := newTestService(t, enc)

	for i := 0; i < maxConsecutiveFailures-1; i++ {
		s.Identify([]byte("frame"), DefaultTolerance)
	}
	enc.err = nil
	s.Identify([]byte("frame"), DefaultTolerance)
	enc.err = errors.New("flaky")
	for i := 0; i < maxConsecutiveFailures-1; i++ {
		s.Identify([]byte("frame"), DefaultTolerance)
	}

	assert.False(t, s.Tripped(), "non-consecutive failures must not trip the breaker")
}

func TestIdentifyTimesOutOnSlowWorker(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	enc := &stubEncoder{block: block}
	s := newTestService(t, enc)
	s.timeout = 50 * time.Millisecond

	// Occupy the worker with one request, then issue another.
	go s.Identify([]byte("slow"), DefaultTolerance)
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	names := s.Identify([]byte("queued"), DefaultTolerance)
	assert.Empty(t, names)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, s.Enabled(), "a busy worker is not a failure")
}
