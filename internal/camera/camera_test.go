package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeTestJPEG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestExtractJPEGCompleteFrame(t *testing.T) {
	frame := encodeTestJPEG(t, color.White)
	buffer := append([]byte{0x00, 0x01}, frame...) // leading garbage
	buffer = append(buffer, 0xAB)                  // trailing partial data

	got := ExtractJPEG(&buffer)
	require.NotNil(t, got)
	assert.Equal(t, frame, got)
	assert.Equal(t, []byte{0xAB}, buffer)
}

func TestExtractJPEGIncompleteFrame(t *testing.T) {
	frame := encodeTestJPEG(t, color.White)
	buffer := append([]byte{}, frame[:len(frame)-2]...) // missing EOI

	got := ExtractJPEG(&buffer)
	assert.Nil(t, got)
	assert.Len(t, buffer, len(frame)-2)
}

func TestExtractJPEGBackToBackFrames(t *testing.T) {
	a := encodeTestJPEG(t, color.White)
	b := encodeTestJPEG(t, color.Black)
	buffer := append(append([]byte{}, a...), b...)

	first := ExtractJPEG(&buffer)
	second := ExtractJPEG(&buffer)
	third := ExtractJPEG(&buffer)

	assert.Equal(t, a, first)
	assert.Equal(t, b, second)
	assert.Nil(t, third)
}

func TestCellStalenessBound(t *testing.T) {
	c := newCell(10 * time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.set(&Frame{CameraID: "cam1", Timestamp: now})
	_, ok := c.get()
	assert.True(t, ok)

	now = now.Add(11 * time.Second)
	_, ok = c.get()
	assert.False(t, ok, "frame older than max age must be absent")
}

func TestCellEmpty(t *testing.T) {
	c := newCell(10 * time.Second)
	_, ok := c.get()
	assert.False(t, ok)
}

func TestSnapshotSourceFetchesAndDecodes(t *testing.T) {
	frame := encodeTestJPEG(t, color.White)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(frame)
	}))
	defer srv.Close()

	src := NewSnapshotSource("cam1", srv.URL)
	defer src.Stop()

	var got *Frame
	require.Eventually(t, func() bool {
		f, ok := src.Latest()
		got = f
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, "cam1", got.CameraID)
	assert.Equal(t, frame, got.JPEG)
	assert.NotNil(t, got.Image)
}

func TestSnapshotSourceSurvivesServerErrors(t *testing.T) {
	frame := encodeTestJPEG(t, color.White)
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(frame)
	}))
	defer srv.Close()

	src := NewSnapshotSource("cam1", srv.URL)
	defer src.Stop()

	_, ok := src.Latest()
	assert.False(t, ok)

	fail = false
	assert.Eventually(t, func() bool {
		_, ok := src.Latest()
		return ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestManagerRejectsDuplicateCamera(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m := NewManager()
	defer m.StopAll()

	require.NoError(t, m.Start(Config{ID: "cam1", URL: srv.URL, Kind: KindSnapshot}))
	err := m.Start(Config{ID: "cam1", URL: srv.URL, Kind: KindSnapshot})
	assert.Error(t, err)
}

func TestManagerUnknownKind(t *testing.T) {
	m := NewManager()
	err := m.Start(Config{ID: "cam1", URL: "http://example", Kind: "rtsp"})
	assert.Error(t, err)
}
