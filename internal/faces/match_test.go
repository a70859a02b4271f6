package faces

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vivek9454/FalconEye/internal/detect"
)

func jpegConfig(data []byte) (image.Config, error) {
	return jpeg.DecodeConfig(bytes.NewReader(data))
}

func TestEuclideanMetricFor128DimVectors(t *testing.T) {
	a := vec128(0)
	b := vec128(0)
	b[0] = 0.5

	assert.InDelta(t, 0.5, distance(a, b), 1e-6)

	known := map[string][][]float32{"Alice": {a}}
	name, dist := BestMatch(b, known, DefaultTolerance)
	assert.Equal(t, "Alice", name)
	assert.InDelta(t, 0.5, dist, 1e-6)

	// Just past the tolerance: no match.
	b[0] = 0.7
	name, _ = BestMatch(b, known, DefaultTolerance)
	assert.Equal(t, "", name)
}

func TestCosineMetricForLargerVectors(t *testing.T) {
	a := make([]float32, 512)
	b := make([]float32, 512)
	for i := range a {
		a[i] = 1
		b[i] = 1
	}

	// Identical direction: cosine distance 0.
	assert.InDelta(t, 0, distance(a, b), 1e-6)

	// Orthogonal vectors: cosine distance 1, far beyond tolerance.
	orth := make([]float32, 512)
	for i := range orth {
		if i%2 == 0 {
			orth[i] = 1
		} else {
			orth[i] = -1
		}
	}
	assert.InDelta(t, 1, distance(a, orth), 1e-6)

	known := map[string][][]float32{"Bob": {a}}
	name, _ := BestMatch(orth, known, DefaultTolerance)
	assert.Equal(t, "", name)

	name, _ = BestMatch(a, known, DefaultTolerance)
	assert.Equal(t, "Bob", name)
}

func TestMismatchedDimensionsNeverMatch(t *testing.T) {
	assert.True(t, math.IsInf(distance(vec128(1), make([]float32, 512)), 1))

	known := map[string][][]float32{"Alice": {make([]float32, 512)}}
	name, _ := BestMatch(vec128(1), known, DefaultTolerance)
	assert.Equal(t, "", name)
}

func TestBestMatchPicksClosestIdentity(t *testing.T) {
	probe := vec128(0.5)
	near := vec128(0.51)
	far := vec128(0.58)

	known := map[string][][]float32{
		"Near": {near},
		"Far":  {far},
	}
	name, _ := BestMatch(probe, known, DefaultTolerance)
	assert.Equal(t, "Near", name)
}

func TestCropRegionUpscalesSmallFaces(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			frame.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}

	// 40x60 box: short side below the model minimum, must be enlarged.
	data, err := CropRegion(frame, detect.BBox{X1: 100, Y1: 100, X2: 140, Y2: 160})
	require.NoError(t, err)

	cfg, err := jpegConfig(data)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, min(cfg.Width, cfg.Height), 160)

	// A large box passes through at native size.
	data, err = CropRegion(frame, detect.BBox{X1: 0, Y1: 0, X2: 200, Y2: 300})
	require.NoError(t, err)
	cfg, err = jpegConfig(data)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 300, cfg.Height)

	// A box fully outside the frame is an error.
	_, err = CropRegion(frame, detect.BBox{X1: 700, Y1: 500, X2: 800, Y2: 600})
	assert.Error(t, err)
}
