package annotate

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vivek9454/FalconEye/internal/detect"
	"github.com/Vivek9454/FalconEye/internal/vision"
)

func testFrame(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{128, 128, 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#00E676")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0x00, 0xE6, 0x76, 255}, c)

	c, err = ParseHexColor("FF0000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, c)

	_, err = ParseHexColor("#12345")
	assert.Error(t, err)
	_, err = ParseHexColor("#GGGGGG")
	assert.Error(t, err)
}

func TestDrawDetectionsModifiesFrame(t *testing.T) {
	frame := testFrame(t)
	boxes := []Box{{
		Detection: detect.Detection{
			Class:      "person",
			Confidence: 0.92,
			BBox:       detect.BBox{X1: 50, Y1: 50, X2: 150, Y2: 200},
		},
	}}

	out := DrawDetections(frame, boxes, vision.DefaultSettings())
	assert.NotEqual(t, frame, out, "overlay must change the image")

	// Output is still a decodable JPEG of the same size.
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
}

func TestDrawDetectionsRespectsShowBoxes(t *testing.T) {
	frame := testFrame(t)
	boxes := []Box{{
		Detection: detect.Detection{Class: "person", BBox: detect.BBox{X1: 10, Y1: 10, X2: 60, Y2: 60}},
	}}

	settings := vision.DefaultSettings()
	settings.ShowBoxes = false
	out := DrawDetections(frame, boxes, settings)
	assert.Equal(t, frame, out, "disabled overlays pass the frame through untouched")
}

func TestDrawDetectionsSurvivesBadInput(t *testing.T) {
	junk := []byte("not a jpeg")
	boxes := []Box{{
		Detection: detect.Detection{Class: "person", BBox: detect.BBox{X2: 10, Y2: 10}},
	}}
	out := DrawDetections(junk, boxes, vision.DefaultSettings())
	assert.Equal(t, junk, out)
}

func TestDrawDetectionsNoBoxesIsPassThrough(t *testing.T) {
	frame := testFrame(t)
	assert.Equal(t, frame, DrawDetections(frame, nil, vision.DefaultSettings()))
}
