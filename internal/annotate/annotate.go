package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Vivek9454/FalconEye/internal/detect"
	"github.com/Vivek9454/FalconEye/internal/vision"
)

// fallbackColor is used for classes without a configured color.
var fallbackColor = color.RGBA{0, 230, 118, 255}

// Box is one rendered overlay: a detection plus an optional identity
// label, e.g. "person 92%" or "Alice".
type Box struct {
	Detection detect.Detection
	Label     string
}

// DrawDetections burns detection overlays into a JPEG frame according
// to the display settings. Decode or encode failures return the frame
// unchanged; a broken overlay must never drop a frame.
func DrawDetections(jpegData []byte, boxes []Box, settings vision.Settings) []byte {
	if !settings.ShowBoxes || len(boxes) == 0 {
		return jpegData
	}

	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return jpegData
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	for _, box := range boxes {
		det := box.Detection
		c := classColor(det.Class, settings.Colors)
		x := int(det.BBox.X1)
		y := int(det.BBox.Y1)
		w := int(det.BBox.X2 - det.BBox.X1)
		h := int(det.BBox.Y2 - det.BBox.Y1)

		drawBox(rgba, x, y, w, h, c, 2)
		if settings.ShowLabels {
			label := box.Label
			if label == "" {
				label = fmt.Sprintf("%s %.0f%%", det.Class, det.Confidence*100)
			}
			drawLabel(rgba, x, y-5, label, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: 85}); err != nil {
		return jpegData
	}
	return buf.Bytes()
}

// classColor resolves the configured hex color for a class.
func classColor(class string, colors map[string]string) color.RGBA {
	if hex, ok := colors[class]; ok {
		if c, err := ParseHexColor(hex); err == nil {
			return c
		}
	}
	return fallbackColor
}

// ParseHexColor parses "#RRGGBB" (or "RRGGBB") into an opaque color.
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}, nil
}

func drawBox(img *image.RGBA, x, y, w, h int, c color.RGBA, thickness int) {
	bounds := img.Bounds()

	for t := 0; t < thickness; t++ {
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+t >= 0 && y+t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+t, c)
			}
			if y+h-t >= 0 && y+h-t < bounds.Max.Y && i >= 0 {
				img.Set(i, y+h-t, c)
			}
		}
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+t >= 0 && x+t < bounds.Max.X && j >= 0 {
				img.Set(x+t, j, c)
			}
			if x+w-t >= 0 && x+w-t < bounds.Max.X && j >= 0 {
				img.Set(x+w-t, j, c)
			}
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	// Dark backdrop so the text stays readable on any frame.
	bgColor := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			px, py := x+dx, y+dy
			if px >= 0 && px < img.Bounds().Max.X && py >= 0 && py < img.Bounds().Max.Y {
				img.Set(px, py, bgColor)
			}
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
