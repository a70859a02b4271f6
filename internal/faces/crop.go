package faces

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/Vivek9454/FalconEye/internal/detect"
)

const (
	// minCropSide is the short-side size below which a crop is too
	// small for the embedding model to work reliably.
	minCropSide = 80
	// upscaleSide is the short-side target when a crop gets enlarged.
	upscaleSide = 160
)

// CropRegion cuts the detection box out of a frame, enlarging small
// crops so the embedding model sees enough pixels, and returns it as
// JPEG bytes.
func CropRegion(frame image.Image, box detect.BBox) ([]byte, error) {
	bounds := frame.Bounds()

	r := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)).Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("detection box %v lies outside the frame", box)
	}

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Draw(crop, crop.Bounds(), frame, r.Min, xdraw.Src)

	out := image.Image(crop)
	if short := min(r.Dx(), r.Dy()); short < minCropSide {
		scale := float64(upscaleSide) / float64(short)
		dst := image.NewRGBA(image.Rect(0, 0,
			int(float64(r.Dx())*scale), int(float64(r.Dy())*scale)))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), crop, crop.Bounds(), xdraw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode face crop: %w", err)
	}
	return buf.Bytes(), nil
}
