package detect

// SurveillanceClasses is the fixed set of object classes considered
// security-relevant for home surveillance.
var SurveillanceClasses = map[string]bool{
	"person":     true,
	"car":        true,
	"truck":      true,
	"bicycle":    true,
	"motorcycle": true,
	"dog":        true,
	"cat":        true,
}

// BBox is a bounding box in frame pixel space (x1,y1 top-left, x2,y2 bottom-right).
type BBox struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// Area returns the box area in square pixels.
func (b BBox) Area() float32 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Center returns the box center point.
func (b BBox) Center() (float32, float32) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Detection is a single object detection result.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float32 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// IsSurveillanceClass reports whether class is in the fixed surveillance set.
func IsSurveillanceClass(class string) bool {
	return SurveillanceClasses[class]
}
