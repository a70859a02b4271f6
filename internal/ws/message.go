package ws

import (
	"time"

	"github.com/Vivek9454/FalconEye/internal/alert"
	"github.com/Vivek9454/FalconEye/internal/detect"
)

// DetectionMessage is one frame's worth of detections for a camera.
type DetectionMessage struct {
	Type       string    `json:"type"` // "detection"
	CameraID   string    `json:"camera_id"`
	Timestamp  time.Time `json:"timestamp"`
	Objects    []Object  `json:"objects"`
	Identities []string  `json:"identities,omitempty"`
}

// Object is a single detected object.
type Object struct {
	Class      string    `json:"class"`
	Confidence float32   `json:"confidence"`
	BBox       []float32 `json:"bbox"` // [x1, y1, x2, y2] in pixels
}

// AlertMessage carries a dispatched alert to clients.
type AlertMessage struct {
	Type      string    `json:"type"` // "alert"
	ID        string    `json:"id"`
	CameraID  string    `json:"camera_id"`
	Kind      string    `json:"kind"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDetectionMessage creates an empty detection message.
func NewDetectionMessage(cameraID string) *DetectionMessage {
	return &DetectionMessage{
		Type:      "detection",
		CameraID:  cameraID,
		Timestamp: time.Now(),
		Objects:   make([]Object, 0),
	}
}

// AddObject appends a detection to the message.
func (m *DetectionMessage) AddObject(d detect.Detection) {
	m.Objects = append(m.Objects, Object{
		Class:      d.Class,
		Confidence: d.Confidence,
		BBox:       []float32{d.BBox.X1, d.BBox.Y1, d.BBox.X2, d.BBox.Y2},
	})
}

// NewAlertMessage wraps a dispatched alert event.
func NewAlertMessage(event alert.Event) *AlertMessage {
	return &AlertMessage{
		Type:      "alert",
		ID:        event.ID,
		CameraID:  event.CameraID,
		Kind:      string(event.Kind),
		Tags:      event.Tags,
		Timestamp: event.Timestamp,
	}
}
