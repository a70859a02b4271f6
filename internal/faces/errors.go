package faces

import "errors"

var (
	errWorkerBusy    = errors.New("face worker busy")
	errServiceClosed = errors.New("face service closed")
	errNoFaceFound   = errors.New("no face found in image")
)

// ErrNoFaceFound reports whether a registration failed because the
// sample photo contained no detectable face.
func ErrNoFaceFound(err error) bool {
	return errors.Is(err, errNoFaceFound)
}
