package detect

// FilterOptions controls surveillance filtering for one call site.
// MinArea is the effective minimum box area; EnabledClasses maps class
// name to an enable flag (missing classes default to enabled).
type FilterOptions struct {
	MinArea        float32
	EnabledClasses map[string]bool
}

func (o FilterOptions) classEnabled(name string) bool {
	if o.EnabledClasses == nil {
		return true
	}
	enabled, ok := o.EnabledClasses[name]
	if !ok {
		return true
	}
	return enabled
}

// FilterSurveillance reduces raw detections to the security-relevant ones.
// A detection passes if its class is in the surveillance set, the class is
// enabled, and its box area is at least MinArea. The input is not mutated
// and the result is deterministic for the same inputs.
func FilterSurveillance(detections []Detection, opts FilterOptions) []Detection {
	var out []Detection
	for _, d := range detections {
		if !IsSurveillanceClass(d.Class) {
			continue
		}
		if !opts.classEnabled(d.Class) {
			continue
		}
		if d.BBox.Area() < opts.MinArea {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ClassSet returns the distinct class names of detections, preserving
// first-seen order.
func ClassSet(detections []Detection) []string {
	seen := make(map[string]bool, len(detections))
	var out []string
	for _, d := range detections {
		if !seen[d.Class] {
			seen[d.Class] = true
			out = append(out, d.Class)
		}
	}
	return out
}
