package faces

import "math"

// Classic dlib-style embeddings are 128-dimensional and compared with
// Euclidean distance; newer models produce larger vectors that match
// better under cosine distance.
const (
	euclideanDims      = 128
	DefaultTolerance   = 0.6
	cosineTolerance    = 0.35
	toleranceReference = DefaultTolerance
)

// distance computes the dissimilarity between two vectors, choosing the
// metric from the vector dimensionality. Mismatched lengths yield +Inf
// so they can never match.
func distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	if len(a) == euclideanDims {
		return euclidean(a, b)
	}
	return cosineDistance(a, b)
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.Inf(1)
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// effectiveTolerance scales the configured tolerance (which users set
// on the Euclidean scale) onto the metric actually in use.
func effectiveTolerance(configured float64, dims int) float64 {
	if configured <= 0 {
		configured = DefaultTolerance
	}
	if dims == euclideanDims {
		return configured
	}
	return configured * cosineTolerance / toleranceReference
}

// BestMatch finds the closest known identity for an encoding, or ""
// when nothing is within tolerance.
func BestMatch(encoding []float32, known map[string][][]float32, tolerance float64) (string, float64) {
	best := ""
	bestDist := math.Inf(1)
	threshold := effectiveTolerance(tolerance, len(encoding))

	for name, samples := range known {
		for _, sample := range samples {
			if d := distance(encoding, sample); d < bestDist {
				bestDist = d
				best = name
			}
		}
	}
	if bestDist > threshold {
		return "", bestDist
	}
	return best, bestDist
}
