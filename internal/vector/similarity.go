package vector

import "github.com/hyperjump/kotae/pkg/utils"

// Cosine returns the cosine similarity of a and b given their precomputed
// norms. Zero-length vectors have similarity 0 with everything.
func Cosine(a []float32, aNorm float64, b []float32, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 || len(a) != len(b) {
		return 0
	}
	return utils.Dot(a, b) / (aNorm * bNorm)
}
