// Package distance provides scalar and widened distance kernels plus
// bounded top-k selection, grounded on the teacher's similarity.go and
// pkg/index/hnsw.go distance functions.
package distance

import "math"

// Func computes a distance between two equal-length vectors; smaller is
// closer. Callers are responsible for dimension matching — kernels in
// this package assume len(a) == len(b) for speed, matching the teacher's
// hot-path distance functions which do the same.
type Func func(a, b []float32) float32

// Dot computes the negative dot product, so smaller means more similar
// (mirrors the teacher's DotProductDistance sign convention).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return -sum
}

// Cosine computes cosine distance (1 - cosine similarity).
func Cosine(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	sim := dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
	return 1.0 - sim
}

// Euclidean computes Euclidean (L2) distance.
func Euclidean(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return float32(math.Sqrt(float64(sum)))
}

// DotWide, CosineWide and EuclideanWide are widened variants that process
// vectors eight lanes at a time via manual unrolling. This is the
// idiomatic pure-Go stand-in for SIMD used in the teacher's tree (which
// never reaches for cgo or golang.org/x/sys/cpu-gated assembly either):
// the unrolled accumulators give the compiler independent chains to
// pipeline, and in exchange must stay within 1e-4 absolute of the scalar
// reference for dimensions up to 4096.

// DotWide computes the negative dot product with 8-wide unrolling.
func DotWide(a, b []float32) float32 {
	n := len(a)
	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	i := 0
	for ; i+8 <= n; i += 8 {
		s0 += a[i] * b[i]
		s1 += a[i+1] * b[i+1]
		s2 += a[i+2] * b[i+2]
		s3 += a[i+3] * b[i+3]
		s4 += a[i+4] * b[i+4]
		s5 += a[i+5] * b[i+5]
		s6 += a[i+6] * b[i+6]
		s7 += a[i+7] * b[i+7]
	}
	sum := s0 + s1 + s2 + s3 + s4 + s5 + s6 + s7
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return -sum
}

// CosineWide computes cosine distance with 8-wide unrolling.
func CosineWide(a, b []float32) float32 {
	n := len(a)
	var d0, d1, d2, d3, d4, d5, d6, d7 float32
	var na0, na1, na2, na3, na4, na5, na6, na7 float32
	var nb0, nb1, nb2, nb3, nb4, nb5, nb6, nb7 float32
	i := 0
	for ; i+8 <= n; i += 8 {
		d0 += a[i] * b[i]
		d1 += a[i+1] * b[i+1]
		d2 += a[i+2] * b[i+2]
		d3 += a[i+3] * b[i+3]
		d4 += a[i+4] * b[i+4]
		d5 += a[i+5] * b[i+5]
		d6 += a[i+6] * b[i+6]
		d7 += a[i+7] * b[i+7]

		na0 += a[i] * a[i]
		na1 += a[i+1] * a[i+1]
		na2 += a[i+2] * a[i+2]
		na3 += a[i+3] * a[i+3]
		na4 += a[i+4] * a[i+4]
		na5 += a[i+5] * a[i+5]
		na6 += a[i+6] * a[i+6]
		na7 += a[i+7] * a[i+7]

		nb0 += b[i] * b[i]
		nb1 += b[i+1] * b[i+1]
		nb2 += b[i+2] * b[i+2]
		nb3 += b[i+3] * b[i+3]
		nb4 += b[i+4] * b[i+4]
		nb5 += b[i+5] * b[i+5]
		nb6 += b[i+6] * b[i+6]
		nb7 += b[i+7] * b[i+7]
	}
	dot := d0 + d1 + d2 + d3 + d4 + d5 + d6 + d7
	normA := na0 + na1 + na2 + na3 + na4 + na5 + na6 + na7
	normB := nb0 + nb1 + nb2 + nb3 + nb4 + nb5 + nb6 + nb7
	for ; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	sim := dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
	return 1.0 - sim
}

// EuclideanWide computes Euclidean distance with 8-wide unrolling.
func EuclideanWide(a, b []float32) float32 {
	n := len(a)
	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	i := 0
	for ; i+8 <= n; i += 8 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		d4 := a[i+4] - b[i+4]
		d5 := a[i+5] - b[i+5]
		d6 := a[i+6] - b[i+6]
		d7 := a[i+7] - b[i+7]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
		s4 += d4 * d4
		s5 += d5 * d5
		s6 += d6 * d6
		s7 += d7 * d7
	}
	sum := s0 + s1 + s2 + s3 + s4 + s5 + s6 + s7
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// BatchNormalize returns new unit-magnitude vectors; zero-magnitude
// inputs pass through unchanged.
func BatchNormalize(vecs [][]float32) [][]float32 {
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		out[i] = normalizeOne(v)
	}
	return out
}

func normalizeOne(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	if mag == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / mag
	}
	return out
}
