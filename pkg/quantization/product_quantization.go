// Package quantization provides vector compression techniques used
// optionally by the graph index to reduce per-vector memory at the cost
// of reconstruction accuracy. No on-disk format in this module requires
// quantization; callers opt in per index instance.
package quantization

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ProductQuantizer implements Product Quantization: a D-dimensional space
// is split into M equal subspaces, each with its own codebook of K
// centroids (K = 2^b, so K <= 256 fits in a single byte per subspace).
// Codebooks are trained independently per subspace via k-means++
// seeding followed by Lloyd's algorithm.
type ProductQuantizer struct {
	M         int           // number of subspaces
	K         int           // centroids per subspace
	D         int           // original dimension
	SubDim    int           // dimension per subspace (D/M)
	Codebooks [][][]float32 // M codebooks, each K x SubDim
	Trained   bool
	TrainSize int
	rng       *rand.Rand
}

// NewProductQuantizer creates a PQ instance splitting a dimension-D space
// into numSubspaces subspaces of numCentroids centroids each.
// numCentroids must be <= 256 to fit a single code byte per subspace.
func NewProductQuantizer(dimension, numSubspaces, numCentroids int) (*ProductQuantizer, error) {
	if dimension%numSubspaces != 0 {
		return nil, fmt.Errorf("dimension %d must be divisible by numSubspaces %d", dimension, numSubspaces)
	}
	if numCentroids > 256 {
		return nil, errors.New("numCentroids must be <= 256 for byte encoding")
	}
	return &ProductQuantizer{
		M:         numSubspaces,
		K:         numCentroids,
		D:         dimension,
		SubDim:    dimension / numSubspaces,
		Codebooks: make([][][]float32, numSubspaces),
		rng:       rand.New(rand.NewSource(1)),
	}, nil
}

// SetSeed fixes the random seed used for k-means++ centroid seeding, so
// two Train calls over the same data produce identical codebooks.
func (pq *ProductQuantizer) SetSeed(seed int64) {
	pq.rng = rand.New(rand.NewSource(seed))
}

// Train learns the M codebooks from training data, running k-means++
// seeding followed by up to 20 iterations of Lloyd's algorithm per
// subspace, independently.
func (pq *ProductQuantizer) Train(vectors [][]float32) error {
	if len(vectors) < pq.K {
		return fmt.Errorf("need at least %d vectors for training, got %d", pq.K, len(vectors))
	}
	pq.TrainSize = len(vectors)

	for m := 0; m < pq.M; m++ {
		start := m * pq.SubDim
		end := start + pq.SubDim
		subvectors := make([][]float32, len(vectors))
		for i, vec := range vectors {
			subvectors[i] = vec[start:end]
		}

		centroids, err := pq.kMeans(subvectors, pq.K, 20)
		if err != nil {
			return fmt.Errorf("k-means failed for subspace %d: %w", m, err)
		}
		pq.Codebooks[m] = centroids
	}

	pq.Trained = true
	return nil
}

// Encode compresses a vector into M byte codes, one nearest-centroid
// index per subspace.
func (pq *ProductQuantizer) Encode(vector []float32) ([]byte, error) {
	if !pq.Trained {
		return nil, errors.New("quantizer not trained")
	}
	if len(vector) != pq.D {
		return nil, fmt.Errorf("vector dimension %d doesn't match quantizer dimension %d", len(vector), pq.D)
	}

	codes := make([]byte, pq.M)
	for m := 0; m < pq.M; m++ {
		start := m * pq.SubDim
		end := start + pq.SubDim
		subvec := vector[start:end]

		minDist := float32(math.MaxFloat32)
		minIdx := 0
		for k := 0; k < pq.K; k++ {
			dist := euclideanDistance(subvec, pq.Codebooks[m][k])
			if dist < minDist {
				minDist = dist
				minIdx = k
			}
		}
		codes[m] = byte(minIdx)
	}
	return codes, nil
}

// Decode reconstructs a (lossy) vector from PQ codes.
func (pq *ProductQuantizer) Decode(codes []byte) ([]float32, error) {
	if !pq.Trained {
		return nil, errors.New("quantizer not trained")
	}
	if len(codes) != pq.M {
		return nil, fmt.Errorf("codes length %d doesn't match number of subspaces %d", len(codes), pq.M)
	}

	vector := make([]float32, pq.D)
	for m := 0; m < pq.M; m++ {
		centroidIdx := int(codes[m])
		if centroidIdx >= pq.K {
			return nil, fmt.Errorf("invalid code %d for subspace %d", centroidIdx, m)
		}
		start := m * pq.SubDim
		centroid := pq.Codebooks[m][centroidIdx]
		copy(vector[start:start+pq.SubDim], centroid)
	}
	return vector, nil
}

// ComputeDistance computes an approximate distance between PQ codes and
// an uncompressed query vector via a precomputed per-subspace distance
// table (asymmetric distance computation).
func (pq *ProductQuantizer) ComputeDistance(codes []byte, query []float32) (float32, error) {
	if !pq.Trained {
		return 0, errors.New("quantizer not trained")
	}
	table := pq.computeDistanceTable(query)
	var total float32
	for m := 0; m < pq.M; m++ {
		total += table[m][codes[m]]
	}
	return total, nil
}

func (pq *ProductQuantizer) computeDistanceTable(query []float32) [][]float32 {
	table := make([][]float32, pq.M)
	for m := 0; m < pq.M; m++ {
		table[m] = make([]float32, pq.K)
		start := m * pq.SubDim
		end := start + pq.SubDim
		subquery := query[start:end]
		for k := 0; k < pq.K; k++ {
			table[m][k] = euclideanDistance(subquery, pq.Codebooks[m][k])
		}
	}
	return table
}

// SearchPQ ranks codes by approximate distance to query and returns the
// indices and distances of the topK nearest.
func (pq *ProductQuantizer) SearchPQ(query []float32, codes [][]byte, topK int) ([]int, []float32) {
	if !pq.Trained || len(codes) == 0 {
		return nil, nil
	}
	table := pq.computeDistanceTable(query)

	type result struct {
		idx  int
		dist float32
	}
	results := make([]result, len(codes))
	for i, code := range codes {
		var dist float32
		for m := 0; m < pq.M; m++ {
			dist += table[m][code[m]]
		}
		results[i] = result{idx: i, dist: dist}
	}

	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && results[j].dist < results[j-1].dist {
			results[j], results[j-1] = results[j-1], results[j]
			j--
		}
	}

	k := topK
	if k > len(results) {
		k = len(results)
	}
	indices := make([]int, k)
	distances := make([]float32, k)
	for i := 0; i < k; i++ {
		indices[i] = results[i].idx
		distances[i] = results[i].dist
	}
	return indices, distances
}

// CompressionRatio returns the ratio of raw float32 storage to PQ-coded
// storage: one byte per subspace against D*4 bytes raw.
func (pq *ProductQuantizer) CompressionRatio() float32 {
	originalSize := pq.D * 4
	compressedSize := pq.M
	return float32(originalSize) / float32(compressedSize)
}

// SerializeCodebooks serializes codebooks to bytes for out-of-band
// persistence by callers; no chunked format in this module requires it.
func (pq *ProductQuantizer) SerializeCodebooks() []byte {
	if !pq.Trained {
		return nil
	}
	size := 4*4 + pq.M*pq.K*pq.SubDim*4
	buf := make([]byte, size)
	offset := 0

	binary.LittleEndian.PutUint32(buf[offset:], uint32(pq.M))
	offset += 4
	binary.LittleEndian.PutUint32(buf[offset:], uint32(pq.K))
	offset += 4
	binary.LittleEndian.PutUint32(buf[offset:], uint32(pq.D))
	offset += 4
	binary.LittleEndian.PutUint32(buf[offset:], uint32(pq.SubDim))
	offset += 4

	for m := 0; m < pq.M; m++ {
		for k := 0; k < pq.K; k++ {
			for d := 0; d < pq.SubDim; d++ {
				binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(pq.Codebooks[m][k][d]))
				offset += 4
			}
		}
	}
	return buf
}

// DeserializeCodebooks loads codebooks from bytes produced by SerializeCodebooks.
func (pq *ProductQuantizer) DeserializeCodebooks(data []byte) error {
	if len(data) < 16 {
		return errors.New("invalid codebook data")
	}
	offset := 0
	pq.M = int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	pq.K = int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	pq.D = int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	pq.SubDim = int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4

	pq.Codebooks = make([][][]float32, pq.M)
	for m := 0; m < pq.M; m++ {
		pq.Codebooks[m] = make([][]float32, pq.K)
		for k := 0; k < pq.K; k++ {
			pq.Codebooks[m][k] = make([]float32, pq.SubDim)
			for d := 0; d < pq.SubDim; d++ {
				pq.Codebooks[m][k][d] = math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
				offset += 4
			}
		}
	}
	pq.Trained = true
	return nil
}

// kMeans runs Lloyd's algorithm with k-means++ seeding, stopping early
// once assignments stop changing.
func (pq *ProductQuantizer) kMeans(vectors [][]float32, k int, maxIters int) ([][]float32, error) {
	if len(vectors) < k {
		return nil, fmt.Errorf("need at least %d vectors, got %d", k, len(vectors))
	}
	dim := len(vectors[0])

	centroids := make([][]float32, k)
	centroids[0] = append([]float32(nil), vectors[pq.rng.Intn(len(vectors))]...)

	for i := 1; i < k; i++ {
		distances := make([]float32, len(vectors))
		var totalDist float32
		for j, vec := range vectors {
			minDist := float32(math.MaxFloat32)
			for c := 0; c < i; c++ {
				dist := euclideanDistance(vec, centroids[c])
				if dist < minDist {
					minDist = dist
				}
			}
			distances[j] = minDist * minDist
			totalDist += distances[j]
		}

		r := pq.rng.Float32() * totalDist
		var cumSum float32
		chosen := false
		for j, dist := range distances {
			cumSum += dist
			if cumSum >= r {
				centroids[i] = append([]float32(nil), vectors[j]...)
				chosen = true
				break
			}
		}
		if !chosen {
			centroids[i] = append([]float32(nil), vectors[len(vectors)-1]...)
		}
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, vec := range vectors {
			minDist := float32(math.MaxFloat32)
			minIdx := 0
			for j, centroid := range centroids {
				dist := euclideanDistance(vec, centroid)
				if dist < minDist {
					minDist = dist
					minIdx = j
				}
			}
			if assignments[i] != minIdx {
				changed = true
				assignments[i] = minIdx
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		for i := range centroids {
			centroids[i] = make([]float32, dim)
		}
		for i, vec := range vectors {
			cluster := assignments[i]
			counts[cluster]++
			for j := 0; j < dim; j++ {
				centroids[cluster][j] += vec[j]
			}
		}
		for i := range centroids {
			if counts[i] > 0 {
				for j := 0; j < dim; j++ {
					centroids[i][j] /= float32(counts[i])
				}
			}
		}
	}

	return centroids, nil
}

func euclideanDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return float32(math.Sqrt(float64(sum)))
}
