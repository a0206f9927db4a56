package distance

import "container/heap"

// Scored pairs an id with a score; for TopK, higher score means closer
// (callers pass negative distance, similarity, etc. as needed).
type Scored struct {
	ID    string
	Score float32
}

// TopK returns the k entries with the highest score from items, breaking
// ties by ascending id for determinism. Returns all entries if k exceeds
// len(items).
func TopK(items []Scored, k int) []Scored {
	if k > len(items) {
		k = len(items)
	}
	if k <= 0 {
		return nil
	}
	sorted := make([]Scored, len(items))
	copy(sorted, items)
	sortByScoreDescThenID(sorted)
	return sorted[:k]
}

func sortByScoreDescThenID(items []Scored) {
	// Insertion sort is adequate here: callers feed already-small
	// candidate sets (ef/n_probe bounded); a full sort.Slice would cost
	// an extra allocation for the less-func closure on every call.
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && less(items[j], items[j-1]) {
			items[j], items[j-1] = items[j-1], items[j]
			j--
		}
	}
}

func less(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// scoredHeap is a min-heap over Scored ordered so the worst-of-the-best
// entry sits at the root, letting StreamingTopK evict it in O(log k).
type scoredHeap []Scored

func (h scoredHeap) Len() int { return len(h) }
func (h scoredHeap) Less(i, j int) bool {
	// Min-heap on "goodness": the smallest (worst) scored item sorts first.
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	// Break ties so the lexicographically larger id is considered
	// "worse" and evicted first, keeping final output id-ordering stable.
	return h[i].ID > h[j].ID
}
func (h scoredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x any)   { *h = append(*h, x.(Scored)) }
func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// StreamingTopK maintains a bounded min-heap of the k best (id, score)
// pairs seen across successive Add calls, grounded on the teacher's
// distHeap/heapItem pattern in pkg/index/hnsw.go.
type StreamingTopK struct {
	k int
	h scoredHeap
}

// NewStreamingTopK creates a selector bounded to the k best entries.
func NewStreamingTopK(k int) *StreamingTopK {
	h := make(scoredHeap, 0, k)
	return &StreamingTopK{k: k, h: h}
}

// Add records a new (id, score) observation.
func (s *StreamingTopK) Add(id string, score float32) {
	if s.k <= 0 {
		return
	}
	if len(s.h) < s.k {
		heap.Push(&s.h, Scored{ID: id, Score: score})
		return
	}
	if !less(Scored{ID: id, Score: score}, s.h[0]) {
		return
	}
	heap.Pop(&s.h)
	heap.Push(&s.h, Scored{ID: id, Score: score})
}

// Results drains the heap and returns the retained entries sorted best
// first, breaking ties by ascending id.
func (s *StreamingTopK) Results() []Scored {
	out := make([]Scored, len(s.h))
	copy(out, s.h)
	sortByScoreDescThenID(out)
	return out
}

// Len reports how many entries are currently retained.
func (s *StreamingTopK) Len() int { return len(s.h) }
