package vector

import "container/heap"

type hit struct {
	entry *entry
	score float64
}

// worse orders hits so that the earlier insert wins a tie.
func worse(a, b hit) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.entry.seq > b.entry.seq
}

// topK is a min-heap holding the k best hits seen so far; the root is the
// weakest of them.
type topK struct {
	k    int
	hits []hit
}

func (h *topK) Len() int           { return len(h.hits) }
func (h *topK) Less(i, j int) bool { return worse(h.hits[i], h.hits[j]) }
func (h *topK) Swap(i, j int)      { h.hits[i], h.hits[j] = h.hits[j], h.hits[i] }
func (h *topK) Push(x any)         { h.hits = append(h.hits, x.(hit)) }
func (h *topK) Pop() any {
	old := h.hits
	n := len(old)
	x := old[n-1]
	h.hits = old[:n-1]
	return x
}

func (h *topK) offer(c hit) {
	if len(h.hits) < h.k {
		heap.Push(h, c)
		return
	}
	if worse(h.hits[0], c) {
		h.hits[0] = c
		heap.Fix(h, 0)
	}
}
