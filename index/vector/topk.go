package vector

import "container/heap"

// Result is one nearest-neighbor candidate.
type Result struct {
	ID    uint32
	Score float32
}

// resultHeap is a max-heap on score: the worst candidate sits at the root
// so keeping the k best is a peek-and-replace.
type resultHeap []Result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score > h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)         { *h = append(*h, x.(Result)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topK accumulates the k smallest-score results seen.
type topK struct {
	k int
	h resultHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(resultHeap, 0, k)}
}

func (t *topK) offer(r Result) {
	if len(t.h) < t.k {
		heap.Push(&t.h, r)
		return
	}
	if r.Score < t.h[0].Score {
		t.h[0] = r
		heap.Fix(&t.h, 0)
	}
}

// results drains the heap in ascending score order.
func (t *topK) results() []Result {
	out := make([]Result, len(t.h))
	for i := len(t.h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(Result)
	}
	return out
}
