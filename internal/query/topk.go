package query

import (
	"container/heap"
	"sort"

	"cineast/internal/domain"
)

// TopK collects the k closest rows seen so far. Rows are ordered by ascending
// distance with ties broken by id, so scans are deterministic regardless of
// the order in which an engine visits its rows.
type TopK struct {
	k     int
	items rowHeap
}

func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, items: make(rowHeap, 0, min(k, 1024))}
}

// Offer considers one row. Rows without an id sort before all others among equal distances.
func (t *TopK) Offer(row domain.Row, distance float64) {
	if t.k == 0 {
		return
	}
	id, _ := row.String("id")
	item := scoredItem{id: id, row: domain.ScoredRow{Row: row, Distance: distance}}
	if len(t.items) < t.k {
		heap.Push(&t.items, item)
		return
	}
	if itemLess(item, t.items[0]) {
		t.items[0] = item
		heap.Fix(&t.items, 0)
	}
}

func (t *TopK) Len() int { return len(t.items) }

// Rows returns the collected rows in ascending order.
func (t *TopK) Rows() []domain.ScoredRow {
	items := make([]scoredItem, len(t.items))
	copy(items, t.items)
	sort.Slice(items, func(i, j int) bool { return itemLess(items[i], items[j]) })
	out := make([]domain.ScoredRow, len(items))
	for i, it := range items {
		out[i] = it.row
	}
	return out
}

type scoredItem struct {
	id  string
	row domain.ScoredRow
}

func itemLess(a, b scoredItem) bool {
	if a.row.Distance != b.row.Distance {
		return a.row.Distance < b.row.Distance
	}
	return a.id < b.id
}

// rowHeap is a max-heap: the worst kept row sits at the root.
type rowHeap []scoredItem

func (h rowHeap) Len() int           { return len(h) }
func (h rowHeap) Less(i, j int) bool { return itemLess(h[j], h[i]) }
func (h rowHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *rowHeap) Push(x any) { *h = append(*h, x.(scoredItem)) }

func (h *rowHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
