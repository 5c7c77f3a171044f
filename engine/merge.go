package engine

import (
	"slices"

	"github.com/hupe1980/aether/model"
)

// ranked is a match plus its arrival position, used to break score ties in
// favour of the earlier candidate.
type ranked struct {
	model.Match
	seq int
}

// worse reports whether a ranks below b.
func worse(a, b ranked) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.seq > b.seq
}

// mergeTopK returns the k best matches of the concatenation of parts,
// ordered by descending score. Equal scores keep their arrival order (part
// index, then position within the part), which makes the result identical to
// a stable full sort truncated to k.
func mergeTopK(parts [][]model.Match, k int) []model.Match {
	if k <= 0 {
		return nil
	}

	// Min-heap of the best k seen so far, worst at the root.
	heap := make([]ranked, 0, k)
	seq := 0
	for _, part := range parts {
		for _, m := range part {
			r := ranked{Match: m, seq: seq}
			seq++

			if len(heap) < k {
				heap = append(heap, r)
				siftUp(heap, len(heap)-1)
				continue
			}
			if worse(heap[0], r) {
				heap[0] = r
				siftDown(heap, 0)
			}
		}
	}

	slices.SortFunc(heap, func(a, b ranked) int {
		switch {
		case worse(b, a):
			return -1
		case worse(a, b):
			return 1
		}
		return 0
	})

	out := make([]model.Match, len(heap))
	for i, r := range heap {
		out[i] = r.Match
	}
	return out
}

func siftUp(h []ranked, i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !worse(h[i], h[parent]) {
			return
		}
		h[i], h[parent] = h[parent], h[i]
		i = parent
	}
}

func siftDown(h []ranked, i int) {
	n := len(h)
	for {
		smallest := i
		left, right := 2*i+1, 2*i+2

		if left < n && worse(h[left], h[smallest]) {
			smallest = left
		}
		if right < n && worse(h[right], h[smallest]) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h[i], h[smallest] = h[smallest], h[i]
		i = smallest
	}
}
