package trigger

import (
	"container/heap"
	"time"
)

// pending is a registered trigger waiting for its next firing.
type pending struct {
	handle Handle
	desc   Descriptor
	at     time.Time
}

// pendingHeap orders pending triggers by firing time, earliest first.
type pendingHeap []pending

func (h pendingHeap) Len() int           { return len(h) }
func (h pendingHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h pendingHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) {
	*h = append(*h, x.(pending))
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *pendingHeap, p pending) {
	heap.Push(h, p)
}

// heapPop removes the earliest trigger. Panics if the heap is empty.
func heapPop(h *pendingHeap) pending {
	return heap.Pop(h).(pending)
}

// heapRemoveApp drops every trigger of the application and returns how many
// were removed.
func heapRemoveApp(h *pendingHeap, appID string) int {
	kept := (*h)[:0]
	removed := 0
	for _, p := range *h {
		if p.desc.AppID == appID {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	*h = kept
	heap.Init(h)
	return removed
}
