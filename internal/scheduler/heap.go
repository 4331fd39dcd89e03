package scheduler

import "container/heap"

// triggerHeap is a min-heap of triggers ordered by At.
type triggerHeap []Trigger

func (h triggerHeap) Len() int           { return len(h) }
func (h triggerHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h triggerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *triggerHeap) Push(x any) {
	*h = append(*h, x.(Trigger))
}

func (h *triggerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *triggerHeap, t Trigger) {
	heap.Push(h, t)
}

// heapPop panics if the heap is empty.
func heapPop(h *triggerHeap) Trigger {
	return heap.Pop(h).(Trigger)
}

// heapRemoveByID reports whether a trigger with id was found and removed.
func heapRemoveByID(h *triggerHeap, id string) bool {
	for i, t := range *h {
		if t.ID == id {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
