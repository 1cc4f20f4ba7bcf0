package jobs

import (
	"container/heap"
	"sync"
	"time"
)

type expiry struct {
	jobID string
	at    time.Time
	index int
}

// expiryHeap implements heap.Interface ordered by expiry time
type expiryHeap []*expiry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	item := x.(*expiry)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Reclaimer tracks when each job expires. Sweep hands every expired job to
// the reclaim function; there is one queue for all jobs, no timer per job.
type Reclaimer struct {
	mu      sync.Mutex
	items   expiryHeap
	lookup  map[string]*expiry
	reclaim func(jobID string)
}

// NewReclaimer creates a Reclaimer calling reclaim for expired jobs.
func NewReclaimer(reclaim func(jobID string)) *Reclaimer {
	return &Reclaimer{
		lookup:  make(map[string]*expiry),
		reclaim: reclaim,
	}
}

// Schedule sets the expiry of a job, replacing an earlier one.
func (r *Reclaimer) Schedule(jobID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.lookup[jobID]; ok {
		item.at = at
		heap.Fix(&r.items, item.index)
		return
	}
	item := &expiry{jobID: jobID, at: at}
	heap.Push(&r.items, item)
	r.lookup[jobID] = item
}

// Cancel removes a scheduled expiry and reports whether there was one.
func (r *Reclaimer) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.lookup[jobID]
	if !ok {
		return false
	}
	heap.Remove(&r.items, item.index)
	delete(r.lookup, jobID)
	return true
}

// Sweep reclaims every job whose expiry is not after now and returns how
// many were reclaimed.
func (r *Reclaimer) Sweep(now time.Time) int {
	r.mu.Lock()
	var due []string
	for len(r.items) > 0 && !r.items[0].at.After(now) {
		item := heap.Pop(&r.items).(*expiry)
		delete(r.lookup, item.jobID)
		due = append(due, item.jobID)
	}
	r.mu.Unlock()

	for _, id := range due {
		r.reclaim(id)
	}
	return len(due)
}

// Len returns the number of scheduled expiries.
func (r *Reclaimer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Next returns the earliest scheduled expiry.
func (r *Reclaimer) Next() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return time.Time{}, false
	}
	return r.items[0].at, true
}
