// Package ids provides the monotonic job id allocator. It is the sole
// source of job ids in the process and is never reset.
package ids

import (
	"sync"

	"github.com/le-stats-sportif/webserver/pkg/types"
)

// Allocator hands out strictly increasing job ids starting at 1.
// Both methods hold the same mutex, so LastIssued observed after a
// Next call always covers that call.
type Allocator struct {
	mu   sync.Mutex
	next types.JobID
}

// NewAllocator creates an allocator whose first Next() returns 1.
func NewAllocator() *Allocator {
	return &Allocator{next: 1}
}

// Next returns the next id and advances the counter.
func (a *Allocator) Next() types.JobID {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.next
	a.next++
	return id
}

// LastIssued returns the largest id handed out so far, 0 when none.
func (a *Allocator) LastIssued() types.JobID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - 1
}
