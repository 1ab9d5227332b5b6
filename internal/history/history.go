// Package history keeps a bounded, per-data-type log of recent decisions.
package history

import (
	"sort"
	"sync"

	"codeberg.org/mutker/syncinterval/internal/decision"
)

const DefaultCapacity = 50

// ring is a fixed-capacity FIFO. The oldest entry is overwritten first.
type ring struct {
	mu      sync.Mutex
	entries []decision.Decision
	next    int
	count   int
}

func newRing(capacity int) *ring {
	return &ring{entries: make([]decision.Decision, capacity)}
}

func (r *ring) push(d decision.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = d
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// newest returns up to limit entries, newest first.
func (r *ring) newest(limit int) []decision.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]decision.Decision, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx].Clone())
	}
	return out
}

// Recorder never blocks on unrelated data types and never fails; when a
// buffer is full the oldest decision is evicted.
type Recorder struct {
	capacity int
	buffers  sync.Map // data type -> *ring
}

// NewRecorder creates a Recorder keeping capacity decisions per data type.
// Non-positive capacities use DefaultCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{capacity: capacity}
}

func (r *Recorder) Capacity() int {
	return r.capacity
}

// Record takes ownership of d.
func (r *Recorder) Record(d decision.Decision) {
	buf, ok := r.buffers.Load(d.DataType)
	if !ok {
		buf, _ = r.buffers.LoadOrStore(d.DataType, newRing(r.capacity))
	}
	buf.(*ring).push(d)
}

// Recent returns up to limit decisions for dataType, newest first. A
// non-positive limit returns everything retained.
func (r *Recorder) Recent(dataType string, limit int) []decision.Decision {
	buf, ok := r.buffers.Load(dataType)
	if !ok {
		return []decision.Decision{}
	}
	return buf.(*ring).newest(limit)
}

// DataTypes lists data types with retained decisions, sorted.
func (r *Recorder) DataTypes() []string {
	var out []string
	r.buffers.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// Reset drops every retained decision.
func (r *Recorder) Reset() {
	r.buffers.Range(func(k, _ any) bool {
		r.buffers.Delete(k)
		return true
	})
}
