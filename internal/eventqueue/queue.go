// Package eventqueue is a deadline-ordered min-heap of pending timer
// deliveries for lobbies.
package eventqueue

import (
	"container/heap"
	"time"

	"gameforge/pkg/protocol"
)

// Entry is one scheduled delivery: fire on_event(GameId, EventId) at Deadline.
type Entry struct {
	GameId   protocol.GameId
	EventId  protocol.EventId
	Deadline time.Time
}

// Queue is a min-heap keyed by Deadline. Stale entries (lobby already
// destroyed) are not pruned eagerly; the runtime discards them silently when
// they're popped.
type Queue struct {
	items items
}

// New returns an empty queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.items)
	return q
}

// Add schedules entry for delivery at its Deadline.
func (q *Queue) Add(entry Entry) {
	heap.Push(&q.items, entry)
}

// PeekDeadline returns the earliest pending deadline, used to arm the
// runtime's next timer wait. The zero Time and ok=false mean the queue is
// empty.
func (q *Queue) PeekDeadline() (deadline time.Time, ok bool) {
	if q.items.Len() == 0 {
		return time.Time{}, false
	}
	return q.items[0].Deadline, true
}

// PopDue removes and returns the earliest entry if its deadline has passed
// (<= now), otherwise it leaves the queue untouched.
func (q *Queue) PopDue(now time.Time) (Entry, bool) {
	if q.items.Len() == 0 {
		return Entry{}, false
	}
	if q.items[0].Deadline.After(now) {
		return Entry{}, false
	}
	return heap.Pop(&q.items).(Entry), true
}

// Len reports the number of pending entries.
func (q *Queue) Len() int { return q.items.Len() }

type items []Entry

func (it items) Len() int { return len(it) }
func (it items) Less(i, j int) bool { return it[i].Deadline.Before(it[j].Deadline) }
func (it items) Swap(i, j int) { it[i], it[j] = it[j], it[i] }

func (it *items) Push(x any) {
	*it = append(*it, x.(Entry))
}

func (it *items) Pop() any {
	old := *it
	n := len(old)
	item := old[n-1]
	*it = old[:n-1]
	return item
}
