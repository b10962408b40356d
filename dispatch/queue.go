// Package dispatch serializes submitted tasks onto the single worker: a FIFO
// queue plus a dispatcher that keeps at most one task in flight.
package dispatch

// Queue is a FIFO of task ids. It is not safe for concurrent use; the
// Dispatcher guards it.
type Queue struct {
	ids []int
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(id int) {
	q.ids = append(q.ids, id)
}

// Pop removes and returns the head.
func (q *Queue) Pop() (int, bool) {
	if len(q.ids) == 0 {
		return 0, false
	}
	id := q.ids[0]
	q.ids[0] = 0
	q.ids = q.ids[1:]
	return id, true
}

func (q *Queue) Len() int {
	return len(q.ids)
}

// Snapshot returns the queued ids in dispatch order.
func (q *Queue) Snapshot() []int {
	return append([]int(nil), q.ids...)
}
