package events

// Queue collects notifications raised while a tick mutates state. The tick
// goroutine owns it: components Publish into it mid-tick and the engine drains
// it once the tick is complete, so consumers never see a half-applied change.
type Queue struct {
	pending []Event
}

func NewQueue() *Queue {
	return &Queue{}
}

// Publish implements Publisher by deferring the event.
func (q *Queue) Publish(e Event) {
	q.pending = append(q.pending, e)
}

func (q *Queue) Len() int { return len(q.pending) }

// Drain delivers every queued event to pub in queue order and empties the queue.
func (q *Queue) Drain(pub Publisher) int {
	n := len(q.pending)
	for i, e := range q.pending {
		pub.Publish(e)
		q.pending[i] = nil
	}
	q.pending = q.pending[:0]
	return n
}

// Discard drops every queued event.
func (q *Queue) Discard() {
	clear(q.pending)
	q.pending = q.pending[:0]
}
