package secframe

// pendingWrite is one buffered outbound payload awaiting flush.
// The buffer owns payload from enqueue until drain.
type pendingWrite struct {
	payload []byte
	done    *Completion
}

// pendingWrites is the FIFO buffer of not-yet-protected writes.
// FIFO order is the outbound wire order.
type pendingWrites struct {
	items []pendingWrite
}

func (q *pendingWrites) add(payload []byte, done *Completion) {
	q.items = append(q.items, pendingWrite{payload: payload, done: done})
}

func (q *pendingWrites) empty() bool {
	return len(q.items) == 0
}

func (q *pendingWrites) size() int {
	return len(q.items)
}

// drain removes and returns all buffered writes in submission order.
func (q *pendingWrites) drain() []pendingWrite {
	items := q.items
	q.items = nil
	return items
}

// failAll resolves every buffered write with err and empties the buffer.
// Returns the number of writes failed.
func (q *pendingWrites) failAll(err error) int {
	items := q.drain()
	for _, w := range items {
		w.done.Resolve(err)
	}
	return len(items)
}
