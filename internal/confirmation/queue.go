package confirmation

import "sync"

// Queue is a FIFO of purchase item IDs awaiting review. An ID is held at
// most once. It is safe for concurrent use.
type Queue struct {
	index map[string]struct{}
	ids   []string
	mu    sync.Mutex
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{index: make(map[string]struct{})}
}

// Push appends ids not already queued and returns how many were added.
func (q *Queue) Push(ids ...string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	added := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := q.index[id]; ok {
			continue
		}
		q.index[id] = struct{}{}
		q.ids = append(q.ids, id)
		added++
	}
	return added
}

// PushFront puts id at the head of the queue, moving it if already queued.
func (q *Queue) PushFront(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(id)
	q.index[id] = struct{}{}
	q.ids = append([]string{id}, q.ids...)
}

// Pop removes and returns the head of the queue.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	delete(q.index, id)
	return id, true
}

func (q *Queue) removeLocked(id string) bool {
	if _, ok := q.index[id]; !ok {
		return false
	}
	delete(q.index, id)
	for i, queued := range q.ids {
		if queued == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}
