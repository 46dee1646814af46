package flashloan

import "sync"

// Queue is an unbounded FIFO of tasks.
type Queue struct {
	mu    sync.Mutex
	items []Task
}

func (q *Queue) Push(t Task) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, t)
	return len(q.items)
}

func (q *Queue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Task{}, false
	}
	t := q.items[0]
	q.items[0] = Task{}
	q.items = q.items[1:]
	return t, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
