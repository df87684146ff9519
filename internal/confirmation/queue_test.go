package confirmation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue(t *testing.T) {
	q := NewQueue()

	assert.Equal(t, 3, q.Push("a", "b", "c"))
	assert.Equal(t, 0, q.Push("a", ""), "duplicates and blanks are ignored")
	assert.Equal(t, 3, q.Len())

	q.PushFront("c")
	assert.Equal(t, 3, q.Len(), "moving an id to the front keeps one copy")

	var order []string
	for {
		id, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, id)
	}
	assert.Equal(t, []string{"c", "a", "b"}, order)
	assert.Equal(t, 0, q.Len())

	assert.Equal(t, 1, q.Push("c"), "a popped id can be queued again")
	q.PushFront("d")
	id, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "d", id)
}

func TestQueue_Concurrent(t *testing.T) {
	q := NewQueue()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Push(string(rune('a'+i)), "shared")
		}()
	}
	wg.Wait()

	assert.Equal(t, 11, q.Len())
}
