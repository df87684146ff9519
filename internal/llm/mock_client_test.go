package llm

import (
	"context"
	"sync"
)

// scriptedClient replays canned replies and records prompts.
type scriptedClient struct {
	replies []scriptedReply
	calls   []Request
	mu      sync.Mutex
}

type scriptedReply struct {
	err     error
	content string
}

func (c *scriptedClient) Complete(_ context.Context, req Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, req)
	if len(c.replies) == 0 {
		return `{"product_ids":[]}`, nil
	}
	reply := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return reply.content, reply.err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
