package sse

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// client is one open event stream. contextID is empty for streams that
// receive every event.
type client struct {
	id        string
	contextID string
	events    chan Event
	filter    EventFilter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newClient(ctx context.Context, opts ClientOptions) *client {
	clientCtx, cancel := context.WithCancel(ctx)

	return &client{
		id:        uuid.NewString(),
		contextID: opts.ContextID,
		events:    make(chan Event, opts.BufferSize),
		filter:    opts.Filter,
		ctx:       clientCtx,
		cancel:    cancel,
	}
}

// close ends the stream. Safe to call more than once.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.events)
}

// send queues event if the filter accepts it. It reports false only when the
// client is gone or its buffer is full.
func (c *client) send(event Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.filter != nil && !c.filter(event) {
		return true
	}

	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}
