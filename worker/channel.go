package worker

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrChannelClosed = errors.New("worker channel closed")
	ErrChannelBusy   = errors.New("worker channel already holds a request")
)

// Phase is the worker lifecycle as the dispatcher observes it from Initiate
// and Ready messages.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Channel connects the dispatcher to the worker runtime. One Channel exists
// per process; it is created at startup and torn down with Close.
type Channel struct {
	requests chan CreateTask
	messages chan Msg

	done      chan struct{}
	closeOnce sync.Once
	endOnce   sync.Once
}

// NewChannel creates a channel whose message stream can buffer up to buffer
// worker messages before the worker blocks.
func NewChannel(buffer int) *Channel {
	return &Channel{
		requests: make(chan CreateTask, 1),
		messages: make(chan Msg, buffer),
		done:     make(chan struct{}),
	}
}

// Post sends a request to the worker without blocking. The dispatcher keeps
// at most one request in flight, so a full slot means the caller broke that rule.
func (c *Channel) Post(req CreateTask) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.requests <- req:
		return nil
	default:
		return ErrChannelBusy
	}
}

// Messages is closed after the worker runtime stops.
func (c *Channel) Messages() <-chan Msg {
	return c.messages
}

func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once Close has been called.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// worker side

func (c *Channel) Requests() <-chan CreateTask {
	return c.requests
}

// Send delivers a worker message.
func (c *Channel) Send(ctx context.Context, msg Msg) error {
	select {
	case c.messages <- msg:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// end closes the message stream; only the runtime calls it, after its last Send.
func (c *Channel) end() {
	c.endOnce.Do(func() {
		close(c.messages)
	})
}
