package httpx

import (
	"context"
	"sync"
	"time"

	"github.com/target/mmk-portal/internal/ports"
)

// callbackResponder collects what a callback lifecycle asked the front end to do.
// The handler turns it into a redirect, an HTML page, or a JSON instruction once Run returns.
// Wait only records the delay: the browser performs it.
type callbackResponder struct {
	mu       sync.Mutex
	location string
	notice   *ports.Notice
	delay    time.Duration
}

var (
	_ ports.Navigator = (*callbackResponder)(nil)
	_ ports.Notifier  = (*callbackResponder)(nil)
	_ ports.Waiter    = (*callbackResponder)(nil)
)

func (c *callbackResponder) Replace(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = path
	return nil
}

func (c *callbackResponder) Notify(_ context.Context, n ports.Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notice = &n
}

func (c *callbackResponder) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay += d
	return nil
}

type callbackInstruction struct {
	Location string
	Notice   *ports.Notice
	Delay    time.Duration
}

func (c *callbackResponder) instruction() callbackInstruction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := callbackInstruction{Location: c.location, Delay: c.delay}
	if c.notice != nil {
		n := *c.notice
		out.Notice = &n
	}
	return out
}
