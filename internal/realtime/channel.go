// Package realtime keeps a quiz engine in sync with the answer store and
// pushes the resulting view to every connected device.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/victornm/familytrip/internal/answer"
	"github.com/victornm/familytrip/internal/domain"
)

type Subscriber interface {
	SubscribeAll(ctx context.Context, cb answer.Callback) (unsubscribe func(), err error)
}

type Engine interface {
	ApplySnapshot(records []domain.AnswerRecord)
	View() domain.QuizView
}

type Config struct {
	Store  Subscriber
	Engine Engine
	// Buffer is the per-watcher queue length. Defaults to 8.
	Buffer int
}

// Channel merges every store snapshot into the engine and fans the engine's
// view out to watchers. Slow watchers lose stale views, never the latest one.
type Channel struct {
	store  Subscriber
	engine Engine
	buffer int

	mu          sync.Mutex
	watchers    map[chan domain.QuizView]struct{}
	unsubscribe func()
}

func NewChannel(c Config) *Channel {
	buffer := c.Buffer
	if buffer <= 0 {
		buffer = 8
	}

	return &Channel{
		store:    c.Store,
		engine:   c.Engine,
		buffer:   buffer,
		watchers: make(map[chan domain.QuizView]struct{}),
	}
}

// Start subscribes the engine to the store. Snapshots, including the
// initial one, are merged asynchronously.
func (c *Channel) Start(ctx context.Context) error {
	unsubscribe, err := c.store.SubscribeAll(ctx, func(records []domain.AnswerRecord) {
		c.engine.ApplySnapshot(records)
		c.Broadcast()
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	slog.InfoContext(ctx, "realtime: subscribed to answer store")
	return nil
}

// Stop unsubscribes from the store and closes every watcher.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	for ch := range c.watchers {
		delete(c.watchers, ch)
		close(ch)
	}
}

// Watch returns a channel receiving the current view immediately and a fresh
// view after every change. The caller must invoke cancel.
func (c *Channel) Watch() (<-chan domain.QuizView, func()) {
	ch := make(chan domain.QuizView, c.buffer)

	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	ch <- c.engine.View()
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			if _, ok := c.watchers[ch]; ok {
				delete(c.watchers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Broadcast pushes the engine's current view to every watcher.
func (c *Channel) Broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := c.engine.View()
	for ch := range c.watchers {
		select {
		case ch <- view:
		default:
			// Drop the oldest queued view to make room.
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

// Watchers returns the number of active watchers.
func (c *Channel) Watchers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.watchers)
}
