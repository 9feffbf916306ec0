package stats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Bus fans pipeline events out to every subscriber. Each subscriber
// gets its own buffered channel so a slow consumer cannot starve the
// others of events.
type Bus struct {
	ctx    context.Context
	logger *slog.Logger

	mu        sync.Mutex
	subs      []chan Event
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewBus(ctx context.Context, logger *slog.Logger) *Bus {
	return &Bus{ctx: ctx, logger: logger}
}

// Emit delivers the event to all subscribers. It drops events once the
// run context is cancelled.
func (b *Bus) Emit(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case <-b.ctx.Done():
			return
		case ch <- evt:
		}
	}
}

// Subscribe runs fn in its own goroutine over a dedicated event channel
// until the bus closes or the run context is cancelled.
func (b *Bus) Subscribe(name string, fn func(context.Context, <-chan Event) error) {
	ch := make(chan Event, 128)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return
	}
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := fn(b.ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			if b.logger != nil {
				b.logger.Error("stats subscriber failed", "name", name, "err", err)
			}
		}
	}()
}

// Close stops event delivery and waits for all subscribers to drain.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, ch := range b.subs {
			close(ch)
		}
		b.mu.Unlock()
	})
	b.wg.Wait()
}
