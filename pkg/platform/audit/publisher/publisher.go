// Package publisher provides a store-backed audit publisher with optional
// async buffering. Synchronous mode blocks until the event is persisted;
// async mode hands the event to a background goroutine and never blocks the
// caller.
package publisher

import (
	"context"
	"sync"
	"time"

	audit "hemolink/pkg/platform/audit"
)

// Publisher writes audit events to a Store.
type Publisher struct {
	store audit.Store

	inbox  chan audit.Event
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given
// buffer size. A full buffer drops operations-category events rather than
// blocking callers.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan audit.Event, size)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an audit event. Sync mode returns the store error; async
// mode enqueues and returns nil.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case <-p.closed:
		return nil
	default:
	}
	select {
	case p.inbox <- event:
	case <-p.closed:
	default:
		// Buffer full. Operations events are droppable by contract.
	}
	return nil
}

// List exposes the underlying store's query; convenience for tests.
func (p *Publisher) List(ctx context.Context, subject string) ([]audit.Event, error) {
	return p.store.List(ctx, subject)
}

// Close stops the async drain goroutine and flushes pending events. The
// inbox channel is never closed so a late Emit can lose the race safely.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.closed)
		if p.inbox != nil {
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.inbox:
			_ = p.store.Append(context.Background(), event)
		case <-p.closed:
			for {
				select {
				case event := <-p.inbox:
					_ = p.store.Append(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}
