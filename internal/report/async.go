package report

import (
	"context"
	"sync"

	"github.com/bardlex/noso2m/pkg/circuit"
	"github.com/bardlex/noso2m/pkg/log"
)

// Handler is a sink that can fail, such as a network publisher or a store
type Handler interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Async queues events for a Handler and delivers them from its own goroutine
// through a circuit breaker. A full queue drops the event.
type Async struct {
	handler Handler
	breaker *circuit.Breaker
	logger  *log.Logger
	queue   chan Event

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewAsync wraps h. size is the queue length.
func NewAsync(h Handler, size int, logger *log.Logger) *Async {
	if size <= 0 {
		size = 64
	}
	logger = logger.WithComponent("sink").WithFields("sink", h.Name())

	cfg := circuit.SinkConfig(h.Name())
	cfg.OnStateChange = func(name string, from, to circuit.State) {
		logger.Warn("sink circuit changed state", "from", from.String(), "to", to.String())
	}

	return &Async{
		handler: h,
		breaker: circuit.New(cfg),
		logger:  logger,
		queue:   make(chan Event, size),
		done:    make(chan struct{}),
	}
}

// Emit implements Sink
func (a *Async) Emit(_ context.Context, e Event) {
	select {
	case a.queue <- e:
	default:
		a.logger.Warn("sink queue full, dropping event", "type", e.EventType())
	}
}

// Start launches the delivery goroutine. It drains the queue after ctx ends
// or Close is called.
func (a *Async) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		go a.run(ctx)
	})
}

func (a *Async) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case e, ok := <-a.queue:
			if !ok {
				return
			}
			a.deliver(ctx, e)
		case <-ctx.Done():
			a.drain()
			return
		}
	}
}

// drain delivers what is queued with a fresh context
func (a *Async) drain() {
	for {
		select {
		case e, ok := <-a.queue:
			if !ok {
				return
			}
			a.deliver(context.Background(), e)
		default:
			return
		}
	}
}

func (a *Async) deliver(ctx context.Context, e Event) {
	err := a.breaker.Execute(ctx, func() error {
		return a.handler.Handle(ctx, e)
	})
	if err != nil {
		a.logger.WithError(err).Debug("sink delivery failed", "type", e.EventType())
	}
}

// Close stops accepting events and waits for the queue to drain. Start must
// have been called.
func (a *Async) Close() {
	a.stopOnce.Do(func() {
		close(a.queue)
	})
	<-a.done
}
