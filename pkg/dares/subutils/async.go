// Package subutils holds reusable bus handler wrappers.
package subutils

import (
	"context"
	"errors"
	"sync"

	"github.com/tsarna/dares/pkg/dares/bus"
	"go.uber.org/zap"
)

var (
	ErrQueueFull     = errors.New("handler queue is full")
	ErrHandlerClosed = errors.New("handler is closed")
)

type queuedEvent struct {
	ctx     context.Context
	event   string
	payload any
}

// AsyncHandler decouples a slow handler from the goroutine that emits on the
// bus. Deliveries are queued on a bounded channel and processed in order by a
// single background goroutine.
//
// Example:
//
//	printer := subutils.NewAsyncHandler(printEvent, 100, logger).Start()
//	defer printer.Close()
//	b.SubscribePattern("#", printer.Handle)
type AsyncHandler struct {
	wrapped   bus.Handler
	logger    *zap.Logger
	queue     chan queuedEvent
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsyncHandler creates an AsyncHandler with the given queue size. Start must
// be called before deliveries are processed.
func NewAsyncHandler(wrapped bus.Handler, queueSize int, logger *zap.Logger) *AsyncHandler {
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AsyncHandler{
		wrapped: wrapped,
		logger:  logger,
		queue:   make(chan queuedEvent, queueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the processing goroutine and returns the handler for chaining.
func (a *AsyncHandler) Start() *AsyncHandler {
	a.wg.Add(1)
	go a.processQueue()
	return a
}

// Handle is a bus.Handler that enqueues the delivery and returns immediately.
// When the queue is full the delivery is dropped and ErrQueueFull returned,
// which the bus logs.
func (a *AsyncHandler) Handle(ctx context.Context, event string, payload any) error {
	if a.IsClosed() {
		return ErrHandlerClosed
	}

	select {
	case a.queue <- queuedEvent{ctx: ctx, event: event, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *AsyncHandler) processQueue() {
	defer a.wg.Done()

	for {
		select {
		case item := <-a.queue:
			a.process(item)
		case <-a.done:
			a.drainQueue()
			return
		}
	}
}

func (a *AsyncHandler) drainQueue() {
	for {
		select {
		case item := <-a.queue:
			a.process(item)
		default:
			return
		}
	}
}

func (a *AsyncHandler) process(item queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Async handler panicked", zap.String("event", item.event), zap.Any("panic", r))
		}
	}()

	if err := a.wrapped(item.ctx, item.event, item.payload); err != nil {
		a.logger.Warn("Async handler failed", zap.String("event", item.event), zap.Error(err))
	}
}

// Close stops accepting deliveries, processes what is already queued and
// waits for the background goroutine to exit.
func (a *AsyncHandler) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
	return nil
}

// QueueSize returns the current number of queued deliveries
func (a *AsyncHandler) QueueSize() int {
	return len(a.queue)
}

// QueueCapacity returns the maximum capacity of the queue
func (a *AsyncHandler) QueueCapacity() int {
	return cap(a.queue)
}

// IsClosed returns true once Close has been called
func (a *AsyncHandler) IsClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
