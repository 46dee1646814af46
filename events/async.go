package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

const (
	DefaultBufferSize = 256
	publishTimeout    = 5 * time.Second
)

// Sink is an external destination for events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Event) error
	Close() error
}

// AsyncObserver hands events to a sink from its own goroutine. When the
// buffer is full the event is dropped, logged and counted.
type AsyncObserver struct {
	sink    Sink
	ch      chan Event
	logger  *zap.Logger
	metrics *metrics.EventMetrics

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

func NewAsyncObserver(sink Sink, bufferSize int, logger *zap.Logger, m *metrics.EventMetrics) *AsyncObserver {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if m == nil {
		m = metrics.NewEventMetrics(nil)
	}
	a := &AsyncObserver{
		sink:    sink,
		ch:      make(chan Event, bufferSize),
		logger:  logger.Named("events").With(zap.String("sink", sink.Name())),
		metrics: m,
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Notify queues e for the sink. Events after Close are discarded.
func (a *AsyncObserver) Notify(_ context.Context, e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- e:
	default:
		a.metrics.Dropped.WithLabelValues(a.sink.Name()).Inc()
		a.logger.Warn("Event buffer full, dropping event", zap.String("type", string(e.Type)))
	}
}

func (a *AsyncObserver) loop() {
	defer close(a.done)
	for e := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := a.sink.Publish(ctx, e)
		cancel()
		if err != nil {
			a.metrics.Failed.WithLabelValues(a.sink.Name()).Inc()
			a.logger.Error("Failed to publish event", zap.String("type", string(e.Type)), zap.Error(err))
			continue
		}
		a.metrics.Published.WithLabelValues(a.sink.Name()).Inc()
	}
}

// Close drains the buffer and closes the sink.
func (a *AsyncObserver) Close() error {
	var err error
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
		<-a.done
		err = a.sink.Close()
	})
	return err
}
