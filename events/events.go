package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type names an engine notification.
type Type string

const (
	OpportunitiesFound Type = "opportunitiesFound"
	ExecutionCreated   Type = "executionCreated"
	ExecutionCompleted Type = "executionCompleted"
	ExecutionFailed    Type = "executionFailed"
	ConfigUpdated      Type = "configUpdated"
)

// Event is what observers receive. Payload is a copy owned by the event.
type Event struct {
	Type      Type        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Observer receives events in emission order. Notify must not block for
// long; wrap slow consumers in an AsyncObserver.
type Observer interface {
	Notify(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Notify(ctx context.Context, e Event) {
	f(ctx, e)
}

// Bus fans events out to its observers synchronously. Emit calls are
// serialized so every observer sees the same order.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer

	emitMu sync.Mutex
	now    func() time.Time
}

func NewBus() *Bus {
	return &Bus{now: time.Now}
}

func (b *Bus) Subscribe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Emit stamps and delivers one event.
func (b *Bus) Emit(ctx context.Context, t Type, payload interface{}) {
	if b == nil {
		return
	}
	b.mu.RLock()
	observers := append([]Observer(nil), b.observers...)
	b.mu.RUnlock()

	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	e := Event{Type: t, Timestamp: b.now(), Payload: payload}
	for _, o := range observers {
		o.Notify(ctx, e)
	}
}

// LogObserver writes every event to the log.
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger.Named("events")}
}

func (l *LogObserver) Notify(_ context.Context, e Event) {
	l.logger.Info("Event", zap.String("type", string(e.Type)), zap.Time("timestamp", e.Timestamp), zap.Any("payload", e.Payload))
}
