package orders

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatusChanged is published after a transition has been persisted.
// From is empty for a newly created order.
type StatusChanged struct {
	Order Order
	From  Status
	To    Status
	At    time.Time
}

// Subscriber reacts to order status changes. Errors are logged by the
// dispatcher and never roll back the transition.
type Subscriber interface {
	OnStatusChanged(ctx context.Context, evt StatusChanged) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, evt StatusChanged) error

func (f SubscriberFunc) OnStatusChanged(ctx context.Context, evt StatusChanged) error {
	return f(ctx, evt)
}

// Dispatcher delivers events to subscribers synchronously, in subscription order.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   []namedSubscriber
	logger *zap.Logger
}

type namedSubscriber struct {
	name string
	sub  Subscriber
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) Subscribe(name string, s Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, namedSubscriber{name: name, sub: s})
}

func (d *Dispatcher) Publish(ctx context.Context, evt StatusChanged) {
	d.mu.RLock()
	subs := append([]namedSubscriber(nil), d.subs...)
	d.mu.RUnlock()

	for _, s := range subs {
		if err := s.sub.OnStatusChanged(ctx, evt); err != nil {
			d.logger.Error("order event subscriber failed",
				zap.String("subscriber", s.name),
				zap.String("order_id", evt.Order.OrderID),
				zap.String("from", string(evt.From)),
				zap.String("to", string(evt.To)),
				zap.Error(err))
		}
	}
}
