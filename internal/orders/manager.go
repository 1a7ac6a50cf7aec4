package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/clock"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// Reserver is satisfied by *reservation.Client.
type Reserver interface {
	Acquire(ctx context.Context, key string, quantity int) (bool, error)
	Release(ctx context.Context, key string) error
	TTL() time.Duration
}

// Repository is satisfied by *Store.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	Transition(ctx context.Context, in TransitionInput) (*Order, error)
}

// TimeoutScheduler is satisfied by *TimeoutStore.
type TimeoutScheduler interface {
	Schedule(ctx context.Context, o Order, deadline time.Time) error
	Clear(ctx context.Context, orderID string) error
}

// EventPublisher is satisfied by *Dispatcher.
type EventPublisher interface {
	Publish(ctx context.Context, evt StatusChanged)
}

// Counter is satisfied by *aws.Metrics.
type Counter interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

const (
	defaultMaxFanOut = 16

	reasonScheduleFailed = "reservation window could not be scheduled"
)

type ManagerConfig struct {
	MaxFanOut int
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   Counter
}

// Manager owns the order state machine and coordinates reservations,
// persistence and the timeout record for every transition.
type Manager struct {
	repo      Repository
	reserver  Reserver
	timeouts  TimeoutScheduler
	events    EventPublisher
	maxFanOut int
	clock     clock.Clock
	logger    *zap.Logger
	metrics   Counter
	newID     func() string
}

func NewManager(repo Repository, reserver Reserver, timeouts TimeoutScheduler, events EventPublisher, cfg ManagerConfig) *Manager {
	m := &Manager{
		repo:      repo,
		reserver:  reserver,
		timeouts:  timeouts,
		events:    events,
		maxFanOut: cfg.MaxFanOut,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		newID:     uuid.NewString,
	}
	if m.maxFanOut <= 0 {
		m.maxFanOut = defaultMaxFanOut
	}
	if m.clock == nil {
		m.clock = clock.NewRealClock()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// CreateOrderInput is a checkout request.
type CreateOrderInput struct {
	CustomerID  string
	VendorID    string
	Items       []LineItem
	ShippingFee int64
}

func (in CreateOrderInput) validate() error {
	if in.CustomerID == "" {
		return errs.Mark(errs.New("customer id is required"), errs.ErrInvalidOrder)
	}
	if len(in.Items) == 0 {
		return errs.Mark(errs.New("order has no line items"), errs.ErrInvalidOrder)
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return errs.Mark(errs.Newf("line %d: product id is required", i), errs.ErrInvalidOrder)
		}
		if it.Quantity < 1 {
			return errs.Mark(errs.Newf("line %d: quantity must be at least 1", i), errs.ErrInvalidOrder)
		}
		if it.UnitPrice < 0 {
			return errs.Mark(errs.Newf("line %d: unit price must not be negative", i), errs.ErrInvalidOrder)
		}
	}
	if in.ShippingFee < 0 {
		return errs.Mark(errs.New("shipping fee must not be negative"), errs.ErrInvalidOrder)
	}
	return nil
}

type acquireResult struct {
	key string
	ok  bool
	err error
}

// CreateOrder reserves every line concurrently and persists a pending order
// only when all reservations succeed. Any failure releases every key this
// call acquired before returning.
func (m *Manager) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	keys, qty := aggregate(in.Items)
	results := make([]acquireResult, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxFanOut)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			ok, err := m.reserver.Acquire(gctx, key, qty[key])
			results[i] = acquireResult{key: key, ok: ok, err: err}
			// never short-circuit: every outcome is needed for rollback
			return nil
		})
	}
	_ = g.Wait()

	var acquired, failed []string
	var storeErr error
	for _, r := range results {
		switch {
		case r.err != nil:
			storeErr = r.err
			failed = append(failed, r.key)
		case !r.ok:
			failed = append(failed, r.key)
		default:
			acquired = append(acquired, r.key)
		}
	}

	if len(failed) > 0 {
		m.releaseAll(ctx, acquired)
		if storeErr != nil {
			return nil, errs.Wrap(storeErr, "reserve inventory")
		}
		m.count(ctx, aws.MetricOutOfStock)
		m.logger.Info("order rejected, out of stock",
			zap.String("customer_id", in.CustomerID),
			zap.Strings("keys", failed))
		return nil, &errs.OutOfStockError{Keys: failed}
	}

	now := m.clock.Now()
	o := Order{
		OrderID:     m.newID(),
		CustomerID:  in.CustomerID,
		VendorID:    in.VendorID,
		Status:      StatusPending,
		Items:       normalizeItems(in.Items),
		Total:       totalOf(in.Items),
		ShippingFee: in.ShippingFee,
		CreatedAt:   now,
		UpdatedAt:   now,
		LockedAt:    &now,
	}

	if err := m.repo.Create(ctx, o); err != nil {
		m.releaseAll(ctx, acquired)
		return nil, errs.Wrap(err, "create order")
	}

	if err := m.timeouts.Schedule(ctx, o, now.Add(m.reserver.TTL())); err != nil {
		// without a timeout record the order would stay pending forever
		m.abandon(ctx, o, acquired)
		return nil, errs.Wrap(err, "schedule order timeout")
	}

	m.count(ctx, aws.MetricOrderCreated)
	m.logger.Info("order created",
		zap.String("order_id", o.OrderID),
		zap.String("customer_id", o.CustomerID),
		zap.Int64("total", o.Total),
		zap.Int("reservations", len(acquired)))

	m.publish(ctx, StatusChanged{Order: o, To: StatusPending, At: now})
	return &o, nil
}

// PaymentDetails is recorded on the order when payment is confirmed.
type PaymentDetails struct {
	TransactionID string
	Method        string
}

// ConfirmPayment moves a pending order to paid, clears its timeout record and
// releases its reservations. A non-pending order yields ErrAlreadyProcessed.
func (m *Manager) ConfirmPayment(ctx context.Context, orderID string, payment PaymentDetails) (*Order, error) {
	current, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusPending {
		return nil, errs.Mark(errs.Newf("order %s is %s", orderID, current.Status), errs.ErrAlreadyProcessed)
	}

	updated, err := m.apply(ctx, current, StatusPaid, TransitionInput{
		PaymentTransactionID: payment.TransactionID,
		PaymentMethod:        payment.Method,
	})
	if errs.Is(err, ErrStatusMismatch) {
		// a concurrent confirmation or cancellation won the race
		return nil, errs.Mark(errs.Newf("order %s is no longer pending", orderID), errs.ErrAlreadyProcessed)
	}
	return updated, err
}

// UpdateStatus applies any legal transition. Leaving pending carries the same
// side effects as ConfirmPayment or CancelOrder.
func (m *Manager) UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	current, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, to) {
		return nil, &errs.InvalidTransitionError{From: string(current.Status), To: string(to)}
	}

	updated, err := m.apply(ctx, current, to, TransitionInput{})
	if errs.Is(err, ErrStatusMismatch) {
		return nil, m.raceError(ctx, orderID, to)
	}
	return updated, err
}

// CancelOrder is only legal from pending. It releases every reservation and
// clears the timeout record.
func (m *Manager) CancelOrder(ctx context.Context, orderID, reason string) (*Order, error) {
	current, err := m.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusPending {
		return nil, &errs.InvalidTransitionError{From: string(current.Status), To: string(StatusCancelled)}
	}

	updated, err := m.apply(ctx, current, StatusCancelled, TransitionInput{CancelReason: reason})
	if errs.Is(err, ErrStatusMismatch) {
		return nil, m.raceError(ctx, orderID, StatusCancelled)
	}
	return updated, err
}

// Get returns the order or an ErrNotFound-marked error.
func (m *Manager) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := m.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errs.Mark(errs.Newf("order %s not found", orderID), errs.ErrNotFound)
	}
	return o, nil
}

// apply persists current.Status -> to and runs the side effects of leaving pending.
func (m *Manager) apply(ctx context.Context, current *Order, to Status, in TransitionInput) (*Order, error) {
	in.OrderID = current.OrderID
	in.From = current.Status
	in.To = to
	in.At = m.clock.Now()

	updated, err := m.repo.Transition(ctx, in)
	if err != nil {
		return nil, err
	}

	m.logger.Info("order status changed",
		zap.String("order_id", updated.OrderID),
		zap.String("from", string(in.From)),
		zap.String("to", string(to)))

	if in.From == StatusPending {
		if err := m.timeouts.Clear(ctx, updated.OrderID); err != nil {
			// the worker ignores timeouts for orders that left pending
			m.logger.Warn("clear order timeout failed", zap.String("order_id", updated.OrderID), zap.Error(err))
		}
		m.releaseAll(ctx, updated.ReservationKeys())
	}

	m.publish(ctx, StatusChanged{Order: *updated, From: in.From, To: to, At: in.At})
	return updated, nil
}

// raceError re-reads the order after a lost conditional write so the caller
// sees the status that actually won.
func (m *Manager) raceError(ctx context.Context, orderID string, to Status) error {
	latest, err := m.Get(ctx, orderID)
	if err != nil {
		return err
	}
	return &errs.InvalidTransitionError{From: string(latest.Status), To: string(to)}
}

// abandon cancels an order that could not be fully set up and frees its stock.
func (m *Manager) abandon(ctx context.Context, o Order, keys []string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := m.repo.Transition(ctx, TransitionInput{
		OrderID:      o.OrderID,
		From:         StatusPending,
		To:           StatusCancelled,
		At:           m.clock.Now(),
		CancelReason: reasonScheduleFailed,
	}); err != nil {
		m.logger.Error("abandon order failed", zap.String("order_id", o.OrderID), zap.Error(err))
	}
	m.releaseAll(ctx, keys)
}

// normalizeItems copies items with the discount flag derived from prices.
func normalizeItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, it := range items {
		it.IsDiscounted = it.Discounted()
		out[i] = it
	}
	return out
}

func (m *Manager) releaseAll(ctx context.Context, keys []string) {
	// rollback must run even if the caller has gone away
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := m.reserver.Release(ctx, key); err != nil {
			m.logger.Error("release reservation failed, ttl will reclaim it",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}

func (m *Manager) publish(ctx context.Context, evt StatusChanged) {
	if m.events == nil {
		return
	}
	m.events.Publish(ctx, evt)
}

func (m *Manager) count(ctx context.Context, name string) {
	if m.metrics == nil {
		return
	}
	m.metrics.Count(ctx, name, nil)
}
