// Package completion runs the loyalty side effects of an order reaching a
// qualifying status. Every step is best effort: a failed step is logged and
// reported but never undoes an earlier one or the order transition itself.
package completion

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/loyalty"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/orders"
)

//go:generate mockgen -source=orchestrator.go -destination=mock_loyalty_test.go -package=completion

// Loyalty is satisfied by *loyalty.Service.
type Loyalty interface {
	UpdateUserTotalSpent(ctx context.Context, customerID string, amount int64) (int64, error)
	AwardOrderPoints(ctx context.Context, in loyalty.OrderInput) (loyalty.AwardResult, error)
	CheckAndUpgradeMemberLevel(ctx context.Context, customerID string) (loyalty.UpgradeResult, error)
	DeductRefundPoints(ctx context.Context, orderID, customerID string) (int64, error)
}

// Counter is satisfied by *aws.Metrics.
type Counter interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

const (
	StepTotalSpent   = "update_total_spent"
	StepAwardPoints  = "award_points"
	StepMemberLevel  = "upgrade_member_level"
	StepRefundPoints = "deduct_refund_points"

	stepTimeout = 10 * time.Second
)

// StepResult is the outcome of one side effect.
type StepResult struct {
	Step string
	OK   bool
	Err  error
}

// Result reports which steps ran for an order and how each went.
type Result struct {
	OrderID string
	Steps   []StepResult
}

// OK reports whether every step that ran succeeded.
func (r Result) OK() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return true
}

// Succeeded reports whether step ran and succeeded.
func (r Result) Succeeded(step string) bool {
	for _, s := range r.Steps {
		if s.Step == step {
			return s.OK
		}
	}
	return false
}

type Config struct {
	// TriggerStatus starts accrual; defaults to paid.
	TriggerStatus orders.Status
	Logger        *zap.Logger
	Metrics       Counter
}

type Orchestrator struct {
	loyalty Loyalty
	trigger orders.Status
	logger  *zap.Logger
	metrics Counter
}

func NewOrchestrator(l Loyalty, cfg Config) *Orchestrator {
	o := &Orchestrator{
		loyalty: l,
		trigger: cfg.TriggerStatus,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if o.trigger == "" {
		o.trigger = orders.StatusPaid
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Triggers reports whether a transition should start accrual. The lifecycle
// enters each status at most once, so an order accrues at most once.
func (o *Orchestrator) Triggers(from, to orders.Status) bool {
	return to == o.trigger && from != o.trigger && to != orders.StatusRefunded
}

// OnStatusChanged implements orders.Subscriber. Step failures are logged and
// counted here, so it never returns an error.
func (o *Orchestrator) OnStatusChanged(ctx context.Context, evt orders.StatusChanged) error {
	switch {
	case evt.To == orders.StatusRefunded:
		o.Refund(ctx, evt.Order)
	case o.Triggers(evt.From, evt.To):
		o.Complete(ctx, evt.Order)
	}
	return nil
}

// Complete runs, in order: cumulative spend, point award, tier upgrade.
func (o *Orchestrator) Complete(ctx context.Context, order orders.Order) Result {
	// the order transition is already durable; finish the bookkeeping
	// even if the request that caused it has gone away
	ctx = context.WithoutCancel(ctx)
	res := Result{OrderID: order.OrderID}
	log := o.logger.With(zap.String("order_id", order.OrderID), zap.String("customer_id", order.CustomerID))

	res.Steps = append(res.Steps, o.run(ctx, log, StepTotalSpent, func(ctx context.Context) error {
		total, err := o.loyalty.UpdateUserTotalSpent(ctx, order.CustomerID, order.Total)
		if err == nil {
			log.Debug("total spent updated", zap.Int64("total_spent", total))
		}
		return err
	}))

	res.Steps = append(res.Steps, o.run(ctx, log, StepAwardPoints, func(ctx context.Context) error {
		award, err := o.loyalty.AwardOrderPoints(ctx, PointsInput(order))
		if errs.Is(err, errs.ErrAlreadyProcessed) {
			log.Info("points already awarded for order")
			return nil
		}
		if err == nil && award.Skipped {
			log.Debug("loyalty program disabled, award skipped")
		}
		return err
	}))

	res.Steps = append(res.Steps, o.run(ctx, log, StepMemberLevel, func(ctx context.Context) error {
		up, err := o.loyalty.CheckAndUpgradeMemberLevel(ctx, order.CustomerID)
		if errs.Is(err, errs.ErrAlreadyProcessed) {
			// a concurrent completion already moved the tier
			return nil
		}
		if err == nil && up.Upgraded {
			log.Info("member level changed", zap.String("from", up.OldLevel), zap.String("to", up.NewLevel))
		}
		return err
	}))

	return res
}

// Refund reverses the points an order earned.
func (o *Orchestrator) Refund(ctx context.Context, order orders.Order) Result {
	ctx = context.WithoutCancel(ctx)
	log := o.logger.With(zap.String("order_id", order.OrderID), zap.String("customer_id", order.CustomerID))

	step := o.run(ctx, log, StepRefundPoints, func(ctx context.Context) error {
		_, err := o.loyalty.DeductRefundPoints(ctx, order.OrderID, order.CustomerID)
		if errs.Is(err, errs.ErrAlreadyProcessed) {
			return nil
		}
		return err
	})
	return Result{OrderID: order.OrderID, Steps: []StepResult{step}}
}

func (o *Orchestrator) run(ctx context.Context, log *zap.Logger, step string, fn func(context.Context) error) StepResult {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		log.Error("loyalty step failed", zap.String("step", step), zap.Error(err))
		if o.metrics != nil {
			o.metrics.Count(ctx, aws.MetricLoyaltyStepFailed, map[string]string{"Step": step})
		}
		return StepResult{Step: step, Err: err}
	}
	return StepResult{Step: step, OK: true}
}

// PointsInput maps an order onto the calculator's input.
func PointsInput(order orders.Order) loyalty.OrderInput {
	items := make([]loyalty.Item, 0, len(order.Items))
	for _, li := range order.Items {
		items = append(items, loyalty.Item{
			ProductID:    li.ProductID,
			Quantity:     li.Quantity,
			UnitPrice:    li.UnitPrice,
			IsDiscounted: li.Discounted(),
		})
	}
	return loyalty.OrderInput{
		OrderID:           order.OrderID,
		CustomerID:        order.CustomerID,
		Items:             items,
		MerchandiseAmount: order.Total,
		ShippingAmount:    order.ShippingFee,
	}
}
