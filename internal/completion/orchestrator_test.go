package completion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/loyalty"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/orders"
)

func paidOrder() orders.Order {
	return orders.Order{
		OrderID:    "ord-1",
		CustomerID: "cust-1",
		Status:     orders.StatusPaid,
		Items: []orders.LineItem{
			{ProductID: "p1", VariantID: "v1", Quantity: 3, UnitPrice: 1000},
			{ProductID: "p2", Quantity: 1, UnitPrice: 800, IsDiscounted: true, OriginalPrice: 1000},
		},
		Total:       3800,
		ShippingFee: 60,
	}
}

func TestOnStatusChanged_RunsStepsInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewMockLoyalty(ctrl)
	o := NewOrchestrator(l, Config{})
	order := paidOrder()

	gomock.InOrder(
		l.EXPECT().UpdateUserTotalSpent(gomock.Any(), "cust-1", int64(3800)).Return(int64(3800), nil),
		l.EXPECT().AwardOrderPoints(gomock.Any(), PointsInput(order)).Return(loyalty.AwardResult{Points: 38}, nil),
		l.EXPECT().CheckAndUpgradeMemberLevel(gomock.Any(), "cust-1").Return(loyalty.UpgradeResult{}, nil),
	)

	err := o.OnStatusChanged(context.Background(), orders.StatusChanged{Order: order, From: orders.StatusPending, To: orders.StatusPaid})
	require.NoError(t, err)
}

func TestComplete_FailedStepDoesNotStopLaterSteps(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewMockLoyalty(ctrl)
	metrics := NewMockCounter(ctrl)
	core, logs := observer.New(zapcore.InfoLevel)
	o := NewOrchestrator(l, Config{Logger: zap.New(core), Metrics: metrics})

	l.EXPECT().UpdateUserTotalSpent(gomock.Any(), "cust-1", int64(3800)).Return(int64(3800), nil)
	l.EXPECT().AwardOrderPoints(gomock.Any(), gomock.Any()).Return(loyalty.AwardResult{}, errors.New("ledger unavailable"))
	l.EXPECT().CheckAndUpgradeMemberLevel(gomock.Any(), "cust-1").Return(loyalty.UpgradeResult{Upgraded: true, NewLevel: "bronze"}, nil)
	metrics.EXPECT().Count(gomock.Any(), "LoyaltyStepFailed", map[string]string{"Step": StepAwardPoints})

	res := o.Complete(context.Background(), paidOrder())

	assert.False(t, res.OK())
	assert.True(t, res.Succeeded(StepTotalSpent))
	assert.False(t, res.Succeeded(StepAwardPoints))
	assert.True(t, res.Succeeded(StepMemberLevel))

	failed := logs.FilterMessage("loyalty step failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Equal(t, StepAwardPoints, failed[0].ContextMap()["step"])
}

func TestComplete_SpendFailureStillAwards(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewMockLoyalty(ctrl)
	o := NewOrchestrator(l, Config{})

	l.EXPECT().UpdateUserTotalSpent(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), errs.Downstream(errors.New("timeout"), "add total spent"))
	l.EXPECT().AwardOrderPoints(gomock.Any(), gomock.Any()).Return(loyalty.AwardResult{Points: 38}, nil)
	l.EXPECT().CheckAndUpgradeMemberLevel(gomock.Any(), gomock.Any()).Return(loyalty.UpgradeResult{}, nil)

	res := o.Complete(context.Background(), paidOrder())

	require.Len(t, res.Steps, 3)
	assert.False(t, res.Succeeded(StepTotalSpent))
	assert.True(t, res.Succeeded(StepAwardPoints))
}

func TestComplete_AlreadyAwardedIsSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewMockLoyalty(ctrl)
	o := NewOrchestrator(l, Config{})

	l.EXPECT().UpdateUserTotalSpent(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(3800), nil)
	l.EXPECT().AwardOrderPoints(gomock.Any(), gomock.Any()).
		Return(loyalty.AwardResult{}, errs.Mark(errs.New("points for order ord-1 already awarded"), errs.ErrAlreadyProcessed))
	l.EXPECT().CheckAndUpgradeMemberLevel(gomock.Any(), gomock.Any()).Return(loyalty.UpgradeResult{}, nil)

	assert.True(t, o.Complete(context.Background(), paidOrder()).OK())
}

func TestOnStatusChanged_IgnoresNonTriggers(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewMockLoyalty(ctrl)
	o := NewOrchestrator(l, Config{})
	order := paidOrder()

	for _, evt := range []orders.StatusChanged{
		{Order: order, To: orders.StatusPending},
		{Order: order, From: orders.StatusPending, To: orders.StatusCancelled},
		{Order: order, From: orders.StatusPaid, To: orders.StatusProcessing},
		{Order: order, From: orders.StatusDelivered, To: orders.StatusCompleted},
	} {
		require.NoError(t, o.OnStatusChanged(context.Background(), evt))
	}
}

func TestTriggers_Configurable(t *testing.T) {
	o := NewOrchestrator(nil, Config{TriggerStatus: orders.StatusDelivered})

	assert.False(t, o.Triggers(orders.StatusPending, orders.StatusPaid))
	assert.True(t, o.Triggers(orders.StatusShipped, orders.StatusDelivered))
	assert.False(t, o.Triggers(orders.StatusDelivered, orders.StatusCompleted))
}

func TestOnStatusChanged_AccruesOnceOverLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewMockLoyalty(ctrl)
	o := NewOrchestrator(l, Config{TriggerStatus: orders.StatusCompleted})

	l.EXPECT().UpdateUserTotalSpent(gomock.Any(), "cust-1", int64(3800)).Return(int64(3800), nil).Times(1)
	l.EXPECT().AwardOrderPoints(gomock.Any(), gomock.Any()).Return(loyalty.AwardResult{Points: 38}, nil).Times(1)
	l.EXPECT().CheckAndUpgradeMemberLevel(gomock.Any(), "cust-1").Return(loyalty.UpgradeResult{}, nil).Times(1)

	path := []orders.Status{orders.StatusPending, orders.StatusPaid, orders.StatusProcessing,
		orders.StatusShipped, orders.StatusDelivered, orders.StatusCompleted}
	for i := 1; i < len(path); i++ {
		evt := orders.StatusChanged{Order: paidOrder(), From: path[i-1], To: path[i]}
		require.NoError(t, o.OnStatusChanged(context.Background(), evt))
	}
}

func TestOnStatusChanged_RefundNeverAccrues(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewMockLoyalty(ctrl)
	// a refunded trigger is rejected at startup; the orchestrator still refunds
	o := NewOrchestrator(l, Config{TriggerStatus: orders.StatusRefunded})

	l.EXPECT().DeductRefundPoints(gomock.Any(), "ord-1", "cust-1").Return(int64(0), nil)

	require.NoError(t, o.OnStatusChanged(context.Background(), orders.StatusChanged{
		Order: paidOrder(), From: orders.StatusPaid, To: orders.StatusRefunded,
	}))
}

func TestOnStatusChanged_RefundReversesPoints(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewMockLoyalty(ctrl)
	o := NewOrchestrator(l, Config{})

	l.EXPECT().DeductRefundPoints(gomock.Any(), "ord-1", "cust-1").Return(int64(38), nil)

	order := paidOrder()
	order.Status = orders.StatusRefunded
	require.NoError(t, o.OnStatusChanged(context.Background(), orders.StatusChanged{Order: order, From: orders.StatusShipped, To: orders.StatusRefunded}))
}

func TestRefund_FailureReported(t *testing.T) {
	ctrl := gomock.NewController(t)
	l := NewMockLoyalty(ctrl)
	o := NewOrchestrator(l, Config{})

	l.EXPECT().DeductRefundPoints(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), errors.New("boom"))

	res := o.Refund(context.Background(), paidOrder())
	assert.False(t, res.Succeeded(StepRefundPoints))
	assert.EqualError(t, res.Steps[0].Err, "boom")
}

func TestPointsInput(t *testing.T) {
	in := PointsInput(paidOrder())

	assert.Equal(t, "ord-1", in.OrderID)
	assert.Equal(t, int64(3800), in.MerchandiseAmount)
	assert.Equal(t, int64(60), in.ShippingAmount)
	require.Len(t, in.Items, 2)
	assert.True(t, in.Items[1].IsDiscounted)
	assert.Equal(t, 3, in.Items[0].Quantity)
}
