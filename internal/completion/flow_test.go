package completion

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws/dynamotest"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/clock"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/loyalty"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/orders"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/reservation"
)

// Exercises the real stores end to end: checkout, payment, accrual, refund.
func TestOrderFlow_PaymentAccruesOnceAndRefundReverses(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fake := dynamotest.New().
		CreateTable("orders", "order_id").
		CreateTable("order-timeouts", "order_id").
		CreateTable("point-ledger", "transaction_id").
		CreateIndex("point-ledger", loyalty.CustomerIndex, "created_at_ms").
		CreateTable("customers", "customer_id")
	clk := clock.NewMockClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	settings, ladder, err := loyalty.LoadFile("")
	require.NoError(t, err)
	customers := loyalty.NewCustomerStore(fake, "customers")
	ledger := loyalty.NewLedger(fake, "point-ledger", "customers")
	svc := loyalty.NewService(loyalty.NewStaticSource(settings, ladder), ledger, customers, clk, nil)

	dispatcher := orders.NewDispatcher(nil)
	dispatcher.Subscribe("completion", NewOrchestrator(svc, Config{}))

	manager := orders.NewManager(
		orders.NewStore(fake, "orders"),
		reservation.NewClient(reservation.NewRedisStore(rdb), reservation.ClientConfig{}),
		orders.NewTimeoutStore(fake, "order-timeouts"),
		dispatcher,
		orders.ManagerConfig{Clock: clk},
	)

	order, err := manager.CreateOrder(ctx, orders.CreateOrderInput{
		CustomerID: "cust-1",
		Items: []orders.LineItem{
			{ProductID: "p1", Quantity: 3, UnitPrice: 4000},
			{ProductID: "p2", Quantity: 1, UnitPrice: 800, IsDiscounted: true, OriginalPrice: 1000},
		},
	})
	require.NoError(t, err)

	_, err = manager.ConfirmPayment(ctx, order.OrderID, orders.PaymentDetails{TransactionID: "pay-1"})
	require.NoError(t, err)
	_, err = manager.UpdateStatus(ctx, order.OrderID, orders.StatusProcessing)
	require.NoError(t, err)

	c, err := customers.Get(ctx, "cust-1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(12800), c.TotalSpent)
	assert.Equal(t, int64(120+8), c.PointsBalance)
	assert.Equal(t, "silver", c.MemberLevel)
	assert.Equal(t, 1, fake.Len("point-ledger"))

	_, err = manager.UpdateStatus(ctx, order.OrderID, orders.StatusRefunded)
	require.NoError(t, err)

	c, err = customers.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Zero(t, c.PointsBalance)
	assert.Equal(t, "silver", c.MemberLevel, "refunds never lower the tier")
	assert.Equal(t, 2, fake.Len("point-ledger"))
}
