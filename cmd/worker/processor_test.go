package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-lambda-go/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws/dynamotest"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/clock"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/orders"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/reservation"
)

type fakeCanceller struct {
	calls []string
	err   error
}

func (f *fakeCanceller) CancelOrder(_ context.Context, orderID, reason string) (*orders.Order, error) {
	f.calls = append(f.calls, orderID+"|"+reason)
	if f.err != nil {
		return nil, f.err
	}
	return &orders.Order{OrderID: orderID, Status: orders.StatusCancelled}, nil
}

func removeRecord(orderID string, identity *events.DynamoDBUserIdentity) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   "evt-" + orderID,
		EventName: string(events.DynamoDBOperationTypeRemove),
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"order_id": events.NewStringAttribute(orderID),
			},
		},
		UserIdentity: identity,
	}
}

func ttlIdentity() *events.DynamoDBUserIdentity {
	return &events.DynamoDBUserIdentity{Type: ttlPrincipalType, PrincipalID: ttlPrincipalID}
}

func TestHandle_CancelsExpiredOrders(t *testing.T) {
	fc := &fakeCanceller{}
	p := NewProcessor(fc, nil)

	err := p.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeRecord("o-1", ttlIdentity()),
		removeRecord("o-2", ttlIdentity()),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1|payment window expired", "o-2|payment window expired"}, fc.calls)
}

func TestHandle_IgnoresExplicitDeletesAndOtherEvents(t *testing.T) {
	fc := &fakeCanceller{}
	p := NewProcessor(fc, nil)

	insert := removeRecord("o-3", nil)
	insert.EventName = string(events.DynamoDBOperationTypeInsert)

	err := p.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeRecord("o-1", nil),
		removeRecord("o-2", &events.DynamoDBUserIdentity{Type: "Service", PrincipalID: "someone-else"}),
		insert,
	}})
	require.NoError(t, err)
	assert.Empty(t, fc.calls)
}

func TestHandle_SwallowsSettledOrders(t *testing.T) {
	for _, sentinel := range []error{errs.ErrInvalidTransition, errs.ErrNotFound} {
		fc := &fakeCanceller{err: errs.Mark(errs.New("settled"), sentinel)}
		p := NewProcessor(fc, nil)

		err := p.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
			removeRecord("o-1", ttlIdentity()),
		}})
		assert.NoError(t, err)
		assert.Len(t, fc.calls, 1)
	}
}

func TestHandle_DownstreamErrorFailsBatch(t *testing.T) {
	fc := &fakeCanceller{err: errs.Mark(errs.New("throttled"), errs.ErrDownstream)}
	p := NewProcessor(fc, nil)

	err := p.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		removeRecord("o-1", ttlIdentity()),
		removeRecord("o-2", ttlIdentity()),
	}})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrDownstream))
	assert.Len(t, fc.calls, 1, "processing stops at the first failure")
}

func TestHandle_MissingKey(t *testing.T) {
	rec := removeRecord("o-1", ttlIdentity())
	rec.Change.Keys = nil

	err := NewProcessor(&fakeCanceller{}, nil).Handle(context.Background(), events.DynamoDBEvent{
		Records: []events.DynamoDBEventRecord{rec},
	})
	assert.Error(t, err)
}

func TestHandle_ExpiryReleasesReservations(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fake := dynamotest.New().
		CreateTable("orders", "order_id").
		CreateTable("order-timeouts", "order_id")
	manager := orders.NewManager(
		orders.NewStore(fake, "orders"),
		reservation.NewClient(reservation.NewRedisStore(rdb), reservation.ClientConfig{Policy: reservation.FailClosed}),
		orders.NewTimeoutStore(fake, "order-timeouts"),
		orders.NewDispatcher(nil),
		orders.ManagerConfig{Clock: clock.NewMockClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))},
	)

	order, err := manager.CreateOrder(context.Background(), orders.CreateOrderInput{
		CustomerID: "cust-1",
		Items:      []orders.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: 500}},
	})
	require.NoError(t, err)
	require.True(t, mr.Exists(reservation.Key("p1", "")))

	p := NewProcessor(manager, nil)
	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{removeRecord(order.OrderID, ttlIdentity())}}
	require.NoError(t, p.Handle(context.Background(), event))

	got, err := manager.Get(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, "payment window expired", got.CancelReason)
	assert.False(t, mr.Exists(reservation.Key("p1", "")))

	// a redelivered record is a no-op
	assert.NoError(t, p.Handle(context.Background(), event))
}
