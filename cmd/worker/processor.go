package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/orders"
)

const (
	reasonExpired = "payment window expired"

	// TTL deletions are attributed to the DynamoDB service principal.
	ttlPrincipalType = "Service"
	ttlPrincipalID   = "dynamodb.amazonaws.com"
)

// Canceller is satisfied by *orders.Manager.
type Canceller interface {
	CancelOrder(ctx context.Context, orderID, reason string) (*orders.Order, error)
}

// Processor cancels orders whose timeout record was expired by DynamoDB TTL.
type Processor struct {
	orders Canceller
	logger *zap.Logger
}

func NewProcessor(c Canceller, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{orders: c, logger: logger}
}

// Handle receives a stream batch from the order-timeouts table. Returning an
// error makes Lambda retry the batch; CancelOrder is safe to repeat.
func (p *Processor) Handle(ctx context.Context, ev events.DynamoDBEvent) error {
	for _, rec := range ev.Records {
		if err := p.processRecord(ctx, rec); err != nil {
			p.logger.Error("worker error", zap.String("event_id", rec.EventID), zap.Error(err))
			return err
		}
	}
	return nil
}

func (p *Processor) processRecord(ctx context.Context, rec events.DynamoDBEventRecord) error {
	if rec.EventName != string(events.DynamoDBOperationTypeRemove) || !expiredByTTL(rec) {
		// explicit deletes happen when an order leaves pending
		return nil
	}

	key, ok := rec.Change.Keys["order_id"]
	if !ok || key.DataType() != events.DataTypeString {
		return errs.Newf("stream record %s has no order_id key", rec.EventID)
	}
	orderID := key.String()

	_, err := p.orders.CancelOrder(ctx, orderID, reasonExpired)
	switch {
	case err == nil:
		p.logger.Info("order expired and cancelled", zap.String("order_id", orderID))
		return nil
	case errs.Is(err, errs.ErrInvalidTransition), errs.Is(err, errs.ErrNotFound):
		// paid or cancelled before the record expired
		p.logger.Info("expired timeout ignored", zap.String("order_id", orderID), zap.Error(err))
		return nil
	}
	return errs.Wrapf(err, "cancel expired order %s", orderID)
}

func expiredByTTL(rec events.DynamoDBEventRecord) bool {
	id := rec.UserIdentity
	return id != nil && id.Type == ttlPrincipalType && id.PrincipalID == ttlPrincipalID
}
