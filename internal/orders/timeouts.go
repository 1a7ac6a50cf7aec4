package orders

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// TimeoutRecord is the companion item that expires with the reservation
// window. Its TTL eviction is streamed to the worker, which cancels the order.
type TimeoutRecord struct {
	OrderID         string    `dynamodbav:"order_id"` // PK
	CustomerID      string    `dynamodbav:"customer_id,omitempty"`
	ReservationKeys []string  `dynamodbav:"reservation_keys,omitempty"`
	CreatedAt       time.Time `dynamodbav:"created_at"`
	ExpiresAt       int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

// TimeoutStore writes and clears order timeout records.
type TimeoutStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewTimeoutStore(client aws.DynamoDBAPI, tableName string) *TimeoutStore {
	return &TimeoutStore{client: client, tableName: tableName}
}

// Schedule writes (or replaces) the timeout record for o expiring at deadline.
func (s *TimeoutStore) Schedule(ctx context.Context, o Order, deadline time.Time) error {
	item, err := attributevalue.MarshalMap(TimeoutRecord{
		OrderID:         o.OrderID,
		CustomerID:      o.CustomerID,
		ReservationKeys: o.ReservationKeys(),
		CreatedAt:       o.CreatedAt,
		ExpiresAt:       deadline.Unix(),
	})
	if err != nil {
		return errs.Wrap(err, "marshal timeout record")
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return errs.Downstream(err, "put timeout record")
	}
	return nil
}

// Clear removes the timeout record; clearing a missing record is a no-op.
func (s *TimeoutStore) Clear(ctx context.Context, orderID string) error {
	if _, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	}); err != nil {
		return errs.Downstream(err, "delete timeout record")
	}
	return nil
}
