package orders

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// ErrStatusMismatch means the stored status was not the expected one when a
// conditional transition ran.
var ErrStatusMismatch = errs.New("status mismatch/conditional failed")

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
	}
}

// Create persists a new order. An existing order with the same id is never overwritten.
func (s *Store) Create(ctx context.Context, o Order) error {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return errs.Wrap(err, "marshal order")
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return errs.Newf("order %s already exists", o.OrderID)
		}
		return errs.Downstream(err, "put order")
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, errs.Downstream(err, "get order")
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, errs.Wrap(err, "unmarshal order")
	}
	return &o, nil
}

// TransitionInput describes one guarded status change.
type TransitionInput struct {
	OrderID string
	From    Status
	To      Status
	At      time.Time

	// Optional fields written together with the status.
	PaymentTransactionID string
	PaymentMethod        string
	CancelReason         string
}

// Transition conditionally moves the order from in.From to in.To, stamps the
// "<status>_at" attribute and returns the updated order.
// Returns ErrStatusMismatch if the stored status is not in.From.
func (s *Store) Transition(ctx context.Context, in TransitionInput) (*Order, error) {
	at, err := attributevalue.Marshal(in.At)
	if err != nil {
		return nil, errs.Wrap(err, "marshal transition time")
	}

	updateExpr := "SET #s = :to, updated_at = :at, #ts = :at"
	names := map[string]string{
		"#s":  "status",
		"#ts": timestampAttr(in.To),
	}
	values := map[string]types.AttributeValue{
		":to":       &types.AttributeValueMemberS{Value: string(in.To)},
		":expected": &types.AttributeValueMemberS{Value: string(in.From)},
		":at":       at,
	}
	if in.PaymentTransactionID != "" {
		updateExpr += ", payment_transaction_id = :txn"
		values[":txn"] = &types.AttributeValueMemberS{Value: in.PaymentTransactionID}
	}
	if in.PaymentMethod != "" {
		updateExpr += ", payment_method = :pm"
		values[":pm"] = &types.AttributeValueMemberS{Value: in.PaymentMethod}
	}
	if in.CancelReason != "" {
		updateExpr += ", cancel_reason = :reason"
		values[":reason"] = &types.AttributeValueMemberS{Value: in.CancelReason}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(in.OrderID),
		UpdateExpression:          &updateExpr,
		ConditionExpression:       sdkaws.String("#s = :expected"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return nil, ErrStatusMismatch
		}
		return nil, errs.Downstream(err, "update order status")
	}

	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, errs.Wrap(err, "unmarshal order")
	}
	return &o, nil
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}
