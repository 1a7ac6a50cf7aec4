package idempotency

import (
	"context"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/clock"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table. It
// remembers the outcome of one checkout request keyed by its Idempotency-Key.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	clock     clock.Clock
}

// NewStore returns a configured Store. ttlWindow bounds how long a key is
// remembered, e.g. 48*time.Hour.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		clock:     clk,
	}
}

// CreateIfNotExists creates an IN_PROGRESS record if the key does not exist.
// Returns (false, nil) if the record already exists; the caller should Get it.
func (s *Store) CreateIfNotExists(ctx context.Context, key string) (bool, error) {
	now := s.clock.Now()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, errs.Wrap(err, "marshal idempotency record")
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return false, nil
		}
		return false, errs.Downstream(err, "put idempotency record")
	}
	return true, nil
}

// Reclaim moves a FAILED record back to IN_PROGRESS so the request can be
// retried under the same key. It returns false if another caller got there first.
func (s *Store) Reclaim(ctx context.Context, key string) (bool, error) {
	now := s.clock.Now()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 recordKey(key),
		UpdateExpression:    sdkaws.String("SET #s = :inprogress, updated_at = :ua, expires_at = :exp REMOVE note"),
		ConditionExpression: sdkaws.String("#s = :failed"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
			":ua":         &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":exp":        &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
		},
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return false, nil
		}
		return false, errs.Downstream(err, "reclaim idempotency record")
	}
	return true, nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            recordKey(key),
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, errs.Downstream(err, "get idempotency record")
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, errs.Wrap(err, "unmarshal idempotency record")
	}
	return &rec, nil
}

// MarkDone sets status to DONE and stores the order id plus a small response
// body and status for replays.
func (s *Store) MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error {
	now := s.clock.Now()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              recordKey(key),
		UpdateExpression: sdkaws.String("SET #s = :done, order_id = :oid, response_body = :rb, response_status = :rs, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":oid":  &types.AttributeValueMemberS{Value: orderID},
			":rb":   &types.AttributeValueMemberS{Value: responseBody},
			":rs":   &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return errs.Downstream(err, "mark idempotency record done")
	}
	return nil
}

// MarkFailed marks the record FAILED with a note. A failed key may be reclaimed.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	now := s.clock.Now()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              recordKey(key),
		UpdateExpression: sdkaws.String("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return errs.Downstream(err, "mark idempotency record failed")
	}
	return nil
}

func recordKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}
