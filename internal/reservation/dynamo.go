package reservation

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/clock"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

type lockItem struct {
	LockKey   string `dynamodbav:"lock_key"` // PK
	Quantity  int    `dynamodbav:"quantity"`
	ExpiresAt int64  `dynamodbav:"expires_at"` // TTL epoch seconds
}

// DynamoStore keeps reservations in a table with TTL on expires_at. An item
// blocks acquisition until TTL eviction or Delete removes it, even past expires_at.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	clock     clock.Clock
}

func NewDynamoStore(client aws.DynamoDBAPI, tableName string, clk clock.Clock) *DynamoStore {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &DynamoStore{client: client, tableName: tableName, clock: clk}
}

func (s *DynamoStore) SetIfAbsent(ctx context.Context, key string, value int, ttl time.Duration) (bool, error) {
	now := s.clock.Now()
	item, err := attributevalue.MarshalMap(lockItem{
		LockKey:   key,
		Quantity:  value,
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return false, errs.Wrap(err, "marshal reservation")
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(lock_key)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return false, nil
		}
		return false, errs.Wrap(err, "put reservation")
	}
	return true, nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"lock_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return errs.Wrap(err, "delete reservation")
	}
	return nil
}

func (s *DynamoStore) Name() string { return "dynamodb" }
