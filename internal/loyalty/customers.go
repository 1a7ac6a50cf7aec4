package loyalty

import (
	"context"
	"strconv"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// Customer is the loyalty view of a customer record.
type Customer struct {
	CustomerID    string `dynamodbav:"customer_id" json:"customer_id"` // PK
	TotalSpent    int64  `dynamodbav:"total_spent" json:"total_spent"`
	MemberLevel   string `dynamodbav:"member_level,omitempty" json:"member_level,omitempty"`
	PointsBalance int64  `dynamodbav:"points_balance" json:"points_balance"`
}

// CustomerStore reads and updates the customers table.
type CustomerStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewCustomerStore(client aws.DynamoDBAPI, tableName string) *CustomerStore {
	return &CustomerStore{client: client, tableName: tableName}
}

// Get returns the customer or (nil, nil) when unknown.
func (s *CustomerStore) Get(ctx context.Context, customerID string) (*Customer, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            customerKey(customerID),
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, errs.Downstream(err, "get customer")
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Customer
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, errs.Wrap(err, "unmarshal customer")
	}
	return &c, nil
}

// AddTotalSpent atomically adds amount to the cumulative spend and returns the new total.
func (s *CustomerStore) AddTotalSpent(ctx context.Context, customerID string, amount int64) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              customerKey(customerID),
		UpdateExpression: sdkaws.String("ADD total_spent :amt"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amt": &types.AttributeValueMemberN{Value: strconv.FormatInt(amount, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, errs.Downstream(err, "add total spent")
	}

	var updated struct {
		TotalSpent int64 `dynamodbav:"total_spent"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return 0, errs.Wrap(err, "unmarshal total spent")
	}
	return updated.TotalSpent, nil
}

// SetMemberLevel replaces the cached level only if it still equals from
// (absent when from is empty). A lost race is reported as ErrAlreadyProcessed.
func (s *CustomerStore) SetMemberLevel(ctx context.Context, customerID, from, to string) error {
	values := map[string]types.AttributeValue{
		":to": &types.AttributeValueMemberS{Value: to},
	}
	cond := "attribute_not_exists(member_level)"
	if from != "" {
		cond = "member_level = :from"
		values[":from"] = &types.AttributeValueMemberS{Value: from}
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       customerKey(customerID),
		UpdateExpression:          sdkaws.String("SET member_level = :to"),
		ConditionExpression:       &cond,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return errs.Mark(errs.Newf("member level of %s changed concurrently", customerID), errs.ErrAlreadyProcessed)
		}
		return errs.Downstream(err, "set member level")
	}
	return nil
}

func customerKey(customerID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"customer_id": &types.AttributeValueMemberS{Value: customerID},
	}
}
