package loyalty

import (
	"context"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/aws"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

type TransactionType string

const (
	TypeEarn         TransactionType = "earn"
	TypeRedeem       TransactionType = "redeem"
	TypeRefund       TransactionType = "refund"
	TypeManualAdd    TransactionType = "manual-add"
	TypeManualDeduct TransactionType = "manual-deduct"
)

// PointTransaction is an immutable ledger entry. Amount is signed.
type PointTransaction struct {
	TransactionID  string          `dynamodbav:"transaction_id" json:"transaction_id"` // PK
	CustomerID     string          `dynamodbav:"customer_id" json:"customer_id"`       // GSI customer_id-index
	Type           TransactionType `dynamodbav:"type" json:"type"`
	Amount         int64           `dynamodbav:"amount" json:"amount"`
	Description    string          `dynamodbav:"description" json:"description"`
	RelatedOrderID string          `dynamodbav:"related_order_id,omitempty" json:"related_order_id,omitempty"`
	ExpiresAt      *time.Time      `dynamodbav:"expires_at,omitempty" json:"expires_at,omitempty"`
	CreatedAt      time.Time       `dynamodbav:"created_at" json:"created_at"`
	// CreatedAtMillis is the sort key of the customer index.
	CreatedAtMillis int64 `dynamodbav:"created_at_ms" json:"-"`
}

// OrderTransactionID is the deterministic id of the order-scoped entry of type t.
// Using it as the primary key makes a second award for the same order fail its
// attribute_not_exists condition.
func OrderTransactionID(orderID string, t TransactionType) string {
	return "order#" + orderID + "#" + string(t)
}

// CustomerIndex is the GSI on the ledger table: hash customer_id, range created_at_ms.
const CustomerIndex = "customer_id-created_at_ms-index"

const maxPageSize = 100

// Ledger appends point transactions and keeps the customer balance in step.
type Ledger struct {
	client         aws.DynamoDBAPI
	tableName      string
	customersTable string
}

func NewLedger(client aws.DynamoDBAPI, tableName, customersTable string) *Ledger {
	return &Ledger{client: client, tableName: tableName, customersTable: customersTable}
}

// Append writes tx and adjusts the customer's points_balance in one
// transaction. A duplicate transaction id yields ErrAlreadyProcessed; a debit
// larger than the balance yields ErrInsufficientPoints.
func (l *Ledger) Append(ctx context.Context, tx PointTransaction) error {
	tx.CreatedAtMillis = tx.CreatedAt.UnixMilli()
	item, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return errs.Wrap(err, "marshal point transaction")
	}

	balance := &types.Update{
		TableName:        &l.customersTable,
		Key:              customerKey(tx.CustomerID),
		UpdateExpression: sdkaws.String("ADD points_balance :amt"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":amt": &types.AttributeValueMemberN{Value: strconv.FormatInt(tx.Amount, 10)},
		},
	}
	guardsBalance := tx.Amount < 0 && tx.Type != TypeRefund
	if guardsBalance {
		balance.ConditionExpression = sdkaws.String("points_balance >= :need")
		balance.ExpressionAttributeValues[":need"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(-tx.Amount, 10)}
	}

	_, err = l.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &l.tableName,
					Item:                item,
					ConditionExpression: sdkaws.String("attribute_not_exists(transaction_id)"),
				},
			},
			{Update: balance},
		},
	})
	if err != nil {
		switch {
		case aws.CanceledByCondition(err, 0):
			return errs.Mark(errs.Newf("transaction %s already recorded", tx.TransactionID), errs.ErrAlreadyProcessed)
		case guardsBalance && aws.CanceledByCondition(err, 1):
			return errs.Mark(errs.Newf("balance of %s is below %d", tx.CustomerID, -tx.Amount), errs.ErrInsufficientPoints)
		}
		return errs.Downstream(err, "append point transaction")
	}
	return nil
}

// Get returns a transaction by id or (nil, nil).
func (l *Ledger) Get(ctx context.Context, transactionID string) (*PointTransaction, error) {
	out, err := l.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"transaction_id": &types.AttributeValueMemberS{Value: transactionID},
		},
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, errs.Downstream(err, "get point transaction")
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var tx PointTransaction
	if err := attributevalue.UnmarshalMap(out.Item, &tx); err != nil {
		return nil, errs.Wrap(err, "unmarshal point transaction")
	}
	return &tx, nil
}

// ListByCustomer returns up to limit of the customer's transactions, newest
// first. The index is read backwards page by page until limit is reached.
func (l *Ledger) ListByCustomer(ctx context.Context, customerID string, limit int) ([]PointTransaction, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	var (
		txs      []PointTransaction
		startKey map[string]types.AttributeValue
	)
	for len(txs) < limit {
		out, err := l.client.Query(ctx, &dyn.QueryInput{
			TableName:              &l.tableName,
			IndexName:              sdkaws.String(CustomerIndex),
			KeyConditionExpression: sdkaws.String("customer_id = :cid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cid": &types.AttributeValueMemberS{Value: customerID},
			},
			ScanIndexForward:  sdkaws.Bool(false),
			Limit:             sdkaws.Int32(int32(limit - len(txs))),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, errs.Downstream(err, "query point transactions")
		}

		var page []PointTransaction
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, errs.Wrap(err, "unmarshal point transactions")
		}
		txs = append(txs, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return txs, nil
}
