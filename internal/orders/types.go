package orders

import (
	"time"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/reservation"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// LineItem is one product line of an order. Prices are in the smallest currency unit.
type LineItem struct {
	ProductID     string `dynamodbav:"product_id" json:"product_id"`
	VariantID     string `dynamodbav:"variant_id,omitempty" json:"variant_id,omitempty"`
	Quantity      int    `dynamodbav:"quantity" json:"quantity"`
	UnitPrice     int64  `dynamodbav:"unit_price" json:"unit_price"`
	IsDiscounted  bool   `dynamodbav:"is_discounted" json:"is_discounted"`
	OriginalPrice int64  `dynamodbav:"original_price,omitempty" json:"original_price,omitempty"`
}

// Subtotal is UnitPrice x Quantity.
func (li LineItem) Subtotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// Discounted reports whether the line was sold below its regular price. A
// line priced under its original price counts whatever the client flagged.
func (li LineItem) Discounted() bool {
	return li.IsDiscounted || li.OriginalPrice > li.UnitPrice
}

// ReservationKey is the coordination-store key guarding this line's stock.
func (li LineItem) ReservationKey() string {
	return reservation.Key(li.ProductID, li.VariantID)
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID              string     `dynamodbav:"order_id" json:"order_id"` // PK
	CustomerID           string     `dynamodbav:"customer_id" json:"customer_id"`
	VendorID             string     `dynamodbav:"vendor_id,omitempty" json:"vendor_id,omitempty"`
	Status               Status     `dynamodbav:"status" json:"status"`
	Items                []LineItem `dynamodbav:"items" json:"items"`
	Total                int64      `dynamodbav:"total" json:"total"`
	ShippingFee          int64      `dynamodbav:"shipping_fee,omitempty" json:"shipping_fee,omitempty"`
	PaymentTransactionID string     `dynamodbav:"payment_transaction_id,omitempty" json:"payment_transaction_id,omitempty"`
	PaymentMethod        string     `dynamodbav:"payment_method,omitempty" json:"payment_method,omitempty"`
	CancelReason         string     `dynamodbav:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	CreatedAt            time.Time  `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `dynamodbav:"updated_at" json:"updated_at"`
	LockedAt             *time.Time `dynamodbav:"locked_at,omitempty" json:"locked_at,omitempty"`
	PaidAt               *time.Time `dynamodbav:"paid_at,omitempty" json:"paid_at,omitempty"`
	ProcessingAt         *time.Time `dynamodbav:"processing_at,omitempty" json:"processing_at,omitempty"`
	ShippedAt            *time.Time `dynamodbav:"shipped_at,omitempty" json:"shipped_at,omitempty"`
	DeliveredAt          *time.Time `dynamodbav:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	CompletedAt          *time.Time `dynamodbav:"completed_at,omitempty" json:"completed_at,omitempty"`
	CancelledAt          *time.Time `dynamodbav:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	RefundedAt           *time.Time `dynamodbav:"refunded_at,omitempty" json:"refunded_at,omitempty"`
}

// ReservationKeys returns the distinct reservation keys of the order in line order.
func (o Order) ReservationKeys() []string {
	keys, _ := aggregate(o.Items)
	return keys
}

// aggregate merges lines that share a reservation key so one order never
// contends with itself for the same key.
func aggregate(items []LineItem) ([]string, map[string]int) {
	qty := make(map[string]int, len(items))
	keys := make([]string, 0, len(items))
	for _, it := range items {
		k := it.ReservationKey()
		if _, seen := qty[k]; !seen {
			keys = append(keys, k)
		}
		qty[k] += it.Quantity
	}
	return keys, qty
}

func totalOf(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}
