package validation

// LineItem is one requested order line. Prices are in the smallest currency unit.
type LineItem struct {
	ProductID     string `json:"product_id" validate:"required"`
	VariantID     string `json:"variant_id,omitempty"`
	Quantity      int    `json:"quantity" validate:"required,min=1"` // must be >= 1
	UnitPrice     int64  `json:"unit_price" validate:"min=0"`
	IsDiscounted  bool   `json:"is_discounted,omitempty"`
	OriginalPrice int64  `json:"original_price,omitempty" validate:"omitempty,min=0"`
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	CustomerID  string     `json:"customer_id" validate:"required"`
	VendorID    string     `json:"vendor_id,omitempty"`
	Items       []LineItem `json:"items" validate:"required,min=1,dive"` // at least one item
	ShippingFee int64      `json:"shipping_fee,omitempty" validate:"min=0"`
	// Amount is the merchandise total the client claims; checked when present.
	Amount *int64 `json:"amount,omitempty" validate:"omitempty,min=0"`
}

// ConfirmPaymentRequest is the payload for POST /orders/:id/payment
type ConfirmPaymentRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,max=128"`
	Method        string `json:"method,omitempty" validate:"omitempty,max=64"`
}

// UpdateStatusRequest is the payload for PATCH /orders/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid processing shipped delivered completed cancelled refunded"`
}

// CancelOrderRequest is the payload for POST /orders/:id/cancel
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=256"`
}

// PointsItem is a line as seen by the points preview.
type PointsItem struct {
	ProductID     string `json:"product_id" validate:"required"`
	Quantity      int    `json:"quantity" validate:"required,min=1"`
	UnitPrice     int64  `json:"unit_price" validate:"min=0"`
	IsDiscounted  bool   `json:"is_discounted,omitempty"`
	OriginalPrice int64  `json:"original_price,omitempty" validate:"omitempty,min=0"`
}

// Discounted reports whether the line sells below its original price or is
// flagged as discounted.
func (it PointsItem) Discounted() bool {
	return it.IsDiscounted || it.OriginalPrice > it.UnitPrice
}

// CalculatePointsRequest is the payload for POST /points/calculate
type CalculatePointsRequest struct {
	CustomerID        string       `json:"customer_id" validate:"required"`
	Items             []PointsItem `json:"items,omitempty" validate:"omitempty,dive"`
	MerchandiseAmount int64        `json:"merchandise_amount,omitempty" validate:"min=0"`
	ShippingAmount    int64        `json:"shipping_amount,omitempty" validate:"min=0"`
}

// RedeemPointsRequest is the payload for POST /customers/:id/points/redeem
type RedeemPointsRequest struct {
	Points      int64  `json:"points" validate:"required,gt=0"`
	OrderID     string `json:"order_id,omitempty"`
	OrderAmount int64  `json:"order_amount,omitempty" validate:"min=0"`
}

// AdjustPointsRequest is the payload for POST /customers/:id/points/adjust
type AdjustPointsRequest struct {
	Points      int64  `json:"points" validate:"required,ne=0"`
	Description string `json:"description,omitempty" validate:"max=256"`
}
