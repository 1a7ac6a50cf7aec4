package validation

import (
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report fields by their json names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(lineItemStructValidation, LineItem{})
	v.RegisterStructValidation(calculatePointsStructValidation, CalculatePointsRequest{})

	return v
}

// createOrderStructValidation verifies a claimed Amount equals the sum of
// unit_price * quantity over the items.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if req.Amount == nil {
		return
	}

	var sum int64
	for _, it := range req.Items {
		sum += int64(it.Quantity) * it.UnitPrice
	}
	if sum != *req.Amount {
		sl.ReportError(req.Amount, "amount", "Amount", "amount_match_items", fmt.Sprintf("items sum %d != amount %d", sum, *req.Amount))
	}
}

// a discounted line must say what it was discounted from
func lineItemStructValidation(sl validatorv10.StructLevel) {
	it := sl.Current().Interface().(LineItem)
	if !it.IsDiscounted || it.OriginalPrice == 0 {
		return
	}
	if it.OriginalPrice < it.UnitPrice {
		sl.ReportError(it.OriginalPrice, "original_price", "OriginalPrice", "gte_unit_price", "")
	}
}

func calculatePointsStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CalculatePointsRequest)
	if len(req.Items) == 0 && req.MerchandiseAmount == 0 {
		sl.ReportError(req.Items, "items", "Items", "items_or_amount", "")
	}
}
