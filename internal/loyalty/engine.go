package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a priced order line as seen by the points calculator.
type Item struct {
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	IsDiscounted bool   `json:"is_discounted"`
}

// OrderInput carries everything the calculator needs about an order.
type OrderInput struct {
	OrderID           string `json:"order_id"`
	CustomerID        string `json:"customer_id"`
	Items             []Item `json:"items"`
	MerchandiseAmount int64  `json:"merchandise_amount"`
	ShippingAmount    int64  `json:"shipping_amount"`
}

type Breakdown struct {
	RegularItems       int64   `json:"regular_items"`
	DiscountedItems    int64   `json:"discounted_items"`
	MemberMultiplier   float64 `json:"member_multiplier"`
	CampaignMultiplier float64 `json:"campaign_multiplier"`
}

type Calculation struct {
	TotalPoints int64      `json:"total_points"`
	Breakdown   Breakdown  `json:"breakdown"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Calculate computes the points an order earns. It has no side effects.
//
// Regular lines earn floor(sum / PointsPerAmount) x PointsEarned, scaled by
// the member and campaign multipliers and floored. Discounted lines earn a
// flat FixedPercentage of their sum; only the campaign multiplier may apply
// to them, and only when the discount rule allows it. Shipping joins the
// regular base when ExcludeShipping is off. Without item detail the whole
// merchandise amount is treated as regular-priced.
func Calculate(s Settings, memberMultiplier float64, now time.Time, in OrderInput) Calculation {
	if memberMultiplier <= 0 {
		memberMultiplier = 1
	}
	campaign := s.CampaignMultiplier(now)

	var regularSum, discountedSum int64
	for _, it := range in.Items {
		line := it.UnitPrice * int64(it.Quantity)
		if it.IsDiscounted {
			discountedSum += line
		} else {
			regularSum += line
		}
	}
	if len(in.Items) == 0 {
		regularSum = in.MerchandiseAmount
	}
	if !s.Advanced.ExcludeShipping {
		regularSum += in.ShippingAmount
	}

	member := decimal.NewFromFloat(memberMultiplier)
	campaignDec := decimal.NewFromFloat(campaign)

	var regular int64
	if regularSum > 0 && s.PointsPerAmount > 0 {
		base := (regularSum / s.PointsPerAmount) * s.PointsEarned
		regular = decimal.NewFromInt(base).Mul(member).Mul(campaignDec).Floor().IntPart()
	}

	var discounted int64
	if discountedSum > 0 {
		pts := decimal.NewFromInt(discountedSum).
			Mul(decimal.NewFromFloat(s.DiscountRule.FixedPercentage)).
			Div(decimal.NewFromInt(100)).
			Floor()
		if s.DiscountRule.ApplyCampaignMultiplier {
			pts = pts.Mul(campaignDec).Floor()
		}
		discounted = pts.IntPart()
	}

	regular = max(regular, 0)
	discounted = max(discounted, 0)

	calc := Calculation{
		TotalPoints: regular + discounted,
		Breakdown: Breakdown{
			RegularItems:       regular,
			DiscountedItems:    discounted,
			MemberMultiplier:   memberMultiplier,
			CampaignMultiplier: campaign,
		},
	}
	if days := s.Advanced.PointsExpireDays; days > 0 {
		exp := now.AddDate(0, 0, days)
		calc.ExpiresAt = &exp
	}
	return calc
}
