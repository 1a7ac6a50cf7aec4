package loyalty

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/clock"
	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// Service is the loyalty engine: it calculates, awards and reverses order
// points, maintains cumulative spend and upgrades membership tiers.
type Service struct {
	source    SettingsSource
	ledger    *Ledger
	customers *CustomerStore
	clock     clock.Clock
	logger    *zap.Logger
	newID     func() string
}

func NewService(source SettingsSource, ledger *Ledger, customers *CustomerStore, clk clock.Clock, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:    source,
		ledger:    ledger,
		customers: customers,
		clock:     clk,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// CalculateOrderPoints previews the points for an order using the customer's
// current tier. It returns ErrLoyaltyDisabled when the program is off.
func (s *Service) CalculateOrderPoints(ctx context.Context, in OrderInput) (*Calculation, error) {
	settings, err := s.enabledSettings(ctx)
	if err != nil {
		return nil, err
	}
	multiplier, err := s.memberMultiplier(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	calc := Calculate(settings, multiplier, s.clock.Now(), in)
	return &calc, nil
}

type AwardResult struct {
	Points        int64  `json:"points"`
	TransactionID string `json:"transaction_id,omitempty"`
	// Skipped is set when the program is disabled.
	Skipped bool `json:"skipped,omitempty"`
}

// AwardOrderPoints records one earn transaction for the order. A second call
// for the same order returns ErrAlreadyProcessed and writes nothing.
func (s *Service) AwardOrderPoints(ctx context.Context, in OrderInput) (AwardResult, error) {
	txID := OrderTransactionID(in.OrderID, TypeEarn)
	existing, err := s.ledger.Get(ctx, txID)
	if err != nil {
		return AwardResult{}, err
	}
	if existing != nil {
		return AwardResult{}, errs.Mark(errs.Newf("points for order %s already awarded", in.OrderID), errs.ErrAlreadyProcessed)
	}

	calc, err := s.CalculateOrderPoints(ctx, in)
	if errs.Is(err, errs.ErrLoyaltyDisabled) {
		s.logger.Debug("loyalty disabled, no points awarded", zap.String("order_id", in.OrderID))
		return AwardResult{Skipped: true}, nil
	}
	if err != nil {
		return AwardResult{}, err
	}
	if calc.TotalPoints <= 0 {
		return AwardResult{}, nil
	}

	desc := fmt.Sprintf("Points earned for order #%s", in.OrderID)
	if m := calc.Breakdown.CampaignMultiplier; m > 1 {
		desc += fmt.Sprintf(" (%gx campaign)", m)
	}
	tx := PointTransaction{
		TransactionID:  txID,
		CustomerID:     in.CustomerID,
		Type:           TypeEarn,
		Amount:         calc.TotalPoints,
		Description:    desc,
		RelatedOrderID: in.OrderID,
		ExpiresAt:      calc.ExpiresAt,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.ledger.Append(ctx, tx); err != nil {
		return AwardResult{}, err
	}

	s.logger.Info("points awarded",
		zap.String("order_id", in.OrderID),
		zap.String("customer_id", in.CustomerID),
		zap.Int64("points", calc.TotalPoints),
		zap.Int64("regular", calc.Breakdown.RegularItems),
		zap.Int64("discounted", calc.Breakdown.DiscountedItems))
	return AwardResult{Points: calc.TotalPoints, TransactionID: txID}, nil
}

// DeductRefundPoints reverses the earn transaction of a refunded order. It
// returns the points deducted, 0 when the order never earned any.
func (s *Service) DeductRefundPoints(ctx context.Context, orderID, customerID string) (int64, error) {
	earn, err := s.ledger.Get(ctx, OrderTransactionID(orderID, TypeEarn))
	if err != nil {
		return 0, err
	}
	if earn == nil || earn.Amount <= 0 {
		return 0, nil
	}

	if err := s.ledger.Append(ctx, PointTransaction{
		TransactionID:  OrderTransactionID(orderID, TypeRefund),
		CustomerID:     customerID,
		Type:           TypeRefund,
		Amount:         -earn.Amount,
		Description:    fmt.Sprintf("Points reversed for refunded order #%s", orderID),
		RelatedOrderID: orderID,
		CreatedAt:      s.clock.Now(),
	}); err != nil {
		return 0, err
	}

	s.logger.Info("refund points deducted",
		zap.String("order_id", orderID),
		zap.String("customer_id", customerID),
		zap.Int64("points", earn.Amount))
	return earn.Amount, nil
}

// UpdateUserTotalSpent adds amount to the customer's cumulative spend.
func (s *Service) UpdateUserTotalSpent(ctx context.Context, customerID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errs.Mark(errs.New("spend increment must not be negative"), errs.ErrInvalidOrder)
	}
	return s.customers.AddTotalSpent(ctx, customerID, amount)
}

type UpgradeResult struct {
	Upgraded bool   `json:"upgraded"`
	OldLevel string `json:"old_level,omitempty"`
	NewLevel string `json:"new_level,omitempty"`
}

// CheckAndUpgradeMemberLevel moves the customer to the highest tier their
// cumulative spend qualifies for. It never lowers a tier.
func (s *Service) CheckAndUpgradeMemberLevel(ctx context.Context, customerID string) (UpgradeResult, error) {
	ladder, err := s.source.Tiers(ctx)
	if err != nil {
		return UpgradeResult{}, errs.Downstream(err, "load tiers")
	}
	if ladder.Len() == 0 {
		return UpgradeResult{}, nil
	}

	customer, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return UpgradeResult{}, err
	}
	if customer == nil {
		customer = &Customer{CustomerID: customerID}
	}

	target, _ := ladder.Qualify(customer.TotalSpent)
	current := customer.MemberLevel
	if target.Code == current || ladder.Rank(target.Code) <= ladder.Rank(current) {
		return UpgradeResult{OldLevel: current, NewLevel: current}, nil
	}

	if err := s.customers.SetMemberLevel(ctx, customerID, current, target.Code); err != nil {
		return UpgradeResult{}, err
	}

	s.logger.Info("member level upgraded",
		zap.String("customer_id", customerID),
		zap.String("from", current),
		zap.String("to", target.Code),
		zap.Int64("total_spent", customer.TotalSpent))
	return UpgradeResult{Upgraded: true, OldLevel: current, NewLevel: target.Code}, nil
}

// RedeemRequest spends points, optionally against an order.
type RedeemRequest struct {
	CustomerID  string
	Points      int64
	OrderID     string
	OrderAmount int64
}

// Redeem debits points. The request must meet the redemption threshold, fit
// the balance and stay within the redeemable share of OrderAmount when given.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*PointTransaction, error) {
	settings, err := s.enabledSettings(ctx)
	if err != nil {
		return nil, err
	}
	if req.Points < settings.MinPointsToRedeem || req.Points <= 0 {
		return nil, errs.Mark(errs.Newf("at least %d points are required to redeem", settings.MinPointsToRedeem), errs.ErrInsufficientPoints)
	}
	if req.OrderAmount > 0 {
		maxValue := req.OrderAmount * int64(settings.Advanced.MaxRedeemPercentage) / 100
		if req.Points*settings.PointValue > maxValue {
			return nil, errs.Mark(errs.Newf("redemption exceeds %d%% of the order", settings.Advanced.MaxRedeemPercentage), errs.ErrInvalidOrder)
		}
	}

	tx := PointTransaction{
		TransactionID:  s.newID(),
		CustomerID:     req.CustomerID,
		Type:           TypeRedeem,
		Amount:         -req.Points,
		Description:    "Points redeemed",
		RelatedOrderID: req.OrderID,
		CreatedAt:      s.clock.Now(),
	}
	if req.OrderID != "" {
		tx.Description = fmt.Sprintf("Points redeemed on order #%s", req.OrderID)
	}
	if err := s.ledger.Append(ctx, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Adjust records a manual credit (points > 0) or debit (points < 0).
func (s *Service) Adjust(ctx context.Context, customerID string, points int64, description string) (*PointTransaction, error) {
	if points == 0 {
		return nil, errs.Mark(errs.New("adjustment must be non-zero"), errs.ErrInvalidOrder)
	}
	t := TypeManualAdd
	if points < 0 {
		t = TypeManualDeduct
	}
	if strings.TrimSpace(description) == "" {
		description = "Manual adjustment"
	}
	tx := PointTransaction{
		TransactionID: s.newID(),
		CustomerID:    customerID,
		Type:          t,
		Amount:        points,
		Description:   description,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.ledger.Append(ctx, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

type Summary struct {
	Customer     Customer           `json:"customer"`
	Tier         *Tier              `json:"tier,omitempty"`
	Transactions []PointTransaction `json:"transactions"`
}

// Summary returns the customer's balance, tier and recent transactions.
func (s *Service) Summary(ctx context.Context, customerID string, limit int) (*Summary, error) {
	customer, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, errs.Mark(errs.Newf("customer %s not found", customerID), errs.ErrNotFound)
	}
	txs, err := s.ledger.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, err
	}

	out := &Summary{Customer: *customer, Transactions: txs}
	if ladder, err := s.source.Tiers(ctx); err == nil {
		if t, ok := ladder.Find(customer.MemberLevel); ok {
			out.Tier = &t
		}
	}
	return out, nil
}

type SettingsStatus struct {
	Enabled            bool    `json:"enabled"`
	PointsPerAmount    int64   `json:"points_per_amount"`
	PointsEarned       int64   `json:"points_earned"`
	PointValue         int64   `json:"point_value"`
	MinPointsToRedeem  int64   `json:"min_points_to_redeem"`
	DiscountPercentage float64 `json:"discount_percentage"`
	CampaignActive     bool    `json:"campaign_active"`
	CampaignName       string  `json:"campaign_name,omitempty"`
	CampaignMultiplier float64 `json:"campaign_multiplier"`
}

// Status summarises the settings in force now.
func (s *Service) Status(ctx context.Context) (SettingsStatus, error) {
	settings, err := s.source.Settings(ctx)
	if err != nil {
		return SettingsStatus{}, errs.Downstream(err, "load loyalty settings")
	}
	mult := settings.CampaignMultiplier(s.clock.Now())
	st := SettingsStatus{
		Enabled:            settings.Enabled,
		PointsPerAmount:    settings.PointsPerAmount,
		PointsEarned:       settings.PointsEarned,
		PointValue:         settings.PointValue,
		MinPointsToRedeem:  settings.MinPointsToRedeem,
		DiscountPercentage: settings.DiscountRule.FixedPercentage,
		CampaignActive:     mult != 1,
		CampaignMultiplier: mult,
	}
	if st.CampaignActive {
		st.CampaignName = settings.Campaign.Name
	}
	return st, nil
}

func (s *Service) enabledSettings(ctx context.Context) (Settings, error) {
	settings, err := s.source.Settings(ctx)
	if err != nil {
		return Settings{}, errs.Downstream(err, "load loyalty settings")
	}
	if !settings.Enabled {
		return Settings{}, errs.ErrLoyaltyDisabled
	}
	return settings, nil
}

func (s *Service) memberMultiplier(ctx context.Context, customerID string) (float64, error) {
	customer, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return 0, err
	}
	if customer == nil || customer.MemberLevel == "" {
		return 1, nil
	}
	ladder, err := s.source.Tiers(ctx)
	if err != nil {
		return 0, errs.Downstream(err, "load tiers")
	}
	return ladder.Multiplier(customer.MemberLevel), nil
}
