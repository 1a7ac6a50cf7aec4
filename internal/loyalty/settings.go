package loyalty

import (
	"context"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imrishuroy/go-orderflow-loyalty/internal/errs"
)

// Settings is the read-only loyalty configuration.
type Settings struct {
	Enabled           bool         `yaml:"enabled" json:"enabled"`
	PointsPerAmount   int64        `yaml:"points_per_amount" json:"points_per_amount"`
	PointsEarned      int64        `yaml:"points_earned" json:"points_earned"`
	PointValue        int64        `yaml:"point_value" json:"point_value"`
	MinPointsToRedeem int64        `yaml:"min_points_to_redeem" json:"min_points_to_redeem"`
	DiscountRule      DiscountRule `yaml:"discount_product_rule" json:"discount_product_rule"`
	Campaign          Campaign     `yaml:"campaign" json:"campaign"`
	Advanced          Advanced     `yaml:"advanced" json:"advanced"`
}

// DiscountRule governs lines sold below their original price.
type DiscountRule struct {
	// FixedPercentage of the line total is returned as points; 1 means 1%.
	FixedPercentage         float64 `yaml:"fixed_percentage" json:"fixed_percentage"`
	ApplyCampaignMultiplier bool    `yaml:"apply_campaign_multiplier" json:"apply_campaign_multiplier"`
}

type Campaign struct {
	Enabled    bool      `yaml:"enabled" json:"enabled"`
	Name       string    `yaml:"name" json:"name,omitempty"`
	Multiplier float64   `yaml:"multiplier" json:"multiplier"`
	StartDate  time.Time `yaml:"start_date" json:"start_date,omitempty"`
	EndDate    time.Time `yaml:"end_date" json:"end_date,omitempty"`
}

type Advanced struct {
	PointsExpireDays    int  `yaml:"points_expire_days" json:"points_expire_days"`
	MaxRedeemPercentage int  `yaml:"max_redeem_percentage" json:"max_redeem_percentage"`
	ExcludeShipping     bool `yaml:"exclude_shipping" json:"exclude_shipping"`
}

// DefaultSettings mirrors the values used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Enabled:           true,
		PointsPerAmount:   100,
		PointsEarned:      1,
		PointValue:        1,
		MinPointsToRedeem: 100,
		DiscountRule: DiscountRule{
			FixedPercentage:         1,
			ApplyCampaignMultiplier: true,
		},
		Campaign: Campaign{Multiplier: 1},
		Advanced: Advanced{
			PointsExpireDays:    365,
			MaxRedeemPercentage: 100,
			ExcludeShipping:     true,
		},
	}
}

func (s Settings) validate() error {
	if s.PointsPerAmount <= 0 {
		return errs.New("points_per_amount must be positive")
	}
	if s.PointsEarned < 0 || s.DiscountRule.FixedPercentage < 0 {
		return errs.New("point rates must not be negative")
	}
	if s.Advanced.MaxRedeemPercentage < 0 || s.Advanced.MaxRedeemPercentage > 100 {
		return errs.New("max_redeem_percentage must be within 0..100")
	}
	return nil
}

// CampaignMultiplier returns the campaign multiplier in force at now, or 1.
// The end date is inclusive through 23:59:59.999 of that day.
func (s Settings) CampaignMultiplier(now time.Time) float64 {
	c := s.Campaign
	if !c.Enabled || c.Multiplier <= 0 {
		return 1
	}
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return 1
	}
	if !c.EndDate.IsZero() {
		y, m, d := c.EndDate.Date()
		end := time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), c.EndDate.Location())
		if now.After(end) {
			return 1
		}
	}
	return c.Multiplier
}

// File is the on-disk layout of LOYALTY_CONFIG_FILE.
type File struct {
	Loyalty Settings `yaml:"loyalty"`
	Tiers   []Tier   `yaml:"tiers"`
}

// LoadFile reads settings and tiers from a YAML file. Keys missing from the
// file keep their defaults; an empty path yields the defaults.
func LoadFile(path string) (Settings, Ladder, error) {
	f := File{Loyalty: DefaultSettings()}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, Ladder{}, errs.Wrapf(err, "read loyalty config %s", path)
		}
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Settings{}, Ladder{}, errs.Wrapf(err, "parse loyalty config %s", path)
		}
	}
	if err := f.Loyalty.validate(); err != nil {
		return Settings{}, Ladder{}, err
	}
	if len(f.Tiers) == 0 {
		f.Tiers = DefaultTiers()
	}
	return f.Loyalty, NewLadder(f.Tiers), nil
}

// SettingsSource provides the current settings and tier ladder.
type SettingsSource interface {
	Settings(ctx context.Context) (Settings, error)
	Tiers(ctx context.Context) (Ladder, error)
}

// StaticSource serves settings loaded once at startup.
type StaticSource struct {
	settings Settings
	ladder   Ladder
}

func NewStaticSource(settings Settings, ladder Ladder) *StaticSource {
	return &StaticSource{settings: settings, ladder: ladder}
}

func (s *StaticSource) Settings(context.Context) (Settings, error) { return s.settings, nil }
func (s *StaticSource) Tiers(context.Context) (Ladder, error)      { return s.ladder, nil }

// Tier is a membership level unlocked by cumulative spend.
type Tier struct {
	Code             string  `yaml:"code" json:"code"`
	Name             string  `yaml:"name" json:"name"`
	MinSpent         int64   `yaml:"min_spent" json:"min_spent"`
	PointsMultiplier float64 `yaml:"points_multiplier" json:"points_multiplier"`
	DiscountRate     float64 `yaml:"discount_rate" json:"discount_rate"`
	IsDefault        bool    `yaml:"is_default" json:"is_default"`
}

func DefaultTiers() []Tier {
	return []Tier{
		{Code: "bronze", Name: "Bronze", MinSpent: 0, PointsMultiplier: 1, IsDefault: true},
		{Code: "silver", Name: "Silver", MinSpent: 10000, PointsMultiplier: 1.2, DiscountRate: 3},
		{Code: "gold", Name: "Gold", MinSpent: 30000, PointsMultiplier: 1.5, DiscountRate: 5},
		{Code: "platinum", Name: "Platinum", MinSpent: 80000, PointsMultiplier: 2, DiscountRate: 10},
	}
}

// Ladder holds tiers ordered by ascending MinSpent.
type Ladder struct {
	tiers []Tier
}

func NewLadder(tiers []Tier) Ladder {
	sorted := append([]Tier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinSpent < sorted[j].MinSpent })
	return Ladder{tiers: sorted}
}

func (l Ladder) Len() int { return len(l.tiers) }

// Find returns the tier with code.
func (l Ladder) Find(code string) (Tier, bool) {
	for _, t := range l.tiers {
		if t.Code == code {
			return t, true
		}
	}
	return Tier{}, false
}

// Rank is the position of code in the ladder, -1 when unknown.
func (l Ladder) Rank(code string) int {
	for i, t := range l.tiers {
		if t.Code == code {
			return i
		}
	}
	return -1
}

// Qualify returns the highest tier whose threshold totalSpent meets. When none
// qualifies it falls back to the default tier, then the lowest tier.
func (l Ladder) Qualify(totalSpent int64) (Tier, bool) {
	if len(l.tiers) == 0 {
		return Tier{}, false
	}
	for i := len(l.tiers) - 1; i >= 0; i-- {
		if totalSpent >= l.tiers[i].MinSpent {
			return l.tiers[i], true
		}
	}
	for _, t := range l.tiers {
		if t.IsDefault {
			return t, true
		}
	}
	return l.tiers[0], true
}

// Multiplier is the points multiplier for code, 1 when the tier is unknown.
func (l Ladder) Multiplier(code string) float64 {
	t, ok := l.Find(code)
	if !ok || t.PointsMultiplier <= 0 {
		return 1
	}
	return t.PointsMultiplier
}
