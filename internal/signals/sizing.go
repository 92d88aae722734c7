package signals

import (
	"github.com/shopspring/decimal"

	"github.com/kjannette/trahn-signals/internal/models"
)

var riskMultipliers = map[models.RiskLevel]decimal.Decimal{
	models.RiskLow:    decimal.RequireFromString("0.5"),
	models.RiskMedium: decimal.NewFromInt(1),
	models.RiskHigh:   decimal.RequireFromString("1.5"),
}

// Sizer turns a USD budget into a token amount.
type Sizer struct {
	MaxTradeSizeUSD float64
	RiskLevel       models.RiskLevel
}

// ComputeTradeAmount returns maxTradeSizeUSD/price scaled by the risk
// multiplier and never more than maxTradeSizeUSD/price. A non-positive price
// yields zero, which validation rejects.
func (s Sizer) ComputeTradeAmount(price float64) float64 {
	if price <= 0 || s.MaxTradeSizeUSD <= 0 {
		return 0
	}
	mult, ok := riskMultipliers[s.RiskLevel]
	if !ok {
		mult = riskMultipliers[models.RiskMedium]
	}

	ceiling := decimal.NewFromFloat(s.MaxTradeSizeUSD).Div(decimal.NewFromFloat(price))
	amount := ceiling.Mul(mult)
	if amount.GreaterThan(ceiling) {
		amount = ceiling
	}
	return amount.InexactFloat64()
}
