package fulfillment

import (
	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
)

// ProfitInput amounts already normalized to the settlement currency.
// TargetShipping, TargetTax and TargetPoints are totals for the whole quantity.
type ProfitInput struct {
	SourceUnitPrice decimal.Decimal
	Quantity        int
	TargetUnitPrice decimal.Decimal
	TargetShipping  decimal.Decimal
	TargetTax       decimal.Decimal
	TargetPoints    decimal.Decimal
}

// ProfitBreakdown every term of the profit formula
type ProfitBreakdown struct {
	SourceRevenue    decimal.Decimal `json:"source_revenue"`
	SourceCommission decimal.Decimal `json:"source_commission"`
	TargetCost       decimal.Decimal `json:"target_cost"`
	TargetShipping   decimal.Decimal `json:"target_shipping"`
	TargetTax        decimal.Decimal `json:"target_tax"`
	TargetPoints     decimal.Decimal `json:"target_points"`
	DomesticShipping decimal.Decimal `json:"domestic_shipping"`
	ExpectedProfit   decimal.Decimal `json:"expected_profit"`
}

// ComputeProfit
//
//	revenue - revenue*commission - targetCost - shipping - tax
//	  + points (if includeAmazonPoints) - domesticShippingFee (if includeDomesticShippingFee)
//
// revenue = sourceUnitPrice*quantity, targetCost = targetUnitPrice*quantity.
// Pure; no rounding; a negative result is valid.
func ComputeProfit(in ProfitInput, cfg model.FulfillmentConfig) ProfitBreakdown {
	qty := decimal.NewFromInt(int64(in.Quantity))
	if in.Quantity <= 0 {
		qty = decimal.NewFromInt(1)
	}

	b := ProfitBreakdown{
		SourceRevenue:  in.SourceUnitPrice.Mul(qty),
		TargetCost:     in.TargetUnitPrice.Mul(qty),
		TargetShipping: in.TargetShipping,
		TargetTax:      in.TargetTax,
	}
	b.SourceCommission = b.SourceRevenue.Mul(cfg.ShopeeCommissionRate)
	if cfg.IncludeAmazonPoints {
		b.TargetPoints = in.TargetPoints
	}
	if cfg.IncludeDomesticShippingFee {
		b.DomesticShipping = cfg.DomesticShippingFee
	}

	b.ExpectedProfit = b.SourceRevenue.
		Sub(b.SourceCommission).
		Sub(b.TargetCost).
		Sub(b.TargetShipping).
		Sub(b.TargetTax).
		Add(b.TargetPoints).
		Sub(b.DomesticShipping)
	return b
}
