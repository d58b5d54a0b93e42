package fulfillment

import (
	"context"
	"fmt"
	"time"

	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
)

// Candidate line item about to be fulfilled, amounts in the settlement currency
type Candidate struct {
	OrgID           string
	OrderID         string
	LineItemID      string
	SourceChannelID string
	SourceSKU       string
	Quantity        int
	SourceUnitPrice decimal.Decimal
	Quote           model.TargetQuote
	// ExcludeJobID job under re-validation, ignored by the duplicate check
	ExcludeJobID string
}

// ProfitInput quote totals plus source price
func (c Candidate) ProfitInput() ProfitInput {
	return ProfitInput{
		SourceUnitPrice: c.SourceUnitPrice,
		Quantity:        c.Quantity,
		TargetUnitPrice: c.Quote.UnitPrice,
		TargetShipping:  c.Quote.Shipping,
		TargetTax:       c.Quote.Tax,
		TargetPoints:    c.Quote.Points,
	}
}

// EligibilityResult verdict with the first failing reason
type EligibilityResult struct {
	Eligible       bool             `json:"eligible"`
	ReasonCode     model.ReasonCode `json:"reason_code,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	ExpectedProfit decimal.Decimal  `json:"expected_profit"`
	Breakdown      *ProfitBreakdown `json:"breakdown,omitempty"`
}

func rejected(code model.ReasonCode, format string, args ...interface{}) EligibilityResult {
	return EligibilityResult{ReasonCode: code, Reason: fmt.Sprintf(format, args...)}
}

// JobLookup duplicate detection
type JobLookup interface {
	// FindActiveJob the non-terminal job of the line item, nil when none
	FindActiveJob(ctx context.Context, orgID, orderID, lineItemID string) (*model.FulfillmentJob, error)
}

// QuotaCounter per-org per-day purchase counter
type QuotaCounter interface {
	DailyCount(ctx context.Context, orgID, day string) (int, error)
	// TryAcquireSlot increments the counter only while it is below limit
	TryAcquireSlot(ctx context.Context, orgID, day string, limit int) (bool, error)
	ReleaseSlot(ctx context.Context, orgID, day string) error
}

// EligibilityEvaluator decides whether a candidate may be auto-fulfilled
type EligibilityEvaluator struct {
	jobs  JobLookup
	quota QuotaCounter
	now   func() time.Time
}

func NewEligibilityEvaluator(jobs JobLookup, quota QuotaCounter) *EligibilityEvaluator {
	return &EligibilityEvaluator{jobs: jobs, quota: quota, now: time.Now}
}

// Evaluate checks in order, first failure wins:
// DISABLED, CHANNEL_NOT_ELIGIBLE, DELIVERY_TOO_SLOW, DUPLICATE_JOB,
// DAILY_LIMIT_REACHED, INSUFFICIENT_PROFIT.
// err is only returned for store failures.
func (e *EligibilityEvaluator) Evaluate(ctx context.Context, c Candidate, cfg model.FulfillmentConfig) (EligibilityResult, error) {
	if res, ok := precheck(cfg, c.SourceChannelID); !ok {
		return res, nil
	}
	if c.Quote.DeliveryDays > cfg.MaxDeliveryDays {
		return rejected(model.ReasonDeliveryTooSlow, "delivery takes %d days, limit is %d", c.Quote.DeliveryDays, cfg.MaxDeliveryDays), nil
	}

	existing, err := e.jobs.FindActiveJob(ctx, c.OrgID, c.OrderID, c.LineItemID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("look up active job: %w", err)
	}
	if existing != nil && existing.ID != c.ExcludeJobID {
		return rejected(model.ReasonDuplicateJob, "job %s is already %s for this line item", existing.ID, existing.Status), nil
	}

	day := cfg.QuotaDay(e.now())
	used, err := e.quota.DailyCount(ctx, c.OrgID, day)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("read daily quota: %w", err)
	}
	if used >= cfg.MaxDailyOrders {
		return rejected(model.ReasonDailyLimitReached, "daily limit of %d orders reached for %s", cfg.MaxDailyOrders, day), nil
	}

	breakdown := ComputeProfit(c.ProfitInput(), cfg)
	result := EligibilityResult{ExpectedProfit: breakdown.ExpectedProfit, Breakdown: &breakdown}
	if breakdown.ExpectedProfit.LessThan(cfg.MinExpectedProfit) {
		result.ReasonCode = model.ReasonInsufficientProfit
		result.Reason = fmt.Sprintf("expected profit %s is below the minimum %s",
			breakdown.ExpectedProfit.String(), cfg.MinExpectedProfit.String())
		return result, nil
	}

	result.Eligible = true
	return result, nil
}

// precheck the checks that need neither a quote nor the store
func precheck(cfg model.FulfillmentConfig, channelID string) (EligibilityResult, bool) {
	if !cfg.Enabled {
		return rejected(model.ReasonDisabled, "auto-fulfillment is disabled"), false
	}
	if !cfg.ChannelAllowed(channelID) {
		return rejected(model.ReasonChannelNotEligible, "channel %s is not eligible for auto-fulfillment", channelID), false
	}
	return EligibilityResult{}, true
}
