package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FulfillmentConfig per-org auto-fulfillment settings
type FulfillmentConfig struct {
	OrgID                      string                      `gorm:"type:varchar(64);primaryKey" json:"org_id"`
	Enabled                    bool                        `gorm:"default:false" json:"enabled"`
	MinExpectedProfit          decimal.Decimal             `gorm:"type:numeric(20,4);not null;default:0" json:"min_expected_profit"`
	MaxDeliveryDays            int                         `gorm:"not null;default:7" json:"max_delivery_days"`
	ShopeeCommissionRate       decimal.Decimal             `gorm:"type:numeric(8,6);not null;default:0" json:"shopee_commission_rate"`
	IncludeAmazonPoints        bool                        `gorm:"default:false" json:"include_amazon_points"`
	IncludeDomesticShippingFee bool                        `gorm:"default:false" json:"include_domestic_shipping_fee"`
	DomesticShippingFee        decimal.Decimal             `gorm:"type:numeric(20,4);not null;default:0" json:"domestic_shipping_fee"`
	EligibleChannels           datatypes.JSONSlice[string] `json:"eligible_channels"`
	MaxDailyOrders             int                         `gorm:"not null;default:10" json:"max_daily_orders"`
	RequireManualApproval      bool                        `gorm:"default:false" json:"require_manual_approval"`
	CredentialsRef             string                      `gorm:"type:text" json:"-"`
	SettlementCurrency         string                      `gorm:"type:varchar(3);not null;default:'JPY'" json:"settlement_currency"`
	Timezone                   string                      `gorm:"type:varchar(64);not null;default:'Asia/Tokyo'" json:"timezone"`
	CreatedAt                  time.Time                   `json:"created_at"`
	UpdatedAt                  time.Time                   `json:"updated_at"`
}

// DefaultFulfillmentConfig settings of an org that never saved any; disabled
func DefaultFulfillmentConfig(orgID string) FulfillmentConfig {
	return FulfillmentConfig{
		OrgID:              orgID,
		MaxDeliveryDays:    7,
		MaxDailyOrders:     10,
		SettlementCurrency: "JPY",
		Timezone:           "Asia/Tokyo",
	}
}

// Validate save-time checks
func (c *FulfillmentConfig) Validate() error {
	var errs []error
	if c.OrgID == "" {
		errs = append(errs, errors.New("org_id is required"))
	}
	if c.MaxDailyOrders < 1 {
		errs = append(errs, errors.New("max_daily_orders must be at least 1"))
	}
	if c.MaxDeliveryDays < 0 {
		errs = append(errs, errors.New("max_delivery_days must not be negative"))
	}
	if c.ShopeeCommissionRate.IsNegative() || c.ShopeeCommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, errors.New("shopee_commission_rate must be in [0, 1)"))
	}
	if c.DomesticShippingFee.IsNegative() {
		errs = append(errs, errors.New("domestic_shipping_fee must not be negative"))
	}
	if len(c.SettlementCurrency) != 3 {
		errs = append(errs, errors.New("settlement_currency must be an ISO 4217 code"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("unknown timezone %q", c.Timezone))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	c.SettlementCurrency = strings.ToUpper(c.SettlementCurrency)
	return nil
}

// Location org timezone, UTC when unknown
func (c *FulfillmentConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// QuotaDay org-local calendar day of t, yyyy-mm-dd
func (c *FulfillmentConfig) QuotaDay(t time.Time) string {
	return t.In(c.Location()).Format("2006-01-02")
}

// ChannelAllowed empty EligibleChannels allows every channel
func (c *FulfillmentConfig) ChannelAllowed(channelID string) bool {
	if len(c.EligibleChannels) == 0 {
		return true
	}
	for _, ch := range c.EligibleChannels {
		if ch == channelID {
			return true
		}
	}
	return false
}

// HasCredentials whether marketplace credentials were sealed for the org
func (c *FulfillmentConfig) HasCredentials() bool {
	return c.CredentialsRef != ""
}

// JobStatus fulfillment job lifecycle
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobEvaluating JobStatus = "EVALUATING"
	JobApproved   JobStatus = "APPROVED"
	JobRejected   JobStatus = "REJECTED"
	JobPurchasing JobStatus = "PURCHASING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// ActiveJobStatuses non-terminal statuses; at most one such job per line item
var ActiveJobStatuses = []JobStatus{JobPending, JobEvaluating, JobApproved, JobPurchasing}

// jobTransitions legal edges. PENDING->PENDING is an operator pre-approval and
// EVALUATING->EVALUATING parks a job awaiting approval.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobPending, JobEvaluating, JobRejected},
	JobEvaluating: {JobEvaluating, JobApproved, JobRejected, JobPending, JobFailed},
	JobApproved:   {JobPurchasing, JobRejected, JobFailed},
	JobPurchasing: {JobCompleted, JobFailed, JobRejected},
	JobFailed:     {JobPending, JobRejected},
}

// IsValid reports whether s is a known status
func (s JobStatus) IsValid() bool {
	switch s {
	case JobPending, JobEvaluating, JobApproved, JobRejected, JobPurchasing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// IsActive PENDING, EVALUATING, APPROVED or PURCHASING
func (s JobStatus) IsActive() bool {
	for _, a := range ActiveJobStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// CanTransitionTo state machine edge check
func (s JobStatus) CanTransitionTo(to JobStatus) bool {
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrorCode classification of a job's terminal error
type ErrorCode string

const (
	ErrorCodeNone      ErrorCode = ""
	ErrorCodeTransient ErrorCode = "TRANSIENT"
	ErrorCodePermanent ErrorCode = "PERMANENT"
	ErrorCodeCancelled ErrorCode = "CANCELLED"
)

// ReasonCode eligibility rejection reason
type ReasonCode string

const (
	ReasonNone                ReasonCode = ""
	ReasonDisabled            ReasonCode = "DISABLED"
	ReasonChannelNotEligible  ReasonCode = "CHANNEL_NOT_ELIGIBLE"
	ReasonDeliveryTooSlow     ReasonCode = "DELIVERY_TOO_SLOW"
	ReasonDuplicateJob        ReasonCode = "DUPLICATE_JOB"
	ReasonDailyLimitReached   ReasonCode = "DAILY_LIMIT_REACHED"
	ReasonInsufficientProfit  ReasonCode = "INSUFFICIENT_PROFIT"
	ReasonNoMapping           ReasonCode = "NO_MAPPING"
	ReasonQuoteUnavailable    ReasonCode = "QUOTE_UNAVAILABLE"
	ReasonCurrencyUnsupported ReasonCode = "CURRENCY_UNSUPPORTED"
	ReasonOrderNotFound       ReasonCode = "ORDER_NOT_FOUND"
)

// CancelledByUser error message of a user cancellation
const CancelledByUser = "Cancelled by user"

// FulfillmentJob one attempt to buy a line item on the target marketplace
type FulfillmentJob struct {
	ID               string          `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID            string          `gorm:"type:varchar(64);not null;index:idx_jobs_org_status" json:"org_id"`
	OrderID          string          `gorm:"type:varchar(64);not null;index:idx_jobs_line_item" json:"order_id"`
	LineItemID       string          `gorm:"type:varchar(64);not null;index:idx_jobs_line_item" json:"line_item_id"`
	SourceChannelID  string          `gorm:"type:varchar(64)" json:"source_channel_id"`
	SourceSKU        string          `gorm:"type:varchar(128)" json:"source_sku"`
	TargetSKU        string          `gorm:"type:varchar(128)" json:"target_sku"`
	TargetProductRef string          `gorm:"type:varchar(255)" json:"target_product_ref"`
	Quantity         int             `gorm:"not null;default:1" json:"quantity"`
	SourcePrice      decimal.Decimal `gorm:"type:numeric(20,4)" json:"source_price"`
	TargetPrice      decimal.Decimal `gorm:"type:numeric(20,4)" json:"target_price"`
	ExpectedProfit   decimal.Decimal `gorm:"type:numeric(20,4)" json:"expected_profit"`
	Currency         string          `gorm:"type:varchar(3)" json:"currency"`
	Status           JobStatus       `gorm:"type:varchar(16);not null;index:idx_jobs_org_status" json:"status"`
	ManuallyApproved bool            `gorm:"default:false" json:"manually_approved"`
	AwaitingApproval bool            `gorm:"default:false" json:"awaiting_approval"`
	ErrorCode        ErrorCode       `gorm:"type:varchar(32)" json:"error_code,omitempty"`
	ErrorMessage     string          `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount       int             `gorm:"not null;default:0" json:"retry_count"`
	ExternalOrderRef string          `gorm:"type:varchar(128)" json:"external_order_ref,omitempty"`
	CreatedAt        time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

func (j *FulfillmentJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// Retryable FAILED with an error that an operator retry can fix
func (j *FulfillmentJob) Retryable() bool {
	return j.Status == JobFailed && j.ErrorCode != ErrorCodePermanent
}

// JobChanges fields written together with a status transition; nil fields are untouched
type JobChanges struct {
	ErrorCode        *ErrorCode
	ErrorMessage     *string
	ManuallyApproved *bool
	AwaitingApproval *bool
	ExternalOrderRef *string
	TargetPrice      *decimal.Decimal
	ExpectedProfit   *decimal.Decimal
	CompletedAt      *time.Time
	IncrementRetry   bool
}

// ClearError resets the error fields
func (c JobChanges) ClearError() JobChanges {
	none := ErrorCodeNone
	empty := ""
	c.ErrorCode = &none
	c.ErrorMessage = &empty
	return c
}

// WithError sets the error fields
func (c JobChanges) WithError(code ErrorCode, message string) JobChanges {
	c.ErrorCode = &code
	c.ErrorMessage = &message
	return c
}

// Apply writes the changes onto job
func (c JobChanges) Apply(job *FulfillmentJob) {
	if c.ErrorCode != nil {
		job.ErrorCode = *c.ErrorCode
	}
	if c.ErrorMessage != nil {
		job.ErrorMessage = *c.ErrorMessage
	}
	if c.ManuallyApproved != nil {
		job.ManuallyApproved = *c.ManuallyApproved
	}
	if c.AwaitingApproval != nil {
		job.AwaitingApproval = *c.AwaitingApproval
	}
	if c.ExternalOrderRef != nil {
		job.ExternalOrderRef = *c.ExternalOrderRef
	}
	if c.TargetPrice != nil {
		job.TargetPrice = *c.TargetPrice
	}
	if c.ExpectedProfit != nil {
		job.ExpectedProfit = *c.ExpectedProfit
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		job.CompletedAt = &t
	}
	if c.IncrementRetry {
		job.RetryCount++
	}
}

// Columns column map for a gorm Updates call
func (c JobChanges) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if c.ErrorCode != nil {
		cols["error_code"] = *c.ErrorCode
	}
	if c.ErrorMessage != nil {
		cols["error_message"] = *c.ErrorMessage
	}
	if c.ManuallyApproved != nil {
		cols["manually_approved"] = *c.ManuallyApproved
	}
	if c.AwaitingApproval != nil {
		cols["awaiting_approval"] = *c.AwaitingApproval
	}
	if c.ExternalOrderRef != nil {
		cols["external_order_ref"] = *c.ExternalOrderRef
	}
	if c.TargetPrice != nil {
		cols["target_price"] = *c.TargetPrice
	}
	if c.ExpectedProfit != nil {
		cols["expected_profit"] = *c.ExpectedProfit
	}
	if c.CompletedAt != nil {
		cols["completed_at"] = *c.CompletedAt
	}
	if c.IncrementRetry {
		cols["retry_count"] = gorm.Expr("retry_count + 1")
	}
	return cols
}

// JobTransition conditional status update: applied only while the job is in one of From
type JobTransition struct {
	From []JobStatus
	To   JobStatus
	// RequireAwaiting also requires awaiting_approval to be set
	RequireAwaiting bool
	Changes         JobChanges
}

// LegalFrom the From statuses that have an edge to To
func (t JobTransition) LegalFrom() []JobStatus {
	legal := make([]JobStatus, 0, len(t.From))
	for _, s := range t.From {
		if s.CanTransitionTo(t.To) {
			legal = append(legal, s)
		}
	}
	return legal
}

// Allows reports whether job satisfies the transition guard
func (t JobTransition) Allows(job *FulfillmentJob) bool {
	if t.RequireAwaiting && !job.AwaitingApproval {
		return false
	}
	for _, s := range t.LegalFrom() {
		if job.Status == s {
			return true
		}
	}
	return false
}

// JobFilter job listing query
type JobFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NormalizePage clamps limit to [1, MaxPageSize], DefaultPageSize when unset
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// JobPayload message handed to the worker when a job is queued
type JobPayload struct {
	JobID            string          `json:"job_id"`
	OrgID            string          `json:"org_id"`
	OrderID          string          `json:"order_id"`
	LineItemID       string          `json:"line_item_id"`
	SourceSKU        string          `json:"source_sku"`
	TargetSKU        string          `json:"target_sku"`
	TargetProductRef string          `json:"target_product_ref"`
	Quantity         int             `json:"quantity"`
	TargetPrice      decimal.Decimal `json:"target_price"`
	ShippingAddress  *Address        `json:"shipping_address,omitempty"`
	RetryCount       int             `json:"retry_count"`
}

// Payload queue message of the job; order supplies the shipping address and may be nil
func (j *FulfillmentJob) Payload(order *Order) JobPayload {
	p := JobPayload{
		JobID:            j.ID,
		OrgID:            j.OrgID,
		OrderID:          j.OrderID,
		LineItemID:       j.LineItemID,
		SourceSKU:        j.SourceSKU,
		TargetSKU:        j.TargetSKU,
		TargetProductRef: j.TargetProductRef,
		Quantity:         j.Quantity,
		TargetPrice:      j.TargetPrice,
		RetryCount:       j.RetryCount,
	}
	if order != nil {
		addr := order.Summary().ShippingAddress
		p.ShippingAddress = &addr
	}
	return p
}

// DailyQuotaCounter jobs that entered PURCHASING per org-local day
type DailyQuotaCounter struct {
	OrgID     string    `gorm:"type:varchar(64);primaryKey" json:"org_id"`
	Day       string    `gorm:"type:varchar(10);primaryKey" json:"day"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}
