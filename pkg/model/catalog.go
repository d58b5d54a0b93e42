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

// Address shipping address of an order
type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	PostalCode string `json:"postal_code"`
	Region     string `json:"region"`
	City       string `json:"city"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	Country    string `json:"country"`
}

// LineItem sold item of an order
type LineItem struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
}

// Order source marketplace order, owned by the order sync pipeline
type Order struct {
	ID              string                        `gorm:"type:varchar(64);primaryKey" json:"id"`
	OrgID           string                        `gorm:"type:varchar(64);primaryKey" json:"org_id"`
	OrderNumber     string                        `gorm:"type:varchar(64);index" json:"order_number"`
	ChannelID       string                        `gorm:"type:varchar(64);index" json:"channel_id"`
	CustomerName    string                        `json:"customer_name"`
	CustomerEmail   string                        `json:"customer_email"`
	TotalAmount     decimal.Decimal               `gorm:"type:numeric(20,4)" json:"total_amount"`
	Currency        string                        `gorm:"type:varchar(3)" json:"currency"`
	ShippingAddress datatypes.JSONType[Address]   `json:"shipping_address"`
	LineItems       datatypes.JSONSlice[LineItem] `json:"line_items"`
	Tags            datatypes.JSONSlice[string]   `json:"tags"`
	CreatedAt       time.Time                     `json:"created_at"`
	UpdatedAt       time.Time                     `json:"updated_at"`
}

// LineItem finds a line item by id
func (o *Order) LineItem(id string) (LineItem, bool) {
	for _, item := range o.LineItems {
		if item.ID == id {
			return item, true
		}
	}
	return LineItem{}, false
}

// OrderSummary contact and shipping details shown with a job
type OrderSummary struct {
	OrderID         string          `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	ChannelID       string          `json:"channel_id"`
	CustomerName    string          `json:"customer_name"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Currency        string          `json:"currency"`
	ShippingAddress Address         `json:"shipping_address"`
}

// Summary read view of the order
func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		ChannelID:       o.ChannelID,
		CustomerName:    o.CustomerName,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress.Data(),
	}
}

// AddTags merges tags keeping first-seen order
func (o *Order) AddTags(tags ...string) {
	seen := make(map[string]bool, len(o.Tags))
	for _, t := range o.Tags {
		seen[t] = true
	}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		o.Tags = append(o.Tags, t)
	}
}

// Product catalog entry whose price ADJUST_PRICE changes
type Product struct {
	OrgID     string          `gorm:"type:varchar(64);primaryKey" json:"org_id"`
	SKU       string          `gorm:"type:varchar(128);primaryKey" json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"price"`
	Currency  string          `gorm:"type:varchar(3)" json:"currency"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AdjustedPrice price after applying an adjustment, rounded to 2 places
func AdjustedPrice(current decimal.Decimal, mode PriceAdjustMode, amount decimal.Decimal) (decimal.Decimal, error) {
	var next decimal.Decimal
	switch mode {
	case PriceAdjustPercent:
		next = current.Mul(decimal.NewFromInt(100).Add(amount)).Div(decimal.NewFromInt(100))
	case PriceAdjustAbsolute:
		next = current.Add(amount)
	case PriceAdjustSet:
		next = amount
	default:
		return current, fmt.Errorf("unknown price adjust mode %q", mode)
	}
	next = next.Round(2)
	if !next.IsPositive() {
		return current, fmt.Errorf("adjusted price %s is not positive", next)
	}
	return next, nil
}

// SkuMapping source sku -> target marketplace product
type SkuMapping struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID             string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_mapping_org_sku" json:"org_id"`
	SourceSKU         string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_mapping_org_sku" json:"source_sku"`
	TargetRef         string    `gorm:"type:varchar(255);not null" json:"target_ref"`
	TargetSKU         string    `gorm:"type:varchar(128)" json:"target_sku"`
	TargetMarketplace string    `gorm:"type:varchar(32);default:'AMAZON'" json:"target_marketplace"`
	Note              string    `gorm:"type:text" json:"note"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (m *SkuMapping) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Validate sourceSku and targetRef are required
func (m *SkuMapping) Validate() error {
	m.SourceSKU = strings.TrimSpace(m.SourceSKU)
	m.TargetRef = strings.TrimSpace(m.TargetRef)
	switch {
	case m.SourceSKU == "":
		return fmt.Errorf("%w: source_sku is required", ErrInvalidMapping)
	case m.TargetRef == "":
		return fmt.Errorf("%w: target_ref is required", ErrInvalidMapping)
	}
	return nil
}

// TaskStatus back office task state
type TaskStatus string

const (
	TaskOpen TaskStatus = "OPEN"
	TaskDone TaskStatus = "DONE"
)

// Task written by CREATE_TASK
type Task struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID       string     `gorm:"type:varchar(64);not null;index" json:"org_id"`
	RuleID      string     `gorm:"type:uuid;index" json:"rule_id,omitempty"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Assignee    string     `gorm:"type:varchar(128)" json:"assignee,omitempty"`
	Status      TaskStatus `gorm:"type:varchar(16);not null;default:'OPEN'" json:"status"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// Credentials target marketplace login, only ever stored sealed
type Credentials struct {
	AccountEmail    string `json:"account_email"`
	Password        string `json:"password"`
	APIKey          string `json:"api_key,omitempty"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
}

// Validate account email and either password or api key
func (c Credentials) Validate() error {
	if c.AccountEmail == "" {
		return errors.New("account_email is required")
	}
	if c.Password == "" && c.APIKey == "" {
		return errors.New("password or api_key is required")
	}
	return nil
}
