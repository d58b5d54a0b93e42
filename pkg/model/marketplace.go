package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TargetQuote target marketplace offer for a product; amounts are totals for the quantity
type TargetQuote struct {
	TargetRef    string          `json:"target_ref"`
	TargetSKU    string          `json:"target_sku"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Shipping     decimal.Decimal `json:"shipping"`
	Tax          decimal.Decimal `json:"tax"`
	Points       decimal.Decimal `json:"points"`
	DeliveryDays int             `json:"delivery_days"`
	Currency     string          `json:"currency"`
	InStock      bool            `json:"in_stock"`
}

// PurchaseRequest input of the purchase executor
type PurchaseRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	OrgID          string          `json:"org_id"`
	TargetRef      string          `json:"target_ref"`
	Quantity       int             `json:"quantity"`
	MaxUnitPrice   decimal.Decimal `json:"max_unit_price"`
	Currency       string          `json:"currency"`
	ShipTo         Address         `json:"ship_to"`
	Credentials    Credentials     `json:"-"`
}

// PurchaseResult confirmation of a placed order
type PurchaseResult struct {
	ExternalOrderRef string          `json:"external_order_ref"`
	ChargedAmount    decimal.Decimal `json:"charged_amount"`
	Currency         string          `json:"currency"`
	PlacedAt         time.Time       `json:"placed_at"`
}

// PurchaseError executor failure classified as transient or permanent
type PurchaseError struct {
	Permanent bool
	Code      string
	Message   string
	Err       error
}

func (e *PurchaseError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	msg := fmt.Sprintf("%s purchase error", kind)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PurchaseError) Unwrap() error { return e.Err }

// IsPermanent reports whether err must not be retried. Unclassified errors are transient.
func IsPermanent(err error) bool {
	var pe *PurchaseError
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return false
}
