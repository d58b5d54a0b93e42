package fulfillment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedCurrency no rate configured for the currency
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// CurrencyConverter normalizes amounts into the settlement currency
type CurrencyConverter interface {
	Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// StaticRates converter over a fixed table of base-currency units per currency unit
type StaticRates struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewStaticRates rates maps a currency code to how many base units one unit buys
func NewStaticRates(base string, rates map[string]float64) *StaticRates {
	base = strings.ToUpper(base)
	s := &StaticRates{base: base, rates: map[string]decimal.Decimal{base: decimal.NewFromInt(1)}}
	for code, rate := range rates {
		if rate <= 0 {
			continue
		}
		s.rates[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}
	return s
}

func (s *StaticRates) rate(code string) (decimal.Decimal, error) {
	r, ok := s.rates[strings.ToUpper(code)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}
	return r, nil
}

// Convert amount from one currency to another through the base currency
func (s *StaticRates) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == "" || strings.EqualFold(from, to) {
		return amount, nil
	}
	rf, err := s.rate(from)
	if err != nil {
		return decimal.Zero, err
	}
	rt, err := s.rate(to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rf).Div(rt), nil
}
