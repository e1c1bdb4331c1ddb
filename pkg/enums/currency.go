package enums

import "strings"

// Currency is the ISO 4217 code every order total is expressed in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
)

var currencies = set[Currency]{CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyCAD}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool { return currencies.has(c) }

// ParseCurrency accepts any casing and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	return currencies.parse("currency", strings.ToUpper(strings.TrimSpace(value)))
}
