// Package money renders integer minor-unit amounts for people.
package money

import "github.com/shopspring/decimal"

// Major converts an amount in minor units (kobo, cents) to major units.
func Major(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Format renders minor units as "<currency> <major>.<minor>", e.g. "NGN 50.00".
func Format(minor int64, currency string) string {
	s := Major(minor).StringFixed(2)
	if currency == "" {
		return s
	}
	return currency + " " + s
}
