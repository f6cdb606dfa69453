// Package money converts between the backend's float dollar amounts and the
// integer cent amounts used everywhere else in the client.
//
// Conversion happens exactly once, at the transport boundary: the API client
// runs every response body through ConvertMoneyFieldsToCents, so code above
// it only ever sees cents.
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultLocale   = "en-US"
	DefaultCurrency = "USD"
)

// DollarsToCents converts a dollar amount to cents by rounding dollars*100 to
// the nearest integer. Ties round half away from zero (math.Round).
func DollarsToCents(dollars float64) int64 {
	return int64(math.Round(dollars * 100))
}

// CentsToDollars converts cents to dollars. The result is only meant for
// display and for sending amounts back to the backend.
func CentsToDollars(cents int64) float64 {
	return float64(cents) / 100
}

// FormatMoney renders cents as a currency string for the given locale and ISO
// currency code. Empty arguments fall back to en-US and USD.
func FormatMoney(cents int64, locale, currencyCode string) (string, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	if currencyCode == "" {
		currencyCode = DefaultCurrency
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return "", fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return "", fmt.Errorf("invalid currency %q: %w", currencyCode, err)
	}

	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	// The x/text formatter writes "<symbol> <amount>"; the storefront shows
	// the symbol attached to the amount with the sign in front.
	p := message.NewPrinter(tag)
	formatted := p.Sprint(currency.Symbol(unit.Amount(CentsToDollars(cents))))
	if sym, amount, ok := strings.Cut(formatted, " "); ok {
		formatted = sym + amount
	}
	return sign + formatted, nil
}

// MustFormat is FormatMoney with the default locale and currency.
func MustFormat(cents int64) string {
	s, err := FormatMoney(cents, DefaultLocale, DefaultCurrency)
	if err != nil {
		return decimal.New(cents, -2).StringFixed(2)
	}
	return s
}

// ParseMoney parses user text such as "$19.99" into cents. Every character
// other than digits and '.' is dropped, the longest leading decimal number is
// parsed, and anything unparseable counts as zero.
func ParseMoney(text string) int64 {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}

	prefix := decimalPrefix(b.String())
	if prefix == "" {
		return 0
	}
	d, err := decimal.NewFromString(prefix)
	if err != nil {
		return 0
	}
	return DollarsToCents(d.InexactFloat64())
}

// decimalPrefix returns the longest prefix of s of the form digits[.digits],
// normalised so decimal.NewFromString accepts it.
func decimalPrefix(s string) string {
	end := 0
	seenDot := false
	digits := 0
	for end < len(s) {
		c := s[end]
		if c == '.' {
			if seenDot {
				break
			}
			seenDot = true
		} else {
			digits++
		}
		end++
	}
	if digits == 0 {
		return ""
	}

	p := strings.TrimSuffix(s[:end], ".")
	if strings.HasPrefix(p, ".") {
		p = "0" + p
	}
	return p
}
