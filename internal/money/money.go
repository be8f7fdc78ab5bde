// Package money rounds and formats amounts for display. Stored amounts stay
// unrounded float64.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const DefaultCurrency = "INR"

// Round rounds half away from zero to two decimal places.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Fixed renders v with exactly two decimals and no currency marker.
func Fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

type Formatter struct {
	unit    currency.Unit
	printer *message.Printer
}

// NewFormatter builds a formatter for an ISO 4217 code such as "INR" or
// "USD". An empty code selects INR.
func NewFormatter(code string) (*Formatter, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("currency %q: %w", code, err)
	}
	return &Formatter{
		unit:    unit,
		printer: message.NewPrinter(language.English),
	}, nil
}

func (f *Formatter) Code() string {
	return f.unit.String()
}

// Format renders v with the currency symbol, e.g. "₹ 1,234.50".
func (f *Formatter) Format(v float64) string {
	return f.printer.Sprintf("%v %v", currency.Symbol(f.unit), f.number(v))
}

// FormatISO renders v with the ISO code, e.g. "INR 1,234.50". Used where the
// output font cannot draw currency symbols.
func (f *Formatter) FormatISO(v float64) string {
	return f.printer.Sprintf("%v %v", currency.ISO(f.unit), f.number(v))
}

func (f *Formatter) number(v float64) number.Formatter {
	return number.Decimal(Round(v), number.Scale(2))
}
