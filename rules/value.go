package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ValueKind distinguishes the two shapes a rule literal or metric can take.
type ValueKind int

const (
	KindNumeric ValueKind = iota + 1
	KindText
)

func (k ValueKind) String() string {
	switch k {
	case KindNumeric:
		return "number"
	case KindText:
		return "string"
	default:
		return "invalid"
	}
}

// Value is a coerced literal or metric: exactly one of a decimal magnitude or a string.
type Value struct {
	kind ValueKind
	num  decimal.Decimal
	text string
}

// Numeric wraps a decimal magnitude.
func Numeric(d decimal.Decimal) Value {
	return Value{kind: KindNumeric, num: d}
}

// Text wraps a string literal.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

func (v Value) Kind() ValueKind { return v.kind }

// Number returns the magnitude; zero for text values.
func (v Value) Number() decimal.Decimal { return v.num }

// Literal returns the string; empty for numeric values.
func (v Value) Literal() string { return v.text }

func (v Value) String() string {
	if v.kind == KindText {
		return strconv.Quote(v.text)
	}
	return v.num.String()
}

// numberPattern accepts plain decimals only; "5e2" coerces to a string.
var numberPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

var hundred = decimal.NewFromInt(100)

// Coerce converts a raw literal token. First match wins:
// a "$" marks currency, a "%" marks a percentage (divided by 100),
// a clean decimal is a number, anything else is a string with
// surrounding quotes stripped.
func Coerce(raw string) (Value, error) {
	raw = strings.TrimSpace(raw)

	switch {
	case strings.Contains(raw, "$"):
		d, err := parseNumber(strings.Replace(raw, "$", "", 1))
		if err != nil {
			return Value{}, fmt.Errorf("currency literal %q: %w", raw, err)
		}
		return Numeric(d), nil

	case strings.Contains(raw, "%"):
		d, err := parseNumber(strings.Replace(raw, "%", "", 1))
		if err != nil {
			return Value{}, fmt.Errorf("percentage literal %q: %w", raw, err)
		}
		return Numeric(d.Div(hundred)), nil
	}

	if d, err := parseNumber(raw); err == nil {
		return Numeric(d), nil
	}

	return Text(strings.TrimSpace(unquote(raw))), nil
}

func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !numberPattern.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("not a number: %q", s)
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "+"), ".")
	if strings.HasPrefix(s, ".") || strings.HasPrefix(s, "-.") {
		s = strings.Replace(s, ".", "0.", 1)
	}
	return decimal.NewFromString(s)
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
