// Package dataset provides the in-memory tabular structure used by the
// cleaning stage and the CSV codec that reads and writes it.
package dataset

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	// KindMissing marks an absent value (empty cell, unparsable date).
	KindMissing Kind = iota
	// KindString is free text.
	KindString
	// KindNumber is a float64 that remembers the text it was parsed from.
	KindNumber
	// KindDate is a calendar date, optionally with a time of day.
	KindDate
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Value is a single cell. The zero Value is Missing.
type Value struct {
	kind Kind
	text string
	num  float64
	date time.Time
}

// Missing returns the explicit "no value" marker.
func Missing() Value {
	return Value{kind: KindMissing}
}

// NewString returns a string value.
func NewString(s string) Value {
	return Value{kind: KindString, text: s}
}

// NewNumber returns a number value formatted with the shortest representation.
func NewNumber(f float64) Value {
	return Value{kind: KindNumber, num: f, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// NewDate returns a date value.
func NewDate(t time.Time) Value {
	return Value{kind: KindDate, date: t}
}

// ParseCell infers the type of a raw CSV cell: empty cells are Missing,
// plain decimal text (optionally signed, with an exponent, padded with spaces)
// and NaN are Numbers keeping their original text, everything else is a
// String. Hex floats, digit separators and infinities are Strings. Dates are
// never inferred; columns are retyped explicitly.
func ParseCell(cell string) Value {
	if cell == "" {
		return Missing()
	}
	trimmed := strings.TrimSpace(cell)
	if trimmed == "NaN" {
		return Value{kind: KindNumber, num: math.NaN(), text: cell}
	}
	if isDecimal(trimmed) {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return Value{kind: KindNumber, num: f, text: cell}
		}
	}
	return NewString(cell)
}

// isDecimal reports whether s matches [+-]digits[.digits][(e|E)[+-]digits]
// with at least one mantissa digit.
func isDecimal(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && isDigit(s[i]) {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(s)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Kind returns the value's kind.
func (v Value) Kind() Kind {
	return v.kind
}

// IsMissing reports whether v is the missing marker.
func (v Value) IsMissing() bool {
	return v.kind == KindMissing
}

// Float returns the numeric value. ok is false for non-numbers and NaN, so a
// range test on a non-comparable value is always false.
func (v Value) Float() (f float64, ok bool) {
	if v.kind != KindNumber || math.IsNaN(v.num) {
		return 0, false
	}
	return v.num, true
}

// Time returns the date held by v.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.date, true
}

// Text returns the serialised form of v. Numbers and strings keep their
// original text, dates use FormatDate and Missing is the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindDate:
		return FormatDate(v.date)
	case KindMissing:
		return ""
	default:
		return v.text
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return v.Text()
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindMissing:
		return true
	case KindDate:
		return v.date.Equal(o.date)
	default:
		return v.text == o.text
	}
}

// Between reports whether v is a number within [lo, hi] inclusive.
func (v Value) Between(lo, hi float64) bool {
	f, ok := v.Float()
	if !ok {
		return false
	}
	return f >= lo && f <= hi
}
