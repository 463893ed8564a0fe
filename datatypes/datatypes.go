// Package datatypes implements the data type services consumed by value hosts:
// identifying the lookup key of a native value, converting values into the
// native form of a lookup key, comparing, parsing text input and formatting.
package datatypes

import (
	"strings"
)

// Lookup keys understood by the built-in registry.
const (
	LookupString  = "String"
	LookupNumber  = "Number"
	LookupInteger = "Integer"
	LookupDecimal = "Decimal"
	LookupBoolean = "Boolean"
	LookupDate    = "Date"
)

var knownKeys = []string{LookupString, LookupNumber, LookupInteger, LookupDecimal, LookupBoolean, LookupDate}

// Comparison is the outcome of comparing two values.
type Comparison int

const (
	Undetermined Comparison = iota
	Equal
	NotEqual
	LessThan
	GreaterThan
)

func (c Comparison) String() string {
	switch c {
	case Equal:
		return "Equal"
	case NotEqual:
		return "NotEqual"
	case LessThan:
		return "LessThan"
	case GreaterThan:
		return "GreaterThan"
	default:
		return "Undetermined"
	}
}

// Identifier determines the lookup key of a native value.
type Identifier interface {
	// Identify returns the lookup key or an empty string when the value is not supported.
	Identify(value interface{}) string
}

// Converter converts a value into the native representation of a lookup key.
type Converter interface {
	Convert(value interface{}, lookupKey string) (interface{}, error)
}

// Comparer compares two native values.
type Comparer interface {
	Compare(a, b interface{}, lookupKey string) (Comparison, error)
}

// Parser turns text typed by a user into a native value.
type Parser interface {
	Parse(text, lookupKey, cultureID string) (interface{}, error)
}

// Formatter turns a native value into text for display.
type Formatter interface {
	Format(value interface{}, lookupKey, cultureID string) (string, error)
}

// CanonicalKey returns the registered spelling of lookupKey. Lookup keys are
// matched case-insensitively.
func CanonicalKey(lookupKey string) (string, bool) {
	trimmed := strings.TrimSpace(lookupKey)
	for _, key := range knownKeys {
		if strings.EqualFold(key, trimmed) {
			return key, true
		}
	}
	return trimmed, false
}

// KnownKeys lists the lookup keys supported by the built-in registry.
func KnownKeys() []string {
	out := make([]string, len(knownKeys))
	copy(out, knownKeys)
	return out
}
