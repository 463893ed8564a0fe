package datatypes

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// Registry is the built-in implementation of every data type service.
type Registry struct{}

var (
	_ Identifier = (*Registry)(nil)
	_ Converter  = (*Registry)(nil)
	_ Comparer   = (*Registry)(nil)
	_ Parser     = (*Registry)(nil)
	_ Formatter  = (*Registry)(nil)
)

// NewRegistry returns the built-in data type services.
func NewRegistry() *Registry {
	return &Registry{}
}

// Identify returns the lookup key matching the Go type of value.
func (r *Registry) Identify(value interface{}) string {
	switch value.(type) {
	case string:
		return LookupString
	case bool:
		return LookupBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return LookupInteger
	case float32, float64:
		return LookupNumber
	case decimal.Decimal, *decimal.Decimal:
		return LookupDecimal
	case time.Time:
		return LookupDate
	default:
		return ""
	}
}

// Convert converts value into the native form of lookupKey. An empty lookup
// key converts into the identified key of the value itself.
func (r *Registry) Convert(value interface{}, lookupKey string) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	key, err := r.resolveKey(value, lookupKey)
	if err != nil {
		return nil, err
	}
	return convertValue(key, value)
}

// Compare converts both values to lookupKey and compares them.
func (r *Registry) Compare(a, b interface{}, lookupKey string) (Comparison, error) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return Equal, nil
		}
		return Undetermined, nil
	}
	key, err := r.resolveKey(a, lookupKey)
	if err != nil {
		return Undetermined, err
	}
	left, err := convertValue(key, a)
	if err != nil {
		return Undetermined, fmt.Errorf("compare left operand: %w", err)
	}
	right, err := convertValue(key, b)
	if err != nil {
		return Undetermined, fmt.Errorf("compare right operand: %w", err)
	}
	switch key {
	case LookupNumber, LookupInteger, LookupDecimal:
		ld, _ := convertDecimalValue(left)
		rd, _ := convertDecimalValue(right)
		return fromOrder(ld.Cmp(rd)), nil
	case LookupString:
		return fromOrder(strings.Compare(left.(string), right.(string))), nil
	case LookupDate:
		lt, rt := left.(time.Time), right.(time.Time)
		switch {
		case lt.Equal(rt):
			return Equal, nil
		case lt.Before(rt):
			return LessThan, nil
		default:
			return GreaterThan, nil
		}
	case LookupBoolean:
		if left.(bool) == right.(bool) {
			return Equal, nil
		}
		return NotEqual, nil
	default:
		return Undetermined, nil
	}
}

// Parse converts text entered under cultureID into the native form of lookupKey.
// Whitespace-only text parses to nil.
func (r *Registry) Parse(text, lookupKey, cultureID string) (interface{}, error) {
	key, ok := CanonicalKey(lookupKey)
	if !ok {
		return nil, fmt.Errorf("no parser for lookup key %q", lookupKey)
	}
	if key == LookupString {
		return text, nil
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	switch key {
	case LookupNumber:
		parsed, err := strconv.ParseFloat(normalizeNumber(trimmed, cultureID), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", text)
		}
		return parsed, nil
	case LookupInteger:
		parsed, err := strconv.ParseInt(normalizeNumber(trimmed, cultureID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a whole number", text)
		}
		return parsed, nil
	case LookupDecimal:
		parsed, err := decimal.NewFromString(normalizeNumber(trimmed, cultureID))
		if err != nil {
			return nil, fmt.Errorf("%q is not a decimal number", text)
		}
		return parsed, nil
	case LookupBoolean:
		parsed, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", text)
		}
		return parsed, nil
	case LookupDate:
		parsed, err := convertDateValue(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%q is not a date", text)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("no parser for lookup key %q", lookupKey)
	}
}

// Format renders value as text for cultureID.
func (r *Registry) Format(value interface{}, lookupKey, cultureID string) (string, error) {
	if value == nil {
		return "", nil
	}
	key, err := r.resolveKey(value, lookupKey)
	if err != nil {
		return "", err
	}
	native, err := convertValue(key, value)
	if err != nil {
		return "", err
	}
	switch v := native.(type) {
	case float64:
		return localizeNumber(strconv.FormatFloat(v, 'f', -1, 64), cultureID), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case decimal.Decimal:
		return localizeNumber(v.String(), cultureID), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format("2006-01-02"), nil
	case string:
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (r *Registry) resolveKey(value interface{}, lookupKey string) (string, error) {
	if strings.TrimSpace(lookupKey) == "" {
		key := r.Identify(value)
		if key == "" {
			return "", fmt.Errorf("cannot identify lookup key for %T", value)
		}
		return key, nil
	}
	key, ok := CanonicalKey(lookupKey)
	if !ok {
		return "", fmt.Errorf("unsupported lookup key %q", lookupKey)
	}
	return key, nil
}

func fromOrder(order int) Comparison {
	switch {
	case order < 0:
		return LessThan
	case order > 0:
		return GreaterThan
	default:
		return Equal
	}
}

// commaCultures use ',' as decimal separator and '.' for grouping.
var commaCultures = map[string]struct{}{
	"de": {}, "fr": {}, "es": {}, "it": {}, "nl": {}, "pt": {}, "ru": {}, "pl": {}, "sv": {}, "da": {}, "nb": {}, "fi": {},
}

func usesDecimalComma(cultureID string) bool {
	if strings.TrimSpace(cultureID) == "" {
		return false
	}
	tag, err := language.Parse(cultureID)
	if err != nil {
		return false
	}
	base, _ := tag.Base()
	_, ok := commaCultures[base.String()]
	return ok
}

func normalizeNumber(text, cultureID string) string {
	if !usesDecimalComma(cultureID) {
		return strings.ReplaceAll(text, ",", "")
	}
	text = strings.ReplaceAll(text, ".", "")
	return strings.ReplaceAll(text, ",", ".")
}

func localizeNumber(text, cultureID string) string {
	if !usesDecimalComma(cultureID) {
		return text
	}
	return strings.ReplaceAll(text, ".", ",")
}
