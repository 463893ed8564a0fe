package valuehost

import (
	"reflect"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mitchellh/copystructure"
	"github.com/shopspring/decimal"

	"github.com/timzifer/valuehosts/config"
)

// ValidationStatus is the outcome of the last validation of a value host.
type ValidationStatus string

const (
	StatusNotAttempted ValidationStatus = "NotAttempted"
	StatusValid        ValidationStatus = "Valid"
	StatusInvalid      ValidationStatus = "Invalid"
	StatusUndetermined ValidationStatus = "Undetermined"
	StatusDisabled     ValidationStatus = "Disabled"
)

// IssueFound describes a failed validator. Issues are data, never errors.
type IssueFound struct {
	ValueHostName  string          `json:"valueHostName"`
	ErrorCode      string          `json:"errorCode"`
	Severity       config.Severity `json:"severity,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	SummaryMessage string          `json:"summaryMessage,omitempty"`
}

// InstanceState is the mutable runtime snapshot of a value host. It is plain
// data and treated as immutable: value hosts only ever commit modified copies.
type InstanceState struct {
	Name                   string                 `json:"name"`
	Value                  interface{}            `json:"value,omitempty"`
	InputValue             interface{}            `json:"inputValue,omitempty"`
	ConversionErrorMessage string                 `json:"conversionErrorMessage,omitempty"`
	Status                 ValidationStatus       `json:"status,omitempty"`
	IssuesFound            []IssueFound           `json:"issuesFound,omitempty"`
	ChangeCounter          int                    `json:"changeCounter,omitempty"`
	Enabled                *bool                  `json:"enabled,omitempty"`
	Items                  map[string]interface{} `json:"items,omitempty"`
}

var stateCopier = copystructure.Config{
	Copiers: map[reflect.Type]copystructure.CopierFunc{
		reflect.TypeOf(decimal.Decimal{}): func(v interface{}) (interface{}, error) { return v, nil },
		reflect.TypeOf(time.Time{}):       func(v interface{}) (interface{}, error) { return v, nil },
	},
}

var stateCompareOptions = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

// Clone returns a deep copy of s.
func (s *InstanceState) Clone() *InstanceState {
	if s == nil {
		return nil
	}
	out := *s
	out.Value = cloneValue(s.Value)
	out.InputValue = cloneValue(s.InputValue)
	if s.IssuesFound != nil {
		out.IssuesFound = append([]IssueFound(nil), s.IssuesFound...)
	}
	if s.Enabled != nil {
		enabled := *s.Enabled
		out.Enabled = &enabled
	}
	if s.Items != nil {
		out.Items = make(map[string]interface{}, len(s.Items))
		for k, v := range s.Items {
			out.Items[k] = cloneValue(v)
		}
	}
	return &out
}

// Equal reports whether s and other are deeply equal. Nil and empty
// collections are equal.
func (s *InstanceState) Equal(other *InstanceState) bool {
	if s == nil || other == nil {
		return s == other
	}
	// compare values: cmp would call this method again on the pointers
	return cmp.Equal(*s, *other, stateCompareOptions...)
}

func cloneValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	copied, err := stateCopier.Copy(v)
	if err != nil {
		return v
	}
	return copied
}

func valuesEqual(a, b interface{}) bool {
	return cmp.Equal(a, b, stateCompareOptions...)
}
