package config

import (
	"github.com/mitchellh/copystructure"

	"github.com/timzifer/valuehosts/conditions"
)

// ValueHostType discriminates the value host implementations.
type ValueHostType string

const (
	ValueHostTypeStatic   ValueHostType = "Static"
	ValueHostTypeCalc     ValueHostType = "Calc"
	ValueHostTypeInput    ValueHostType = "Input"
	ValueHostTypeProperty ValueHostType = "Property"
)

// Validates reports whether value hosts of type t carry validators.
func (t ValueHostType) Validates() bool {
	return t == ValueHostTypeInput || t == ValueHostTypeProperty
}

// Severity controls how an issue affects the validity of a value host.
type Severity string

const (
	SeverityError   Severity = "Error"
	SeveritySevere  Severity = "Severe"
	SeverityWarning Severity = "Warning"
)

// OrDefault returns s, or SeverityError when s is unset.
func (s Severity) OrDefault() Severity {
	if s == "" {
		return SeverityError
	}
	return s
}

// ConditionCreator builds a condition in code instead of from a config.
type ConditionCreator func() (conditions.Condition, error)

// CalcSubject is the calculated value host handed to a CalcFunc.
type CalcSubject interface {
	GetName() string
	GetValue() interface{}
}

// CalcFunc computes the value of a Calc value host. values resolves the
// current values of other value hosts.
type CalcFunc func(host CalcSubject, values conditions.Resolver) (interface{}, error)

// ValueHostConfig describes one value host. Once handed to a value host it
// must not be mutated.
type ValueHostConfig struct {
	Name             string             `json:"name"`
	ValueHostType    ValueHostType      `json:"valueHostType,omitempty"`
	DataType         string             `json:"dataType,omitempty"`
	Label            string             `json:"label,omitempty"`
	Labell10n        string             `json:"labell10n,omitempty"`
	InitialValue     interface{}        `json:"initialValue,omitempty"`
	InitialEnabled   *bool              `json:"initialEnabled,omitempty"`
	EnablerConfig    *conditions.Config `json:"enablerConfig,omitempty"`
	EnablerCreator   ConditionCreator   `json:"-"`
	ValidatorConfigs []*ValidatorConfig `json:"validatorConfigs,omitempty"`
	PropertyName     string             `json:"propertyName,omitempty"`
	ParserLookupKey  string             `json:"parserLookupKey,omitempty"`
	CalcFn           CalcFunc           `json:"-"`
	CalcExpression   string             `json:"calcExpression,omitempty"`
}

// ValidatorConfig describes one validation rule of a value host.
type ValidatorConfig struct {
	ValidatorType      string             `json:"validatorType,omitempty"`
	ErrorCode          string             `json:"errorCode,omitempty"`
	ConditionConfig    *conditions.Config `json:"conditionConfig,omitempty"`
	ConditionCreator   ConditionCreator   `json:"-"`
	EnablerConfig      *conditions.Config `json:"enablerConfig,omitempty"`
	EnablerCreator     ConditionCreator   `json:"-"`
	Severity           Severity           `json:"severity,omitempty"`
	ErrorMessage       string             `json:"errorMessage,omitempty"`
	ErrorMessagel10n   string             `json:"errorMessagel10n,omitempty"`
	SummaryMessage     string             `json:"summaryMessage,omitempty"`
	SummaryMessagel10n string             `json:"summaryMessagel10n,omitempty"`
	Enabled            *bool              `json:"enabled,omitempty"`
}

// Clone returns a deep copy of c. Functions are shared.
func (c *ValueHostConfig) Clone() *ValueHostConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.InitialValue = cloneAny(c.InitialValue)
	out.InitialEnabled = cloneBool(c.InitialEnabled)
	out.EnablerConfig = c.EnablerConfig.Clone()
	if c.ValidatorConfigs != nil {
		out.ValidatorConfigs = make([]*ValidatorConfig, len(c.ValidatorConfigs))
		for i, vc := range c.ValidatorConfigs {
			out.ValidatorConfigs[i] = vc.Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of c. Functions are shared.
func (c *ValidatorConfig) Clone() *ValidatorConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.ConditionConfig = c.ConditionConfig.Clone()
	out.EnablerConfig = c.EnablerConfig.Clone()
	out.Enabled = cloneBool(c.Enabled)
	return &out
}

// CloneAll deep copies a list of value host configs.
func CloneAll(configs []*ValueHostConfig) []*ValueHostConfig {
	if configs == nil {
		return nil
	}
	out := make([]*ValueHostConfig, len(configs))
	for i, c := range configs {
		out[i] = c.Clone()
	}
	return out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func cloneAny(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	copied, err := copystructure.Copy(v)
	if err != nil {
		return v
	}
	return copied
}

// Bool returns a pointer to b, for the optional flags of the configs.
func Bool(b bool) *bool {
	return &b
}
