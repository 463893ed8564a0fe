// Package conditions defines the condition contract consumed by value hosts and
// validators, the condition configuration model, a factory that turns configs
// into conditions and a small set of built-in conditions.
package conditions

import "github.com/mitchellh/copystructure"

// Result is the outcome of evaluating a condition.
type Result int

const (
	// Undetermined means the condition could not decide, typically because the
	// value is missing or could not be converted.
	Undetermined Result = iota
	Match
	NoMatch
)

func (r Result) String() string {
	switch r {
	case Match:
		return "Match"
	case NoMatch:
		return "NoMatch"
	default:
		return "Undetermined"
	}
}

// Category groups conditions by purpose. Validators are ordered so that the
// Require category runs first.
type Category string

const (
	CategoryUndetermined  Category = "Undetermined"
	CategoryRequire       Category = "Require"
	CategoryDataTypeCheck Category = "DataTypeCheck"
	CategoryComparison    Category = "Comparison"
	CategoryContents      Category = "Contents"
)

// Built-in condition types.
const (
	TypeRequireText   = "RequireText"
	TypeDataTypeCheck = "DataTypeCheck"
	TypeRange         = "Range"
	TypeRegExp        = "RegExp"
	TypeExpression    = "Expression"
	TypeAll           = "All"
	TypeAny           = "Any"
)

// Config describes one condition. Child conditions are used by All and Any.
type Config struct {
	ConditionType    string                 `json:"conditionType"`
	Category         Category               `json:"category,omitempty"`
	ValueHostName    string                 `json:"valueHostName,omitempty"`
	Expression       string                 `json:"expression,omitempty"`
	ConditionConfigs []*Config              `json:"conditionConfigs,omitempty"`
	Settings         map[string]interface{} `json:"settings,omitempty"`
}

// Subject is the value host a condition is evaluated against.
type Subject interface {
	GetName() string
	GetValue() interface{}
	GetDataType() string
}

// InputSubject is implemented by subjects that also carry the raw input text.
type InputSubject interface {
	Subject
	GetInputValue() interface{}
}

// ConversionErrorSource is implemented by subjects that remember why the last
// input could not be converted into a native value.
type ConversionErrorSource interface {
	GetConversionErrorMessage() string
}

// Resolver gives conditions access to the values of other value hosts.
type Resolver interface {
	ValueOf(name string) (interface{}, bool)
}

// Condition is the evaluation contract.
type Condition interface {
	ConditionType() string
	Category() Category
	Evaluate(subject Subject, resolver Resolver) Result
}

// Creator creates conditions from configs.
type Creator interface {
	Create(cfg *Config) (Condition, error)
}

// valueOf returns the value a condition operates on: the named value host when
// the config references one, the subject otherwise.
func valueOf(cfg *Config, subject Subject, resolver Resolver) (interface{}, bool) {
	if cfg != nil && cfg.ValueHostName != "" {
		if resolver == nil {
			return nil, false
		}
		return resolver.ValueOf(cfg.ValueHostName)
	}
	if subject == nil {
		return nil, false
	}
	return subject.GetValue(), true
}

func categoryOr(cfg *Config, fallback Category) Category {
	if cfg != nil && cfg.Category != "" {
		return cfg.Category
	}
	return fallback
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Settings != nil {
		out.Settings = cloneSettings(c.Settings)
	}
	if c.ConditionConfigs != nil {
		out.ConditionConfigs = make([]*Config, len(c.ConditionConfigs))
		for i, child := range c.ConditionConfigs {
			out.ConditionConfigs[i] = child.Clone()
		}
	}
	return &out
}

func cloneSettings(settings map[string]interface{}) map[string]interface{} {
	copied, err := copystructure.Copy(settings)
	if err == nil {
		if out, ok := copied.(map[string]interface{}); ok {
			return out
		}
	}
	out := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		out[k] = v
	}
	return out
}
