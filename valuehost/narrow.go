package valuehost

import "github.com/timzifer/valuehosts/config"

// ValidatorsHost is a value host with validators.
type ValidatorsHost interface {
	ValueHost
	Validate(opts *ValidateOptions) *ValidateResult
	ClearValidation() bool
	IsValid() bool
	GetValidationStatus() ValidationStatus
	GetIssuesFound() []IssueFound
	Validators() []*Validator
}

// InputHost is a validated value host bound to an editor.
type InputHost interface {
	ValidatorsHost
	GetInputValue() interface{}
	SetInputValue(input interface{}, opts *SetValueOptions)
	SetValues(value, input interface{}, opts *SetValueOptions)
	GetParserLookupKey() string
	RequiresInput() bool
}

// PropertyHost is a validated value host bound to a model property.
type PropertyHost interface {
	ValidatorsHost
	GetPropertyName() string
}

// CalcHost is a value host with a calculated value.
type CalcHost interface {
	ValueHost
	Calculate() (interface{}, error)
}

// StaticHost is a value host without validators and calculation.
type StaticHost interface {
	ValueHost
}

func AsValidatorsHost(vh ValueHost) (ValidatorsHost, bool) {
	switch h := vh.(type) {
	case *InputValueHost:
		return h, true
	case *PropertyValueHost:
		return h, true
	}
	h, ok := vh.(ValidatorsHost)
	return h, ok
}

func AsInputHost(vh ValueHost) (InputHost, bool) {
	if h, ok := vh.(*InputValueHost); ok {
		return h, true
	}
	h, ok := vh.(InputHost)
	return h, ok
}

func AsPropertyHost(vh ValueHost) (PropertyHost, bool) {
	if h, ok := vh.(*PropertyValueHost); ok {
		return h, true
	}
	h, ok := vh.(PropertyHost)
	return h, ok
}

func AsCalcHost(vh ValueHost) (CalcHost, bool) {
	if h, ok := vh.(*CalcValueHost); ok {
		return h, true
	}
	h, ok := vh.(CalcHost)
	return h, ok
}

// AsStaticHost accepts value hosts that report the Static type and neither
// validate nor calculate.
func AsStaticHost(vh ValueHost) (StaticHost, bool) {
	if h, ok := vh.(*StaticValueHost); ok {
		return h, true
	}
	if vh == nil || vh.GetValueHostType() != config.ValueHostTypeStatic {
		return nil, false
	}
	if _, ok := vh.(ValidatorsHost); ok {
		return nil, false
	}
	if _, ok := vh.(CalcHost); ok {
		return nil, false
	}
	return vh, true
}
