package valuehost

import (
	"sort"
	"time"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/config"
)

// ValidatorsValueHostBase extends ValueHostBase with validators. The
// validators are created eagerly by the factory.
type ValidatorsValueHostBase struct {
	ValueHostBase
	validators []*Validator
}

func (b *ValidatorsValueHostBase) initValidators(validators []*Validator) {
	// Require conditions run first, the configured order is kept otherwise.
	sorted := append([]*Validator(nil), validators...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Category() == conditions.CategoryRequire && sorted[j].Category() != conditions.CategoryRequire
	})
	b.validators = sorted
}

// Validators returns the validators in evaluation order.
func (b *ValidatorsValueHostBase) Validators() []*Validator {
	b.checkDisposed()
	return append([]*Validator(nil), b.validators...)
}

// Validate evaluates every enabled validator and commits the outcome into the
// instance state. A Severe issue stops the evaluation. Data type checks are
// skipped during edit.
func (b *ValidatorsValueHostBase) Validate(opts *ValidateOptions) *ValidateResult {
	o := ValidateOptions{}
	if opts != nil {
		o = *opts
	}
	start := time.Now()
	result := &ValidateResult{Status: StatusValid}

	if !b.self.IsEnabled() {
		result.Status = StatusDisabled
	} else {
		resolver := b.manager()
		undetermined := false
		for _, v := range b.validators {
			if !v.IsEnabled(b.self, resolver) {
				continue
			}
			// input being edited has not been parsed yet
			if o.DuringEdit && v.Category() == conditions.CategoryDataTypeCheck {
				continue
			}
			switch v.Evaluate(b.self, resolver) {
			case conditions.NoMatch:
				errorMessage, summary := v.messages(b)
				result.IssuesFound = append(result.IssuesFound, IssueFound{
					ValueHostName:  b.name,
					ErrorCode:      v.ErrorCode(),
					Severity:       v.Severity(),
					ErrorMessage:   errorMessage,
					SummaryMessage: summary,
				})
			case conditions.Undetermined:
				undetermined = true
			}
			if n := len(result.IssuesFound); n > 0 && result.IssuesFound[n-1].Severity == config.SeveritySevere {
				break
			}
		}
		result.Status = statusOf(result.IssuesFound, undetermined)
	}

	_, _ = b.UpdateInstanceState(func(s *InstanceState) error {
		s.Status = result.Status
		s.IssuesFound = append([]IssueFound(nil), result.IssuesFound...)
		return nil
	})
	b.services().Telemetry().ObserveValidation(b.name, string(result.Status), time.Since(start))
	return result
}

func statusOf(issues []IssueFound, undetermined bool) ValidationStatus {
	for _, issue := range issues {
		if issue.Severity != config.SeverityWarning {
			return StatusInvalid
		}
	}
	if undetermined && len(issues) == 0 {
		return StatusUndetermined
	}
	return StatusValid
}

// ClearValidation resets the validation outcome. It reports whether the state
// changed.
func (b *ValidatorsValueHostBase) ClearValidation() bool {
	changed, _ := b.UpdateInstanceState(func(s *InstanceState) error {
		s.Status = StatusNotAttempted
		s.IssuesFound = nil
		return nil
	})
	return changed
}

// IsValid is false only after a validation found errors.
func (b *ValidatorsValueHostBase) IsValid() bool {
	return b.currentState().Status != StatusInvalid
}

func (b *ValidatorsValueHostBase) GetValidationStatus() ValidationStatus {
	return b.currentState().Status
}

// GetIssuesFound returns a copy of the issues of the last validation.
func (b *ValidatorsValueHostBase) GetIssuesFound() []IssueFound {
	return append([]IssueFound(nil), b.currentState().IssuesFound...)
}

func (b *ValidatorsValueHostBase) Dispose() {
	b.validators = nil
	b.ValueHostBase.Dispose()
}

// InputValueHost is bound to an editor. It keeps the raw input next to the
// native value and converts between them with the data type parser.
type InputValueHost struct {
	ValidatorsValueHostBase
}

func newInputValueHost(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState, enabler conditions.Condition, validators []*Validator) *InputValueHost {
	h := &InputValueHost{}
	h.init(h, owner, cfg, state, enabler)
	h.initValidators(validators)
	return h
}

func (h *InputValueHost) GetValueHostType() config.ValueHostType {
	return config.ValueHostTypeInput
}

func (h *InputValueHost) GetInputValue() interface{} {
	return h.currentState().InputValue
}

// GetParserLookupKey returns the lookup key the parser converts input with.
func (h *InputValueHost) GetParserLookupKey() string {
	cfg := h.GetConfig()
	if cfg.ParserLookupKey != "" {
		return cfg.ParserLookupKey
	}
	return cfg.DataType
}

// SetInputValue stores raw input. Unless opts requests DuringEdit or
// DisableParser, textual input is parsed into the native value; a parse failure
// clears the native value and records the conversion error.
func (h *InputValueHost) SetInputValue(input interface{}, opts *SetValueOptions) {
	o := opts.orDefault()
	change := valueChange{input: input, setInput: true, conversionError: o.ConversionErrorMessage}
	if !o.DuringEdit && !o.DisableParser {
		change.value, change.conversionError = h.parse(input, o.ConversionErrorMessage)
		change.setValue = true
	}
	h.applyValueChange(change, o)
}

// SetValues assigns native value and raw input together.
func (h *InputValueHost) SetValues(value, input interface{}, opts *SetValueOptions) {
	o := opts.orDefault()
	h.applyValueChange(valueChange{
		value:           value,
		setValue:        true,
		input:           input,
		setInput:        true,
		conversionError: o.ConversionErrorMessage,
	}, o)
}

func (h *InputValueHost) parse(input interface{}, conversionError string) (interface{}, string) {
	text, ok := input.(string)
	lookupKey := h.GetParserLookupKey()
	if !ok || lookupKey == "" {
		return input, conversionError
	}
	parsed, err := h.services().DataTypeParser().Parse(text, lookupKey, h.cultureID())
	if err != nil {
		return nil, err.Error()
	}
	return parsed, conversionError
}

// RequiresInput reports whether the first validator is a Require condition.
func (h *InputValueHost) RequiresInput() bool {
	validators := h.Validators()
	return len(validators) > 0 && validators[0].Category() == conditions.CategoryRequire
}

// PropertyValueHost validates a property of a model object.
type PropertyValueHost struct {
	ValidatorsValueHostBase
}

func newPropertyValueHost(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState, enabler conditions.Condition, validators []*Validator) *PropertyValueHost {
	h := &PropertyValueHost{}
	h.init(h, owner, cfg, state, enabler)
	h.initValidators(validators)
	return h
}

func (h *PropertyValueHost) GetValueHostType() config.ValueHostType {
	return config.ValueHostTypeProperty
}

// GetPropertyName returns the model property, defaulting to the name.
func (h *PropertyValueHost) GetPropertyName() string {
	if name := h.GetConfig().PropertyName; name != "" {
		return name
	}
	return h.name
}
