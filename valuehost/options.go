package valuehost

// SetValueOptions tune SetValue and SetInputValue. A nil pointer uses the
// defaults.
type SetValueOptions struct {
	// Validate runs validation after the value was committed.
	Validate bool
	// Reset zeroes the change counter instead of incrementing it.
	Reset bool
	// ConversionErrorMessage records why the input could not be converted.
	ConversionErrorMessage string
	// DuringEdit marks intermediate input; the parser is skipped.
	DuringEdit bool
	// DisableParser stores the input value without parsing it.
	DisableParser bool
	// OverrideDisabled allows changing the value of a disabled value host.
	OverrideDisabled bool
	// SkipValueChangedCallback suppresses the value changed notification.
	SkipValueChangedCallback bool
}

func (o *SetValueOptions) orDefault() SetValueOptions {
	if o == nil {
		return SetValueOptions{}
	}
	return *o
}

// ValidateOptions tune Validate.
type ValidateOptions struct {
	// DuringEdit validates intermediate input.
	DuringEdit bool
}

// ValidateResult summarizes one validation run.
type ValidateResult struct {
	Status      ValidationStatus
	IssuesFound []IssueFound
}
