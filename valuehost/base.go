package valuehost

import (
	"weak"

	"github.com/rs/zerolog"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/services"
)

// ValueHostBase carries the behaviour shared by every value host. Concrete
// types embed it and register themselves as self so that overridden methods
// like GetValue or IsEnabled are dispatched to the outer type.
type ValueHostBase struct {
	self     ValueHost
	owner    weak.Pointer[Owner]
	name     string
	cfg      *config.ValueHostConfig
	state    *InstanceState
	enabler  conditions.Condition
	disposed bool
}

func (b *ValueHostBase) init(self ValueHost, owner *Owner, cfg *config.ValueHostConfig, state *InstanceState, enabler conditions.Condition) {
	b.self = self
	b.owner = weak.Make(owner)
	b.name = cfg.Name
	b.cfg = cfg
	b.state = state
	b.enabler = enabler
}

func (b *ValueHostBase) checkDisposed() {
	if b.disposed {
		panic(errs.NewCodingError("value host %s has been disposed", b.name))
	}
}

func (b *ValueHostBase) manager() Manager {
	b.checkDisposed()
	if m := b.owner.Value().Manager(); m != nil {
		return m
	}
	panic(errs.NewCodingError("manager of value host %s is no longer available", b.name))
}

func (b *ValueHostBase) services() *services.Services {
	return b.manager().Services()
}

func (b *ValueHostBase) logger() zerolog.Logger {
	return b.services().Logger().With().Str("valueHost", b.name).Logger()
}

func (b *ValueHostBase) cultureID() string {
	return b.services().CultureService().ActiveCultureID()
}

func (b *ValueHostBase) currentState() *InstanceState {
	b.checkDisposed()
	return b.state
}

// GetName returns the immutable identity of the value host.
func (b *ValueHostBase) GetName() string {
	b.checkDisposed()
	return b.name
}

// GetConfig returns the config the value host was created from. It must not
// be modified.
func (b *ValueHostBase) GetConfig() *config.ValueHostConfig {
	b.checkDisposed()
	return b.cfg
}

// GetLabel returns the localized label, falling back to the name.
func (b *ValueHostBase) GetLabel() string {
	cfg := b.GetConfig()
	label := b.services().TextLocalizer().Localize(b.cultureID(), cfg.Labell10n, cfg.Label)
	if label == "" {
		return b.name
	}
	return label
}

func (b *ValueHostBase) GetDataType() string {
	return b.GetConfig().DataType
}

func (b *ValueHostBase) GetValue() interface{} {
	return b.currentState().Value
}

func (b *ValueHostBase) GetConversionErrorMessage() string {
	return b.currentState().ConversionErrorMessage
}

// SetValue assigns a native value. Validation runs afterwards when requested
// by opts.
func (b *ValueHostBase) SetValue(value interface{}, opts *SetValueOptions) {
	o := opts.orDefault()
	b.applyValueChange(valueChange{value: value, setValue: true, conversionError: o.ConversionErrorMessage}, o)
}

// SetValueToUndefined clears the native value.
func (b *ValueHostBase) SetValueToUndefined(opts *SetValueOptions) {
	b.SetValue(nil, opts)
}

type valueChange struct {
	value           interface{}
	setValue        bool
	input           interface{}
	setInput        bool
	conversionError string
}

// applyValueChange commits a value change in a single state update and runs
// the notifications and validation that follow it.
func (b *ValueHostBase) applyValueChange(change valueChange, opts SetValueOptions) {
	if !b.canChangeValue(opts) {
		return
	}
	current := b.currentState()
	oldValue := current.Value
	valueChanged := change.setValue && !valuesEqual(oldValue, change.value)
	inputChanged := change.setInput && !valuesEqual(current.InputValue, change.input)

	_, _ = b.UpdateInstanceState(func(s *InstanceState) error {
		if change.setValue {
			s.Value = cloneValue(change.value)
		}
		if change.setInput {
			s.InputValue = cloneValue(change.input)
		}
		s.ConversionErrorMessage = change.conversionError
		if opts.Reset {
			s.ChangeCounter = 0
		} else if valueChanged || inputChanged {
			s.ChangeCounter++
		}
		return nil
	})

	if valueChanged && !opts.SkipValueChangedCallback {
		b.manager().NotifyValueChanged(b.self, oldValue)
	}
	if opts.Validate {
		if v, ok := b.self.(ValidatorsHost); ok {
			v.Validate(&ValidateOptions{DuringEdit: opts.DuringEdit})
		}
	}
}

func (b *ValueHostBase) canChangeValue(opts SetValueOptions) bool {
	if b.self.IsEnabled() {
		return true
	}
	logger := b.logger()
	if opts.OverrideDisabled {
		logger.Info().Msg("ValueHost is disabled but value changed because of OverrideDisabled")
		return true
	}
	logger.Warn().Msg("ValueHost is disabled. Value not changed.")
	return false
}

// IsEnabled resolves, in order: an explicit SetEnabled(false), the enabler
// condition, an explicit SetEnabled(true), the configured initial state.
func (b *ValueHostBase) IsEnabled() bool {
	state := b.currentState()
	if state.Enabled != nil && !*state.Enabled {
		return false
	}
	if b.enabler != nil {
		switch b.enabler.Evaluate(b.self, b.manager()) {
		case conditions.Match:
			return true
		case conditions.NoMatch:
			return false
		}
	}
	if state.Enabled != nil {
		return true
	}
	if b.enabler == nil && b.cfg.InitialEnabled != nil {
		return *b.cfg.InitialEnabled
	}
	return true
}

func (b *ValueHostBase) SetEnabled(enabled bool) {
	_, _ = b.UpdateInstanceState(func(s *InstanceState) error {
		s.Enabled = &enabled
		return nil
	})
}

func (b *ValueHostBase) IsChanged() bool {
	return b.currentState().ChangeCounter > 0
}

func (b *ValueHostBase) GetChangeCounter() int {
	return b.currentState().ChangeCounter
}

// GetInstanceState returns a copy of the live state.
func (b *ValueHostBase) GetInstanceState() *InstanceState {
	return b.currentState().Clone()
}

// UpdateInstanceState hands a copy of the state to updater and commits it when
// it differs from the live state. The manager is notified on commit. An error
// from updater leaves the live state untouched.
func (b *ValueHostBase) UpdateInstanceState(updater func(state *InstanceState) error) (bool, error) {
	if updater == nil {
		return false, errs.NewCodingError("updater of value host %s must not be nil", b.name)
	}
	m := b.manager()
	current := b.state
	next := current.Clone()
	if err := updater(next); err != nil {
		return false, err
	}
	next.Name = b.name
	if next.Equal(current) {
		return false, nil
	}
	b.state = next
	m.NotifyValueHostInstanceStateChanged(b.self, next.Clone())
	return true, nil
}

// SaveIntoInstanceState stores a custom item. A nil value removes it.
func (b *ValueHostBase) SaveIntoInstanceState(key string, value interface{}) {
	_, _ = b.UpdateInstanceState(func(s *InstanceState) error {
		if value == nil {
			delete(s.Items, key)
			return nil
		}
		if s.Items == nil {
			s.Items = make(map[string]interface{})
		}
		s.Items[key] = cloneValue(value)
		return nil
	})
}

func (b *ValueHostBase) GetFromInstanceState(key string) (interface{}, bool) {
	v, ok := b.currentState().Items[key]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Dispose releases the manager reference, config and state. Any later call
// except Dispose panics.
func (b *ValueHostBase) Dispose() {
	if b.disposed {
		return
	}
	b.disposed = true
	b.owner = weak.Pointer[Owner]{}
	b.cfg = nil
	b.state = nil
	b.enabler = nil
}
