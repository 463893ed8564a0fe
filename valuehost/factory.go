package valuehost

import (
	"fmt"
	"strings"
	"sync"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/services"
)

// DataTypeCheckErrorCode identifies the data type check validator added to
// input value hosts that do not configure one.
const DataTypeCheckErrorCode = conditions.TypeDataTypeCheck

// Generator creates one kind of value host.
type Generator interface {
	CanCreate(cfg *config.ValueHostConfig) bool
	Create(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState) (ValueHost, error)
	CreateState(cfg *config.ValueHostConfig) *InstanceState
	// CleanupState adapts a state saved for an earlier config to cfg.
	CleanupState(state *InstanceState, cfg *config.ValueHostConfig)
}

// Factory picks the generator for a config. Generators registered later are
// consulted first.
type Factory struct {
	mu         sync.RWMutex
	generators []Generator
}

// NewFactory returns a factory with the Static, Calc, Input and Property
// generators.
func NewFactory() *Factory {
	f := &Factory{}
	f.Register(StaticGenerator{})
	f.Register(CalcGenerator{})
	f.Register(InputGenerator{})
	f.Register(PropertyGenerator{})
	return f
}

func (f *Factory) Register(g Generator) {
	if g == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generators = append(f.generators, g)
}

func (f *Factory) generator(cfg *config.ValueHostConfig) (Generator, error) {
	if cfg == nil {
		return nil, errs.NewCodingError("value host config must not be nil")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := len(f.generators) - 1; i >= 0; i-- {
		if f.generators[i].CanCreate(cfg) {
			return f.generators[i], nil
		}
	}
	return nil, errs.NewCodingError("no generator for value host %s of type %q", cfg.Name, cfg.ValueHostType)
}

// Create builds the value host for cfg. A nil state starts from the
// generator's initial state; a given state is copied.
func (f *Factory) Create(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState) (ValueHost, error) {
	g, err := f.generator(cfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errs.NewCodingError("value host config needs a name")
	}
	if owner.Manager() == nil {
		return nil, errs.NewCodingError("value host %s needs a manager", cfg.Name)
	}
	if state == nil {
		state = g.CreateState(cfg)
	} else {
		state = state.Clone()
	}
	state.Name = cfg.Name
	return g.Create(owner, cfg, state)
}

func (f *Factory) CreateState(cfg *config.ValueHostConfig) (*InstanceState, error) {
	g, err := f.generator(cfg)
	if err != nil {
		return nil, err
	}
	return g.CreateState(cfg), nil
}

// CleanupState adapts a saved state to cfg. A restored value is converted
// into the native form of cfg.DataType through the converter service of svc,
// since persisted states lose their Go types.
func (f *Factory) CleanupState(svc *services.Services, state *InstanceState, cfg *config.ValueHostConfig) error {
	g, err := f.generator(cfg)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	g.CleanupState(state, cfg)
	if state.Value == nil || strings.TrimSpace(cfg.DataType) == "" {
		return nil
	}
	if svc == nil {
		return errs.NewCodingError("value host %s: services required to restore its value", cfg.Name)
	}
	converter, err := svc.DataTypeConverter()
	if err != nil {
		return err
	}
	converted, err := converter.Convert(state.Value, cfg.DataType)
	if err != nil {
		logger := svc.Logger()
		logger.Warn().Err(err).Str("valueHost", cfg.Name).Str("dataType", cfg.DataType).
			Msg("restored value kept unconverted")
		return nil
	}
	state.Value = converted
	return nil
}

func untypedOr(cfg *config.ValueHostConfig, t config.ValueHostType, fallback bool) bool {
	if cfg.ValueHostType == "" {
		return fallback
	}
	return cfg.ValueHostType == t
}

func isCalc(cfg *config.ValueHostConfig) bool {
	return cfg.CalcFn != nil || strings.TrimSpace(cfg.CalcExpression) != ""
}

func conditionFactory(owner *Owner) conditions.Creator {
	factory, err := owner.Manager().Services().ConditionFactory()
	if err != nil {
		return nil
	}
	return factory
}

func createEnabler(owner *Owner, cfg *config.ValueHostConfig) (conditions.Condition, error) {
	enabler, err := createCondition(cfg.EnablerConfig, cfg.EnablerCreator, "enabler", conditionFactory(owner))
	if err != nil {
		return nil, fmt.Errorf("value host %s: %w", cfg.Name, err)
	}
	return enabler, nil
}

func createValidators(owner *Owner, cfg *config.ValueHostConfig) ([]*Validator, error) {
	factory := conditionFactory(owner)
	validators := make([]*Validator, 0, len(cfg.ValidatorConfigs)+1)
	for _, vc := range cfg.ValidatorConfigs {
		v, err := newValidator(vc, factory)
		if err != nil {
			return nil, fmt.Errorf("value host %s: %w", cfg.Name, err)
		}
		validators = append(validators, v)
	}
	return validators, nil
}

func initialState(cfg *config.ValueHostConfig, withValue, validates bool) *InstanceState {
	state := &InstanceState{Name: cfg.Name}
	if withValue {
		state.Value = cloneValue(cfg.InitialValue)
	}
	if validates {
		state.Status = StatusNotAttempted
	}
	return state
}

// cleanupIssues drops issues of validators that no longer exist and resets
// the validation status.
func cleanupIssues(state *InstanceState, cfg *config.ValueHostConfig, extraCodes ...string) {
	known := make(map[string]struct{}, len(cfg.ValidatorConfigs)+len(extraCodes))
	for _, vc := range cfg.ValidatorConfigs {
		known[config.NormalizeErrorCode(config.ResolveErrorCode(vc))] = struct{}{}
	}
	for _, code := range extraCodes {
		known[config.NormalizeErrorCode(code)] = struct{}{}
	}
	kept := state.IssuesFound[:0:0]
	for _, issue := range state.IssuesFound {
		if _, ok := known[config.NormalizeErrorCode(issue.ErrorCode)]; ok {
			kept = append(kept, issue)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	state.IssuesFound = kept
	state.Status = StatusNotAttempted
}

// StaticGenerator creates Static value hosts, and untyped value hosts without
// validators or calculation.
type StaticGenerator struct{}

func (StaticGenerator) CanCreate(cfg *config.ValueHostConfig) bool {
	return untypedOr(cfg, config.ValueHostTypeStatic, len(cfg.ValidatorConfigs) == 0 && !isCalc(cfg))
}

func (StaticGenerator) Create(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState) (ValueHost, error) {
	enabler, err := createEnabler(owner, cfg)
	if err != nil {
		return nil, err
	}
	return newStaticValueHost(owner, cfg, state, enabler), nil
}

func (StaticGenerator) CreateState(cfg *config.ValueHostConfig) *InstanceState {
	return initialState(cfg, true, false)
}

func (StaticGenerator) CleanupState(state *InstanceState, cfg *config.ValueHostConfig) {
	state.Name = cfg.Name
}

// CalcGenerator creates Calc value hosts, and untyped value hosts with a
// calculation.
type CalcGenerator struct{}

func (CalcGenerator) CanCreate(cfg *config.ValueHostConfig) bool {
	return untypedOr(cfg, config.ValueHostTypeCalc, isCalc(cfg))
}

func (CalcGenerator) Create(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState) (ValueHost, error) {
	enabler, err := createEnabler(owner, cfg)
	if err != nil {
		return nil, err
	}
	return newCalcValueHost(owner, cfg, state, enabler)
}

func (CalcGenerator) CreateState(cfg *config.ValueHostConfig) *InstanceState {
	return initialState(cfg, false, false)
}

func (CalcGenerator) CleanupState(state *InstanceState, cfg *config.ValueHostConfig) {
	state.Name = cfg.Name
	state.Value = nil
}

// InputGenerator creates Input value hosts, and untyped value hosts with
// validators. A data type check validator is added unless one is configured.
type InputGenerator struct{}

func (InputGenerator) CanCreate(cfg *config.ValueHostConfig) bool {
	return untypedOr(cfg, config.ValueHostTypeInput, len(cfg.ValidatorConfigs) > 0 && !isCalc(cfg))
}

func (InputGenerator) Create(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState) (ValueHost, error) {
	enabler, err := createEnabler(owner, cfg)
	if err != nil {
		return nil, err
	}
	validators, err := createValidators(owner, cfg)
	if err != nil {
		return nil, err
	}
	if !hasDataTypeCheck(validators) {
		v, err := newValidator(&config.ValidatorConfig{
			ErrorCode:       DataTypeCheckErrorCode,
			ConditionConfig: &conditions.Config{ConditionType: conditions.TypeDataTypeCheck},
			ErrorMessage:    "{ConversionError}",
		}, conditionFactory(owner))
		if err != nil {
			return nil, fmt.Errorf("value host %s: %w", cfg.Name, err)
		}
		validators = append(validators, v)
	}
	return newInputValueHost(owner, cfg, state, enabler, validators), nil
}

func hasDataTypeCheck(validators []*Validator) bool {
	for _, v := range validators {
		if v.Category() == conditions.CategoryDataTypeCheck {
			return true
		}
	}
	return false
}

func (InputGenerator) CreateState(cfg *config.ValueHostConfig) *InstanceState {
	return initialState(cfg, true, true)
}

func (InputGenerator) CleanupState(state *InstanceState, cfg *config.ValueHostConfig) {
	state.Name = cfg.Name
	cleanupIssues(state, cfg, DataTypeCheckErrorCode)
}

// PropertyGenerator creates Property value hosts.
type PropertyGenerator struct{}

func (PropertyGenerator) CanCreate(cfg *config.ValueHostConfig) bool {
	return cfg.ValueHostType == config.ValueHostTypeProperty
}

func (PropertyGenerator) Create(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState) (ValueHost, error) {
	enabler, err := createEnabler(owner, cfg)
	if err != nil {
		return nil, err
	}
	validators, err := createValidators(owner, cfg)
	if err != nil {
		return nil, err
	}
	return newPropertyValueHost(owner, cfg, state, enabler, validators), nil
}

func (PropertyGenerator) CreateState(cfg *config.ValueHostConfig) *InstanceState {
	return initialState(cfg, true, true)
}

func (PropertyGenerator) CleanupState(state *InstanceState, cfg *config.ValueHostConfig) {
	state.Name = cfg.Name
	cleanupIssues(state, cfg)
}
