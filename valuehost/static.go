package valuehost

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
)

// StaticValueHost holds a value assigned by code. It has no validators.
type StaticValueHost struct {
	ValueHostBase
}

func newStaticValueHost(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState, enabler conditions.Condition) *StaticValueHost {
	h := &StaticValueHost{}
	h.init(h, owner, cfg, state, enabler)
	return h
}

func (h *StaticValueHost) GetValueHostType() config.ValueHostType {
	return config.ValueHostTypeStatic
}

// CalcValueHost computes its value from other value hosts on every GetValue.
type CalcValueHost struct {
	ValueHostBase
	calc      config.CalcFunc
	computing bool
}

func newCalcValueHost(owner *Owner, cfg *config.ValueHostConfig, state *InstanceState, enabler conditions.Condition) (*CalcValueHost, error) {
	calc := cfg.CalcFn
	if calc == nil {
		program, err := compileCalcExpression(cfg.CalcExpression)
		if err != nil {
			return nil, fmt.Errorf("value host %s: %w", cfg.Name, err)
		}
		calc = expressionCalc(program)
	}
	h := &CalcValueHost{calc: calc}
	h.init(h, owner, cfg, state, enabler)
	return h, nil
}

func (h *CalcValueHost) GetValueHostType() config.ValueHostType {
	return config.ValueHostTypeCalc
}

// Calculate runs the calculation. Reaching the same value host again while
// its calculation is running panics with a coding error.
func (h *CalcValueHost) Calculate() (interface{}, error) {
	m := h.manager()
	if h.computing {
		panic(errs.NewCodingError("recursive call to GetValue of calc value host %s", h.name))
	}
	h.computing = true
	defer func() { h.computing = false }()
	return h.calc(h, m)
}

// GetValue returns the calculated value. Calculation errors are logged and
// yield nil.
func (h *CalcValueHost) GetValue() interface{} {
	value, err := h.Calculate()
	if err != nil {
		logger := h.logger()
		logger.Warn().Err(err).Msg("calculation failed")
		return nil
	}
	return value
}

// SetValue is not supported; the value is always calculated.
func (h *CalcValueHost) SetValue(interface{}, *SetValueOptions) {
	logger := h.logger()
	logger.Warn().Msg("Calc value hosts do not accept values")
}

func (h *CalcValueHost) SetValueToUndefined(opts *SetValueOptions) {
	h.SetValue(nil, opts)
}

// calcEnv declares the names expressionCalc provides. values shadows the expr
// builtin of the same name.
var calcEnv = map[string]interface{}{
	"name":   "",
	"values": func(string) interface{} { return nil },
}

func compileCalcExpression(source string) (*vm.Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errs.NewCodingError("calc value host needs calcFn or calcExpression")
	}
	program, err := expr.Compile(source, expr.Env(calcEnv), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile calc expression: %w", err)
	}
	return program, nil
}

// expressionCalc exposes values(name) and name to the expression.
func expressionCalc(program *vm.Program) config.CalcFunc {
	return func(host config.CalcSubject, values conditions.Resolver) (interface{}, error) {
		env := map[string]interface{}{
			"name": host.GetName(),
			"values": func(name string) interface{} {
				v, _ := values.ValueOf(name)
				return v
			},
		}
		return expr.Run(program, env)
	}
}
