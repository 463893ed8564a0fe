package conditions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/go-viper/mapstructure/v2"

	"github.com/timzifer/valuehosts/datatypes"
)

type baseCondition struct {
	conditionType string
	category      Category
}

func (b baseCondition) ConditionType() string { return b.conditionType }
func (b baseCondition) Category() Category    { return b.category }

// decodeSettings decodes the free-form settings of cfg into target.
func decodeSettings(cfg *Config, target interface{}) error {
	if len(cfg.Settings) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(cfg.Settings); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}

// RequireText matches when the subject carries non-blank input.
type RequireText struct {
	baseCondition
	cfg *Config
}

func newRequireText(cfg *Config, _ *Factory) (Condition, error) {
	return &RequireText{baseCondition: baseCondition{TypeRequireText, categoryOr(cfg, CategoryRequire)}, cfg: cfg}, nil
}

func (c *RequireText) Evaluate(subject Subject, resolver Resolver) Result {
	var value interface{}
	if input, ok := subject.(InputSubject); ok && c.cfg.ValueHostName == "" {
		value = input.GetInputValue()
		if value == nil {
			value = input.GetValue()
		}
	} else {
		v, ok := valueOf(c.cfg, subject, resolver)
		if !ok {
			return Undetermined
		}
		value = v
	}
	switch v := value.(type) {
	case nil:
		return NoMatch
	case string:
		if strings.TrimSpace(v) == "" {
			return NoMatch
		}
	}
	return Match
}

// DataTypeCheck fails when the last input could not be converted.
type DataTypeCheck struct {
	baseCondition
}

func newDataTypeCheck(cfg *Config, _ *Factory) (Condition, error) {
	return &DataTypeCheck{baseCondition{TypeDataTypeCheck, categoryOr(cfg, CategoryDataTypeCheck)}}, nil
}

func (c *DataTypeCheck) Evaluate(subject Subject, _ Resolver) Result {
	if source, ok := subject.(ConversionErrorSource); ok && source.GetConversionErrorMessage() != "" {
		return NoMatch
	}
	if subject == nil || subject.GetValue() == nil {
		return Undetermined
	}
	return Match
}

type rangeSettings struct {
	Minimum   interface{} `json:"minimum"`
	Maximum   interface{} `json:"maximum"`
	LookupKey string      `json:"lookupKey"`
}

// Range matches values within the inclusive bounds given by the settings
// minimum and maximum. Either bound may be omitted.
type Range struct {
	baseCondition
	cfg      *Config
	settings rangeSettings
	comparer datatypes.Comparer
}

func newRange(cfg *Config, factory *Factory) (Condition, error) {
	var settings rangeSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return nil, err
	}
	if settings.Minimum == nil && settings.Maximum == nil {
		return nil, fmt.Errorf("range requires minimum or maximum")
	}
	comparer, err := factory.Comparer()
	if err != nil {
		return nil, err
	}
	return &Range{
		baseCondition: baseCondition{TypeRange, categoryOr(cfg, CategoryComparison)},
		cfg:           cfg,
		settings:      settings,
		comparer:      comparer,
	}, nil
}

func (c *Range) Evaluate(subject Subject, resolver Resolver) Result {
	value, ok := valueOf(c.cfg, subject, resolver)
	if !ok || value == nil {
		return Undetermined
	}
	key := c.settings.LookupKey
	if key == "" && subject != nil && c.cfg.ValueHostName == "" {
		key = subject.GetDataType()
	}
	if c.settings.Minimum != nil {
		cmp, err := c.comparer.Compare(value, c.settings.Minimum, key)
		if err != nil || cmp == datatypes.Undetermined || cmp == datatypes.NotEqual {
			return Undetermined
		}
		if cmp == datatypes.LessThan {
			return NoMatch
		}
	}
	if c.settings.Maximum != nil {
		cmp, err := c.comparer.Compare(value, c.settings.Maximum, key)
		if err != nil || cmp == datatypes.Undetermined || cmp == datatypes.NotEqual {
			return Undetermined
		}
		if cmp == datatypes.GreaterThan {
			return NoMatch
		}
	}
	return Match
}

type regExpSettings struct {
	Pattern    string `json:"pattern"`
	IgnoreCase bool   `json:"ignoreCase"`
	Not        bool   `json:"not"`
}

// RegExp matches text against a regular expression. The pattern comes from
// the settings, or from Expression when no pattern setting is given.
type RegExp struct {
	baseCondition
	cfg *Config
	re  *regexp.Regexp
	not bool
}

func newRegExp(cfg *Config, _ *Factory) (Condition, error) {
	var settings regExpSettings
	if err := decodeSettings(cfg, &settings); err != nil {
		return nil, err
	}
	pattern := settings.Pattern
	if pattern == "" {
		pattern = cfg.Expression
	}
	if pattern == "" {
		return nil, fmt.Errorf("regexp requires a pattern")
	}
	if settings.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	return &RegExp{baseCondition: baseCondition{TypeRegExp, categoryOr(cfg, CategoryContents)}, cfg: cfg, re: re, not: settings.Not}, nil
}

func (c *RegExp) Evaluate(subject Subject, resolver Resolver) Result {
	var value interface{}
	if input, ok := subject.(InputSubject); ok && c.cfg.ValueHostName == "" && input.GetInputValue() != nil {
		value = input.GetInputValue()
	} else {
		v, ok := valueOf(c.cfg, subject, resolver)
		if !ok {
			return Undetermined
		}
		value = v
	}
	text, ok := value.(string)
	if !ok || text == "" {
		return Undetermined
	}
	if c.re.MatchString(text) != c.not {
		return Match
	}
	return NoMatch
}

// Expression evaluates a boolean expr-lang expression. The environment exposes
// value, name, dataType and values(name) for other value hosts.
type Expression struct {
	baseCondition
	cfg     *Config
	program *vm.Program
}

// expressionEnv declares the typed names of the run environment. Declaring
// values replaces the expr builtin of the same name.
var expressionEnv = map[string]interface{}{
	"values":   func(string) interface{} { return nil },
	"name":     "",
	"dataType": "",
}

func newExpression(cfg *Config, _ *Factory) (Condition, error) {
	if strings.TrimSpace(cfg.Expression) == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	program, err := expr.Compile(cfg.Expression, expr.Env(expressionEnv), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return &Expression{baseCondition: baseCondition{TypeExpression, categoryOr(cfg, CategoryUndetermined)}, cfg: cfg, program: program}, nil
}

func (c *Expression) Evaluate(subject Subject, resolver Resolver) Result {
	value, _ := valueOf(c.cfg, subject, resolver)
	env := map[string]interface{}{
		"value": value,
		"values": func(name string) interface{} {
			if resolver == nil {
				return nil
			}
			v, _ := resolver.ValueOf(name)
			return v
		},
		"name":     "",
		"dataType": "",
	}
	if subject != nil {
		env["name"] = subject.GetName()
		env["dataType"] = subject.GetDataType()
	}
	out, err := vm.Run(c.program, env)
	if err != nil {
		return Undetermined
	}
	matched, ok := out.(bool)
	if !ok {
		return Undetermined
	}
	if matched {
		return Match
	}
	return NoMatch
}

// Composite combines child conditions. All matches when every child matches,
// Any matches when at least one child matches.
type Composite struct {
	baseCondition
	children []Condition
}

func newComposite(conditionType string) CreateFunc {
	return func(cfg *Config, factory *Factory) (Condition, error) {
		children := make([]Condition, 0, len(cfg.ConditionConfigs))
		for idx, childCfg := range cfg.ConditionConfigs {
			child, err := factory.Create(childCfg)
			if err != nil {
				return nil, fmt.Errorf("child %d: %w", idx, err)
			}
			children = append(children, child)
		}
		return &Composite{baseCondition: baseCondition{conditionType, categoryOr(cfg, CategoryUndetermined)}, children: children}, nil
	}
}

// Children returns the child conditions in evaluation order.
func (c *Composite) Children() []Condition {
	return append([]Condition(nil), c.children...)
}

func (c *Composite) Evaluate(subject Subject, resolver Resolver) Result {
	if len(c.children) == 0 {
		return Undetermined
	}
	if c.conditionType == TypeAny {
		undetermined := false
		for _, child := range c.children {
			switch child.Evaluate(subject, resolver) {
			case Match:
				return Match
			case Undetermined:
				undetermined = true
			}
		}
		if undetermined {
			return Undetermined
		}
		return NoMatch
	}
	undetermined := false
	for _, child := range c.children {
		switch child.Evaluate(subject, resolver) {
		case NoMatch:
			return NoMatch
		case Undetermined:
			undetermined = true
		}
	}
	if undetermined {
		return Undetermined
	}
	return Match
}
