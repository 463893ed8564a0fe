package valuehost

import (
	"fmt"
	"strings"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
)

// Validator pairs a condition with the issue reported when it does not match.
type Validator struct {
	cfg       *config.ValidatorConfig
	errorCode string
	condition conditions.Condition
	enabler   conditions.Condition
}

func newValidator(cfg *config.ValidatorConfig, factory conditions.Creator) (*Validator, error) {
	if cfg == nil {
		return nil, errs.NewCodingError("validator config must not be nil")
	}
	condition, err := createCondition(cfg.ConditionConfig, cfg.ConditionCreator, "condition", factory)
	if err != nil {
		return nil, err
	}
	if condition == nil {
		return nil, errs.NewCodingError("validator %s needs a conditionConfig or conditionCreator", config.ResolveErrorCode(cfg))
	}
	enabler, err := createCondition(cfg.EnablerConfig, cfg.EnablerCreator, "enabler", factory)
	if err != nil {
		return nil, err
	}
	errorCode := config.ResolveErrorCode(cfg)
	if errorCode == config.UnknownErrorCode {
		errorCode = condition.ConditionType()
	}
	return &Validator{cfg: cfg, errorCode: errorCode, condition: condition, enabler: enabler}, nil
}

// createCondition builds a condition from either a config or a creator.
// Neither yields nil.
func createCondition(cfg *conditions.Config, creator config.ConditionCreator, role string, factory conditions.Creator) (conditions.Condition, error) {
	switch {
	case cfg != nil && creator != nil:
		return nil, errs.NewCodingError("both %sConfig and %sCreator are set", role, role)
	case creator != nil:
		cond, err := creator()
		if err != nil {
			return nil, fmt.Errorf("%s creator: %w", role, err)
		}
		if cond == nil {
			return nil, errs.NewCodingError("%s creator returned nil", role)
		}
		return cond, nil
	case cfg != nil:
		if factory == nil {
			return nil, errs.NewCodingError("no condition factory registered for %s %s", role, cfg.ConditionType)
		}
		return factory.Create(cfg)
	default:
		return nil, nil
	}
}

func (v *Validator) Config() *config.ValidatorConfig { return v.cfg }

func (v *Validator) ErrorCode() string { return v.errorCode }

func (v *Validator) Condition() conditions.Condition { return v.condition }

func (v *Validator) Severity() config.Severity { return v.cfg.Severity.OrDefault() }

func (v *Validator) Category() conditions.Category {
	if v.cfg.ConditionConfig != nil && v.cfg.ConditionConfig.Category != "" {
		return v.cfg.ConditionConfig.Category
	}
	return v.condition.Category()
}

// IsEnabled reports whether the validator takes part in validation.
func (v *Validator) IsEnabled(subject conditions.Subject, resolver conditions.Resolver) bool {
	if v.cfg.Enabled != nil && !*v.cfg.Enabled {
		return false
	}
	if v.enabler == nil {
		return true
	}
	return v.enabler.Evaluate(subject, resolver) != conditions.NoMatch
}

// Evaluate runs the condition against host.
func (v *Validator) Evaluate(host ValueHost, resolver conditions.Resolver) conditions.Result {
	return v.condition.Evaluate(host, resolver)
}

// messages resolves the error and summary message with their tokens applied.
func (v *Validator) messages(host *ValidatorsValueHostBase) (string, string) {
	svc := host.services()
	culture := host.cultureID()
	localizer := svc.TextLocalizer()

	errorMessage := localizer.Localize(culture, v.cfg.ErrorMessagel10n, v.cfg.ErrorMessage)
	if errorMessage == "" {
		errorMessage = v.errorCode
	}
	summary := localizer.Localize(culture, v.cfg.SummaryMessagel10n, v.cfg.SummaryMessage)
	if summary == "" {
		summary = errorMessage
	}

	value := host.self.GetValue()
	formatted := ""
	if value != nil {
		text, err := svc.DataTypeFormatter().Format(value, host.GetDataType(), culture)
		if err != nil {
			text = fmt.Sprint(value)
		}
		formatted = text
	}
	replacer := strings.NewReplacer(
		"{Label}", host.GetLabel(),
		"{Value}", formatted,
		"{ConversionError}", host.GetConversionErrorMessage(),
	)
	return replacer.Replace(errorMessage), replacer.Replace(summary)
}
