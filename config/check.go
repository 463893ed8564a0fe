package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Issue is a validity problem of a configuration.
type Issue struct {
	ValueHostName string
	ErrorCode     string
	Message       string
}

func (i Issue) Error() string {
	if i.ErrorCode != "" {
		return fmt.Sprintf("value host %q, validator %q: %s", i.ValueHostName, i.ErrorCode, i.Message)
	}
	return fmt.Sprintf("value host %q: %s", i.ValueHostName, i.Message)
}

// Check validates every value host of doc and aggregates the problems.
func Check(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("document must not be nil")
	}
	var result *multierror.Error
	seen := make(map[string]struct{}, len(doc.ValueHosts))
	for idx, vh := range doc.ValueHosts {
		if vh == nil {
			result = multierror.Append(result, fmt.Errorf("valueHosts[%d] must not be null", idx))
			continue
		}
		if vh.Name != "" {
			if _, dup := seen[vh.Name]; dup {
				result = multierror.Append(result, Issue{ValueHostName: vh.Name, Message: "duplicate value host name"})
			}
			seen[vh.Name] = struct{}{}
		}
		for _, issue := range CheckValueHost(vh) {
			result = multierror.Append(result, issue)
		}
	}
	return result.ErrorOrNil()
}

// CheckValueHost returns the validity problems of a single value host config.
// Duplicate error codes are compared case-insensitively after trimming
// whitespace; the second occurrence carries the issue.
func CheckValueHost(vh *ValueHostConfig) []Issue {
	if vh == nil {
		return nil
	}
	var issues []Issue
	add := func(code, format string, args ...interface{}) {
		issues = append(issues, Issue{ValueHostName: vh.Name, ErrorCode: code, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(vh.Name) == "" {
		add("", "name must not be empty")
	}
	if vh.EnablerConfig != nil && vh.EnablerCreator != nil {
		add("", "enablerConfig and enablerCreator are mutually exclusive")
	}
	switch vh.ValueHostType {
	case "", ValueHostTypeStatic, ValueHostTypeCalc, ValueHostTypeInput, ValueHostTypeProperty:
	default:
		add("", "unknown valueHostType %q", vh.ValueHostType)
	}
	if vh.ValueHostType == ValueHostTypeCalc && vh.CalcFn == nil && strings.TrimSpace(vh.CalcExpression) == "" {
		add("", "calc value host requires calcFn or calcExpression")
	}
	if (vh.ValueHostType == ValueHostTypeStatic || vh.ValueHostType == ValueHostTypeCalc) && len(vh.ValidatorConfigs) > 0 {
		add("", "%s value hosts do not support validators", vh.ValueHostType)
	}

	seen := make(map[string]struct{}, len(vh.ValidatorConfigs))
	for _, vc := range vh.ValidatorConfigs {
		if vc == nil {
			add("", "validator config must not be null")
			continue
		}
		code := ResolveErrorCode(vc)
		if vc.ConditionConfig != nil && vc.ConditionCreator != nil {
			add(code, "conditionConfig and conditionCreator are mutually exclusive")
		}
		if vc.EnablerConfig != nil && vc.EnablerCreator != nil {
			add(code, "enablerConfig and enablerCreator are mutually exclusive")
		}
		if vc.ConditionConfig == nil && vc.ConditionCreator == nil {
			add(code, "conditionConfig or conditionCreator is required")
		}
		switch vc.Severity {
		case "", SeverityError, SeveritySevere, SeverityWarning:
		default:
			add(code, "unknown severity %q", vc.Severity)
		}
		if code == MissingErrorCode || code == UnknownErrorCode {
			continue
		}
		normalized := NormalizeErrorCode(code)
		if _, dup := seen[normalized]; dup {
			add(code, "duplicate error code")
			continue
		}
		seen[normalized] = struct{}{}
	}
	return issues
}
