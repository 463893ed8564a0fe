package config

import (
	"strings"

	"golang.org/x/text/cases"
)

const (
	// MissingErrorCode is resolved for validators without any identity.
	MissingErrorCode = "[Missing]"
	// UnknownErrorCode is resolved for validators whose condition is only known
	// once its creator runs.
	UnknownErrorCode = "[Unknown at this time]"
)

// ResolveErrorCode returns the effective error code of vc: the explicit
// ErrorCode, else the condition type, else one of the sentinels.
func ResolveErrorCode(vc *ValidatorConfig) string {
	if vc == nil {
		return MissingErrorCode
	}
	if code := strings.TrimSpace(vc.ErrorCode); code != "" {
		return code
	}
	if vc.ConditionConfig != nil {
		if conditionType := strings.TrimSpace(vc.ConditionConfig.ConditionType); conditionType != "" {
			return conditionType
		}
	}
	if vc.ConditionCreator != nil {
		return UnknownErrorCode
	}
	return MissingErrorCode
}

// NormalizeErrorCode returns the identity used to compare error codes.
func NormalizeErrorCode(code string) string {
	return cases.Fold().String(strings.TrimSpace(code))
}

// SameErrorCode reports whether two error codes identify the same validator.
func SameErrorCode(a, b string) bool {
	return NormalizeErrorCode(a) == NormalizeErrorCode(b)
}
