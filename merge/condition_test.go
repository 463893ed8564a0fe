package merge

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/services"
)

func validatorHost(cond *conditions.Config) *config.ValueHostConfig {
	return &config.ValueHostConfig{Name: "field", ValidatorConfigs: []*config.ValidatorConfig{{ErrorCode: "EC", ConditionConfig: cond}}}
}

func TestConditionMismatchKeepsDestinationAndWarns(t *testing.T) {
	var buf bytes.Buffer
	svc := NewValidatorConfigMergeService(newTestServices(&buf))

	destination := validatorHost(&conditions.Config{ConditionType: "RequireText"})
	require.NoError(t, svc.Merge(validatorHost(&conditions.Config{ConditionType: "RegExp", Expression: "^a"}), destination))

	require.Equal(t, "RequireText", destination.ValidatorConfigs[0].ConditionConfig.ConditionType)
	require.Contains(t, buf.String(), "ConditionType mismatch")
	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestConditionCombinesIntoAll(t *testing.T) {
	svc := NewValidatorConfigMergeService(services.New())
	var seen Identity
	require.NoError(t, svc.SetConditionConflictRule("conditionConfig", func(_, _ *conditions.Config, identity Identity) (ConditionAction, error) {
		seen = identity
		return ConditionAll, nil
	}))

	first := &conditions.Config{ConditionType: "RegExp", Expression: "^a"}
	second := &conditions.Config{ConditionType: "RegExp", Expression: "b$"}
	destination := validatorHost(&conditions.Config{ConditionType: "RequireText"})

	require.NoError(t, svc.Merge(validatorHost(first), destination))
	combined := destination.ValidatorConfigs[0].ConditionConfig
	require.Equal(t, conditions.TypeAll, combined.ConditionType)
	require.Equal(t, []*conditions.Config{{ConditionType: "RequireText"}, first}, combined.ConditionConfigs)
	require.Equal(t, Identity{ValueHostName: "field", ErrorCode: "EC", ContainingProperty: "conditionConfig"}, seen)

	// the composite is kept, new conditions become additional children
	require.NoError(t, svc.Merge(validatorHost(second), destination))
	combined = destination.ValidatorConfigs[0].ConditionConfig
	require.Equal(t, conditions.TypeAll, combined.ConditionType)
	require.Len(t, combined.ConditionConfigs, 3)
	require.Equal(t, second, combined.ConditionConfigs[2])

	// merging a known child again changes nothing
	require.NoError(t, svc.Merge(validatorHost(first), destination))
	require.Len(t, destination.ValidatorConfigs[0].ConditionConfig.ConditionConfigs, 3)

	_, err := conditions.NewFactory().Create(destination.ValidatorConfigs[0].ConditionConfig)
	require.NoError(t, err)
}

func TestConditionCombinesIntoAny(t *testing.T) {
	svc := NewValueHostConfigMergeService(services.New(), nil)
	require.NoError(t, svc.SetConditionConflictRule("enablerConfig", func(_, _ *conditions.Config, _ Identity) (ConditionAction, error) {
		return ConditionAny, nil
	}))

	destination := &config.ValueHostConfig{Name: "a", EnablerConfig: &conditions.Config{ConditionType: "RequireText", ValueHostName: "x"}}
	source := &config.ValueHostConfig{Name: "a", EnablerConfig: &conditions.Config{ConditionType: "RequireText", ValueHostName: "y"}}
	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, conditions.TypeAny, destination.EnablerConfig.ConditionType)
	require.Len(t, destination.EnablerConfig.ConditionConfigs, 2)
	require.NotSame(t, source.EnablerConfig, destination.EnablerConfig.ConditionConfigs[1])
}

func TestConditionDelete(t *testing.T) {
	svc := NewValidatorConfigMergeService(services.New())
	require.NoError(t, svc.SetConditionConflictRule("enablerConfig", func(_, _ *conditions.Config, _ Identity) (ConditionAction, error) {
		return ConditionDelete, nil
	}))

	destination := &config.ValueHostConfig{Name: "a", ValidatorConfigs: []*config.ValidatorConfig{{
		ErrorCode:     "EC",
		EnablerConfig: &conditions.Config{ConditionType: "RequireText"},
	}}}
	source := &config.ValueHostConfig{Name: "a", ValidatorConfigs: []*config.ValidatorConfig{{
		ErrorCode:     "EC",
		EnablerConfig: &conditions.Config{ConditionType: "Expression", Expression: "true"},
	}}}
	require.NoError(t, svc.Merge(source, destination))
	require.Nil(t, destination.ValidatorConfigs[0].EnablerConfig)
}

func TestConditionSourceFillsMissingDestination(t *testing.T) {
	svc := NewValidatorConfigMergeService(services.New())
	source := validatorHost(&conditions.Config{ConditionType: "RequireText"})
	destination := &config.ValueHostConfig{Name: "field", ValidatorConfigs: []*config.ValidatorConfig{{ErrorCode: "ec"}}}

	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, source.ValidatorConfigs[0].ConditionConfig, destination.ValidatorConfigs[0].ConditionConfig)
	require.NotSame(t, source.ValidatorConfigs[0].ConditionConfig, destination.ValidatorConfigs[0].ConditionConfig)
}

func TestConditionConflictRuleIsPermanent(t *testing.T) {
	svc := NewValidatorConfigMergeService(services.New())
	handler := func(_, _ *conditions.Config, _ Identity) (ConditionAction, error) { return ConditionAll, nil }
	require.NoError(t, svc.SetConditionConflictRule("conditionConfig", handler))
	require.True(t, errs.IsCodingError(svc.SetConditionConflictRule("conditionConfig", handler)))
	require.True(t, errs.IsCodingError(svc.SetConditionConflictRule("enablerConfig", nil)))
}

func TestUnknownConditionActionIsCodingError(t *testing.T) {
	svc := NewValidatorConfigMergeService(services.New())
	require.NoError(t, svc.SetConditionConflictRule("conditionConfig", func(_, _ *conditions.Config, _ Identity) (ConditionAction, error) {
		return "merge", nil
	}))
	err := svc.Merge(
		validatorHost(&conditions.Config{ConditionType: "RegExp", Expression: "a"}),
		validatorHost(&conditions.Config{ConditionType: "RequireText"}),
	)
	require.True(t, errs.IsCodingError(err))
}

func TestHandleConditionConfigPropertyRejectsOtherProperties(t *testing.T) {
	svc := NewValidatorConfigMergeService(services.New())
	_, err := svc.HandleConditionConfigProperty(&config.ValidatorConfig{}, &config.ValidatorConfig{}, "errorMessage", Identity{})
	require.True(t, errs.IsCodingError(err))
}
