package merge

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/services"
)

func newTestServices(buf *bytes.Buffer) *services.Services {
	return services.New(services.WithLogger(zerolog.New(buf)))
}

type recordingCollector struct {
	decisions []string
}

func (r *recordingCollector) IncStateChanged(string)                           {}
func (r *recordingCollector) IncValueChanged(string)                           {}
func (r *recordingCollector) ObserveValidation(string, string, time.Duration) {}
func (r *recordingCollector) IncReload(string)                                 {}
func (r *recordingCollector) IncMergeDecision(property, decision string) {
	r.decisions = append(r.decisions, property+":"+decision)
}

func TestMergeIntoEmptyDestinationCopiesSource(t *testing.T) {
	var buf bytes.Buffer
	svc := NewConfigMergeServiceBase[*config.ValidatorConfig](newTestServices(&buf))

	source := &config.ValidatorConfig{ErrorCode: "A", ConditionConfig: &conditions.Config{ConditionType: "Req"}}
	destination := &config.ValidatorConfig{}

	require.NoError(t, svc.MergeConfigs(source, destination, Identity{ValueHostName: "field"}))
	require.Equal(t, source, destination)
	require.Equal(t, "A", config.ResolveErrorCode(destination))
	require.NotSame(t, source.ConditionConfig, destination.ConditionConfig)
	require.Contains(t, buf.String(), "errorCode replaced")
	require.Contains(t, buf.String(), `"category":"Configuration"`)
}

func TestValidatorMergeKeepsConditionAndTakesSummary(t *testing.T) {
	var buf bytes.Buffer
	svc := NewValidatorConfigMergeService(newTestServices(&buf))

	source := &config.ValueHostConfig{Name: "field", ValidatorConfigs: []*config.ValidatorConfig{{
		ConditionConfig: &conditions.Config{ConditionType: "RequireText", ValueHostName: "other"},
		SummaryMessage:  "Field is required",
	}}}
	destination := &config.ValueHostConfig{Name: "field", ValidatorConfigs: []*config.ValidatorConfig{{
		ConditionConfig: &conditions.Config{ConditionType: "RequireText"},
		ErrorMessage:    "Required",
	}}}

	require.NoError(t, svc.Merge(source, destination))
	require.Len(t, destination.ValidatorConfigs, 1)
	merged := destination.ValidatorConfigs[0]
	require.Equal(t, &conditions.Config{ConditionType: "RequireText"}, merged.ConditionConfig)
	require.Equal(t, "Field is required", merged.SummaryMessage)
	require.Equal(t, "Required", merged.ErrorMessage)
	require.Contains(t, buf.String(), "summaryMessage replaced")
	require.Contains(t, buf.String(), `"errorCode":"RequireText"`)
}

func TestValueHostTypeUpgradeIsAllowed(t *testing.T) {
	var buf bytes.Buffer
	svc := NewValueHostConfigMergeService(newTestServices(&buf), nil)

	source := &config.ValueHostConfig{Name: "age", ValueHostType: config.ValueHostTypeInput}
	destination := &config.ValueHostConfig{Name: "age", ValueHostType: config.ValueHostTypeProperty}

	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, config.ValueHostTypeInput, destination.ValueHostType)
	require.Contains(t, buf.String(), "valueHostType replaced")
}

func TestValueHostTypeDowngradeIsRefused(t *testing.T) {
	var buf bytes.Buffer
	svc := NewValueHostConfigMergeService(newTestServices(&buf), nil)

	source := &config.ValueHostConfig{Name: "age", ValueHostType: config.ValueHostTypeInput}
	destination := &config.ValueHostConfig{Name: "age", ValueHostType: config.ValueHostTypeStatic}

	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, config.ValueHostTypeStatic, destination.ValueHostType)
	require.Contains(t, buf.String(), "Will not change ValueHostType from Static to Input.")
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.NotContains(t, buf.String(), "valueHostType replaced")

	buf.Reset()
	source = &config.ValueHostConfig{Name: "age", ValueHostType: config.ValueHostTypeStatic}
	destination = &config.ValueHostConfig{Name: "age", ValueHostType: config.ValueHostTypeInput}
	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, config.ValueHostTypeInput, destination.ValueHostType)
	require.Contains(t, buf.String(), "Will not change ValueHostType from Input to Static.")

	source = &config.ValueHostConfig{Name: "age"}
	destination = &config.ValueHostConfig{Name: "age", ValueHostType: config.ValueHostTypeProperty}
	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, config.ValueHostTypeProperty, destination.ValueHostType)

	destination = &config.ValueHostConfig{Name: "age"}
	require.NoError(t, svc.Merge(&config.ValueHostConfig{Name: "age", ValueHostType: config.ValueHostTypeCalc}, destination))
	require.Equal(t, config.ValueHostTypeCalc, destination.ValueHostType)
}

func sampleValueHosts() (*config.ValueHostConfig, *config.ValueHostConfig) {
	source := &config.ValueHostConfig{
		Name:           "age",
		ValueHostType:  config.ValueHostTypeInput,
		Label:          "Your age",
		InitialValue:   map[string]interface{}{"nested": []interface{}{1, 2}},
		InitialEnabled: config.Bool(true),
		EnablerConfig:  &conditions.Config{ConditionType: "RequireText", ValueHostName: "consent"},
		ValidatorConfigs: []*config.ValidatorConfig{
			{ErrorCode: "Range", ConditionConfig: &conditions.Config{ConditionType: "Range", Settings: map[string]interface{}{"minimum": 18}}, ErrorMessage: "Too young"},
			{ConditionConfig: &conditions.Config{ConditionType: "RequireText"}, Severity: config.SeveritySevere},
		},
	}
	destination := &config.ValueHostConfig{
		Name:          "age",
		ValueHostType: config.ValueHostTypeProperty,
		DataType:      "Integer",
		Label:         "Age",
		ValidatorConfigs: []*config.ValidatorConfig{
			{ErrorCode: " range ", ConditionConfig: &conditions.Config{ConditionType: "Range", Settings: map[string]interface{}{"minimum": 21}}},
		},
	}
	return source, destination
}

func TestMergeNeverMutatesSource(t *testing.T) {
	svc := NewValueHostConfigMergeService(services.New(), nil)
	source, destination := sampleValueHosts()
	snapshot := source.Clone()

	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, snapshot, source)

	// assigned values are copies
	destination.InitialValue.(map[string]interface{})["nested"] = nil
	destination.EnablerConfig.ValueHostName = "changed"
	destination.ValidatorConfigs[1].ConditionConfig.ConditionType = "changed"
	require.Equal(t, snapshot, source)
}

func TestMergeResult(t *testing.T) {
	svc := NewValueHostConfigMergeService(services.New(), nil)
	source, destination := sampleValueHosts()

	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, config.ValueHostTypeInput, destination.ValueHostType)
	require.Equal(t, "Integer", destination.DataType)
	require.Equal(t, "Your age", destination.Label)
	require.Equal(t, source.EnablerConfig, destination.EnablerConfig)
	require.Len(t, destination.ValidatorConfigs, 2)

	rangeValidator := destination.ValidatorConfigs[0]
	require.Equal(t, " range ", rangeValidator.ErrorCode)
	require.Equal(t, 21, rangeValidator.ConditionConfig.Settings["minimum"])
	require.Equal(t, "Too young", rangeValidator.ErrorMessage)
	require.Equal(t, config.SeveritySevere, destination.ValidatorConfigs[1].Severity)
}

func TestReplaceIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	svc := NewValueHostConfigMergeService(newTestServices(&buf), nil)
	source, destination := sampleValueHosts()

	require.NoError(t, svc.Merge(source, destination))
	require.Contains(t, buf.String(), "replaced")

	merged := destination.Clone()
	buf.Reset()
	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, merged, destination)
	require.NotContains(t, buf.String(), "replaced")
	require.NotContains(t, buf.String(), "appended")
}

func TestRulePermanence(t *testing.T) {
	svc := NewConfigMergeServiceBase[*config.ValueHostConfig](services.New())
	handler := func(_, _ *config.ValueHostConfig, _ string, _ Identity) (HandlerResult, error) {
		return UseAction(NoChange), nil
	}

	for _, keyword := range []RuleKeyword{Replace, NoChange, Delete, ReplaceOrDelete, ReplaceExceptNull, Replace} {
		require.NoError(t, svc.SetPropertyConflictKeyword("label", keyword))
	}
	rule, ok := svc.GetPropertyConflictRule("label")
	require.True(t, ok)
	require.Equal(t, Replace, rule.Keyword)

	err := svc.SetPropertyConflictHandler("label", handler)
	require.True(t, errs.IsCodingError(err))

	require.NoError(t, svc.SetPropertyConflictHandler("dataType", handler))
	require.True(t, errs.IsCodingError(svc.SetPropertyConflictHandler("dataType", handler)))
	require.True(t, errs.IsCodingError(svc.SetPropertyConflictKeyword("dataType", Replace)))

	require.NoError(t, svc.SetPropertyConflictKeyword("name", Locked))
	require.True(t, errs.IsCodingError(svc.SetPropertyConflictKeyword("name", Locked)))
	require.True(t, errs.IsCodingError(svc.SetPropertyConflictKeyword("name", Replace)))

	_, ok = svc.GetPropertyConflictRule("propertyName")
	require.False(t, ok)

	vhSvc := NewValueHostConfigMergeService(services.New(), nil)
	require.True(t, errs.IsCodingError(vhSvc.SetPropertyConflictKeyword("name", Replace)))
	require.True(t, errs.IsCodingError(vhSvc.SetPropertyConflictKeyword("valueHostType", Replace)))
	require.NoError(t, vhSvc.SetPropertyConflictKeyword("dataType", Replace))
}

func TestDeleteRemovesRegardlessOfSource(t *testing.T) {
	var buf bytes.Buffer
	svc := NewConfigMergeServiceBase[*config.ValueHostConfig](newTestServices(&buf))
	require.NoError(t, svc.SetPropertyConflictKeyword("label", Delete))

	destination := &config.ValueHostConfig{Name: "a", Label: "A"}
	require.NoError(t, svc.MergeConfigs(&config.ValueHostConfig{Name: "a"}, destination, Identity{}))
	require.Empty(t, destination.Label)
	require.Equal(t, 1, strings.Count(buf.String(), "label deleted"))

	destination = &config.ValueHostConfig{Name: "a", Label: "A"}
	require.NoError(t, svc.MergeConfigs(&config.ValueHostConfig{Name: "a", Label: "B"}, destination, Identity{}))
	require.Empty(t, destination.Label)
	require.Equal(t, 2, strings.Count(buf.String(), "label deleted"))
}

func TestDeleteOnAbsentPropertyDoesNotLog(t *testing.T) {
	var buf bytes.Buffer
	svc := NewConfigMergeServiceBase[*config.ValueHostConfig](newTestServices(&buf))
	rule := KeywordRule[*config.ValueHostConfig](Delete)

	destination := &config.ValueHostConfig{Name: "a"}
	require.NoError(t, svc.MergeProperty("label", rule, &config.ValueHostConfig{Name: "a", Label: "B"}, destination, Identity{}))
	require.Empty(t, destination.Label)
	require.NotContains(t, buf.String(), "deleted")
}

func TestReplaceOrDelete(t *testing.T) {
	svc := NewConfigMergeServiceBase[*config.ValueHostConfig](services.New())
	require.NoError(t, svc.SetPropertyConflictKeyword("initialEnabled", ReplaceOrDelete))

	destination := &config.ValueHostConfig{Name: "a", InitialEnabled: config.Bool(true)}
	require.NoError(t, svc.MergeConfigs(&config.ValueHostConfig{Name: "a"}, destination, Identity{}))
	require.Nil(t, destination.InitialEnabled)

	destination = &config.ValueHostConfig{Name: "a", InitialEnabled: config.Bool(true)}
	source := &config.ValueHostConfig{Name: "a", InitialEnabled: config.Bool(false)}
	require.NoError(t, svc.MergeConfigs(source, destination, Identity{}))
	require.NotNil(t, destination.InitialEnabled)
	require.False(t, *destination.InitialEnabled)
	require.NotSame(t, source.InitialEnabled, destination.InitialEnabled)
}

func TestReplaceExceptNullKeepsDestination(t *testing.T) {
	svc := NewValueHostConfigMergeService(services.New(), nil)
	destination := &config.ValueHostConfig{Name: "a", DataType: "Number"}
	require.NoError(t, svc.Merge(&config.ValueHostConfig{Name: "a"}, destination))
	require.Equal(t, "Number", destination.DataType)

	require.NoError(t, svc.Merge(&config.ValueHostConfig{Name: "a", DataType: "Integer"}, destination))
	require.Equal(t, "Integer", destination.DataType)
}

func TestReplaceAndReplaceExceptNullMergeAlike(t *testing.T) {
	sources := []*config.ValueHostConfig{
		{Name: "a"},
		{Name: "a", Label: "B", InitialEnabled: config.Bool(false)},
	}
	for _, source := range sources {
		var merged []*config.ValueHostConfig
		for _, keyword := range []RuleKeyword{Replace, ReplaceExceptNull} {
			svc := NewConfigMergeServiceBase[*config.ValueHostConfig](services.New())
			require.NoError(t, svc.SetPropertyConflictKeyword("label", keyword))
			require.NoError(t, svc.SetPropertyConflictKeyword("initialEnabled", keyword))
			destination := &config.ValueHostConfig{Name: "a", Label: "A", InitialEnabled: config.Bool(true)}
			require.NoError(t, svc.MergeConfigs(source.Clone(), destination, Identity{}))
			merged = append(merged, destination)
		}
		require.Equal(t, merged[0], merged[1])
	}
}

func TestReplaceKeepsDestinationOnlyProperties(t *testing.T) {
	svc := NewConfigMergeServiceBase[*config.ValueHostConfig](services.New())
	destination := &config.ValueHostConfig{Name: "a", Label: "A"}
	require.NoError(t, svc.MergeConfigs(&config.ValueHostConfig{Name: "a"}, destination, Identity{}))
	require.Equal(t, "A", destination.Label)
}

func TestUnknownRuleIsCodingError(t *testing.T) {
	svc := NewConfigMergeServiceBase[*config.ValueHostConfig](services.New())
	require.NoError(t, svc.SetPropertyConflictKeyword("label", "sometimes"))

	err := svc.MergeConfigs(&config.ValueHostConfig{Label: "x"}, &config.ValueHostConfig{}, Identity{})
	require.True(t, errs.IsCodingError(err))
	require.Contains(t, err.Error(), "Unknown rule")

	err = svc.MergeProperty("doesNotExist", KeywordRule[*config.ValueHostConfig](Replace), &config.ValueHostConfig{}, &config.ValueHostConfig{}, Identity{})
	require.True(t, errs.IsCodingError(err))

	err = svc.MergeConfigs(nil, &config.ValueHostConfig{}, Identity{})
	require.True(t, errs.IsCodingError(err))
}

func TestHandlerRuleUseValue(t *testing.T) {
	var buf bytes.Buffer
	svc := NewConfigMergeServiceBase[*config.ValueHostConfig](newTestServices(&buf))
	var seen Identity
	require.NoError(t, svc.SetPropertyConflictHandler("label", func(source, destination *config.ValueHostConfig, propertyName string, identity Identity) (HandlerResult, error) {
		seen = identity
		return UseValue(destination.Label + " / " + source.Label), nil
	}))
	require.NoError(t, svc.SetPropertyConflictHandler("valueHostType", func(_, _ *config.ValueHostConfig, _ string, _ Identity) (HandlerResult, error) {
		return UseValue("Input"), nil
	}))
	require.NoError(t, svc.SetPropertyConflictHandler("dataType", func(_, _ *config.ValueHostConfig, _ string, _ Identity) (HandlerResult, error) {
		return UseValue(42), nil
	}))

	destination := &config.ValueHostConfig{Name: "a", Label: "Business"}
	source := &config.ValueHostConfig{Name: "a", Label: "UI", ValueHostType: config.ValueHostTypeProperty}
	require.NoError(t, svc.MergeProperty("label", svc.rules["label"], source, destination, Identity{ValueHostName: "a"}))
	require.Equal(t, "Business / UI", destination.Label)
	require.Equal(t, "a", seen.ValueHostName)
	require.Contains(t, buf.String(), "label replaced")

	require.NoError(t, svc.MergeProperty("valueHostType", svc.rules["valueHostType"], source, destination, Identity{}))
	require.Equal(t, config.ValueHostTypeInput, destination.ValueHostType)

	err := svc.MergeProperty("dataType", svc.rules["dataType"], source, destination, Identity{})
	require.True(t, errs.IsCodingError(err))
}

func TestMergeDecisionsAreCounted(t *testing.T) {
	collector := &recordingCollector{}
	svc := NewValueHostConfigMergeService(services.New(services.WithService(services.TelemetryService, collector)), nil)
	require.NoError(t, svc.Merge(
		&config.ValueHostConfig{Name: "a", Label: "B"},
		&config.ValueHostConfig{Name: "a", Label: "A"},
	))
	require.Contains(t, collector.decisions, "label:replace")
	require.Contains(t, collector.decisions, "name:nochange")
}

func TestMergeIgnoresDifferentNames(t *testing.T) {
	svc := NewValueHostConfigMergeService(services.New(), nil)
	destination := &config.ValueHostConfig{Name: "a", Label: "A"}
	require.NoError(t, svc.Merge(&config.ValueHostConfig{Name: "b", Label: "B"}, destination))
	require.Equal(t, "A", destination.Label)

	require.True(t, errs.IsCodingError(svc.Merge(nil, destination)))
}

func TestIdentifyValueHostConflict(t *testing.T) {
	svc := NewValueHostConfigMergeService(services.New(), nil)
	destinations := []*config.ValueHostConfig{{Name: "first"}, nil, {Name: "Second"}}
	require.Same(t, destinations[2], svc.IdentifyValueHostConflict(&config.ValueHostConfig{Name: "Second"}, destinations))
	require.Nil(t, svc.IdentifyValueHostConflict(&config.ValueHostConfig{Name: "second"}, destinations))
	require.Nil(t, svc.IdentifyValueHostConflict(nil, destinations))
}

func TestMergeCollections(t *testing.T) {
	svc := NewValueHostConfigMergeService(services.New(), nil)
	destinations := []*config.ValueHostConfig{{Name: "a", Label: "A"}}
	sources := []*config.ValueHostConfig{{Name: "a", Label: "A2"}, {Name: "b", Label: "B"}}

	merged, err := svc.MergeCollections(sources, destinations)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	require.Equal(t, "A2", merged[0].Label)
	require.Equal(t, "B", merged[1].Label)
	require.NotSame(t, sources[1], merged[1])
}

func TestIdentifyValidatorConflict(t *testing.T) {
	svc := NewValidatorConfigMergeService(services.New())
	destinations := []*config.ValidatorConfig{
		{ErrorCode: "Other", ConditionConfig: &conditions.Config{ConditionType: "RequireText"}},
		{ConditionConfig: &conditions.Config{ConditionType: "Range"}},
	}
	require.Same(t, destinations[1], svc.IdentifyValidatorConflict(&config.ValidatorConfig{ErrorCode: " RANGE "}, destinations, Identity{}))
	require.Same(t, destinations[0], svc.IdentifyValidatorConflict(&config.ValidatorConfig{ConditionConfig: &conditions.Config{ConditionType: "other"}}, destinations, Identity{}))
	require.Nil(t, svc.IdentifyValidatorConflict(&config.ValidatorConfig{ConditionConfig: &conditions.Config{ConditionType: "RequireText"}}, destinations, Identity{}))
}

func TestCustomIdentifyHandler(t *testing.T) {
	svc := NewValidatorConfigMergeService(services.New())
	svc.SetIdentifyHandler(func(_ *config.ValidatorConfig, destinations []*config.ValidatorConfig, _ Identity) *config.ValidatorConfig {
		if len(destinations) > 0 {
			return destinations[0]
		}
		return nil
	})

	destination := &config.ValueHostConfig{Name: "a", ValidatorConfigs: []*config.ValidatorConfig{{ErrorCode: "X", ErrorMessage: "old"}}}
	require.NoError(t, svc.Merge(&config.ValueHostConfig{Name: "a", ValidatorConfigs: []*config.ValidatorConfig{{ErrorCode: "Y", ErrorMessage: "new"}}}, destination))
	require.Len(t, destination.ValidatorConfigs, 1)
	require.Equal(t, "X", destination.ValidatorConfigs[0].ErrorCode)
	require.Equal(t, "new", destination.ValidatorConfigs[0].ErrorMessage)

	svc.SetIdentifyHandler(nil)
	require.NotNil(t, svc.IdentifyHandler())
	require.NoError(t, svc.Merge(&config.ValueHostConfig{Name: "a", ValidatorConfigs: []*config.ValidatorConfig{{ErrorCode: "Y"}}}, destination))
	require.Len(t, destination.ValidatorConfigs, 2)
}

func TestValidatorMergeCreatesList(t *testing.T) {
	svc := NewValidatorConfigMergeService(services.New())
	source := &config.ValueHostConfig{Name: "a", ValidatorConfigs: []*config.ValidatorConfig{{ErrorCode: "X"}}}
	destination := &config.ValueHostConfig{Name: "a"}
	require.NoError(t, svc.Merge(source, destination))
	require.Equal(t, source.ValidatorConfigs, destination.ValidatorConfigs)
	require.NotSame(t, source.ValidatorConfigs[0], destination.ValidatorConfigs[0])

	require.NoError(t, svc.Merge(&config.ValueHostConfig{Name: "a"}, destination))
	require.Len(t, destination.ValidatorConfigs, 1)
}
