package valuehost

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/services"
)

type testManager struct {
	svc          *services.Services
	owner        *Owner
	hosts        map[string]ValueHost
	stateChanges []string
	valueChanges []string
	validations  []string
}

func newTestManager(t *testing.T, buf *bytes.Buffer, configs ...*config.ValueHostConfig) *testManager {
	t.Helper()
	logger := zerolog.Nop()
	if buf != nil {
		logger = zerolog.New(buf)
	}
	m := &testManager{svc: services.NewDefault(logger), hosts: make(map[string]ValueHost)}
	m.svc.SetService(services.TelemetryService, m)
	m.owner = NewOwner(m)
	factory := NewFactory()
	for _, cfg := range configs {
		vh, err := factory.Create(m.owner, cfg, nil)
		require.NoError(t, err)
		m.hosts[cfg.Name] = vh
	}
	return m
}

func (m *testManager) Services() *services.Services { return m.svc }

func (m *testManager) ValueOf(name string) (interface{}, bool) {
	vh, ok := m.hosts[name]
	if !ok {
		return nil, false
	}
	return vh.GetValue(), true
}

func (m *testManager) GetValueHost(name string) (ValueHost, bool) {
	vh, ok := m.hosts[name]
	return vh, ok
}

func (m *testManager) NotifyValueHostInstanceStateChanged(vh ValueHost, _ *InstanceState) {
	m.stateChanges = append(m.stateChanges, vh.GetName())
}

func (m *testManager) NotifyValueChanged(vh ValueHost, _ interface{}) {
	m.valueChanges = append(m.valueChanges, vh.GetName())
}

func (m *testManager) IncStateChanged(string) {}
func (m *testManager) IncValueChanged(string) {}
func (m *testManager) ObserveValidation(valueHost, status string, _ time.Duration) {
	m.validations = append(m.validations, valueHost+":"+status)
}
func (m *testManager) IncMergeDecision(string, string) {}
func (m *testManager) IncReload(string)                {}

func panicValue(f func()) (v interface{}) {
	defer func() { v = recover() }()
	f()
	return nil
}

func requireCodingPanic(t *testing.T, f func()) {
	t.Helper()
	v := panicValue(f)
	require.NotNil(t, v)
	err, ok := v.(error)
	require.True(t, ok)
	require.True(t, errs.IsCodingError(err))
}

func TestSetInputValueParsesAndValidatesOnce(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{
		Name:             "age",
		ValueHostType:    config.ValueHostTypeInput,
		DataType:         "Number",
		ValidatorConfigs: []*config.ValidatorConfig{{ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRequireText}}},
	})
	input, ok := AsInputHost(m.hosts["age"])
	require.True(t, ok)

	input.SetInputValue("42", &SetValueOptions{Validate: true})

	require.Equal(t, float64(42), input.GetValue())
	require.Equal(t, "42", input.GetInputValue())
	require.Equal(t, []string{"age:Valid"}, m.validations)
	require.Equal(t, StatusValid, input.GetValidationStatus())
	require.Equal(t, []string{"age"}, m.valueChanges)
}

func TestSetInputValueRecordsConversionError(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{
		Name:             "age",
		DataType:         "Number",
		ValidatorConfigs: []*config.ValidatorConfig{{ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRequireText}}},
	})
	input, ok := AsInputHost(m.hosts["age"])
	require.True(t, ok)

	input.SetInputValue("abc", &SetValueOptions{Validate: true})

	require.Nil(t, input.GetValue())
	require.Equal(t, "abc", input.GetInputValue())
	require.NotEmpty(t, input.GetConversionErrorMessage())
	require.False(t, input.IsValid())
	issues := input.GetIssuesFound()
	require.Len(t, issues, 1)
	require.Equal(t, DataTypeCheckErrorCode, issues[0].ErrorCode)
	require.Equal(t, input.GetConversionErrorMessage(), issues[0].ErrorMessage)
}

func TestSetInputValueDuringEditKeepsNativeValue(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{Name: "age", ValueHostType: config.ValueHostTypeInput, DataType: "Number", InitialValue: float64(1)})
	input, _ := AsInputHost(m.hosts["age"])

	input.SetInputValue("4", &SetValueOptions{DuringEdit: true})
	require.Equal(t, float64(1), input.GetValue())
	require.Equal(t, "4", input.GetInputValue())
	require.Empty(t, m.valueChanges)
}

func TestDisabledValueHostRejectsValue(t *testing.T) {
	var buf bytes.Buffer
	m := newTestManager(t, &buf, &config.ValueHostConfig{Name: "a"})
	vh := m.hosts["a"]

	vh.SetEnabled(false)
	vh.SetValue(5, nil)
	require.Nil(t, vh.GetValue())
	require.Contains(t, buf.String(), "Value not changed")
	require.Contains(t, buf.String(), `"level":"warn"`)

	buf.Reset()
	vh.SetValue(5, &SetValueOptions{OverrideDisabled: true})
	require.Equal(t, 5, vh.GetValue())
	require.Contains(t, buf.String(), "OverrideDisabled")
	require.Contains(t, buf.String(), `"level":"info"`)
}

func TestSetValueSkipsNoOpCommit(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{Name: "a"})
	vh := m.hosts["a"]

	vh.SetValue(map[string]interface{}{"x": 1}, nil)
	vh.SetValue(map[string]interface{}{"x": 1}, nil)

	require.Equal(t, []string{"a"}, m.stateChanges)
	require.Equal(t, []string{"a"}, m.valueChanges)
	require.Equal(t, 1, vh.GetChangeCounter())
	require.True(t, vh.IsChanged())

	vh.SetValue(2, &SetValueOptions{Reset: true, SkipValueChangedCallback: true})
	require.Equal(t, 0, vh.GetChangeCounter())
	require.Equal(t, []string{"a"}, m.valueChanges)
}

func TestSetValueStoresCopy(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{Name: "a"})
	value := []string{"x"}
	m.hosts["a"].SetValue(value, nil)
	value[0] = "y"
	require.Equal(t, []string{"x"}, m.hosts["a"].GetValue())
}

func TestIsEnabledPriority(t *testing.T) {
	m := newTestManager(t, nil,
		&config.ValueHostConfig{
			Name:           "gated",
			InitialEnabled: config.Bool(false),
			EnablerConfig:  &conditions.Config{ConditionType: conditions.TypeExpression, Expression: "true"},
		},
		&config.ValueHostConfig{
			Name:          "closed",
			EnablerConfig: &conditions.Config{ConditionType: conditions.TypeExpression, Expression: "false"},
		},
		&config.ValueHostConfig{Name: "initial", InitialEnabled: config.Bool(false)},
		&config.ValueHostConfig{
			Name:           "undetermined",
			InitialEnabled: config.Bool(false),
			EnablerConfig:  &conditions.Config{ConditionType: conditions.TypeExpression, Expression: "1"},
		},
	)

	gated := m.hosts["gated"]
	require.True(t, gated.IsEnabled())
	gated.SetEnabled(false)
	require.False(t, gated.IsEnabled())
	gated.SetEnabled(true)
	require.True(t, gated.IsEnabled())

	closed := m.hosts["closed"]
	closed.SetEnabled(true)
	require.False(t, closed.IsEnabled())

	require.False(t, m.hosts["initial"].IsEnabled())
	m.hosts["initial"].SetEnabled(true)
	require.True(t, m.hosts["initial"].IsEnabled())

	// initialEnabled is only consulted without an enabler
	require.True(t, m.hosts["undetermined"].IsEnabled())
}

func TestCalcValueHost(t *testing.T) {
	m := newTestManager(t, nil,
		&config.ValueHostConfig{Name: "a", InitialValue: 21},
		&config.ValueHostConfig{Name: "double", CalcFn: func(_ config.CalcSubject, values conditions.Resolver) (interface{}, error) {
			v, _ := values.ValueOf("a")
			return v.(int) * 2, nil
		}},
		&config.ValueHostConfig{Name: "expr", ValueHostType: config.ValueHostTypeCalc, CalcExpression: `values("a") + 1`},
		&config.ValueHostConfig{Name: "failing", CalcFn: func(config.CalcSubject, conditions.Resolver) (interface{}, error) {
			return nil, errors.New("boom")
		}},
	)

	require.Equal(t, 42, m.hosts["double"].GetValue())
	require.EqualValues(t, 22, m.hosts["expr"].GetValue())
	require.Nil(t, m.hosts["failing"].GetValue())

	calc, ok := AsCalcHost(m.hosts["double"])
	require.True(t, ok)
	require.Equal(t, config.ValueHostTypeCalc, calc.GetValueHostType())

	calc.SetValue(1, nil)
	require.Equal(t, 42, calc.GetValue())
}

func TestCalcRecursionGuard(t *testing.T) {
	m := newTestManager(t, nil,
		&config.ValueHostConfig{Name: "self", CalcFn: func(host config.CalcSubject, _ conditions.Resolver) (interface{}, error) {
			return host.GetValue(), nil
		}},
		&config.ValueHostConfig{Name: "viaManager", CalcFn: func(host config.CalcSubject, values conditions.Resolver) (interface{}, error) {
			v, _ := values.ValueOf(host.GetName())
			return v, nil
		}},
	)

	requireCodingPanic(t, func() { m.hosts["self"].GetValue() })
	requireCodingPanic(t, func() { m.hosts["viaManager"].GetValue() })
	// the guard is released after the panic
	requireCodingPanic(t, func() { m.hosts["self"].GetValue() })
}

func TestCalcRequiresCalculation(t *testing.T) {
	m := newTestManager(t, nil)
	_, err := NewFactory().Create(m.owner, &config.ValueHostConfig{Name: "c", ValueHostType: config.ValueHostTypeCalc}, nil)
	require.True(t, errs.IsCodingError(err))
}

func TestValidateRequireFirstAndSevereStops(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{
		Name:  "amount",
		Label: "Amount",
		ValidatorConfigs: []*config.ValidatorConfig{
			{
				ErrorCode:       "Digits",
				ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRegExp, Settings: map[string]interface{}{"pattern": "^[0-9]+$"}},
			},
			{
				ErrorCode:       "Req",
				ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRequireText},
				Severity:        config.SeveritySevere,
				ErrorMessage:    "{Label} is required",
				SummaryMessage:  "Fill in {Label}",
			},
		},
	})
	input, ok := AsInputHost(m.hosts["amount"])
	require.True(t, ok)
	require.True(t, input.RequiresInput())
	require.Equal(t, "Req", input.Validators()[0].ErrorCode())

	result := input.Validate(nil)
	require.Equal(t, StatusInvalid, result.Status)
	require.Equal(t, []IssueFound{{
		ValueHostName:  "amount",
		ErrorCode:      "Req",
		Severity:       config.SeveritySevere,
		ErrorMessage:   "Amount is required",
		SummaryMessage: "Fill in Amount",
	}}, result.IssuesFound)
	require.Equal(t, result.IssuesFound, input.GetIssuesFound())

	input.SetInputValue("12a", &SetValueOptions{Validate: true})
	issues := input.GetIssuesFound()
	require.Len(t, issues, 1)
	require.Equal(t, "Digits", issues[0].ErrorCode)
	require.Equal(t, config.SeverityError, issues[0].Severity)

	require.True(t, input.ClearValidation())
	require.Equal(t, StatusNotAttempted, input.GetValidationStatus())
	require.True(t, input.IsValid())
	require.False(t, input.ClearValidation())
}

func TestValidateWarningsStayValid(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{
		Name:          "name",
		ValueHostType: config.ValueHostTypeProperty,
		PropertyName:  "Name",
		InitialValue:  "abc",
		ValidatorConfigs: []*config.ValidatorConfig{{
			ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRegExp, Expression: "^[A-Z]"},
			Severity:        config.SeverityWarning,
			ErrorMessage:    "{Value} should start upper case",
		}},
	})
	property, ok := AsPropertyHost(m.hosts["name"])
	require.True(t, ok)
	require.Equal(t, "Name", property.GetPropertyName())

	result := property.Validate(nil)
	require.Equal(t, StatusValid, result.Status)
	require.Len(t, result.IssuesFound, 1)
	require.Equal(t, conditions.TypeRegExp, result.IssuesFound[0].ErrorCode)
	require.Equal(t, "abc should start upper case", result.IssuesFound[0].ErrorMessage)
}

func TestValidateDisabled(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{
		Name:             "a",
		ValueHostType:    config.ValueHostTypeInput,
		ValidatorConfigs: []*config.ValidatorConfig{{ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRequireText}}},
	})
	input, _ := AsInputHost(m.hosts["a"])
	input.SetEnabled(false)
	require.Equal(t, StatusDisabled, input.Validate(nil).Status)
	require.Empty(t, input.GetIssuesFound())
}

func TestValidatorEnabledFlagAndEnabler(t *testing.T) {
	m := newTestManager(t, nil,
		&config.ValueHostConfig{Name: "toggle", InitialValue: false},
		&config.ValueHostConfig{
			Name:          "a",
			ValueHostType: config.ValueHostTypeInput,
			ValidatorConfigs: []*config.ValidatorConfig{
				{ErrorCode: "off", ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRequireText}, Enabled: config.Bool(false)},
				{
					ErrorCode:       "gated",
					ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRequireText},
					EnablerConfig:   &conditions.Config{ConditionType: conditions.TypeExpression, Expression: "value == true", ValueHostName: "toggle"},
				},
			},
		},
	)
	input, _ := AsInputHost(m.hosts["a"])
	require.Empty(t, input.Validate(nil).IssuesFound)

	m.hosts["toggle"].SetValue(true, nil)
	issues := input.Validate(nil).IssuesFound
	require.Len(t, issues, 1)
	require.Equal(t, "gated", issues[0].ErrorCode)
}

func TestUpdateInstanceStateErrorLeavesStateUntouched(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{Name: "a", InitialValue: 1})
	vh := m.hosts["a"]

	changed, err := vh.UpdateInstanceState(func(s *InstanceState) error {
		s.Value = 2
		return errors.New("rejected")
	})
	require.Error(t, err)
	require.False(t, changed)
	require.Equal(t, 1, vh.GetValue())
	require.Empty(t, m.stateChanges)

	changed, err = vh.UpdateInstanceState(func(s *InstanceState) error {
		s.Name = "renamed"
		s.Value = 3
		return nil
	})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "a", vh.GetInstanceState().Name)

	_, err = vh.UpdateInstanceState(nil)
	require.True(t, errs.IsCodingError(err))
}

func TestInstanceStateItems(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{Name: "a"})
	vh := m.hosts["a"]

	vh.SaveIntoInstanceState("k", []int{1})
	v, ok := vh.GetFromInstanceState("k")
	require.True(t, ok)
	require.Equal(t, []int{1}, v)

	v.([]int)[0] = 2
	v, _ = vh.GetFromInstanceState("k")
	require.Equal(t, []int{1}, v)

	vh.SaveIntoInstanceState("k", nil)
	_, ok = vh.GetFromInstanceState("k")
	require.False(t, ok)
}

func TestGetLabelLocalized(t *testing.T) {
	m := newTestManager(t, nil,
		&config.ValueHostConfig{Name: "age", Label: "Age", Labell10n: "age.label"},
		&config.ValueHostConfig{Name: "plain"},
	)
	localizer := services.NewMapLocalizer()
	localizer.Register("de", "age.label", "Alter")
	m.svc.SetService(services.TextLocalizerService, localizer)

	require.Equal(t, "Age", m.hosts["age"].GetLabel())
	m.svc.SetService(services.CultureServiceName, services.NewCulture("de-CH"))
	require.Equal(t, "Alter", m.hosts["age"].GetLabel())
	require.Equal(t, "plain", m.hosts["plain"].GetLabel())
}

func TestDisposePanicsOnUse(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{Name: "a"})
	vh := m.hosts["a"]
	vh.Dispose()
	vh.Dispose()

	requireCodingPanic(t, func() { vh.GetValue() })
	requireCodingPanic(t, func() { vh.SetValue(1, nil) })
	requireCodingPanic(t, func() { vh.GetName() })
}

func TestReleasedOwnerPanics(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{Name: "a"})
	accessor := NewAccessor(m.owner)
	m.owner.Release()

	requireCodingPanic(t, func() { m.hosts["a"].SetValue(1, nil) })
	_, err := accessor.Any("a")
	require.True(t, errs.IsCodingError(err))
}

func TestAccessor(t *testing.T) {
	m := newTestManager(t, nil,
		&config.ValueHostConfig{Name: "static"},
		&config.ValueHostConfig{Name: "calc", CalcExpression: "1"},
		&config.ValueHostConfig{Name: "input", ValueHostType: config.ValueHostTypeInput},
		&config.ValueHostConfig{Name: "property", ValueHostType: config.ValueHostTypeProperty},
	)
	accessor := NewAccessor(m.owner)

	_, err := accessor.Static("static")
	require.NoError(t, err)
	_, err = accessor.Calc("calc")
	require.NoError(t, err)
	_, err = accessor.Input("input")
	require.NoError(t, err)
	_, err = accessor.Property("property")
	require.NoError(t, err)
	_, err = accessor.Validators("property")
	require.NoError(t, err)

	_, err = accessor.Input("static")
	require.ErrorContains(t, err, "not a Input value host")
	require.False(t, errs.IsCodingError(err))
	_, err = accessor.Static("input")
	require.Error(t, err)
	_, err = accessor.Any("missing")
	require.ErrorContains(t, err, `"missing" not found`)
}

func TestFactoryPicksGenerator(t *testing.T) {
	m := newTestManager(t, nil,
		&config.ValueHostConfig{Name: "static"},
		&config.ValueHostConfig{Name: "calc", CalcExpression: "1"},
		&config.ValueHostConfig{Name: "input", ValidatorConfigs: []*config.ValidatorConfig{{ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRequireText}}}},
	)
	require.IsType(t, &StaticValueHost{}, m.hosts["static"])
	require.IsType(t, &CalcValueHost{}, m.hosts["calc"])
	require.IsType(t, &InputValueHost{}, m.hosts["input"])

	factory := NewFactory()
	_, err := factory.Create(m.owner, &config.ValueHostConfig{Name: "x", ValueHostType: "Unknown"}, nil)
	require.True(t, errs.IsCodingError(err))
	_, err = factory.Create(m.owner, &config.ValueHostConfig{ValueHostType: config.ValueHostTypeStatic}, nil)
	require.True(t, errs.IsCodingError(err))
	_, err = factory.Create(m.owner, nil, nil)
	require.True(t, errs.IsCodingError(err))
}

func TestFactoryRejectsConfigAndCreator(t *testing.T) {
	m := newTestManager(t, nil)
	creator := func() (conditions.Condition, error) { return nil, nil }

	_, err := NewFactory().Create(m.owner, &config.ValueHostConfig{
		Name:           "a",
		EnablerConfig:  &conditions.Config{ConditionType: conditions.TypeRequireText},
		EnablerCreator: creator,
	}, nil)
	require.True(t, errs.IsCodingError(err))

	_, err = NewFactory().Create(m.owner, &config.ValueHostConfig{
		Name: "b",
		ValidatorConfigs: []*config.ValidatorConfig{{
			ConditionConfig:  &conditions.Config{ConditionType: conditions.TypeRequireText},
			ConditionCreator: creator,
		}},
	}, nil)
	require.True(t, errs.IsCodingError(err))
}

func TestFactoryCreatorConditions(t *testing.T) {
	m := newTestManager(t, nil)
	vh, err := NewFactory().Create(m.owner, &config.ValueHostConfig{
		Name:          "a",
		ValueHostType: config.ValueHostTypeInput,
		ValidatorConfigs: []*config.ValidatorConfig{{
			ConditionCreator: func() (conditions.Condition, error) {
				return conditions.NewFactory().Create(&conditions.Config{ConditionType: conditions.TypeRequireText})
			},
		}},
	}, nil)
	require.NoError(t, err)
	input, _ := AsInputHost(vh)
	require.Equal(t, conditions.TypeRequireText, input.Validators()[0].ErrorCode())
	require.Len(t, input.Validators(), 2)
}

func TestFactoryRestoresAndCleansState(t *testing.T) {
	m := newTestManager(t, nil)
	factory := NewFactory()
	cfg := &config.ValueHostConfig{
		Name:             "a",
		ValueHostType:    config.ValueHostTypeInput,
		ValidatorConfigs: []*config.ValidatorConfig{{ErrorCode: "Req", ConditionConfig: &conditions.Config{ConditionType: conditions.TypeRequireText}}},
	}
	saved := &InstanceState{
		Name:   "a",
		Value:  "v",
		Status: StatusInvalid,
		IssuesFound: []IssueFound{
			{ValueHostName: "a", ErrorCode: " req "},
			{ValueHostName: "a", ErrorCode: "Gone"},
		},
	}

	require.NoError(t, factory.CleanupState(m.svc, saved, cfg))
	require.Equal(t, StatusNotAttempted, saved.Status)
	require.Equal(t, []IssueFound{{ValueHostName: "a", ErrorCode: " req "}}, saved.IssuesFound)

	vh, err := factory.Create(m.owner, cfg, saved)
	require.NoError(t, err)
	require.Equal(t, "v", vh.GetValue())

	calcState := &InstanceState{Name: "c", Value: 5}
	require.NoError(t, factory.CleanupState(m.svc, calcState, &config.ValueHostConfig{Name: "c", CalcExpression: "1"}))
	require.Nil(t, calcState.Value)

	state, err := factory.CreateState(&config.ValueHostConfig{Name: "s", InitialValue: 3})
	require.NoError(t, err)
	require.Equal(t, &InstanceState{Name: "s", Value: 3}, state)
}

func TestInstanceStateCloneAndEqual(t *testing.T) {
	state := &InstanceState{
		Name:        "a",
		Value:       decimal.RequireFromString("1.50"),
		Items:       map[string]interface{}{"when": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		IssuesFound: []IssueFound{{ErrorCode: "x"}},
		Enabled:     config.Bool(true),
	}
	clone := state.Clone()
	require.True(t, state.Equal(clone))
	require.True(t, clone.Value.(decimal.Decimal).Equal(decimal.RequireFromString("1.5")))

	clone.IssuesFound[0].ErrorCode = "y"
	*clone.Enabled = false
	require.Equal(t, "x", state.IssuesFound[0].ErrorCode)
	require.True(t, *state.Enabled)

	require.True(t, (&InstanceState{Name: "a"}).Equal(&InstanceState{Name: "a", Items: map[string]interface{}{}}))
}

func TestStateMutationsReturn(t *testing.T) {
	m := newTestManager(t, nil, &config.ValueHostConfig{Name: "a"})
	vh := m.hosts["a"]
	a := &InstanceState{Name: "a", Value: 1}

	var sameClone, differs, nilOther bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		sameClone = a.Equal(a.Clone())
		differs = a.Equal(&InstanceState{Name: "a", Value: 2})
		nilOther = a.Equal(nil)
		vh.SetValue(1, nil)
		vh.SetEnabled(false)
		vh.SaveIntoInstanceState("k", "v")
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("state mutation did not return")
	}

	require.True(t, sameClone)
	require.False(t, differs)
	require.False(t, nilOther)
	require.True(t, (*InstanceState)(nil).Equal(nil))
	require.Equal(t, 1, vh.GetValue())
	require.False(t, vh.IsEnabled())
	v, ok := vh.GetFromInstanceState("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestCleanupStateConvertsRestoredValues(t *testing.T) {
	m := newTestManager(t, nil)
	factory := NewFactory()
	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		dataType string
		saved    interface{}
		want     interface{}
	}{
		{dataType: "Integer", saved: float64(42), want: int64(42)},
		{dataType: "Decimal", saved: "12.50", want: decimal.RequireFromString("12.5")},
		{dataType: "Date", saved: when.Format(time.RFC3339Nano), want: when},
		{dataType: "Email", saved: "a@b.c", want: "a@b.c"},
		{dataType: "", saved: float64(1), want: float64(1)},
	}
	for _, tt := range tests {
		t.Run(tt.dataType, func(t *testing.T) {
			state := &InstanceState{Name: "a", Value: tt.saved}
			cfg := &config.ValueHostConfig{Name: "a", DataType: tt.dataType}
			require.NoError(t, factory.CleanupState(m.svc, state, cfg))
			require.True(t, valuesEqual(tt.want, state.Value), "got %#v", state.Value)
		})
	}

	withoutConverter := services.New()
	err := factory.CleanupState(withoutConverter, &InstanceState{Name: "a", Value: 1.0}, &config.ValueHostConfig{Name: "a", DataType: "Integer"})
	require.True(t, errs.IsCodingError(err))
}

func TestRestoredIntegerIsNotAChange(t *testing.T) {
	m := newTestManager(t, nil)
	cfg := &config.ValueHostConfig{Name: "n", DataType: "Integer"}
	state := &InstanceState{Name: "n", Value: float64(42)}
	require.NoError(t, NewFactory().CleanupState(m.svc, state, cfg))
	vh, err := NewFactory().Create(m.owner, cfg, state)
	require.NoError(t, err)

	vh.SetValue(int64(42), nil)
	require.Empty(t, m.valueChanges)
	require.Equal(t, 0, vh.GetChangeCounter())
}
