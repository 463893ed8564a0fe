package merge

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/mitchellh/copystructure"
	"github.com/rs/zerolog"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/config"
	"github.com/timzifer/valuehosts/errs"
	"github.com/timzifer/valuehosts/services"
)

// LogCategory is attached to every merge decision logged.
const LogCategory = "Configuration"

// ConfigMergeServiceBase merges two configs of the same struct type under a
// rule table. T must be a pointer to a struct; property names are the JSON
// names of its fields, or the lower camel case field name for fields that are
// not serialized.
type ConfigMergeServiceBase[T any] struct {
	services          *services.Services
	rules             map[string]PropertyConflictRule[T]
	conditionHandlers map[string]ConditionConflictHandler
}

// NewConfigMergeServiceBase returns a service without any registered rule.
func NewConfigMergeServiceBase[T any](svc *services.Services) *ConfigMergeServiceBase[T] {
	if svc == nil {
		svc = services.New()
	}
	return &ConfigMergeServiceBase[T]{
		services:          svc,
		rules:             make(map[string]PropertyConflictRule[T]),
		conditionHandlers: make(map[string]ConditionConflictHandler),
	}
}

// Services returns the container used for logging and telemetry.
func (s *ConfigMergeServiceBase[T]) Services() *services.Services {
	return s.services
}

// SetPropertyConflictRule registers rule for propertyName. Handler rules and
// Locked are permanent: replacing them, or replacing any rule with a handler,
// is a coding error. Simple keywords may be re-registered.
func (s *ConfigMergeServiceBase[T]) SetPropertyConflictRule(propertyName string, rule PropertyConflictRule[T]) error {
	if existing, ok := s.rules[propertyName]; ok {
		if existing.permanent() || rule.IsHandler() {
			return errs.NewCodingError("conflict rule for property %s is %s and can not be replaced by %s", propertyName, existing, rule)
		}
	}
	s.rules[propertyName] = rule
	return nil
}

// SetPropertyConflictKeyword registers a keyword rule for propertyName.
func (s *ConfigMergeServiceBase[T]) SetPropertyConflictKeyword(propertyName string, keyword RuleKeyword) error {
	return s.SetPropertyConflictRule(propertyName, KeywordRule[T](keyword))
}

// SetPropertyConflictHandler registers a handler rule for propertyName.
func (s *ConfigMergeServiceBase[T]) SetPropertyConflictHandler(propertyName string, handler PropertyConflictHandler[T]) error {
	if handler == nil {
		return errs.NewCodingError("conflict handler for property %s must not be nil", propertyName)
	}
	return s.SetPropertyConflictRule(propertyName, HandlerRule[T](handler))
}

// GetPropertyConflictRule returns the rule registered for propertyName.
// Unregistered properties are merged with Replace.
func (s *ConfigMergeServiceBase[T]) GetPropertyConflictRule(propertyName string) (PropertyConflictRule[T], bool) {
	rule, ok := s.rules[propertyName]
	return rule, ok
}

// MergeConfigs merges every property set on source or destination. source is
// never modified; values assigned to destination are deep copies.
func (s *ConfigMergeServiceBase[T]) MergeConfigs(source, destination T, identity Identity) error {
	src, err := structValue(source, "source")
	if err != nil {
		return err
	}
	dst, err := structValue(destination, "destination")
	if err != nil {
		return err
	}
	if src.Type() != dst.Type() {
		return errs.NewCodingError("cannot merge %s into %s", src.Type(), dst.Type())
	}
	for _, prop := range propertiesOf(src.Type()) {
		if src.Field(prop.index).IsZero() && dst.Field(prop.index).IsZero() {
			continue
		}
		rule, ok := s.rules[prop.name]
		if !ok {
			rule = KeywordRule[T](Replace)
		}
		if err := s.MergeProperty(prop.name, rule, source, destination, identity); err != nil {
			return err
		}
	}
	return nil
}

// MergeProperty applies rule to one property.
func (s *ConfigMergeServiceBase[T]) MergeProperty(propertyName string, rule PropertyConflictRule[T], source, destination T, identity Identity) error {
	src, err := structValue(source, "source")
	if err != nil {
		return err
	}
	dst, err := structValue(destination, "destination")
	if err != nil {
		return err
	}
	idx, ok := fieldIndex(dst.Type(), propertyName)
	if !ok {
		return errs.NewCodingError("unknown property %s on %s", propertyName, dst.Type())
	}
	srcField := src.Field(idx)
	dstField := dst.Field(idx)

	if rule.IsHandler() {
		result, err := rule.Handler(source, destination, propertyName, identity)
		if err != nil {
			return err
		}
		if result.UseValue {
			value, err := assignable(result.Value, dstField.Type())
			if err != nil {
				return errs.WrapCodingError(err, "conflict handler for property %s", propertyName)
			}
			if equalValues(value, dstField) {
				return nil
			}
			dstField.Set(cloneValue(value))
			s.logDecision(zerolog.InfoLevel, propertyName, identity, "replace", propertyName+" replaced")
			return nil
		}
		action := result.Action
		if action == "" {
			action = NoChange
		}
		return s.applyKeyword(propertyName, action, srcField, dstField, identity)
	}
	return s.applyKeyword(propertyName, rule.Keyword, srcField, dstField, identity)
}

func (s *ConfigMergeServiceBase[T]) applyKeyword(propertyName string, keyword RuleKeyword, src, dst reflect.Value, identity Identity) error {
	switch keyword {
	case NoChange, Locked:
		s.logDecision(zerolog.DebugLevel, propertyName, identity, string(NoChange), "Rule prevents changes")
	case Replace, ReplaceExceptNull:
		// an unset source property is absent, not an explicit null
		if src.IsZero() {
			return nil
		}
		s.replace(propertyName, src, dst, identity)
	case Delete:
		s.delete(propertyName, dst, identity)
	case ReplaceOrDelete:
		if src.IsZero() {
			s.delete(propertyName, dst, identity)
			return nil
		}
		s.replace(propertyName, src, dst, identity)
	default:
		return errs.NewCodingError("Unknown rule %q for property %s", keyword, propertyName)
	}
	return nil
}

func (s *ConfigMergeServiceBase[T]) replace(propertyName string, src, dst reflect.Value, identity Identity) {
	if equalValues(src, dst) {
		return
	}
	dst.Set(cloneValue(src))
	s.logDecision(zerolog.InfoLevel, propertyName, identity, string(Replace), propertyName+" replaced")
}

// delete only logs when something was removed.
func (s *ConfigMergeServiceBase[T]) delete(propertyName string, dst reflect.Value, identity Identity) {
	if dst.IsZero() {
		return
	}
	dst.Set(reflect.Zero(dst.Type()))
	s.logDecision(zerolog.InfoLevel, propertyName, identity, string(Delete), propertyName+" deleted")
}

func (s *ConfigMergeServiceBase[T]) logDecision(level zerolog.Level, propertyName string, identity Identity, decision, msg string) {
	s.services.Telemetry().IncMergeDecision(propertyName, decision)
	s.logEvent(level, propertyName, identity).Msg(msg)
}

func (s *ConfigMergeServiceBase[T]) logEvent(level zerolog.Level, propertyName string, identity Identity) *zerolog.Event {
	logger := s.services.Logger()
	event := logger.WithLevel(level).
		Str("category", LogCategory).
		Str("valueHost", identity.ValueHostName).
		Str("property", propertyName)
	if identity.ErrorCode != "" {
		event = event.Str("errorCode", identity.ErrorCode)
	}
	return event
}

func structValue(v interface{}, role string) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, errs.NewCodingError("%s config must be a non-nil pointer", role)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, errs.NewCodingError("%s config must point to a struct", role)
	}
	return rv, nil
}

type property struct {
	name  string
	index int
}

var propertyCache sync.Map // reflect.Type -> []property

func propertiesOf(t reflect.Type) []property {
	if cached, ok := propertyCache.Load(t); ok {
		return cached.([]property)
	}
	props := make([]property, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		props = append(props, property{name: propertyName(f), index: i})
	}
	propertyCache.Store(t, props)
	return props
}

func fieldIndex(t reflect.Type, name string) (int, bool) {
	for _, prop := range propertiesOf(t) {
		if prop.name == name {
			return prop.index, true
		}
	}
	return 0, false
}

func propertyName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name != "" && name != "-" {
		return name
	}
	r, size := utf8.DecodeRuneInString(f.Name)
	return string(unicode.ToLower(r)) + f.Name[size:]
}

var equalOptions = []cmp.Option{
	cmp.Comparer(func(a, b config.ConditionCreator) bool { return sameFunc(a, b) }),
	cmp.Comparer(func(a, b config.CalcFunc) bool { return sameFunc(a, b) }),
}

func sameFunc(a, b interface{}) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func equalValues(a, b reflect.Value) bool {
	if a.Kind() == reflect.Func {
		return a.Pointer() == b.Pointer()
	}
	return cmp.Equal(a.Interface(), b.Interface(), equalOptions...)
}

// cloneValue deep copies v. Types with a Clone method are copied with it.
func cloneValue(v reflect.Value) reflect.Value {
	if !v.IsValid() || v.IsZero() {
		return v
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return v
	}
	if m := v.MethodByName("Clone"); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 && m.Type().Out(0) == v.Type() {
		return m.Call(nil)[0]
	}
	copied, err := copystructure.Copy(v.Interface())
	if err != nil || copied == nil {
		return v
	}
	out := reflect.ValueOf(copied)
	if !out.Type().AssignableTo(v.Type()) {
		return v
	}
	return out
}

func assignable(value interface{}, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}
	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(target):
		return rv, nil
	case rv.Type().ConvertibleTo(target) && rv.Kind() == target.Kind():
		return rv.Convert(target), nil
	default:
		return reflect.Value{}, fmt.Errorf("value of type %s is not assignable to %s", rv.Type(), target)
	}
}

// conditionField reads a *conditions.Config property.
func conditionField(v interface{}, propertyName string) (*conditions.Config, error) {
	rv, err := structValue(v, "config")
	if err != nil {
		return nil, err
	}
	idx, ok := fieldIndex(rv.Type(), propertyName)
	if !ok {
		return nil, errs.NewCodingError("unknown property %s on %s", propertyName, rv.Type())
	}
	cond, ok := rv.Field(idx).Interface().(*conditions.Config)
	if !ok {
		return nil, errs.NewCodingError("property %s of %s is not a condition config", propertyName, rv.Type())
	}
	return cond, nil
}
