package merge

import (
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/timzifer/valuehosts/conditions"
	"github.com/timzifer/valuehosts/errs"
)

// ConditionAction is the decision of a ConditionConflictHandler.
type ConditionAction string

const (
	ConditionNoChange ConditionAction = "nochange"
	ConditionDelete   ConditionAction = "delete"
	// ConditionAll combines both conditions into an All condition.
	ConditionAll ConditionAction = "all"
	// ConditionAny combines both conditions into an Any condition.
	ConditionAny ConditionAction = "any"
)

// ConditionConflictHandler decides how a conflicting condition config is
// merged. identity.ContainingProperty names the property holding the
// condition.
type ConditionConflictHandler func(source, destination *conditions.Config, identity Identity) (ConditionAction, error)

// SetConditionConflictRule registers the handler for conditions held by
// containingProperty. Handlers are permanent once set.
func (s *ConfigMergeServiceBase[T]) SetConditionConflictRule(containingProperty string, handler ConditionConflictHandler) error {
	if handler == nil {
		return errs.NewCodingError("condition conflict handler for %s must not be nil", containingProperty)
	}
	if _, exists := s.conditionHandlers[containingProperty]; exists {
		return errs.NewCodingError("condition conflict rule for %s is already set", containingProperty)
	}
	s.conditionHandlers[containingProperty] = handler
	return nil
}

// HandleConditionConfigProperty merges a property holding a condition config.
// A missing destination condition takes the source condition. Otherwise the
// handler registered for the property decides, defaulting to nochange. all
// and any wrap both conditions into a composite; a destination that already
// is that composite receives the source condition as another child.
func (s *ConfigMergeServiceBase[T]) HandleConditionConfigProperty(source, destination T, propertyName string, identity Identity) (HandlerResult, error) {
	srcCond, err := conditionField(source, propertyName)
	if err != nil {
		return HandlerResult{}, err
	}
	dstCond, err := conditionField(destination, propertyName)
	if err != nil {
		return HandlerResult{}, err
	}
	if srcCond == nil {
		return UseAction(NoChange), nil
	}
	if dstCond == nil {
		return UseValue(srcCond.Clone()), nil
	}
	if cmp.Equal(srcCond, dstCond) {
		return UseAction(NoChange), nil
	}

	identity.ContainingProperty = propertyName
	if srcCond.ConditionType != dstCond.ConditionType {
		s.logEvent(zerolog.WarnLevel, propertyName, identity).
			Str("sourceConditionType", srcCond.ConditionType).
			Str("destinationConditionType", dstCond.ConditionType).
			Msgf("ConditionType mismatch: destination has %s, source has %s.", dstCond.ConditionType, srcCond.ConditionType)
	}

	action := ConditionNoChange
	if handler, ok := s.conditionHandlers[propertyName]; ok {
		action, err = handler(srcCond, dstCond, identity)
		if err != nil {
			return HandlerResult{}, err
		}
	}

	switch action {
	case ConditionNoChange, "":
		return UseAction(NoChange), nil
	case ConditionDelete:
		return UseAction(Delete), nil
	case ConditionAll:
		return UseValue(combine(conditions.TypeAll, srcCond, dstCond)), nil
	case ConditionAny:
		return UseValue(combine(conditions.TypeAny, srcCond, dstCond)), nil
	default:
		return HandlerResult{}, errs.NewCodingError("Unknown condition rule %q for property %s", action, propertyName)
	}
}

func combine(compositeType string, source, destination *conditions.Config) *conditions.Config {
	if destination.ConditionType == compositeType {
		out := destination.Clone()
		for _, child := range out.ConditionConfigs {
			if cmp.Equal(child, source) {
				return out
			}
		}
		out.ConditionConfigs = append(out.ConditionConfigs, source.Clone())
		return out
	}
	return &conditions.Config{
		ConditionType:    compositeType,
		ConditionConfigs: []*conditions.Config{destination.Clone(), source.Clone()},
	}
}
